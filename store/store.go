//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package store implements the concurrent statement-statistics store: a
// fixed-capacity hashtable of per-statement counters, an append-only
// external file holding the representative query texts, usage-ranked
// eviction, a text-file garbage collector and a durable dump/restore cycle.
//
// Locking follows a three-level discipline. The table lock (an RWMutex) is
// held shared for lookups and counter updates and exclusively for insert,
// eviction, GC and removal. A store-wide mutex covers the text-file cursor
// (extent, nWriters, gcCount) and the global statistics. Each entry carries
// its own short-section mutex for counter updates under the shared table
// lock. No lock is ever held across another except in that fixed order.
package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/querystats/monitoring"
	"github.com/weaviate/querystats/normalize"
)

const (
	// DumpFileName is the dump location inside the stats dir; the file
	// exists only while the process is down.
	DumpFileName = "statements.stat"
	// TextFileName is the query text file inside the temp dir; it exists
	// only while the process is up.
	TextFileName = "statement_texts.stat"

	defaultMaxEntries = 5000

	// seeds used until the first eviction pass produces real numbers
	assumedMedianUsage = 10.0
	assumedQueryLen    = 1024

	// reservation ceiling of the text file; keeps offsets addressable on
	// 32-bit hosts
	maxTextFileBytes = math.MaxInt32
)

type Store struct {
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics
	scanner normalize.Scanner

	maxEntries int
	persist    bool
	dumpPath   string
	textPath   string

	// lock is the table lock: shared for lookups and counter updates,
	// exclusive for insert, eviction, GC and removal.
	lock sync.RWMutex

	// mu covers extent, nWriters, gcCount, deallocCount and statsReset.
	// It is taken for every access to those fields, including from code
	// already holding the table lock exclusively.
	mu           sync.Mutex
	extent       int64
	nWriters     int
	gcCount      int64
	deallocCount int64
	statsReset   time.Time

	// written only under the exclusive table lock
	curMedianUsage float64
	meanQueryLen   int64

	// textFile is only swapped under the exclusive table lock; WriteAt
	// calls from concurrent reservation holders never overlap.
	textFile *os.File

	// the entry arena; slots reference each other by index, never by
	// pointer, and the arena never grows
	entries  []entry
	buckets  []int32
	mask     uint64
	freeHead int32
	count    int
}

type Option func(*Store) error

// WithMaxEntries fixes the table capacity. It cannot be changed after New.
func WithMaxEntries(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			return errors.Errorf("max entries must be positive, got %d", n)
		}
		s.maxEntries = n
		return nil
	}
}

// WithPersistence enables the dump at shutdown and the restore at startup.
func WithPersistence(enabled bool) Option {
	return func(s *Store) error {
		s.persist = enabled
		return nil
	}
}

// WithScanner supplies the lexer used to fill in unknown constant lengths
// during text normalization. Without one, such constants keep their
// literal form.
func WithScanner(sc normalize.Scanner) Option {
	return func(s *Store) error {
		s.scanner = sc
		return nil
	}
}

// New builds the store, creates an empty query text file under tempDir and,
// if persistence is enabled, restores a previous dump from statsDir. The
// dump file is consumed by the restore either way, so a crash never
// resurrects stale statistics twice.
func New(statsDir, tempDir string, logger logrus.FieldLogger,
	metrics *monitoring.Metrics, opts ...Option,
) (*Store, error) {
	s := &Store{
		logger:       logger,
		metrics:      metrics,
		maxEntries:   defaultMaxEntries,
		statsReset:   time.Now(),
		meanQueryLen: assumedQueryLen,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.curMedianUsage = assumedMedianUsage

	if err := os.MkdirAll(statsDir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create stats dir %q", statsDir)
	}
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create temp dir %q", tempDir)
	}
	s.dumpPath = filepath.Join(statsDir, DumpFileName)
	s.textPath = filepath.Join(tempDir, TextFileName)

	s.entries = make([]entry, s.maxEntries)
	for i := range s.entries {
		s.entries[i].next = int32(i + 1)
	}
	s.entries[s.maxEntries-1].next = -1
	s.freeHead = 0

	nbuckets := 1
	for nbuckets < 2*s.maxEntries {
		nbuckets <<= 1
	}
	s.buckets = make([]int32, nbuckets)
	for i := range s.buckets {
		s.buckets[i] = -1
	}
	s.mask = uint64(nbuckets - 1)

	// always start from an empty text file: after a crash the previous
	// one references entries that no longer exist
	f, err := os.Create(s.textPath)
	if err != nil {
		return nil, errors.Wrapf(err, "create query text file %q", s.textPath)
	}
	s.textFile = f

	if s.persist {
		s.restore()
	}

	s.metrics.Entries.Set(float64(s.count))
	return s, nil
}

// Shutdown dumps the statistics if persistence is enabled and removes the
// query text file. Afterwards the store must not be used anymore.
func (s *Store) Shutdown(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.persist {
		if err := s.dumpLocked(); err != nil {
			s.logger.WithError(err).WithField("path", s.dumpPath).
				Warn("write statistics dump")
		}
	} else {
		os.Remove(s.dumpPath)
	}

	if err := s.textFile.Close(); err != nil {
		s.logger.WithError(err).WithField("path", s.textPath).
			Warn("close query text file")
	}
	os.Remove(s.textPath)
	return nil
}

// GlobalStats is the store-wide statistics row.
type GlobalStats struct {
	// DeallocCount is the number of eviction passes since the last full
	// reset.
	DeallocCount int64
	// StatsReset is the time of the last full reset, or of startup.
	StatsReset time.Time
}

func (s *Store) Info() GlobalStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return GlobalStats{
		DeallocCount: s.deallocCount,
		StatsReset:   s.statsReset,
	}
}

// Count returns the number of entries currently in the table.
func (s *Store) Count() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.count
}
