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

package store

import (
	"time"

	"github.com/weaviate/querystats/entities/statements"
	"github.com/weaviate/querystats/normalize"
)

// Recording is one statement observation handed to Record.
type Recording struct {
	// Query is the raw source string; Location and Length select the
	// statement within it (Length -1 means "to the end").
	Query    string
	Location int
	Length   int

	Key  statements.Key
	Kind statements.StatKind

	// Sample carries the call's measurements. It is ignored when Hints is
	// set.
	Sample statements.Sample

	// Hints, when non-nil, turns this recording into a text-capture call:
	// the query text is normalized and retained, counters stay untouched
	// and the entry is created sticky so the text survives until the
	// statement first executes.
	Hints *normalize.Hints

	// Encoding is the host's character-encoding id for Query; the store
	// treats it as opaque.
	Encoding int32
}

// Record folds one observation into the store. Statistics are best-effort:
// I/O problems on the query text file abandon the entry creation and are
// logged, never returned; a zero QueryID skips the call entirely.
func (s *Store) Record(rec Recording) {
	if rec.Key.QueryID == 0 {
		return
	}
	start := time.Now()
	defer func() {
		s.metrics.IngestDurations.Observe(time.Since(start).Seconds())
	}()

	query := normalize.CleanText(rec.Query, rec.Location, rec.Length)

	s.lock.RLock()
	e := s.lookupLocked(rec.Key)
	if e == nil {
		text := query
		if rec.Hints != nil {
			// normalizing lexes the query, which is too slow to do
			// while holding the table lock
			s.lock.RUnlock()
			text = normalize.Generate(query, rec.Hints, s.scanner)
			s.lock.RLock()
		}

		offset, gcCount, err := s.textStoreString(text)
		needGC := s.needGCLocked()
		s.lock.RUnlock()

		s.lock.Lock()
		defer s.lock.Unlock()

		// between the reservation and taking the exclusive lock a GC may
		// have moved the file under us; if so, or if the reservation
		// itself failed, redo it. No GC can intervene from here on.
		s.mu.Lock()
		gcStale := s.gcCount != gcCount
		s.mu.Unlock()
		if err != nil || gcStale {
			offset, _, err = s.textStoreString(text)
			if err != nil {
				s.logger.WithError(err).Debug("statement not recorded, query text unavailable")
				return
			}
		}

		e = s.insertLocked(rec.Key, offset, len(text), rec.Encoding, rec.Hints != nil)
		if needGC {
			s.gcTextsLocked()
		}

		if rec.Hints == nil {
			e.mu.Lock()
			e.counters.Apply(rec.Kind, rec.Sample)
			e.mu.Unlock()
		}
		return
	}

	// a text-capture call against an existing entry has nothing to do:
	// the representative text is already in place
	if rec.Hints == nil {
		e.mu.Lock()
		e.counters.Apply(rec.Kind, rec.Sample)
		e.mu.Unlock()
	}
	s.lock.RUnlock()
}
