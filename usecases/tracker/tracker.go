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

// Package tracker is the host-facing side of statement statistics. It owns
// the store, applies the track/track_utility/track_planning configuration
// before anything reaches it, fills in missing query identifiers and keeps
// the per-session nesting depth that decides what counts as top-level.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/querystats/config"
	"github.com/weaviate/querystats/entities/statements"
	"github.com/weaviate/querystats/fingerprint"
	"github.com/weaviate/querystats/monitoring"
	"github.com/weaviate/querystats/normalize"
	"github.com/weaviate/querystats/store"
)

// QueryIDProvider computes the 64-bit statement fingerprint. A zero result
// means "do not track".
type QueryIDProvider interface {
	QueryID(query string) int64
}

// UtilityClassifier decides whether a statement is a utility statement,
// i.e. anything other than plain SELECT/INSERT/UPDATE/DELETE/MERGE.
type UtilityClassifier interface {
	IsUtility(query string) bool
}

type Tracker struct {
	logger     logrus.FieldLogger
	cfg        config.Config
	store      *store.Store
	provider   QueryIDProvider
	classifier UtilityClassifier

	// startedLock guards started; Snapshot/Reset/Info against a tracker
	// that was shut down are caller errors surfaced as ErrNotRunning
	startedLock sync.RWMutex
	started     bool
}

type Option func(*Tracker)

// WithQueryIDProvider replaces the PostgreSQL-fingerprint provider, mainly
// for hosts that compute identifiers themselves.
func WithQueryIDProvider(p QueryIDProvider) Option {
	return func(t *Tracker) { t.provider = p }
}

// WithUtilityClassifier replaces the parse-based utility detection.
func WithUtilityClassifier(c UtilityClassifier) Option {
	return func(t *Tracker) { t.classifier = c }
}

// New builds the tracker and its store from cfg. With cfg.Save enabled a
// previous dump is restored before New returns.
func New(cfg config.Config, logger logrus.FieldLogger,
	metrics *monitoring.Metrics, opts ...Option,
) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		logger:     logger,
		cfg:        cfg,
		provider:   fingerprint.Provider{},
		classifier: fingerprint.Provider{},
	}
	for _, opt := range opts {
		opt(t)
	}

	s, err := store.New(cfg.StatsDir, cfg.TempDir, logger, metrics,
		store.WithMaxEntries(cfg.Max),
		store.WithPersistence(cfg.Save),
		store.WithScanner(fingerprint.Scanner{}),
	)
	if err != nil {
		return nil, err
	}
	t.store = s
	t.started = true

	logger.WithField("max", cfg.Max).WithField("track", cfg.Track).
		WithField("save", cfg.Save).Info("statement statistics tracker started")
	return t, nil
}

// Session is one host session's nesting bookkeeping. A session must only be
// used from the goroutine that owns it.
type Session struct {
	// UserID and DatabaseID identify the principal and database every
	// statement of this session is attributed to.
	UserID     uint64
	DatabaseID uint64

	depth int
}

// Session hands out a fresh top-level session for the given principal.
func (t *Tracker) Session(userID, databaseID uint64) *Session {
	return &Session{UserID: userID, DatabaseID: databaseID}
}

// EnterNested marks the start of a statement executed from within another
// statement, e.g. out of a function body.
func (s *Session) EnterNested() { s.depth++ }

// ExitNested closes the innermost nesting level.
func (s *Session) ExitNested() {
	if s.depth == 0 {
		panic("tracker: ExitNested without matching EnterNested")
	}
	s.depth--
}

// TopLevel reports whether the session currently sits at nesting depth
// zero.
func (s *Session) TopLevel() bool { return s.depth == 0 }

// tracked applies the track level to the session's current depth.
func (t *Tracker) tracked(s *Session) bool {
	switch t.cfg.Track {
	case config.TrackNone:
		return false
	case config.TrackTop:
		return s.TopLevel()
	default:
		return true
	}
}

// Statement describes one statement observation. QueryID zero is filled in
// from the fingerprint provider; if the provider also returns zero the
// observation is dropped.
type Statement struct {
	// Query is the source string, with Location/Length selecting the
	// statement inside it. Length -1 means "to the end".
	Query    string
	Location int
	Length   int

	QueryID  int64
	Encoding int32

	// Utility marks a statement already classified by the host; when
	// Unclassified is set the tracker classifies it itself.
	Utility      bool
	Unclassified bool
}

func (t *Tracker) resolve(s *Session, st Statement) (statements.Key, bool) {
	if !t.tracked(s) {
		return statements.Key{}, false
	}

	utility := st.Utility
	if st.Unclassified {
		utility = t.classifier.IsUtility(st.Query)
	}
	if utility && !t.cfg.TrackUtility {
		return statements.Key{}, false
	}

	queryID := st.QueryID
	if queryID == 0 {
		queryID = t.provider.QueryID(st.Query)
	}
	if queryID == 0 {
		return statements.Key{}, false
	}

	return statements.Key{
		UserID:     s.UserID,
		DatabaseID: s.DatabaseID,
		QueryID:    queryID,
		TopLevel:   s.TopLevel(),
	}, true
}

// CaptureText retains the normalized text for a statement before it first
// executes, so that the eventual statistics row shows placeholders instead
// of literal constants.
func (t *Tracker) CaptureText(s *Session, st Statement, hints *normalize.Hints) {
	key, ok := t.resolve(s, st)
	if !ok {
		return
	}
	if hints == nil {
		hints = &normalize.Hints{}
	}
	t.store.Record(store.Recording{
		Query:    st.Query,
		Location: st.Location,
		Length:   st.Length,
		Key:      key,
		Hints:    hints,
		Encoding: st.Encoding,
	})
}

// RecordExecution folds one execution-phase sample into the statistics.
func (t *Tracker) RecordExecution(s *Session, st Statement, sample statements.Sample) {
	t.record(s, st, statements.StatKindExec, sample)
}

// RecordPlanning folds one planning-phase sample into the statistics. It is
// a no-op unless track_planning is enabled.
func (t *Tracker) RecordPlanning(s *Session, st Statement, sample statements.Sample) {
	if !t.cfg.TrackPlanning {
		return
	}
	t.record(s, st, statements.StatKindPlan, sample)
}

func (t *Tracker) record(s *Session, st Statement, kind statements.StatKind,
	sample statements.Sample,
) {
	key, ok := t.resolve(s, st)
	if !ok {
		return
	}
	t.store.Record(store.Recording{
		Query:    st.Query,
		Location: st.Location,
		Length:   st.Length,
		Key:      key,
		Kind:     kind,
		Sample:   sample,
		Encoding: st.Encoding,
	})
}

func (t *Tracker) running() error {
	t.startedLock.RLock()
	defer t.startedLock.RUnlock()
	if !t.started {
		return statements.ErrNotRunning
	}
	return nil
}

// Snapshot returns the statistics of every executed statement.
func (t *Tracker) Snapshot(opts store.SnapshotOptions) ([]store.Row, error) {
	if err := t.running(); err != nil {
		return nil, err
	}
	return t.store.Snapshot(opts), nil
}

// Reset discards statistics matching the given components; zero components
// match anything. Returns the reset timestamp.
func (t *Tracker) Reset(userID, dbID uint64, queryID int64, minmaxOnly bool) (time.Time, error) {
	if err := t.running(); err != nil {
		return time.Time{}, err
	}
	return t.store.Reset(userID, dbID, queryID, minmaxOnly), nil
}

// Info returns the store-wide statistics row.
func (t *Tracker) Info() (store.GlobalStats, error) {
	if err := t.running(); err != nil {
		return store.GlobalStats{}, err
	}
	return t.store.Info(), nil
}

// Count returns the number of entries currently tracked.
func (t *Tracker) Count() (int, error) {
	if err := t.running(); err != nil {
		return 0, err
	}
	return t.store.Count(), nil
}

// Shutdown stops the tracker, dumping the statistics first when Save is
// enabled. The tracker must not record anymore afterwards; Snapshot, Reset
// and Info return ErrNotRunning.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.startedLock.Lock()
	defer t.startedLock.Unlock()
	if !t.started {
		return statements.ErrNotRunning
	}
	t.started = false
	return t.store.Shutdown(ctx)
}
