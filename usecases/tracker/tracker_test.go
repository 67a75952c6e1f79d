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

package tracker

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/querystats/config"
	"github.com/weaviate/querystats/entities/statements"
	"github.com/weaviate/querystats/monitoring"
	"github.com/weaviate/querystats/normalize"
	"github.com/weaviate/querystats/store"
)

// stubProvider hands out deterministic identifiers so tests do not depend
// on the fingerprint implementation.
type stubProvider struct{}

func (stubProvider) QueryID(query string) int64 {
	var id int64
	for _, b := range []byte(query) {
		id = id*31 + int64(b)
	}
	return id
}

type stubClassifier struct{}

func (stubClassifier) IsUtility(query string) bool {
	return strings.HasPrefix(strings.ToUpper(query), "VACUUM")
}

func newTestTracker(t *testing.T, mutate func(*config.Config)) *Tracker {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StatsDir = t.TempDir()
	cfg.TempDir = t.TempDir()
	cfg.Save = false
	if mutate != nil {
		mutate(&cfg)
	}
	logger, _ := test.NewNullLogger()
	tr, err := New(cfg, logger, monitoring.NewMetrics(nil),
		WithQueryIDProvider(stubProvider{}),
		WithUtilityClassifier(stubClassifier{}))
	require.NoError(t, err)
	t.Cleanup(func() { tr.Shutdown(context.Background()) })
	return tr
}

func rowCount(t *testing.T, tr *Tracker) int {
	t.Helper()
	rows, err := tr.Snapshot(store.SnapshotOptions{Privileged: true})
	require.NoError(t, err)
	return len(rows)
}

func TestTrackerRecordsTopLevel(t *testing.T) {
	tr := newTestTracker(t, nil)
	sess := tr.Session(7, 1)

	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 1.5, Rows: 1})

	rows, err := tr.Snapshot(store.SnapshotOptions{Privileged: true, ShowText: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(7), rows[0].UserID)
	assert.True(t, rows[0].TopLevel)
	assert.Equal(t, int64(1), rows[0].Stats.Calls[statements.StatKindExec])
	require.NotNil(t, rows[0].Query)
	assert.Equal(t, "SELECT 1", *rows[0].Query)
}

func TestTrackerTrackNone(t *testing.T) {
	tr := newTestTracker(t, func(c *config.Config) { c.Track = config.TrackNone })
	sess := tr.Session(7, 1)

	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 1.0})

	assert.Equal(t, 0, rowCount(t, tr))
}

func TestTrackerTrackTopSkipsNested(t *testing.T) {
	tr := newTestTracker(t, nil) // default track=top
	sess := tr.Session(7, 1)

	sess.EnterNested()
	tr.RecordExecution(sess, Statement{Query: "SELECT 'inner'", Length: -1},
		statements.Sample{TotalTime: 1.0})
	sess.ExitNested()

	tr.RecordExecution(sess, Statement{Query: "SELECT 'outer'", Length: -1},
		statements.Sample{TotalTime: 1.0})

	rows, err := tr.Snapshot(store.SnapshotOptions{Privileged: true, ShowText: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SELECT 'outer'", *rows[0].Query)
}

func TestTrackerTrackAllSeparatesNestingLevels(t *testing.T) {
	tr := newTestTracker(t, func(c *config.Config) { c.Track = config.TrackAll })
	sess := tr.Session(7, 1)

	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 1.0})

	sess.EnterNested()
	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 1.0})
	sess.ExitNested()

	// same statement, different nesting level, distinct entries
	rows, err := tr.Snapshot(store.SnapshotOptions{Privileged: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].TopLevel, rows[1].TopLevel)
}

func TestTrackerUtilityGating(t *testing.T) {
	tr := newTestTracker(t, func(c *config.Config) { c.TrackUtility = false })
	sess := tr.Session(7, 1)

	tr.RecordExecution(sess, Statement{Query: "VACUUM things", Length: -1, Unclassified: true},
		statements.Sample{TotalTime: 1.0})
	assert.Equal(t, 0, rowCount(t, tr))

	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1, Unclassified: true},
		statements.Sample{TotalTime: 1.0})
	assert.Equal(t, 1, rowCount(t, tr))

	// a host that pre-classified the statement is trusted
	tr.RecordExecution(sess, Statement{Query: "SELECT 2", Length: -1, Utility: true},
		statements.Sample{TotalTime: 1.0})
	assert.Equal(t, 1, rowCount(t, tr))
}

func TestTrackerPlanningGating(t *testing.T) {
	tr := newTestTracker(t, nil) // default track_planning=false
	sess := tr.Session(7, 1)

	tr.RecordPlanning(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 0.5})
	assert.Equal(t, 0, rowCount(t, tr))
}

func TestTrackerPlanningEnabled(t *testing.T) {
	tr := newTestTracker(t, func(c *config.Config) { c.TrackPlanning = true })
	sess := tr.Session(7, 1)

	tr.RecordPlanning(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 0.5})
	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 1.5})

	rows, err := tr.Snapshot(store.SnapshotOptions{Privileged: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Stats.Calls[statements.StatKindPlan])
	assert.Equal(t, int64(1), rows[0].Stats.Calls[statements.StatKindExec])
}

func TestTrackerFillsQueryID(t *testing.T) {
	tr := newTestTracker(t, nil)
	sess := tr.Session(7, 1)

	// no QueryID supplied: the provider computes one
	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 1.0})
	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1, QueryID: 999},
		statements.Sample{TotalTime: 1.0})

	rows, err := tr.Snapshot(store.SnapshotOptions{Privileged: true})
	require.NoError(t, err)
	require.Len(t, rows, 2, "a supplied identifier takes precedence")
}

func TestTrackerCaptureTextThenExecute(t *testing.T) {
	tr := newTestTracker(t, nil)
	sess := tr.Session(7, 1)

	st := Statement{Query: "SELECT 42", Length: -1, QueryID: 1}
	tr.CaptureText(sess, st, &normalize.Hints{
		Constants: []normalize.Constant{{Location: 7, Length: 2}},
	})
	assert.Equal(t, 0, rowCount(t, tr), "captured-only statements stay hidden")

	tr.RecordExecution(sess, st, statements.Sample{TotalTime: 1.0})

	rows, err := tr.Snapshot(store.SnapshotOptions{Privileged: true, ShowText: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Query)
	assert.Equal(t, "SELECT $1", *rows[0].Query)
}

func TestTrackerNotRunningAfterShutdown(t *testing.T) {
	tr := newTestTracker(t, nil)
	require.NoError(t, tr.Shutdown(context.Background()))

	_, err := tr.Snapshot(store.SnapshotOptions{Privileged: true})
	assert.ErrorIs(t, err, statements.ErrNotRunning)
	_, err = tr.Reset(0, 0, 0, false)
	assert.ErrorIs(t, err, statements.ErrNotRunning)
	_, err = tr.Info()
	assert.ErrorIs(t, err, statements.ErrNotRunning)
	assert.ErrorIs(t, tr.Shutdown(context.Background()), statements.ErrNotRunning)
}

func TestTrackerPersistsAcrossRestart(t *testing.T) {
	statsDir, tempDir := t.TempDir(), t.TempDir()
	cfg := config.DefaultConfig()
	cfg.StatsDir = statsDir
	cfg.TempDir = tempDir
	cfg.Save = true
	logger, _ := test.NewNullLogger()

	tr, err := New(cfg, logger, monitoring.NewMetrics(nil),
		WithQueryIDProvider(stubProvider{}))
	require.NoError(t, err)
	sess := tr.Session(7, 1)
	tr.RecordExecution(sess, Statement{Query: "SELECT 1", Length: -1},
		statements.Sample{TotalTime: 1.0})
	require.NoError(t, tr.Shutdown(context.Background()))

	tr2, err := New(cfg, logger, monitoring.NewMetrics(nil),
		WithQueryIDProvider(stubProvider{}))
	require.NoError(t, err)
	defer tr2.Shutdown(context.Background())

	n, err := tr2.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTrackerRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Track = "sometimes"
	logger, _ := test.NewNullLogger()
	_, err := New(cfg, logger, monitoring.NewMetrics(nil))
	assert.Error(t, err)
}
