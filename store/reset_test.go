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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/querystats/entities/statements"
)

func recordFor(s *Store, userID, dbID uint64, queryID int64, total float64) {
	s.Record(Recording{
		Query:  "SELECT 1",
		Length: -1,
		Key: statements.Key{
			UserID: userID, DatabaseID: dbID, QueryID: queryID, TopLevel: true,
		},
		Kind:   statements.StatKindExec,
		Sample: statements.Sample{TotalTime: total},
	})
}

func TestResetAll(t *testing.T) {
	s := newTestStore(t)
	recordFor(s, 7, 1, 1, 1.0)
	recordFor(s, 7, 1, 2, 1.0)
	recordFor(s, 8, 2, 3, 1.0)
	require.Equal(t, 3, s.Count())

	before := s.Info()
	when := s.Reset(0, 0, 0, false)

	assert.Equal(t, 0, s.Count())
	assert.Empty(t, allRows(s))
	assert.Equal(t, int64(0), s.extentForTest(), "full reset restarts the text file")

	info := s.Info()
	assert.Equal(t, int64(0), info.DeallocCount)
	assert.True(t, info.StatsReset.After(before.StatsReset) ||
		info.StatsReset.Equal(when))
}

func TestResetIsRepeatable(t *testing.T) {
	s := newTestStore(t)
	recordFor(s, 7, 1, 1, 1.0)

	s.Reset(0, 0, 0, false)
	s.Reset(0, 0, 0, false)
	assert.Equal(t, 0, s.Count())

	// the store keeps working afterwards
	recordFor(s, 7, 1, 1, 1.0)
	assert.Equal(t, 1, s.Count())
	rows := allRows(s)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Query)
	assert.Equal(t, "SELECT 1", *rows[0].Query)
}

func TestResetMatchesConjunctively(t *testing.T) {
	s := newTestStore(t)
	recordFor(s, 7, 1, 1, 1.0)
	recordFor(s, 7, 2, 1, 1.0)
	recordFor(s, 8, 1, 1, 1.0)
	recordFor(s, 7, 1, 2, 1.0)

	// userID and dbID must both match; queryID 0 matches anything
	s.Reset(7, 1, 0, false)

	assert.Equal(t, 2, s.Count())
	for _, row := range allRows(s) {
		matched := row.UserID == 7 && row.DatabaseID == 1
		assert.False(t, matched, "every (7,1) entry must be gone")
	}

	// a partial reset leaves the global statistics alone
	assert.NotEqual(t, int64(0), s.extentForTest())
}

func TestResetSingleStatement(t *testing.T) {
	s := newTestStore(t)
	recordFor(s, 7, 1, 1, 1.0)
	recordFor(s, 7, 1, 2, 1.0)

	s.Reset(7, 1, 2, false)

	rows := allRows(s)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].QueryID)
	assert.Equal(t, int64(1), *rows[0].QueryID)
}

func TestResetMinMaxOnly(t *testing.T) {
	s := newTestStore(t)
	recordFor(s, 7, 1, 1, 2.0)
	recordFor(s, 7, 1, 1, 6.0)

	rowsBefore := allRows(s)
	require.Len(t, rowsBefore, 1)
	minmaxBefore := rowsBefore[0].MinMaxStatsSince

	when := s.Reset(7, 1, 1, true)

	rows := allRows(s)
	require.Len(t, rows, 1)
	exec := statements.StatKindExec

	// the entry and its cumulative counters survive
	assert.Equal(t, int64(2), rows[0].Stats.Calls[exec])
	assert.InDelta(t, 8.0, rows[0].Stats.TotalTime[exec], 1e-9)
	assert.Equal(t, rowsBefore[0].StatsSince, rows[0].StatsSince)

	// min and max restart at zero and reseed on the next execution
	assert.Equal(t, 0.0, rows[0].Stats.MinTime[exec])
	assert.Equal(t, 0.0, rows[0].Stats.MaxTime[exec])
	assert.True(t, rows[0].MinMaxStatsSince.After(minmaxBefore) ||
		rows[0].MinMaxStatsSince.Equal(when))

	recordFor(s, 7, 1, 1, 4.0)
	rows = allRows(s)
	require.Len(t, rows, 1)
	assert.InDelta(t, 4.0, rows[0].Stats.MinTime[exec], 1e-9)
	assert.InDelta(t, 4.0, rows[0].Stats.MaxTime[exec], 1e-9)
}

func TestResetEmptyStoreIsHarmless(t *testing.T) {
	s := newTestStore(t)
	when := s.Reset(0, 0, 0, false)
	assert.False(t, when.After(time.Now()))
	assert.Equal(t, 0, s.Count())
}
