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
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/querystats/entities/statements"
)

func recordOne(s *Store, qid int64, query string) {
	s.Record(Recording{
		Query:  query,
		Length: -1,
		Key:    testKey(qid),
		Kind:   statements.StatKindExec,
		Sample: statements.Sample{TotalTime: 1.0},
	})
}

func (s *Store) extentForTest() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

func (s *Store) gcCountForTest() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gcCount
}

func TestGCCompactsToLiveTexts(t *testing.T) {
	s := newTestStore(t, WithMaxEntries(10))

	// fill the table, then push more keys through so eviction leaves dead
	// texts behind in the file
	for i := 0; i < 25; i++ {
		recordOne(s, int64(i+1), fmt.Sprintf("SELECT %d", i))
	}
	extentBefore := s.extentForTest()

	s.lock.Lock()
	s.gcTextsLocked()
	s.lock.Unlock()

	// after the rewrite the extent is exactly the live texts plus their
	// null terminators
	var want int64
	s.lock.RLock()
	for i := range s.entries {
		if s.entries[i].inUse && s.entries[i].queryLen >= 0 {
			want += int64(s.entries[i].queryLen) + 1
		}
	}
	s.lock.RUnlock()

	assert.Less(t, s.extentForTest(), extentBefore)
	assert.Equal(t, want, s.extentForTest())
	assert.Equal(t, int64(1), s.gcCountForTest())

	// every surviving entry still resolves to its own text
	for _, row := range allRows(s) {
		require.NotNil(t, row.QueryID)
		require.NotNil(t, row.Query)
		assert.Equal(t, fmt.Sprintf("SELECT %d", *row.QueryID-1), *row.Query)
	}
}

func TestGCInvalidatesUnresolvableOffsets(t *testing.T) {
	s := newTestStore(t, WithMaxEntries(10))
	recordOne(s, 1, "SELECT 1")
	recordOne(s, 2, "SELECT 2")

	// sabotage one entry's offset so the rewrite cannot resolve its text
	s.lock.Lock()
	for i := range s.entries {
		if s.entries[i].inUse && s.entries[i].key.QueryID == 1 {
			s.entries[i].queryOffset = 1 << 40
		}
	}
	s.gcTextsLocked()
	s.lock.Unlock()

	var lost, kept int
	for _, row := range allRows(s) {
		require.NotNil(t, row.QueryID)
		switch *row.QueryID {
		case 1:
			assert.Nil(t, row.Query, "unresolvable text is dropped, not garbled")
			lost++
		case 2:
			require.NotNil(t, row.Query)
			assert.Equal(t, "SELECT 2", *row.Query)
			kept++
		}
	}
	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, kept)
}

func TestGCFailureInvalidatesAllTexts(t *testing.T) {
	s := newTestStore(t, WithMaxEntries(10))
	recordOne(s, 1, "SELECT 1")
	recordOne(s, 2, "SELECT 2")

	// removing the file makes the snapshot load fail and forces the
	// bail-out path
	require.NoError(t, os.Remove(s.textPath))

	s.lock.Lock()
	s.gcTextsLocked()
	s.lock.Unlock()

	assert.Equal(t, int64(0), s.extentForTest())
	assert.Equal(t, int64(1), s.gcCountForTest())
	for _, row := range allRows(s) {
		assert.Nil(t, row.Query)
	}
	assert.Equal(t, 2, s.Count(), "statistics survive even when texts are lost")
}

func TestGCTriggersEndToEnd(t *testing.T) {
	s := newTestStore(t, WithMaxEntries(8))

	// long texts plus heavy churn push the extent past both thresholds
	filler := strings.Repeat("x", 1024)
	for i := 0; i < 200; i++ {
		recordOne(s, int64(i+1), fmt.Sprintf("SELECT '%s', %d", filler, i))
	}

	require.Greater(t, s.gcCountForTest(), int64(0),
		"churn at this volume must have compacted the text file at least once")
	assert.LessOrEqual(t, s.extentForTest(), 2*s.meanQueryLen*int64(s.maxEntries)+
		// in-flight inserts since the last compaction
		int64(s.maxEntries)*2048)
}

func TestNeedGCThresholds(t *testing.T) {
	s := newTestStore(t, WithMaxEntries(10))

	set := func(extent, meanLen int64) {
		s.mu.Lock()
		s.extent = extent
		s.mu.Unlock()
		s.lock.Lock()
		s.meanQueryLen = meanLen
		s.lock.Unlock()
	}

	// below the absolute floor of 512 bytes per slot nothing happens,
	// whatever the mean length says
	set(512*10, 1)
	assert.False(t, s.needGCLocked())

	// above the floor, the mean-length relative threshold decides
	set(512*10+1, 1024)
	assert.False(t, s.needGCLocked())

	set(2*300*10+1, 300)
	assert.True(t, s.needGCLocked())
}

func TestGCTriggersExactlyOnceAtThreshold(t *testing.T) {
	// capacity 4: the absolute floor is 512*4 bytes and the relative
	// threshold starts at 2*1024*4 = 8192 bytes (assumed mean length).
	// Three 3000-byte texts cross both on the third insert and nothing
	// afterwards crosses the recomputed threshold, so the generation
	// counter moves exactly once.
	s := newTestStore(t, WithMaxEntries(4))

	text := func(i int) string {
		body := fmt.Sprintf("SELECT '%d", i)
		return body + strings.Repeat("x", 2999-len(body)) + "'"
	}

	recordOne(s, 1, text(1))
	recordOne(s, 2, text(2))
	require.Equal(t, int64(0), s.gcCountForTest(), "6002 bytes stay below the threshold")

	recordOne(s, 3, text(3))
	assert.Equal(t, int64(1), s.gcCountForTest(), "9003 bytes cross it")

	// all three texts were live, the rewrite keeps every byte
	assert.Equal(t, int64(3*3001), s.extentForTest())

	// the pass raised the mean length to 3000, the next insert sits far
	// below the new threshold
	recordOne(s, 4, text(4))
	assert.Equal(t, int64(1), s.gcCountForTest())

	for _, row := range allRows(s) {
		require.NotNil(t, row.QueryID)
		require.NotNil(t, row.Query)
		assert.Equal(t, text(int(*row.QueryID)), *row.Query)
	}
}
