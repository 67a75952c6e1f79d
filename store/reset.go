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
)

// Reset discards statistics. A zero userID, dbID or queryID component
// matches anything; non-zero components must all match. With minmaxOnly the
// matching entries survive and only their min/max aggregates restart.
// Returns the reset timestamp.
func (s *Store) Reset(userID, dbID uint64, queryID int64, minmaxOnly bool) time.Time {
	now := time.Now()

	match := func(e *entry) bool {
		if userID != 0 && e.key.UserID != userID {
			return false
		}
		if dbID != 0 && e.key.DatabaseID != dbID {
			return false
		}
		if queryID != 0 && e.key.QueryID != queryID {
			return false
		}
		return true
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if minmaxOnly {
		for i := range s.entries {
			e := &s.entries[i]
			if !e.inUse || !match(e) {
				continue
			}
			e.counters.ResetMinMax()
			e.minmaxSince = now
		}
		return now
	}

	for i := range s.entries {
		e := &s.entries[i]
		if !e.inUse || !match(e) {
			continue
		}
		s.removeLocked(int32(i))
	}

	if s.count == 0 {
		// the table is empty, restart the text file and the global
		// statistics along with it
		s.mu.Lock()
		s.deallocCount = 0
		s.statsReset = now
		s.mu.Unlock()

		if err := s.textFile.Truncate(0); err != nil {
			s.logger.WithError(err).WithField("path", s.textPath).
				Warn("truncate query text file on reset")
		}
		s.mu.Lock()
		s.extent = 0
		s.gcCount++
		s.mu.Unlock()
		s.metrics.TextBytesReserved.Set(0)
	}

	s.metrics.Entries.Set(float64(s.count))
	return now
}
