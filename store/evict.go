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
	"sort"

	"github.com/weaviate/querystats/entities/statements"
)

// deallocLocked makes room in a full table: it decays every entry's usage
// score, refreshes the median-usage and mean-text-length estimates and
// removes the lowest-usage slice of entries. Caller holds the table lock
// exclusively.
func (s *Store) deallocLocked() {
	type candidate struct {
		idx   int32
		usage float64
	}

	cands := make([]candidate, 0, s.count)
	var totalTextLen int64
	var nvalid int64
	for i := range s.entries {
		e := &s.entries[i]
		if !e.inUse {
			continue
		}
		// the exclusive table lock excludes every counter writer, no
		// entry mutex needed
		if e.counters.Sticky() {
			e.counters.Usage *= statements.StickyDecreaseFactor
		} else {
			e.counters.Usage *= statements.UsageDecreaseFactor
		}
		if e.queryLen >= 0 {
			totalTextLen += int64(e.queryLen) + 1
			nvalid++
		}
		cands = append(cands, candidate{idx: int32(i), usage: e.counters.Usage})
	}
	if len(cands) == 0 {
		return
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].usage < cands[j].usage })

	s.curMedianUsage = cands[len(cands)/2].usage
	if nvalid > 0 {
		s.meanQueryLen = totalTextLen / nvalid
	} else {
		s.meanQueryLen = assumedQueryLen
	}

	nvictims := len(cands) * statements.DeallocPercent / 100
	if nvictims < statements.DeallocMinEntries {
		nvictims = statements.DeallocMinEntries
	}
	if nvictims > len(cands) {
		nvictims = len(cands)
	}
	for _, c := range cands[:nvictims] {
		s.removeLocked(c.idx)
	}

	s.mu.Lock()
	s.deallocCount++
	s.mu.Unlock()

	s.metrics.Deallocations.Inc()
	s.metrics.EvictedEntries.Add(float64(nvictims))
	s.metrics.Entries.Set(float64(s.count))
	s.logger.WithField("evicted", nvictims).
		WithField("median_usage", s.curMedianUsage).
		Debug("evicted low-usage statement entries")
}
