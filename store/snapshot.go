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
)

// InsufficientPrivilege replaces the query text of entries whose owner
// differs from an unprivileged caller.
const InsufficientPrivilege = "<insufficient privilege>"

type SnapshotOptions struct {
	// ShowText requests the representative query texts, which costs a
	// read of the whole text file.
	ShowText bool
	// Privileged callers see every entry's identity; others only their
	// own.
	Privileged bool
	// CallerID is the principal asking for the snapshot.
	CallerID uint64
}

// Row is one statement's statistics as visible to the caller.
type Row struct {
	UserID     uint64
	DatabaseID uint64
	TopLevel   bool
	// QueryID is nil when the caller may not see this entry's identity.
	QueryID *int64
	// Query is nil when text was not requested, could not be fetched, or
	// holds InsufficientPrivilege when masked.
	Query *string

	Stats            statements.Counters
	StatsSince       time.Time
	MinMaxStatsSince time.Time
}

// Snapshot copies the statistics of every executed statement out of the
// store. Sticky entries, whose statement never ran, are omitted.
func (s *Store) Snapshot(opts SnapshotOptions) []Row {
	start := time.Now()
	defer func() {
		s.metrics.SnapshotDurations.Observe(time.Since(start).Seconds())
	}()

	// opportunistic unlocked load: if nobody is writing, odds are the
	// file matches the offsets we are about to read
	var snap []byte
	var snapExtent, snapGC int64
	if opts.ShowText {
		s.mu.Lock()
		extent, nWriters, gcCount := s.extent, s.nWriters, s.gcCount
		s.mu.Unlock()
		if nWriters == 0 {
			snap, _ = s.loadTextSnapshot()
			snapExtent, snapGC = extent, gcCount
		}
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	if opts.ShowText {
		s.mu.Lock()
		stale := snap == nil || s.extent != snapExtent || s.gcCount != snapGC
		s.mu.Unlock()
		if stale {
			var err error
			snap, err = s.loadTextSnapshot()
			if err != nil {
				s.logger.WithError(err).Warn("load query texts for snapshot")
				snap = nil
			}
		}
	}

	rows := make([]Row, 0, s.count)
	for i := range s.entries {
		e := &s.entries[i]
		if !e.inUse {
			continue
		}

		e.mu.Lock()
		counters := e.counters
		e.mu.Unlock()
		if counters.Sticky() {
			continue
		}

		row := Row{
			UserID:     e.key.UserID,
			DatabaseID: e.key.DatabaseID,
			TopLevel:   e.key.TopLevel,
			Stats:      counters,
			// timestamps change only under the exclusive table lock,
			// safe to read without the entry mutex
			StatsSince:       e.statsSince,
			MinMaxStatsSince: e.minmaxSince,
		}

		if opts.Privileged || e.key.UserID == opts.CallerID {
			queryID := e.key.QueryID
			row.QueryID = &queryID
			if opts.ShowText && snap != nil {
				if text, ok := fetchText(snap, e.queryOffset, e.queryLen); ok {
					row.Query = &text
				}
			}
		} else if opts.ShowText {
			masked := InsufficientPrivilege
			row.Query = &masked
		}

		rows = append(rows, row)
	}
	return rows
}
