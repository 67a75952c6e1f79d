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
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/weaviate/querystats/entities/statements"
)

// entry is one arena slot. While free it only carries the free-list link in
// next; while in use, next links the bucket chain.
//
// counters are written under (shared table lock + mu) or under the
// exclusive table lock alone; the exclusive lock excludes every
// shared-lock writer, so direct access is race-free there. All other
// fields are written only under the exclusive table lock.
type entry struct {
	key   statements.Key
	next  int32
	inUse bool

	mu       sync.Mutex
	counters statements.Counters

	queryOffset int64
	// queryLen is -1 when the text was lost to a failed GC
	queryLen    int
	encoding    int32
	statsSince  time.Time
	minmaxSince time.Time
}

func hashKey(k statements.Key) uint64 {
	var buf [25]byte
	binary.LittleEndian.PutUint64(buf[0:8], k.UserID)
	binary.LittleEndian.PutUint64(buf[8:16], k.DatabaseID)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(k.QueryID))
	if k.TopLevel {
		buf[24] = 1
	}
	return xxhash.Sum64(buf[:])
}

// lookupLocked walks the bucket chain for key. Caller holds the table lock
// in either mode.
func (s *Store) lookupLocked(key statements.Key) *entry {
	for idx := s.buckets[hashKey(key)&s.mask]; idx != -1; idx = s.entries[idx].next {
		if s.entries[idx].key == key {
			return &s.entries[idx]
		}
	}
	return nil
}

// insertLocked inserts a fresh entry for key, evicting first if the table
// is full. If key is already present (an insert race lost against another
// writer), the existing entry is returned unchanged; this is not an error.
// Caller holds the table lock exclusively.
func (s *Store) insertLocked(key statements.Key, queryOffset int64,
	queryLen int, encoding int32, sticky bool,
) *entry {
	if e := s.lookupLocked(key); e != nil {
		return e
	}
	if s.count >= s.maxEntries {
		s.deallocLocked()
	}

	idx := s.freeHead
	e := &s.entries[idx]
	s.freeHead = e.next

	e.key = key
	e.inUse = true
	e.counters = statements.Counters{}
	if sticky {
		// give text-capture entries a head start so they survive the
		// eviction passes until their statement first executes
		e.counters.Usage = s.curMedianUsage
	} else {
		e.counters.Usage = statements.UsageInit
	}
	e.queryOffset = queryOffset
	e.queryLen = queryLen
	e.encoding = encoding
	now := time.Now()
	e.statsSince = now
	e.minmaxSince = now

	b := hashKey(key) & s.mask
	e.next = s.buckets[b]
	s.buckets[b] = idx

	s.count++
	s.metrics.Entries.Set(float64(s.count))
	return e
}

// removeLocked unlinks the entry at idx and returns its slot to the free
// list. Caller holds the table lock exclusively.
func (s *Store) removeLocked(idx int32) {
	e := &s.entries[idx]

	b := hashKey(e.key) & s.mask
	if s.buckets[b] == idx {
		s.buckets[b] = e.next
	} else {
		for cur := s.buckets[b]; cur != -1; cur = s.entries[cur].next {
			if s.entries[cur].next == idx {
				s.entries[cur].next = e.next
				break
			}
		}
	}

	e.key = statements.Key{}
	e.inUse = false
	e.counters = statements.Counters{}
	e.queryOffset = 0
	e.queryLen = 0
	e.encoding = 0
	e.statsSince = time.Time{}
	e.minmaxSince = time.Time{}

	e.next = s.freeHead
	s.freeHead = idx
	s.count--
}
