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
	"bufio"
	"io"
)

// gcTextsLocked rewrites the query text file, keeping only the texts still
// referenced by an entry and fixing every entry's offset. Caller holds the
// table lock exclusively, which guarantees no writer is in flight and no
// reader can load a torn file: readers that kept a pre-GC snapshot in
// memory continue serving from it and notice the generation bump on their
// next locked access.
func (s *Store) gcTextsLocked() {
	snapshot, err := s.loadTextSnapshot()
	if err != nil || snapshot == nil {
		s.gcFailLocked(err)
		return
	}

	if _, err := s.textFile.Seek(0, io.SeekStart); err != nil {
		s.gcFailLocked(err)
		return
	}
	w := bufio.NewWriterSize(s.textFile, 1<<20)

	var extent int64
	var kept int64
	for i := range s.entries {
		e := &s.entries[i]
		if !e.inUse || e.queryLen < 0 {
			continue
		}
		text, ok := fetchText(snapshot, e.queryOffset, e.queryLen)
		if !ok {
			e.queryOffset = 0
			e.queryLen = -1
			continue
		}
		if _, err := w.WriteString(text); err != nil {
			s.gcFailLocked(err)
			return
		}
		if err := w.WriteByte(0); err != nil {
			s.gcFailLocked(err)
			return
		}
		e.queryOffset = extent
		extent += int64(e.queryLen) + 1
		kept++
	}
	if err := w.Flush(); err != nil {
		s.gcFailLocked(err)
		return
	}
	if err := s.textFile.Truncate(extent); err != nil {
		s.gcFailLocked(err)
		return
	}

	s.mu.Lock()
	s.extent = extent
	s.mu.Unlock()

	if kept > 0 {
		s.meanQueryLen = extent / kept
	} else {
		s.meanQueryLen = assumedQueryLen
	}

	// the generation bump comes last: anyone observing the new gcCount is
	// guaranteed to find the rewritten file in place
	s.mu.Lock()
	s.gcCount++
	gcCount := s.gcCount
	s.mu.Unlock()

	s.metrics.TextGCRuns.Inc()
	s.metrics.TextBytesReserved.Set(float64(extent))
	s.logger.WithField("extent", extent).WithField("texts", kept).
		WithField("gc_count", gcCount).
		Debug("query text file compacted")
}

// gcFailLocked is the bail-out path: the file contents are now uncertain,
// so every entry's text is marked invalid and the file starts over empty.
// The generation is still bumped so that every reader drops its stale
// snapshot. Caller holds the table lock exclusively.
func (s *Store) gcFailLocked(cause error) {
	for i := range s.entries {
		if !s.entries[i].inUse {
			continue
		}
		s.entries[i].queryOffset = 0
		s.entries[i].queryLen = -1
	}

	if err := s.textFile.Truncate(0); err != nil {
		s.logger.WithError(err).WithField("path", s.textPath).
			Error("recreate query text file after failed gc")
	}

	s.mu.Lock()
	s.extent = 0
	s.gcCount++
	s.mu.Unlock()
	s.meanQueryLen = assumedQueryLen

	s.metrics.TextGCFailures.Inc()
	s.metrics.TextBytesReserved.Set(0)
	s.logger.WithError(cause).WithField("path", s.textPath).
		Warn("query text garbage collection failed, texts invalidated")
}
