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
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/weaviate/querystats/entities/statements"
)

const (
	dumpFileMagic   = uint32(0x20220408)
	dumpFileVersion = uint32(1)
)

// dumpEntryHeader is the fixed little-endian on-disk layout of one entry,
// followed by queryLen+1 bytes of text including the terminating null.
type dumpEntryHeader struct {
	UserID     uint64
	DatabaseID uint64
	QueryID    int64
	TopLevel   bool

	Counters statements.Counters

	QueryOffset int64
	QueryLen    int32
	Encoding    int32
	// timestamps as unix microseconds
	StatsSince  int64
	MinMaxSince int64
}

// dumpLocked serializes every entry plus its text into the dump file, via a
// temp file and rename so a crash mid-dump leaves no half-written state.
// Caller holds the table lock exclusively; at shutdown no writer can be in
// flight, so the text file matches the reserved extent.
func (s *Store) dumpLocked() error {
	snapshot, err := s.loadTextSnapshot()
	if err != nil {
		return errors.Wrap(err, "load query texts")
	}
	if snapshot == nil {
		return errors.New("query text file truncated unexpectedly")
	}

	tmpPath := s.dumpPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "create %q", tmpPath)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, dumpFileMagic); err != nil {
		return errors.Wrap(err, "write magic")
	}
	if err := binary.Write(w, binary.LittleEndian, dumpFileVersion); err != nil {
		return errors.Wrap(err, "write version")
	}
	if err := binary.Write(w, binary.LittleEndian, int32(s.count)); err != nil {
		return errors.Wrap(err, "write entry count")
	}

	for i := range s.entries {
		e := &s.entries[i]
		if !e.inUse {
			continue
		}

		text, ok := "", false
		if e.queryLen >= 0 {
			text, ok = fetchText(snapshot, e.queryOffset, e.queryLen)
		}
		// an entry that lost its text to a failed GC is dumped with a
		// zero-length text rather than omitted, so its counters survive
		if !ok {
			text = ""
		}

		hdr := dumpEntryHeader{
			UserID:      e.key.UserID,
			DatabaseID:  e.key.DatabaseID,
			QueryID:     e.key.QueryID,
			TopLevel:    e.key.TopLevel,
			Counters:    e.counters,
			QueryOffset: e.queryOffset,
			QueryLen:    int32(len(text)),
			Encoding:    e.encoding,
			StatsSince:  e.statsSince.UnixMicro(),
			MinMaxSince: e.minmaxSince.UnixMicro(),
		}
		if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
			return errors.Wrap(err, "write entry header")
		}
		if _, err := w.WriteString(text); err != nil {
			return errors.Wrap(err, "write entry text")
		}
		if err := w.WriteByte(0); err != nil {
			return errors.Wrap(err, "write text terminator")
		}
	}

	s.mu.Lock()
	deallocCount := s.deallocCount
	statsReset := s.statsReset
	s.mu.Unlock()
	if err := binary.Write(w, binary.LittleEndian, deallocCount); err != nil {
		return errors.Wrap(err, "write dealloc count")
	}
	if err := binary.Write(w, binary.LittleEndian, statsReset.UnixMicro()); err != nil {
		return errors.Wrap(err, "write stats reset time")
	}

	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush dump")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "sync dump")
	}
	if err := os.Rename(tmpPath, s.dumpPath); err != nil {
		return errors.Wrapf(err, "rename %q", tmpPath)
	}

	s.logger.WithField("entries", s.count).WithField("path", s.dumpPath).
		Debug("statement statistics dumped")
	return nil
}

// restore loads a previous dump, rebuilding both the table and the query
// text file. A corrupt or mismatching dump is logged and dropped, never
// repaired; entries read before the corruption are kept. The dump file is
// always consumed. Runs single-threaded at startup.
func (s *Store) restore() {
	f, err := os.Open(s.dumpPath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("path", s.dumpPath).
			Warn("open statistics dump")
		return
	}
	defer f.Close()
	// the dump only exists while the process is down
	defer os.Remove(s.dumpPath)

	r := bufio.NewReader(f)
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		s.restoreCorrupt(err)
		return
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		s.restoreCorrupt(err)
		return
	}
	if magic != dumpFileMagic || version != dumpFileVersion {
		s.restoreCorrupt(errors.Wrapf(statements.ErrDumpCorrupt,
			"magic %#x version %d", magic, version))
		return
	}
	var numEntries int32
	if err := binary.Read(r, binary.LittleEndian, &numEntries); err != nil {
		s.restoreCorrupt(err)
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	w := bufio.NewWriter(s.textFile)
	var extent int64
	consumed := 0
	loaded := 0
	for i := int32(0); i < numEntries; i++ {
		var hdr dumpEntryHeader
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			s.restoreCorrupt(err)
			break
		}
		if hdr.QueryLen < 0 || hdr.QueryID == 0 {
			s.restoreCorrupt(errors.Wrapf(statements.ErrDumpCorrupt,
				"entry %d", i))
			break
		}
		text := make([]byte, hdr.QueryLen+1)
		if _, err := io.ReadFull(r, text); err != nil {
			s.restoreCorrupt(err)
			break
		}
		if text[hdr.QueryLen] != 0 {
			s.restoreCorrupt(errors.Wrapf(statements.ErrDumpCorrupt,
				"entry %d text not terminated", i))
			break
		}

		consumed++

		// sticky entries are not restored: their texts were only held
		// for a first execution that never came
		if hdr.Counters.Sticky() {
			continue
		}

		if _, err := w.Write(text); err != nil {
			s.logger.WithError(err).WithField("path", s.textPath).
				Warn("rebuild query text file from dump")
			break
		}

		key := statements.Key{
			UserID:     hdr.UserID,
			DatabaseID: hdr.DatabaseID,
			QueryID:    hdr.QueryID,
			TopLevel:   hdr.TopLevel,
		}
		e := s.insertLocked(key, extent, int(hdr.QueryLen), hdr.Encoding, false)
		e.counters = hdr.Counters
		e.statsSince = time.UnixMicro(hdr.StatsSince)
		e.minmaxSince = time.UnixMicro(hdr.MinMaxSince)
		extent += int64(hdr.QueryLen) + 1
		loaded++
	}

	if consumed == int(numEntries) {
		var deallocCount, resetMicros int64
		err1 := binary.Read(r, binary.LittleEndian, &deallocCount)
		err2 := binary.Read(r, binary.LittleEndian, &resetMicros)
		if err1 == nil && err2 == nil {
			s.mu.Lock()
			s.deallocCount = deallocCount
			s.statsReset = time.UnixMicro(resetMicros)
			s.mu.Unlock()
		}
	}

	if err := w.Flush(); err != nil {
		s.logger.WithError(err).WithField("path", s.textPath).
			Warn("flush query text file after restore")
	}
	s.mu.Lock()
	s.extent = extent
	s.mu.Unlock()

	s.metrics.TextBytesReserved.Set(float64(extent))
	s.logger.WithField("entries", loaded).WithField("path", s.dumpPath).
		Debug("statement statistics restored")
}

func (s *Store) restoreCorrupt(err error) {
	s.logger.WithError(err).WithField("path", s.dumpPath).
		Warn("ignoring invalid statistics dump")
}
