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
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/weaviate/querystats/entities/statements"
)

// textStoreString appends text plus a terminating null byte to the query
// text file and returns the byte offset it lives at, together with the GC
// generation observed at reservation time. The caller must cross-check the
// generation before trusting the offset.
//
// Only the offset reservation runs under mu; the write itself proceeds
// concurrently with other writers, which never overlap because each owns a
// disjoint reserved range. Caller holds the table lock in either mode.
func (s *Store) textStoreString(text string) (offset, gcCount int64, err error) {
	need := int64(len(text)) + 1

	s.mu.Lock()
	if s.extent+need > maxTextFileBytes {
		s.mu.Unlock()
		return 0, 0, statements.ErrTextFileTooLarge
	}
	offset = s.extent
	s.extent += need
	s.nWriters++
	gcCount = s.gcCount
	s.mu.Unlock()

	buf := make([]byte, need)
	copy(buf, text)
	_, werr := s.textFile.WriteAt(buf, offset)

	// the writer count comes down even on failure; the reserved range
	// stays behind as waste for the next GC to reclaim
	s.mu.Lock()
	s.nWriters--
	extent := s.extent
	s.mu.Unlock()

	if werr != nil {
		return 0, 0, errors.Wrapf(werr, "write query text at offset %d", offset)
	}

	s.metrics.TextBytesReserved.Set(float64(extent))
	return offset, gcCount, nil
}

// loadTextSnapshot reads the whole query text file into memory. A short
// read without an I/O error means a concurrent GC truncated the file under
// us; that case returns (nil, nil) and the caller retries under the table
// lock.
func (s *Store) loadTextSnapshot() ([]byte, error) {
	f, err := os.Open(s.textPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open query text file %q", s.textPath)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat query text file %q", s.textPath)
	}

	buf := make([]byte, fi.Size())
	var off int64
	for off < int64(len(buf)) {
		n, rerr := f.ReadAt(buf[off:], off)
		off += int64(n)
		if rerr == io.EOF {
			if off < int64(len(buf)) {
				// truncated by a concurrent GC
				return nil, nil
			}
			break
		}
		if rerr != nil {
			return nil, errors.Wrapf(rerr, "read query text file %q", s.textPath)
		}
	}
	return buf, nil
}

// fetchText returns the string at (offset, length) within snapshot. It
// validates the bounds and the terminating null byte rather than trusting
// offsets that may predate a GC.
func fetchText(snapshot []byte, offset int64, length int) (string, bool) {
	if length < 0 || offset < 0 {
		return "", false
	}
	end := offset + int64(length)
	if end >= int64(len(snapshot)) {
		return "", false
	}
	if snapshot[end] != 0 {
		return "", false
	}
	return string(snapshot[offset:end]), true
}

// needGCLocked decides whether the text file carries enough dead bytes to
// be worth rewriting. Caller holds the table lock in either mode.
func (s *Store) needGCLocked() bool {
	s.mu.Lock()
	extent := s.extent
	s.mu.Unlock()

	if extent <= 512*int64(s.maxEntries) {
		return false
	}
	// meanQueryLen is only written under the exclusive table lock; a
	// stale read here merely shifts when the next check fires
	return extent > 2*s.meanQueryLen*int64(s.maxEntries)
}
