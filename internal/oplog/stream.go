// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oplog

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is B in spec §3: the fixed capacity of each of the two
// streaming-reader buffers.
const DefaultBufferSize = 10000

// StreamReader exposes Next() with double-buffered prefetch so many
// consumers can share one reader: each record is handed to exactly one
// caller, in file order. Grounded in the teacher's striped-atomics pattern
// (pkg/vsa/vsa.go) generalized from per-stripe counters to per-buffer
// record slices guarded by their own RWMutex.
type StreamReader struct {
	path string
	file *os.File
	r    *bufio.Reader

	bufSize int
	buffers [2][]Record
	locks   [2]sync.RWMutex
	windows [2]atomic.Int64 // window index (i/bufSize) each buffer currently holds; -1 = unfilled

	index      atomic.Int64 // next record index to hand out
	offset     atomic.Int64 // next file-line index to read into the buffer
	byteOffset atomic.Int64 // byte position in the file matching offset

	length int // line count from a prior Open, comment and blank lines included

	refillMu sync.Mutex // serializes refill reads against the shared file cursor
}

// Streaming opens path for cooperative streaming reads. length should come
// from Open(path).Length (a prior linear scan); Streaming does not rescan.
func Streaming(path string, length int) (*StreamReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("oplog: open %s: %w", path, err)
	}
	sr := &StreamReader{
		path:    path,
		file:    f,
		r:       bufio.NewReaderSize(f, 1<<20),
		bufSize: DefaultBufferSize,
		length:  length,
	}
	sr.windows[0].Store(-1)
	sr.windows[1].Store(-1)
	// Prime buffer 0 synchronously so the first Next() has data.
	sr.refill(0, 0)
	return sr, nil
}

// Next returns the next record in file order, or ok=false at end of log.
// Safe for concurrent callers.
func (sr *StreamReader) Next() (Record, bool) {
	i := sr.index.Add(1) - 1
	if i >= int64(sr.length) {
		return Record{}, false
	}

	k := i / int64(sr.bufSize)
	active := int(k % 2)
	slot := int(i % int64(sr.bufSize))

	// Midpoint trigger: once the active cursor crosses the buffer's
	// midpoint, make sure the *other* buffer is being kept warm with the
	// *next* window's records for the upcoming wraparound.
	if i%int64(sr.bufSize) >= int64(sr.bufSize)/2 {
		sr.maybeRefill((active+1)%2, k+1)
	}

	sr.locks[active].RLock()
	if sr.windows[active].Load() != k {
		// Buffer holds a stale or not-yet-filled window (refill running
		// behind, or this window was never anticipated); force a
		// synchronous fill for exactly this window before honoring the read.
		sr.locks[active].RUnlock()
		sr.refill(active, k)
		sr.locks[active].RLock()
	}
	defer sr.locks[active].RUnlock()
	if slot >= len(sr.buffers[active]) {
		return Record{}, false
	}
	return sr.buffers[active][slot], true
}

// maybeRefill triggers a refill of buffer idx for window if it isn't
// already holding that window's records. Safe to call redundantly; refill
// itself is idempotent for a given (idx, window) pair.
func (sr *StreamReader) maybeRefill(idx int, window int64) {
	if sr.windows[idx].Load() >= window {
		return
	}
	sr.refill(idx, window)
}

// refill reads up to bufSize non-comment lines starting at the current byte
// offset into buffers[idx] and tags it as holding window, advancing
// offset/byteOffset. A no-op if buffers[idx] already holds window: multiple
// callers (the midpoint trigger and Next's own staleness check) may race to
// refill the same window, and only the first should actually advance the
// shared file cursor.
func (sr *StreamReader) refill(idx int, window int64) {
	sr.refillMu.Lock()
	defer sr.refillMu.Unlock()
	if sr.windows[idx].Load() == window {
		return
	}

	sr.locks[idx].Lock()
	defer sr.locks[idx].Unlock()

	buf := make([]Record, 0, sr.bufSize)
	for len(buf) < sr.bufSize {
		line, err := sr.r.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := trimSpace(line)
			if !isSkippable(trimmed) {
				rec, perr := ParseLine(trimmed)
				if perr != nil {
					panic(fmt.Sprintf("oplog: malformed line %q: %v", trimmed, perr))
				}
				buf = append(buf, rec)
			}
			sr.byteOffset.Add(int64(len(line)))
		}
		if err != nil {
			break
		}
	}
	sr.buffers[idx] = buf
	sr.offset.Add(int64(len(buf)))
	sr.windows[idx].Store(window)
}

// Close releases the underlying file handle.
func (sr *StreamReader) Close() error {
	return sr.file.Close()
}
