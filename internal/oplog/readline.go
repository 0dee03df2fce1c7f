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
	"io"
	"os"
	"sync"
)

// LineReader is a lighter read path than StreamReader: one buffered file
// handle, one sequential consumer (used by revert/resume synthesis). When
// neverLoop is set, reaching EOF is an error; otherwise EOF rewinds to
// offset 0 and Next returns ok=false once, marking the boundary.
type LineReader struct {
	mu        sync.Mutex
	f         *os.File
	r         *bufio.Reader
	neverLoop bool
}

// ReadLine opens path for sequential line-oriented reads.
func ReadLine(path string, neverLoop bool) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("oplog: open %s: %w", path, err)
	}
	return &LineReader{f: f, r: bufio.NewReaderSize(f, 1<<20), neverLoop: neverLoop}, nil
}

// Next returns the next record, skipping comments and blank lines. At EOF:
// if neverLoop, returns an error; otherwise rewinds to the start and returns
// ok=false exactly once to mark the boundary, then resumes from the top.
func (lr *LineReader) Next() (Record, bool, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	for {
		line, err := lr.r.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := trimSpace(line)
			if !isSkippable(trimmed) {
				rec, perr := ParseLine(trimmed)
				if perr != nil {
					panic(fmt.Sprintf("oplog: malformed line %q: %v", trimmed, perr))
				}
				return rec, true, nil
			}
		}
		if err != nil {
			if err != io.EOF {
				return Record{}, false, fmt.Errorf("oplog: read: %w", err)
			}
			if lr.neverLoop {
				return Record{}, false, io.EOF
			}
			if _, serr := lr.f.Seek(0, io.SeekStart); serr != nil {
				return Record{}, false, fmt.Errorf("oplog: rewind: %w", serr)
			}
			lr.r.Reset(lr.f)
			return Record{}, false, nil
		}
	}
}

// Close releases the underlying file handle.
func (lr *LineReader) Close() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.f.Close()
}
