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

package metrics

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends each metric's drained queue to its own file under a
// workspace directory, one file per metric name, opened lazily on first
// write. Grounded in the teacher's SBatchFileSink (buffered append-only
// JSONL writer, periodic flush), generalized from one fixed S-batch file to
// one file per named metric.
type FileSink struct {
	dir string

	mu      sync.Mutex
	writers map[string]*bufio.Writer
	files   map[string]*os.File
}

// NewFileSink returns a sink that writes under dir, creating dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("metrics: create sink dir: %w", err)
	}
	return &FileSink{
		dir:     dir,
		writers: make(map[string]*bufio.Writer),
		files:   make(map[string]*os.File),
	}, nil
}

// Write appends lines to the log file for the named metric, opening it on
// first use and flushing once the call returns.
func (s *FileSink) Write(name string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.writers[name]
	if !ok {
		f, err := os.OpenFile(filepath.Join(s.dir, name+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("metrics: open sink for %s: %w", name, err)
		}
		w = bufio.NewWriterSize(f, 1<<16)
		s.files[name] = f
		s.writers[name] = w
	}

	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Drain drains every metric registered in r and appends the result to its
// file. Intended to be called on a timer by Flusher.
func (s *FileSink) Drain(r *Registry) error {
	for _, name := range r.Names() {
		mt := r.Take(name)
		if err := s.Write(name, mt.ConsumerDrain()); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every file opened so far.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for name, w := range s.writers {
		if err := w.Flush(); err != nil && first == nil {
			first = err
		}
		if err := s.files[name].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
