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
)

// ReverseFile produces a byte-exact line-reversed copy of path at
// path+".reverse", then atomically renames it over path. The sequence of
// non-empty lines after reverse is the reverse of the original non-empty
// sequence; the trailing newline is preserved.
func ReverseFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("oplog: open %s: %w", path, err)
	}
	defer in.Close()

	var lines [][]byte
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("oplog: scan %s: %w", path, err)
	}

	tmpPath := path + ".reverse"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("oplog: create %s: %w", tmpPath, err)
	}
	w := bufio.NewWriterSize(out, 1<<20)
	for i := len(lines) - 1; i >= 0; i-- {
		if _, err := w.Write(lines[i]); err != nil {
			out.Close()
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			out.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
