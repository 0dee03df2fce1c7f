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

// Package workspace manages the on-disk layout under ./.mongobar/<name>/
// that every other component reads and writes through.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Root is the directory every named workspace lives under, relative to the
// process's working directory.
const Root = ".mongobar"

// Workspace is one named run's directory and the well-known file paths
// inside it, per spec.md §6's on-disk layout.
type Workspace struct {
	Name string
	Dir  string
}

// Open ensures ./.mongobar/<name>/ exists and returns a handle to it.
func Open(name string) (*Workspace, error) {
	dir := filepath.Join(Root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	return &Workspace{Name: name, Dir: dir}, nil
}

func (w *Workspace) path(name string) string { return filepath.Join(w.Dir, name) }

// OplogPath is the primary operation log.
func (w *Workspace) OplogPath() string { return w.path("oplogs.op") }

// RevertPath is the generated rollback log.
func (w *Workspace) RevertPath() string { return w.path("revert.op") }

// ResumePath is the generated reconciliation log.
func (w *Workspace) ResumePath() string { return w.path("resume.op") }

// DataPath is the exported snapshot used by op-import.
func (w *Workspace) DataPath() string { return w.path("data.op") }

// StatePath is the opaque JSON record of capture window and stress
// timestamps.
func (w *Workspace) StatePath() string { return w.path("state.json") }

// MetricLogPath is where a named metric's lazily-created append log lives.
func (w *Workspace) MetricLogPath(metric string) string {
	return filepath.Join(w.Dir, "metrics", metric+".log")
}

// State is the opaque record persisted to state.json: the capture window
// (for op-record/op-pull) and the timestamps of the most recent stress run.
type State struct {
	CaptureStart time.Time `json:"captureStart,omitempty"`
	CaptureEnd   time.Time `json:"captureEnd,omitempty"`
	LastStressAt time.Time `json:"lastStressAt,omitempty"`
}

// LoadState reads state.json, returning a zero-value State if it does not
// yet exist (a fresh workspace has no prior run to describe).
func (w *Workspace) LoadState() (State, error) {
	var st State
	b, err := os.ReadFile(w.StatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("workspace: read state: %w", err)
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("workspace: decode state: %w", err)
	}
	return st, nil
}

// SaveState overwrites state.json with st.
func (w *Workspace) SaveState(st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: encode state: %w", err)
	}
	if err := os.WriteFile(w.StatePath(), b, 0o644); err != nil {
		return fmt.Errorf("workspace: write state: %w", err)
	}
	return nil
}

// Exists reports whether path currently exists on disk, used to decide
// whether a derived log (revert.op, resume.op) needs to be (re)built.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ResolveTarget implements the CLI surface's "Target positional argument
// may be a workspace name or a path to .op/.csv" rule: a bare name opens
// (or creates) a workspace by that name; a path to an existing .op or .csv
// file is copied/converted into a workspace named after its base filename.
func ResolveTarget(target string) (name string, sourcePath string, isFile bool) {
	ext := filepath.Ext(target)
	if ext != ".op" && ext != ".csv" {
		return target, "", false
	}
	base := filepath.Base(target)
	name = base[:len(base)-len(ext)]
	return name, target, true
}
