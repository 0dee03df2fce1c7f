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

package synth

import (
	"context"
	"fmt"
	"os"

	"mongobar/internal/executor"
	"mongobar/internal/metrics"
	"mongobar/internal/signal"
)

// ReplayConfig names the four logs a full revert/replay/resume cycle needs
// and the connection parameters every phase's single-threaded Exec pass
// shares.
type ReplayConfig struct {
	OplogPath  string
	RevertPath string
	ResumePath string

	URIs []string
	DB   string

	ThreadCount int
	LoopCount   int64

	// Rebuild forces RevertPath/ResumePath to be regenerated even if they
	// already exist on disk.
	Rebuild bool

	Options Options
}

// Replay runs the full revert-build, resume-build, replay, resume-apply
// cycle described in spec §4.7: both compensating logs are synthesized
// against the live database's current state *before* either is applied, the
// captured log is replayed, and the run is then reconciled against whatever
// the replay actually left behind. Building Resume before Revert is applied
// matters: Resume's Insert handling decides Update-vs-Delete by checking
// whether each document already exists, and that check has to run against
// the database's state from before Revert's compensating deletes, not after.
func Replay(ctx context.Context, finder Finder, cfg ReplayConfig) error {
	if err := ensureLog(ctx, finder, cfg.OplogPath, cfg.RevertPath, cfg.Rebuild, Revert, cfg.Options); err != nil {
		return fmt.Errorf("synth: building revert log: %w", err)
	}
	if err := ensureLog(ctx, finder, cfg.OplogPath, cfg.ResumePath, cfg.Rebuild, Resume, cfg.Options); err != nil {
		return fmt.Errorf("synth: building resume log: %w", err)
	}

	sig := signal.New()
	reg := metrics.NewRegistry()

	if err := executor.Exec(ctx, executor.ExecConfig{
		LogPath: cfg.RevertPath, ThreadCount: 1, LoopCount: 1,
		ReadMode: executor.ReadMode{Kind: executor.StreamLine},
		RunMode:  executor.ReadWrite,
		URIs:     cfg.URIs, DB: cfg.DB,
		Registry: reg, Signal: sig,
	}); err != nil {
		return fmt.Errorf("synth: applying revert log: %w", err)
	}

	sig = signal.New()
	reg = metrics.NewRegistry()
	if err := executor.Exec(ctx, executor.ExecConfig{
		LogPath: cfg.OplogPath, ThreadCount: cfg.ThreadCount, LoopCount: cfg.LoopCount,
		ReadMode: executor.ReadMode{Kind: executor.StreamLine},
		RunMode:  executor.ReadWrite,
		URIs:     cfg.URIs, DB: cfg.DB,
		Registry: reg, Signal: sig,
	}); err != nil {
		return fmt.Errorf("synth: replaying oplog: %w", err)
	}

	sig = signal.New()
	reg = metrics.NewRegistry()
	if err := executor.Exec(ctx, executor.ExecConfig{
		LogPath: cfg.ResumePath, ThreadCount: 1, LoopCount: 1,
		ReadMode: executor.ReadMode{Kind: executor.StreamLine},
		RunMode:  executor.ReadWrite,
		URIs:     cfg.URIs, DB: cfg.DB,
		Registry: reg, Signal: sig,
	}); err != nil {
		return fmt.Errorf("synth: applying resume log: %w", err)
	}

	return nil
}

type buildFunc func(ctx context.Context, finder Finder, logPath, outPath string, opts Options) error

// ensureLog builds outPath from srcPath unless it already exists and the
// caller did not request a rebuild, mirroring the --rebuild CLI flag's
// documented effect on op-build-resume/op-revert.
func ensureLog(ctx context.Context, finder Finder, srcPath, outPath string, rebuild bool, build buildFunc, opts Options) error {
	if !rebuild {
		if _, err := os.Stat(outPath); err == nil {
			return nil
		}
	}
	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return build(ctx, finder, srcPath, outPath, opts)
}
