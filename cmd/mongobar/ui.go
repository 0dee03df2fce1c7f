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

package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/dashboard"
	"mongobar/internal/executor"
	"mongobar/internal/metrics"
	"mongobar/internal/mongopool"
	"mongobar/internal/signal"
	"mongobar/internal/synth"
	"mongobar/internal/workspace"
)

// newUICmd is the interactive counterpart to op-stress: it replays the
// target's Op Log with the same executor, but redraws a live table of the
// run's Metrics Surface via internal/dashboard instead of printing a single
// snapshot once the run ends.
func newUICmd(v *viper.Viper) *cobra.Command {
	var filter string
	var rebuild bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "ui <target>",
		Short: "Replay the Op Log against the target with a live-updating terminal dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ws, err := openTarget(args[0])
			if err != nil {
				return err
			}

			pool, err := mongopool.New(cfg.URI...)
			if err != nil {
				return fmt.Errorf("ui: %w", err)
			}
			finder := synth.PoolFinder{Pool: pool}
			ctx, cancel := interruptContext()
			defer cancel()

			opts := synth.Options{SnapshotDeletes: cfg.SnapshotDeletes}
			if rebuild || !workspace.Exists(ws.RevertPath()) {
				log.Info().Msg("ui: rebuilding revert.op")
				if err := synth.Revert(ctx, finder, ws.OplogPath(), ws.RevertPath(), opts); err != nil {
					return fmt.Errorf("ui: %w", err)
				}
			}
			if rebuild || !workspace.Exists(ws.ResumePath()) {
				log.Info().Msg("ui: rebuilding resume.op")
				if err := synth.Resume(ctx, finder, ws.OplogPath(), ws.ResumePath(), opts); err != nil {
					return fmt.Errorf("ui: %w", err)
				}
			}
			if err := pool.Shutdown(ctx); err != nil {
				return fmt.Errorf("ui: %w", err)
			}

			readMode := executor.ReadMode{Kind: executor.StreamLine}
			if filter != "" {
				re, err := regexp.Compile(filter)
				if err != nil {
					return fmt.Errorf("ui: --filter: %w", err)
				}
				readMode.Kind = executor.FullLine
				readMode.Filter = re
			}
			runMode := executor.ReadWrite
			if cfg.ReadOnly {
				runMode = executor.ReadOnly
			}

			reg := metrics.NewRegistry()
			sig := signal.New()

			dashCtx, dashCancel := context.WithCancel(ctx)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				dashboard.Run(dashCtx, os.Stdout, reg, sig, interval)
			}()

			err = executor.Exec(ctx, executor.ExecConfig{
				LogPath:     ws.OplogPath(),
				ThreadCount: cfg.ThreadCount,
				LoopCount:   cfg.LoopCount,
				ReadMode:    readMode,
				RunMode:     runMode,
				URIs:        cfg.URI,
				DB:          cfg.DB,
				Registry:    reg,
				Signal:      sig,
			})

			sig.MarkStopped()
			time.Sleep(interval)
			dashCancel()
			wg.Wait()

			if err != nil {
				return fmt.Errorf("ui: %w", err)
			}
			printSnapshot(reg)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "regex filter applied to the Op Log before replay")
	cmd.Flags().BoolVarP(&rebuild, "rebuild", "r", false, "force-rebuild revert.op/resume.op before replaying")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "dashboard redraw interval")
	return cmd
}
