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
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/executor"
	"mongobar/internal/metrics"
	"mongobar/internal/signal"
	"mongobar/internal/statusapi"
)

func newOpStressCmd(v *viper.Viper) *cobra.Command {
	var fullLine bool
	var statusAddr string
	var maxConcurrency int64

	cmd := &cobra.Command{
		Use:   "op-stress <target>",
		Short: "Replay the Op Log against the target under a concurrent worker pool",
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

			readMode := executor.ReadMode{Kind: executor.StreamLine}
			if fullLine {
				readMode.Kind = executor.FullLine
				if cfg.Filter != "" {
					re, err := regexp.Compile(cfg.Filter)
					if err != nil {
						return fmt.Errorf("op-stress: --filter: %w", err)
					}
					readMode.Filter = re
				}
			}
			runMode := executor.ReadWrite
			if cfg.ReadOnly {
				runMode = executor.ReadOnly
			}

			reg := metrics.NewRegistry()
			sig := signal.New()
			if maxConcurrency > 0 {
				reg.Take("dynCCLimit").Set(maxConcurrency)
			}

			ctx, cancel := interruptContext()
			defer cancel()
			ctx, cancelExporters := withMetricsExporters(ctx, cfg, reg)
			defer cancelExporters()

			sink, err := metrics.NewFileSink(filepath.Dir(ws.MetricLogPath("_")))
			if err != nil {
				return fmt.Errorf("op-stress: %w", err)
			}
			defer sink.Close()
			go func() {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						_ = sink.Drain(reg)
					}
				}
			}()

			if statusAddr != "" {
				srv := statusapi.NewServer(reg, sig)
				go func() {
					if err := srv.ListenAndServe(statusAddr); err != nil {
						logWarn("status api stopped: %v", err)
					}
				}()
			}

			log.Info().Str("workspace", ws.Name).Msg("op-stress: running")
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
			if err != nil {
				return fmt.Errorf("op-stress: %w", err)
			}

			st, _ := ws.LoadState()
			st.LastStressAt = time.Now()
			_ = ws.SaveState(st)

			_ = sink.Drain(reg)
			printSnapshot(reg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fullLine, "full-line", false, "load the whole log into memory and fan every worker over it independently, instead of cooperative streaming")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve /status and /stop on this address while running, empty disables it")
	cmd.Flags().Int64Var(&maxConcurrency, "max-concurrency", 0, "cap concurrent in-flight driver calls (dynCCLimit), 0 = unbounded")
	return cmd
}
