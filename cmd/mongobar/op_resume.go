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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/executor"
	"mongobar/internal/metrics"
	"mongobar/internal/mongopool"
	"mongobar/internal/signal"
	"mongobar/internal/synth"
)

func newOpResumeCmd(v *viper.Viper) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "op-resume <target>",
		Short: "Synthesize (and optionally apply) the log that reconciles a partially-completed replay",
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
				return fmt.Errorf("op-resume: %w", err)
			}
			finder := synth.PoolFinder{Pool: pool}
			ctx := context.Background()

			log.Info().Str("workspace", ws.Name).Msg("op-resume: synthesizing resume.op")
			opts := synth.Options{SnapshotDeletes: cfg.SnapshotDeletes}
			if err := synth.Resume(ctx, finder, ws.OplogPath(), ws.ResumePath(), opts); err != nil {
				return fmt.Errorf("op-resume: %w", err)
			}
			if !apply {
				return pool.Shutdown(ctx)
			}

			log.Info().Msg("op-resume: applying resume.op")
			reg := metrics.NewRegistry()
			sig := signal.New()
			err = executor.Exec(ctx, executor.ExecConfig{
				LogPath: ws.ResumePath(), ThreadCount: 1, LoopCount: 1,
				ReadMode: executor.ReadMode{Kind: executor.StreamLine},
				RunMode:  executor.ReadWrite,
				URIs:     cfg.URI, DB: cfg.DB,
				Registry: reg, Signal: sig,
			})
			if err != nil {
				return fmt.Errorf("op-resume: applying: %w", err)
			}
			printSnapshot(reg)
			return pool.Shutdown(ctx)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", true, "also replay resume.op against the target immediately after synthesizing it (op-resume is the post-stress recovery command, so this defaults on)")
	return cmd
}
