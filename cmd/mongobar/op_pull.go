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
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/capture"
	"mongobar/internal/mongopool"
)

func newOpPullCmd(v *viper.Viper) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "op-pull <target>",
		Short: "One-shot pull of the profiler's fixed historical window into the Op Log",
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
				return fmt.Errorf("op-pull: %w", err)
			}

			ctx := context.Background()
			client, err := pool.Get(ctx, cfg.DB+".system.profile")
			if err != nil {
				return fmt.Errorf("op-pull: %w", err)
			}
			coll := capture.CollectionOf(client, cfg.DB)

			end := time.Now()
			win := capture.Window{Start: end.Add(-since), End: end}
			n, err := capture.Pull(ctx, coll, cfg.DB, win, ws.OplogPath())
			if err != nil {
				return fmt.Errorf("op-pull: %w", err)
			}
			log.Info().Int("records", n).Str("workspace", ws.Name).Msg("op-pull: done")

			st, _ := ws.LoadState()
			st.CaptureStart = win.Start
			st.CaptureEnd = win.End
			if err := ws.SaveState(st); err != nil {
				return fmt.Errorf("op-pull: %w", err)
			}
			return pool.Shutdown(ctx)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 10*time.Minute, "how far back to pull from the profiler")
	return cmd
}
