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
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/capture"
	"mongobar/internal/mongopool"
)

func newOpRecordCmd(v *viper.Viper) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "op-record <target>",
		Short: "Continuously poll the profiler and append matching queries to the Op Log",
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
				return fmt.Errorf("op-record: %w", err)
			}

			ctx, cancel := interruptContext()
			defer cancel()

			client, err := pool.Get(ctx, cfg.DB+".system.profile")
			if err != nil {
				return fmt.Errorf("op-record: %w", err)
			}
			coll := capture.CollectionOf(client, cfg.DB)

			start := time.Now()
			log.Info().Str("workspace", ws.Name).Msg("op-record: polling profiler, ctrl-c to stop")
			err = capture.Record(ctx, coll, cfg.DB, interval, ws.OplogPath())
			if err != nil {
				return fmt.Errorf("op-record: %w", err)
			}

			st, _ := ws.LoadState()
			st.CaptureStart = start
			st.CaptureEnd = time.Now()
			if err := ws.SaveState(st); err != nil {
				return fmt.Errorf("op-record: %w", err)
			}
			return pool.Shutdown(ctx)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "profiler poll interval")
	return cmd
}
