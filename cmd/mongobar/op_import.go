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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/executor"
	"mongobar/internal/metrics"
	"mongobar/internal/signal"
)

func newOpImportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "op-import <target>",
		Short: "Replay data.op (an op-export snapshot) into the target as a single pass",
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

			ctx, cancel := interruptContext()
			defer cancel()

			reg := metrics.NewRegistry()
			sig := signal.New()

			log.Info().Str("workspace", ws.Name).Msg("op-import: inserting data.op")
			err = executor.Exec(ctx, executor.ExecConfig{
				LogPath: ws.DataPath(), ThreadCount: 1, LoopCount: 1,
				ReadMode: executor.ReadMode{Kind: executor.StreamLine},
				RunMode:  executor.ReadWrite,
				URIs:     cfg.URI, DB: cfg.DB,
				Registry: reg, Signal: sig,
			})
			if err != nil {
				return fmt.Errorf("op-import: %w", err)
			}
			printSnapshot(reg)
			return nil
		},
	}
	return cmd
}
