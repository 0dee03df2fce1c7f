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

	"mongobar/internal/mongopool"
	"mongobar/internal/synth"
)

// newOpBuildResumeCmd builds resume.op without ever applying it, the
// standalone counterpart to the build step op-replay and op-resume also
// run internally.
func newOpBuildResumeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "op-build-resume <target>",
		Short: "Synthesize resume.op without applying it",
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
				return fmt.Errorf("op-build-resume: %w", err)
			}
			finder := synth.PoolFinder{Pool: pool}
			ctx := context.Background()

			log.Info().Str("workspace", ws.Name).Msg("op-build-resume: synthesizing resume.op")
			opts := synth.Options{SnapshotDeletes: cfg.SnapshotDeletes}
			if err := synth.Resume(ctx, finder, ws.OplogPath(), ws.ResumePath(), opts); err != nil {
				return fmt.Errorf("op-build-resume: %w", err)
			}
			return pool.Shutdown(ctx)
		},
	}
	return cmd
}
