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
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/workspace"
)

func newSaveAsCmd(v *viper.Viper) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "save-as <target> <outdir>",
		Short: "Copy a workspace's Op Log out to outdir for archiving or sharing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, outdir := args[0], args[1]
			ws, err := openTarget(target)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outdir, 0o755); err != nil {
				return fmt.Errorf("save-as: %w", err)
			}
			dst := filepath.Join(outdir, ws.Name+".op")
			if workspace.Exists(dst) && !force {
				return fmt.Errorf("save-as: %s already exists, pass --force to overwrite", dst)
			}
			if err := copyFile(ws.OplogPath(), dst); err != nil {
				return fmt.Errorf("save-as: %w", err)
			}
			log.Info().Str("workspace", ws.Name).Str("to", dst).Msg("save-as: wrote op file")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite the destination file if it already exists")
	return cmd
}
