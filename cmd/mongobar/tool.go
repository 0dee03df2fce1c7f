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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/analytics"
	"mongobar/internal/convert"
)

// newToolCmd groups the three offline analysis utilities that operate on a
// log file directly rather than through a workspace: ana groups an
// audit-CSV by query shape, cov converts an audit-CSV into an Op Log, and
// filter extracts matching lines from an existing Op Log.
func newToolCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Offline analysis utilities: ana, cov, filter",
	}
	cmd.AddCommand(newToolAnaCmd(), newToolCovCmd(), newToolFilterCmd())
	return cmd
}

func newToolAnaCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "ana <audit.csv>",
		Short: "Group an audit-CSV's rows by query shape and report count/average latency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("tool ana: %w", err)
			}
			defer f.Close()

			stats, err := analytics.Analyze(f)
			if err != nil {
				return fmt.Errorf("tool ana: %w", err)
			}

			w := os.Stdout
			if out != "" {
				of, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("tool ana: %w", err)
				}
				defer of.Close()
				w = of
			}
			if err := analytics.WriteCSV(w, stats); err != nil {
				return fmt.Errorf("tool ana: %w", err)
			}
			log.Info().Int("shapes", len(stats)).Msg("tool ana: done")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the report CSV here instead of stdout")
	return cmd
}

func newToolCovCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cov <audit.csv> <out.op>",
		Short: "Convert an audit-CSV into an Op Log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("tool cov: %w", err)
			}
			defer f.Close()

			n, err := convert.Ingest(f, args[1])
			if err != nil {
				return fmt.Errorf("tool cov: %w", err)
			}
			log.Info().Int("records", n).Str("out", args[1]).Msg("tool cov: done")
			return nil
		},
	}
	return cmd
}

func newToolFilterCmd() *cobra.Command {
	var pattern string
	var shape string
	cmd := &cobra.Command{
		Use:   "filter <oplog.op>",
		Short: "Extract lines from an Op Log by regex or by query shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (pattern == "") == (shape == "") {
				return fmt.Errorf("tool filter: pass exactly one of --regex or --shape")
			}

			var lines []string
			var err error
			if pattern != "" {
				lines, err = analytics.FilterRegex(args[0], pattern)
			} else {
				lines, err = analytics.FilterShape(args[0], shape)
			}
			if err != nil {
				return fmt.Errorf("tool filter: %w", err)
			}
			for _, l := range lines {
				fmt.Println(l)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "regex", "", "keep lines whose raw JSON matches this regex")
	cmd.Flags().StringVar(&shape, "shape", "", "keep records whose query shape (coll:op:hash) equals this value")
	return cmd
}
