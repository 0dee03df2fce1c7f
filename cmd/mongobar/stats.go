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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/metrics"
)

// printSnapshot renders reg's final state to stdout as a plain table, the
// one-shot counterpart to internal/dashboard's live redraw: every op-stress,
// op-revert, and op-resume run ends by calling this so a result is visible
// even when --status-addr was never set.
func printSnapshot(reg *metrics.Registry) {
	snaps := reg.Snapshot()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "metric\tvalue\tmedian")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\n", s.Name, s.Value, s.Median)
	}
	_ = tw.Flush()
}

func newStatsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <target>",
		Short: "Print the metrics recorded by the target workspace's most recent run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openTarget(args[0])
			if err != nil {
				return err
			}
			st, err := ws.LoadState()
			if err != nil {
				return err
			}
			fmt.Printf("workspace: %s\n", ws.Name)
			if !st.CaptureStart.IsZero() {
				fmt.Printf("captured:  %s .. %s\n", st.CaptureStart.Format("2006-01-02T15:04:05Z07:00"), st.CaptureEnd.Format("2006-01-02T15:04:05Z07:00"))
			}
			if !st.LastStressAt.IsZero() {
				fmt.Printf("last run:  %s\n", st.LastStressAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return printMetricLogs(filepath.Dir(ws.MetricLogPath("_")))
		},
	}
	return cmd
}

// printMetricLogs reports, for every metric log FileSink left behind under
// dir, how many lines were recorded and the most recent one. op-stress and
// friends flush live counters through the Prometheus/Redis exporters
// instead; these per-metric .log files are the queued diagnostic lines
// (e.g. "diagnostics") FileSink persists across process restarts.
func printMetricLogs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no metric logs recorded yet")
			return nil
		}
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "metric\tlines\tlast")
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".log")
		count, last, err := tailFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", name, count, last)
	}
	return tw.Flush()
}

func tailFile(path string) (int, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	count := 0
	last := ""
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for sc.Scan() {
		count++
		last = sc.Text()
	}
	return count, last, sc.Err()
}
