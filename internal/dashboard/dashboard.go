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

// Package dashboard is the terminal UI that consumes the Metrics Surface
// while a stress/replay run is in flight. It is intentionally a plain,
// redrawing table rather than a full TUI framework: no example repo in
// the retrieved pack depends on a terminal-UI library, so this stays on
// io.Writer + text/tabwriter rather than inventing an unfounded dependency.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"mongobar/internal/metrics"
	"mongobar/internal/signal"
)

// Run redraws a snapshot of reg to w every interval until ctx is cancelled
// or sig reaches Stopped.
func Run(ctx context.Context, w io.Writer, reg *metrics.Registry, sig *signal.Signal, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		render(w, reg, sig)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sig.Get() == signal.Stopped {
				render(w, reg, sig)
				return
			}
		}
	}
}

func render(w io.Writer, reg *metrics.Registry, sig *signal.Signal) {
	snaps := reg.Snapshot()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "mongobar\tsignal=%s\n", signalName(sig.Get()))
	fmt.Fprintln(tw, "metric\tvalue\tmedian")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\n", s.Name, s.Value, s.Median)
	}
	_ = tw.Flush()
}

func signalName(v int32) string {
	switch v {
	case signal.Running:
		return "running"
	case signal.Stopping:
		return "stopping"
	case signal.Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
