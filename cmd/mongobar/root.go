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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongobar/internal/config"
	"mongobar/internal/convert"
	"mongobar/internal/metrics"
	"mongobar/internal/workspace"
)

// newRootCmd assembles the full command tree: every subcommand in
// spec.md §6's CLI surface, sharing the config flags bound via
// internal/config.BindFlags.
func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "mongobar",
		Short:         "MongoDB workload capture-and-replay stress tester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if err := config.BindFlags(root.PersistentFlags(), v); err != nil {
		panic(err)
	}

	root.AddCommand(
		newOpRecordCmd(v),
		newOpPullCmd(v),
		newOpStressCmd(v),
		newOpReplayCmd(v),
		newOpRevertCmd(v),
		newOpResumeCmd(v),
		newOpBuildResumeCmd(v),
		newOpExportCmd(v),
		newOpImportCmd(v),
		newSaveAsCmd(v),
		newStatsCmd(v),
		newIndexStatusCmd(v),
		newToolCmd(v),
		newUICmd(v),
	)
	return root
}

// loadConfig merges mongobar.json, environment, and the flags bound on cmd
// into a config.Config, per spec.md §6's file < env < flag precedence.
func loadConfig(v *viper.Viper) (config.Config, error) {
	return config.Load(v)
}

// openTarget implements the "Target positional argument may be a workspace
// name or a path to .op/.csv" rule: a bare name opens (or creates) a
// workspace by that name; a .op/.csv path is copied/converted into a
// workspace named after its base filename before any operation runs
// against it.
func openTarget(target string) (*workspace.Workspace, error) {
	name, sourcePath, isFile := workspace.ResolveTarget(target)
	ws, err := workspace.Open(name)
	if err != nil {
		return nil, err
	}
	if !isFile {
		return ws, nil
	}
	if workspace.Exists(ws.OplogPath()) {
		return ws, nil
	}

	switch ext(sourcePath) {
	case ".csv":
		f, err := os.Open(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("mongobar: opening %s: %w", sourcePath, err)
		}
		defer f.Close()
		if _, err := convert.Ingest(f, ws.OplogPath()); err != nil {
			return nil, fmt.Errorf("mongobar: converting %s: %w", sourcePath, err)
		}
	case ".op":
		if err := copyFile(sourcePath, ws.OplogPath()); err != nil {
			return nil, fmt.Errorf("mongobar: copying %s: %w", sourcePath, err)
		}
	}
	return ws, nil
}

// copyFile copies src to dst byte-for-byte, used to seed a new workspace's
// oplogs.op from a .op path passed directly as the target.
func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0o644)
}

// withMetricsExporters starts the Prometheus and/or Redis exporters cfg
// requests, returning a cleanup func the caller should defer. Both are
// no-ops when their respective address/URI is empty.
func withMetricsExporters(ctx context.Context, cfg config.Config, reg *metrics.Registry) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if cfg.MetricsAddr != "" {
		exp := metrics.NewPromExporter()
		go func() {
			if err := exp.Serve(ctx, cfg.MetricsAddr, reg, time.Second); err != nil {
				logWarn("prometheus exporter stopped: %v", err)
			}
		}()
	}
	if cfg.MetricsRedis != "" {
		sink, err := newRedisSink(cfg.MetricsRedis)
		if err != nil {
			logWarn("redis sink disabled: %v", err)
		} else {
			go func() {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						_ = sink.FlushRegistry(ctx, reg)
					}
				}
			}()
		}
	}
	return ctx, cancel
}

// interruptContext returns a context cancelled on SIGINT/SIGTERM, the
// cooperative-stop trigger for every long-running subcommand (op-record,
// op-stress, ui).
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
