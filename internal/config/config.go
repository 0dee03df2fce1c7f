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

// Package config loads mongobar.json and merges it with CLI flags through
// viper's file < env < flag precedence.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the merged runtime configuration for one mongobar invocation.
type Config struct {
	URI         []string `mapstructure:"uri"`
	DB          string   `mapstructure:"db"`
	ThreadCount int      `mapstructure:"threadCount"`
	LoopCount   int64    `mapstructure:"loopCount"`
	Rebuild     bool     `mapstructure:"rebuild"`
	Filter      string   `mapstructure:"filter"`
	ReadOnly    bool     `mapstructure:"readonly"`

	MetricsAddr  string `mapstructure:"metricsAddr"`
	MetricsRedis string `mapstructure:"metricsRedis"`

	SnapshotDeletes bool `mapstructure:"snapshotDeletes"`
}

// Defaults matches spec.md §6's documented mongobar.json defaults.
func Defaults() Config {
	return Config{ThreadCount: 10, LoopCount: 1000}
}

// BindFlags registers the CLI flags every subcommand shares onto fs, and
// binds them into v so viper's flag layer takes precedence over the
// config-file and environment layers.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.StringSlice("uri", nil, "target mongodb connection URI (repeatable for multi-target fan-out)")
	fs.String("db", "", "target database name")
	fs.Int("thread-count", 10, "base worker thread count (T)")
	fs.Int64("loop-count", 1000, "loop count per worker (0 = run forever)")
	fs.Bool("rebuild", false, "force regeneration of derived logs (revert/resume)")
	fs.String("filter", "", "regex filter applied to FullLine-mode log records")
	fs.Bool("readonly", false, "run mutating handlers as no-ops")
	fs.String("metrics-addr", "", "address to serve the prometheus /metrics endpoint on, empty disables it")
	fs.String("metrics-redis", "", "redis URI to mirror metric counters into, empty disables it")
	fs.Bool("snapshot-deletes", false, "capture pre-images of deleted documents so Revert can reinsert them")

	binds := map[string]string{
		"uri": "uri", "db": "db", "thread-count": "threadCount", "loop-count": "loopCount",
		"rebuild": "rebuild", "filter": "filter", "readonly": "readonly",
		"metrics-addr": "metricsAddr", "metrics-redis": "metricsRedis",
		"snapshot-deletes": "snapshotDeletes",
	}
	for flag, key := range binds {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load reads mongobar.json from the process CWD (if present), merges CLI
// flags bound via BindFlags, and decodes the result into a Config seeded
// with Defaults(). A missing config file is not an error: flags and
// defaults alone are a valid configuration.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()

	v.SetConfigName("mongobar")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.SetEnvPrefix("MONGOBAR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: read mongobar.json: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = 10
	}
	return cfg, nil
}
