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
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mongobar/internal/metrics"
)

func logWarn(format string, args ...interface{}) {
	log.Warn().Msgf(format, args...)
}

// newRedisSink dials uri and wraps it in a metrics.RedisSink namespaced by
// the current process start time, so two mongobar runs started within the
// same second against the same target remain distinguishable in practice
// but neither needs an operator-supplied run ID for the common case.
func newRedisSink(uri string) (*metrics.RedisSink, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	runID := time.Now().UTC().Format("20060102T150405.000000000")
	return metrics.NewRedisSink(client, runID, time.Hour), nil
}
