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

package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink aggregates counter deltas from many concurrent mongobar
// instances (one replay split across several hosts against the same
// target) into a single shared total. Grounded in the teacher's
// RedisPersister: a Lua script SETNXes an idempotency marker keyed by the
// flush's sequence number before HINCRBYing the shared total, so one
// sequence number is applied at most once. Every FlushCounter call takes a
// new sequence number, so a call repeated after an error is a separate
// flush and adds its delta again if the failed attempt reached Redis.
type RedisSink struct {
	client    redis.Scripter
	runID     string
	markerTTL time.Duration
	seq       int64
}

// NewRedisSink returns a sink that aggregates into keys namespaced by
// runID. markerTTL bounds how long idempotency markers survive; it should
// comfortably exceed the retry window of the caller.
func NewRedisSink(client redis.Scripter, runID string, markerTTL time.Duration) *RedisSink {
	if markerTTL <= 0 {
		markerTTL = time.Hour
	}
	return &RedisSink{client: client, runID: runID, markerTTL: markerTTL}
}

const redisFlushScript = `
local counterKey = KEYS[1]
local markerKey = KEYS[2]
local delta = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('HINCRBY', counterKey, 'value', delta)
  if ttl and ttl > 0 then
    redis.call('EXPIRE', markerKey, ttl)
  end
  return 1
else
  return 0
end
`

func (s *RedisSink) counterKey(metric string) string {
	return fmt.Sprintf("mongobar:%s:counter:%s", s.runID, metric)
}

func (s *RedisSink) markerKey(metric string, seq int64) string {
	return fmt.Sprintf("mongobar:%s:flush:%s:%d", s.runID, metric, seq)
}

// FlushCounter adds delta to the shared total for metric under a marker
// keyed by a freshly incremented sequence number; a repeated call, including
// one after an error, is a new flush and is not deduplicated against
// earlier ones.
func (s *RedisSink) FlushCounter(ctx context.Context, metric string, delta int64) error {
	if delta == 0 {
		return nil
	}
	s.seq++
	keys := []string{s.counterKey(metric), s.markerKey(metric, s.seq)}
	args := []interface{}{delta, int(s.markerTTL.Seconds())}
	if err := s.client.Eval(ctx, redisFlushScript, keys, args...).Err(); err != nil {
		return fmt.Errorf("metrics: redis flush %s: %w", metric, err)
	}
	return nil
}

// FlushRegistry pushes every registered metric's counter delta since the
// previous call into the shared aggregate, then resets it to 0 locally so
// the next flush only ships the incremental delta.
func (s *RedisSink) FlushRegistry(ctx context.Context, r *Registry) error {
	for _, name := range r.Names() {
		mt := r.Take(name)
		delta := mt.Get()
		if delta == 0 {
			continue
		}
		if err := s.FlushCounter(ctx, name, delta); err != nil {
			return err
		}
		mt.Sub(delta)
	}
	return nil
}

// Total reads back the shared aggregate total for metric across every
// instance that has flushed against this runID.
func (s *RedisSink) Total(ctx context.Context, metric string, client redis.Cmdable) (int64, error) {
	v, err := client.HGet(ctx, s.counterKey(metric), "value").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}
