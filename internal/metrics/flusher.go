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
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Flusher periodically drains every metric's log queue to a FileSink, and
// optionally ships counter deltas to a RedisSink, grounded in the
// teacher's Worker ticker+stopChan shape (commitLoop / runFinalFlush)
// generalized from VSA commit batches to metric drains.
type Flusher struct {
	reg   *Registry
	files *FileSink
	redis *RedisSink

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

// NewFlusher returns a Flusher that drains reg into files every interval.
// redis may be nil to disable remote aggregation.
func NewFlusher(reg *Registry, files *FileSink, redis *RedisSink, interval time.Duration) *Flusher {
	return &Flusher{reg: reg, files: files, redis: redis, interval: interval, stopCh: make(chan struct{})}
}

// Start launches the background drain loop.
func (f *Flusher) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.loop(ctx)
	}()
}

// Stop halts the drain loop after one final flush. Safe to call once.
func (f *Flusher) Stop() {
	if !f.stopped.CompareAndSwap(false, true) {
		return
	}
	close(f.stopCh)
	f.wg.Wait()
}

func (f *Flusher) loop(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.runCycle(ctx)
		case <-f.stopCh:
			f.runCycle(ctx)
			return
		case <-ctx.Done():
			f.runCycle(ctx)
			return
		}
	}
}

func (f *Flusher) runCycle(ctx context.Context) {
	if f.files != nil {
		if err := f.files.Drain(f.reg); err != nil {
			log.Error().Err(err).Msg("metrics: file sink drain failed")
		}
	}
	if f.redis != nil {
		if err := f.redis.FlushRegistry(ctx, f.reg); err != nil {
			log.Error().Err(err).Msg("metrics: redis sink flush failed")
		}
	}
}
