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

package executor

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/semaphore"

	"mongobar/internal/metrics"
	"mongobar/internal/mongopool"
	"mongobar/internal/oplog"
	"mongobar/internal/signal"
)

// RunMode gates whether mutating handlers (Insert, Update, Delete,
// FindAndModify) actually issue their driver calls.
type RunMode int

const (
	ReadOnly RunMode = iota
	ReadWrite
)

// ReadModeKind selects how the operation log is consumed.
type ReadModeKind int

const (
	// FullLine loads the entire log into memory; each worker independently
	// iterates its own copy of the full vector every loop iteration.
	FullLine ReadModeKind = iota
	// StreamLine consumes the log once, cooperatively, through the
	// double-buffered StreamReader.
	StreamLine
	// ReadLineMode consumes the log once, cooperatively, through the
	// lighter sequential LineReader.
	ReadLineMode
)

// ReadMode configures how records are fetched from the log.
type ReadMode struct {
	Kind ReadModeKind

	// Filter applies only to FullLine.
	Filter *regexp.Regexp
	// NeverLoop applies only to ReadLineMode.
	NeverLoop bool
}

// ExecConfig configures one Exec run.
type ExecConfig struct {
	LogPath     string
	ThreadCount int
	LoopCount   int64 // 0 means run forever
	ReadMode    ReadMode
	RunMode     RunMode
	URIs        []string
	DB          string

	Registry *metrics.Registry
	Signal   *signal.Signal
}

// recordSource hands out Op Records one at a time. StreamLine and
// ReadLineMode wrap a single shared instance (cooperative fan-out);
// FullLine constructs a fresh instance per worker per loop iteration
// (independent full-vector iteration), per spec §4.5's ordering rules.
type recordSource interface {
	Next() (oplog.Record, bool)
}

type lineReaderSource struct{ lr *oplog.LineReader }

func (s lineReaderSource) Next() (oplog.Record, bool) {
	rec, ok, err := s.lr.Next()
	if err != nil {
		return oplog.Record{}, false
	}
	return rec, ok
}

type fullLineSource struct {
	records []oplog.Record
	idx     int
}

func (s *fullLineSource) Next() (oplog.Record, bool) {
	if s.idx >= len(s.records) {
		return oplog.Record{}, false
	}
	rec := s.records[s.idx]
	s.idx++
	return rec, true
}

// sourceFactory builds the per-iteration record source for one worker's
// loop pass. For StreamLine/ReadLineMode it always returns the same shared
// source; for FullLine it returns a fresh independent pass over the full
// in-memory vector every time it is called.
type sourceFactory func() recordSource

// Exec drives T worker goroutines over the log at logPath per spec §4.5.
func Exec(ctx context.Context, cfg ExecConfig) error {
	if cfg.Registry == nil {
		cfg.Registry = metrics.NewRegistry()
	}
	if cfg.Signal == nil {
		cfg.Signal = signal.New()
	}

	if err := disableProfilerForDuration(ctx, cfg.URIs, cfg.DB); err != nil {
		log.Warn().Err(err).Msg("executor: could not inspect/disable profiler level")
	}

	pool, err := mongopool.New(cfg.URIs...)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	length, err := logLength(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	factory, closeSource, err := buildSourceFactory(cfg)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	defer closeSource()

	reg := cfg.Registry
	reg.Take("boot").Reset()
	reg.Take("done").Reset()
	reg.Take("progress").Reset()

	barrierSize := cfg.ThreadCount
	if barrierSize < 1 {
		barrierSize = 1
	}
	barrier := NewBarrier(barrierSize)

	// Admission control: a dynCCLimit set before the run starts caps the
	// number of in-flight driver calls across every worker. 0 means
	// unbounded, so sem stays nil and runWorker never gates on it.
	var sem *semaphore.Weighted
	if limit := reg.Take("dynCCLimit").Get(); limit > 0 {
		sem = semaphore.NewWeighted(limit)
	}

	var wg sync.WaitGroup
	var created int64

	for {
		dynThreads := reg.Take("dynThreads").Get()
		total := int64(cfg.ThreadCount) + dynThreads
		if total < 1 {
			total = 1
		}

		if reg.Take("done").Get() >= total {
			break
		}
		if cfg.Signal.Get() != signal.Running {
			break
		}
		if created >= total {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		idx := created
		created++

		if cfg.LoopCount > 0 {
			reg.Take("progressTotal").Set(length * cfg.LoopCount * total)
		} else {
			reg.Take("progressTotal").Set(0)
		}

		getClient := func(ctx context.Context, ns string) (mongoClient, error) {
			c, err := pool.Get(ctx, ns)
			if err != nil {
				return nil, err
			}
			return wrapClient(c), nil
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runWorker(ctx, i, cfg, getClient, factory, barrier, reg, sem)
		}(int(idx))
	}

	wg.Wait()
	cfg.Signal.MarkStopped()
	return pool.Shutdown(ctx)
}

// clientGetter resolves the client handle to dispatch one record against.
// Production code routes this through the real Connection Pool; tests
// substitute a fake so the worker loop's concurrency, admission-control,
// and metrics logic can be exercised without a live mongod.
type clientGetter func(ctx context.Context, ns string) (mongoClient, error)

func runWorker(ctx context.Context, idx int, cfg ExecConfig, getClient clientGetter, factory sourceFactory, barrier *Barrier, reg *metrics.Registry, sem *semaphore.Weighted) {
	defer func() {
		reg.Take("done").Add(1)
	}()
	reg.Take("boot").Add(1)

	if idx < cfg.ThreadCount && cfg.LoopCount != 1 {
		barrier.Wait()
	}

	forever := cfg.LoopCount == 0
	for iter := int64(0); forever || iter < cfg.LoopCount; iter++ {
		if cfg.Signal.Get() != signal.Running {
			break
		}

		src := factory()
		for {
			if cfg.Signal.Get() != signal.Running {
				break
			}
			rec, ok := src.Next()
			if !ok {
				break
			}

			// Admission control: block this worker until there is room
			// under dynCCLimit before counting this record as in-flight.
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					break
				}
			}

			reg.Take("progress").Add(1)
			reg.Take("querying").Add(1)

			start := time.Now()
			client, err := getClient(ctx, rec.Namespace())
			if err != nil {
				reg.Take("diagnostics").Push(fmt.Sprintf("getClient %s: %v", rec.Namespace(), err))
			} else if err := dispatch(ctx, client, rec, cfg.RunMode); err != nil {
				reg.Take("diagnostics").Push(err.Error())
			}
			elapsed := time.Since(start).Milliseconds()

			reg.Take("costMs").Add(elapsed)
			reg.Take("latencyMs").Update(float64(elapsed))
			reg.Take("queryCount").Add(1)
			reg.Take("querying").Sub(1)
			if sem != nil {
				sem.Release(1)
			}
		}
	}
}

func buildSourceFactory(cfg ExecConfig) (sourceFactory, func(), error) {
	switch cfg.ReadMode.Kind {
	case StreamLine:
		length, err := logLength(cfg.LogPath)
		if err != nil {
			return nil, func() {}, err
		}
		sr, err := oplog.Streaming(cfg.LogPath, int(length))
		if err != nil {
			return nil, func() {}, err
		}
		return func() recordSource { return sr }, func() { _ = sr.Close() }, nil

	case ReadLineMode:
		lr, err := oplog.ReadLine(cfg.LogPath, cfg.ReadMode.NeverLoop)
		if err != nil {
			return nil, func() {}, err
		}
		src := lineReaderSource{lr: lr}
		return func() recordSource { return src }, func() { _ = lr.Close() }, nil

	default: // FullLine
		records, err := oplog.FullLoad(cfg.LogPath, cfg.ReadMode.Filter)
		if err != nil {
			return nil, func() {}, err
		}
		return func() recordSource {
			return &fullLineSource{records: records}
		}, func() {}, nil
	}
}

func logLength(path string) (int64, error) {
	h, err := oplog.Open(path)
	if err != nil {
		return 0, err
	}
	return int64(h.Length), nil
}

// disableProfilerForDuration implements the Exec prelude: dial one client,
// check the current profiler level, and disable it if nonzero so profiler
// writes do not contaminate the run's own measurements.
func disableProfilerForDuration(ctx context.Context, uris []string, db string) error {
	if len(uris) == 0 || db == "" {
		return nil
	}
	p, err := mongopool.New(uris[0])
	if err != nil {
		return err
	}
	defer func() { _ = p.Shutdown(ctx) }()

	client, err := p.Get(ctx, db+".system.profile")
	if err != nil {
		return err
	}

	var current struct {
		Was int32 `bson:"was"`
	}
	if err := client.Database(db).RunCommand(ctx, bson.M{"profile": -1}).Decode(&current); err != nil {
		return fmt.Errorf("read profiler level: %w", err)
	}
	if current.Was == 0 {
		return nil
	}
	if err := client.Database(db).RunCommand(ctx, bson.M{"profile": 0}).Err(); err != nil {
		return fmt.Errorf("disable profiler: %w", err)
	}
	return nil
}
