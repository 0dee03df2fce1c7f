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

// Package executor implements the concurrent, bounded, streaming replay
// engine: the worker pool that drains an operation log against a target
// MongoDB cluster.
package executor

import "sync"

// Barrier is a one-shot rendezvous point for the initial T workers of a run:
// every Wait call blocks until n callers have arrived, then all release
// together. It is grounded in the teacher's sync.WaitGroup-based start/stop
// coordination (core.Worker.Start spawning a fixed set of goroutines),
// generalized into a standalone one-shot primitive since the teacher itself
// has no barrier type.
type Barrier struct {
	n int

	mu    sync.Mutex
	count int
	ch    chan struct{}
}

// NewBarrier returns a Barrier that releases once n parties have called Wait.
// n <= 1 releases immediately on first Wait.
func NewBarrier(n int) *Barrier {
	if n < 1 {
		n = 1
	}
	return &Barrier{n: n, ch: make(chan struct{})}
}

// Wait blocks the caller until n total callers have arrived.
func (b *Barrier) Wait() {
	b.mu.Lock()
	b.count++
	last := b.count == b.n
	b.mu.Unlock()

	if last {
		close(b.ch)
		return
	}
	<-b.ch
}
