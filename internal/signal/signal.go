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

// Package signal implements the single tri-state control word shared by
// every worker in one executor run, grounded in the teacher's
// atomic-stop-flag idiom (core.Worker.stopped).
package signal

import "sync/atomic"

const (
	// Running is the initial state of a freshly constructed Signal.
	Running int32 = 0
	// Stopping is set by the dashboard/CLI on user-requested shutdown.
	Stopping int32 = 1
	// Stopped is set by the executor once every worker has drained.
	Stopped int32 = 2
)

// Signal is a single atomic word observable by all workers in a run.
// Transitions may only go Running -> Stopping -> Stopped within one
// executor lifecycle.
type Signal struct {
	v atomic.Int32
}

// New returns a Signal in the Running state.
func New() *Signal {
	return &Signal{}
}

// Get returns the current state.
func (s *Signal) Get() int32 {
	return s.v.Load()
}

// Set stores a new state. Callers are expected to only move it forward
// (Running -> Stopping -> Stopped); Set does not itself enforce this so
// that a restart can reset it to Running.
func (s *Signal) Set(v int32) {
	s.v.Store(v)
}

// RequestStop moves Running -> Stopping. It is a no-op if already stopping
// or stopped.
func (s *Signal) RequestStop() {
	s.v.CompareAndSwap(Running, Stopping)
}

// MarkStopped sets Stopped whatever the current state, called by the
// executor once every worker has drained.
func (s *Signal) MarkStopped() {
	s.v.Store(Stopped)
}

// IsStopping reports whether shutdown has been requested (Stopping or
// Stopped).
func (s *Signal) IsStopping() bool {
	return s.v.Load() != Running
}
