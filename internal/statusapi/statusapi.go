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

// Package statusapi serves a small HTTP status endpoint over one run's
// Metrics Surface and Control Signal, adapted from the teacher's
// ratelimiter api.Server.
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"mongobar/internal/metrics"
	"mongobar/internal/signal"
)

// Server exposes /status (a JSON snapshot of the run's registry and
// signal state) and /stop (requests cooperative shutdown).
type Server struct {
	reg *metrics.Registry
	sig *signal.Signal
}

// NewServer configures a new status server over reg/sig.
func NewServer(reg *metrics.Registry, sig *signal.Signal) *Server {
	return &Server{reg: reg, sig: sig}
}

// RegisterRoutes sets up the HTTP routes for the server on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/stop", s.handleStop)
}

type statusResponse struct {
	Signal  int32              `json:"signal"`
	Metrics []metrics.Snapshot `json:"metrics"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Signal:  s.sig.Get(),
		Metrics: s.reg.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleStop requests cooperative shutdown (Control Signal Running ->
// Stopping); the executor's own worker drain moves it to Stopped.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.sig.RequestStop()
	w.WriteHeader(http.StatusNoContent)
}

// ListenAndServe starts the HTTP server on addr, grounded in the teacher's
// api.Server.ListenAndServe timeout configuration.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return httpServer.ListenAndServe()
}
