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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromExporter republishes a Registry's snapshot on a timer as Prometheus
// gauges, one series per metric name via a label rather than the teacher's
// fixed global counters, since the set of metric names is only known at
// run time (one per op kind, namespace, etc).
type PromExporter struct {
	reg *prometheus.Registry

	value  *prometheus.GaugeVec
	median *prometheus.GaugeVec
}

// NewPromExporter builds a dedicated Prometheus registry (not the global
// default) so multiple mongobar runs in one process never collide on
// metric name.
func NewPromExporter() *PromExporter {
	reg := prometheus.NewRegistry()
	value := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mongobar_metric_value",
		Help: "Current counter value of a named mongobar metric.",
	}, []string{"metric"})
	median := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mongobar_metric_median_ms",
		Help: "Streaming median latency in milliseconds of a named mongobar metric.",
	}, []string{"metric"})
	reg.MustRegister(value, median)
	return &PromExporter{reg: reg, value: value, median: median}
}

// Refresh pushes the current snapshot of r into the exported gauges.
func (p *PromExporter) Refresh(r *Registry) {
	for _, snap := range r.Snapshot() {
		p.value.WithLabelValues(snap.Name).Set(float64(snap.Value))
		p.median.WithLabelValues(snap.Name).Set(snap.Median)
	}
}

// Handler returns an http.Handler serving the exported metrics on /metrics.
func (p *PromExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Serve starts refreshing from r on the given interval and blocks serving
// an HTTP /metrics endpoint on addr until ctx is cancelled.
func (p *PromExporter) Serve(ctx context.Context, addr string, r *Registry, interval time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-ticker.C:
			p.Refresh(r)
		}
	}
}
