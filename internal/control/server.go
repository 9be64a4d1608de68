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

// Package control implements the run's liveness/metrics HTTP surface: a
// live stats snapshot, Prometheus exposition, and a graceful-stop endpoint.
// It runs on its own goroutine outside the pinned worker set and only ever
// reads measurement atomics, so it cannot perturb pacing.
package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loadgen/internal/measure"
	"loadgen/internal/telemetry"
)

// StatsSnapshot is the JSON body returned by GET /stats.
type StatsSnapshot struct {
	SampleCount      int64            `json:"sample_count"`
	MeanThroughput   float64          `json:"mean_throughput"`
	PercentilesUs    map[string]int64 `json:"percentiles_us"`
	HistogramSamples int64            `json:"histogram_samples"`
}

// Server exposes /stats, /metrics and /stop for a single run.
type Server struct {
	hist    *measure.Histogram
	through *measure.ThroughputSampler
	metrics *telemetry.Metrics
	stop    func()
}

// NewServer builds a control server reading off the given measurement store
// and metrics bundle. stop is invoked once when /stop is called; it should
// flip the same cancellation the orchestrator's own timeout would flip.
func NewServer(hist *measure.Histogram, through *measure.ThroughputSampler, metrics *telemetry.Metrics, stop func()) *Server {
	return &Server{hist: hist, through: through, metrics: metrics, stop: stop}
}

// RegisterRoutes wires this server's handlers onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stop", s.handleStop)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	summary := measure.Summarize(s.hist, s.through)
	snap := StatsSnapshot{
		SampleCount:      summary.SampleCount,
		MeanThroughput:   summary.MeanThroughput,
		PercentilesUs:    summary.PercentilesUs,
		HistogramSamples: summary.HistogramSamples,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.stop()
	w.WriteHeader(http.StatusNoContent)
}

// ListenAndServe starts the HTTP server on addr. An empty addr means the
// control surface is disabled; callers should not invoke ListenAndServe in
// that case.
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
