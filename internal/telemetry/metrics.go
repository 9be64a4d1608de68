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

// Package telemetry exposes the generator's own operational metrics —
// as opposed to the latency/throughput measurements it takes of its target
// — over Prometheus. It is read by the control server (internal/control)
// and never touched on the hot path except through atomic counter Adds.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a bundle of counters and gauges registered against a private
// registry, so a run's metrics never collide with another run's in the same
// process (e.g. under `go test`).
type Metrics struct {
	Registry *prometheus.Registry

	RequestsSent      prometheus.Counter
	RequestsCompleted prometheus.Counter
	NeverSent         prometheus.Counter
	PacingSlips       prometheus.Counter
	HandshakeRetries  prometheus.Counter
	DecodeErrors      prometheus.Counter
	DroppedFrames     prometheus.Counter
	SinkFailures      prometheus.Counter
	InFlight          prometheus.Gauge
}

// NewMetrics builds and registers a fresh metrics bundle.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		RequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_requests_sent_total",
			Help: "Total requests transmitted to the target.",
		}),
		RequestsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_requests_completed_total",
			Help: "Total responses matched to a request and recorded.",
		}),
		NeverSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_never_sent_total",
			Help: "Scheduled slots the TX pipeline could not meet its deadline for.",
		}),
		PacingSlips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_pacing_slips_total",
			Help: "TX deadlines missed by at least the slip threshold.",
		}),
		HandshakeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_handshake_retries_total",
			Help: "SYN retransmissions issued across all flows during handshake.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_decode_errors_total",
			Help: "RESP or wire-format decode errors that caused a connection/flow to be abandoned.",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_dropped_frames_total",
			Help: "Received frames the RX parser dropped without recording a measurement.",
		}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_sink_failures_total",
			Help: "Measurement sink flush attempts that failed.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loadgen_requests_in_flight",
			Help: "Requests currently awaiting a response across all connections/flows.",
		}),
	}
	reg.MustRegister(
		m.RequestsSent, m.RequestsCompleted, m.NeverSent, m.PacingSlips,
		m.HandshakeRetries, m.DecodeErrors, m.DroppedFrames, m.SinkFailures, m.InFlight,
	)
	return m
}
