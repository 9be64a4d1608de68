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

// Package run wires the kernel-bypass generator's four stages together:
// Plan (schedule.Plan), Connect (handshake.RunAll), Drive (the TX, RX-ingest
// and RX-parser workers), and Collect (throughput sampling and periodic
// sink flushes). The handshake is a hard happens-before boundary: nothing
// in Drive starts until every flow reaches Established.
package run

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"loadgen/internal/kbypass/clock"
	"loadgen/internal/kbypass/flow"
	"loadgen/internal/kbypass/handshake"
	"loadgen/internal/kbypass/port"
	"loadgen/internal/kbypass/schedule"
	"loadgen/internal/kbypass/txrx"
	"loadgen/internal/measure"
	"loadgen/internal/sinks"
	"loadgen/internal/telemetry"
	"loadgen/pkg/distribution"
)

// Config describes one kernel-bypass variant run.
type Config struct {
	Port port.Port

	SrcMAC, DstMAC net.HardwareAddr
	SrcIP, DstIP   net.IP
	DstTCPPort     uint16
	NumFlows       int

	Duration time.Duration
	// Grace is how long the run keeps RX ingest/parser alive after TX
	// finishes its schedule, to let trailing responses land.
	Grace time.Duration

	RateHz       float64
	InterArrival distribution.Interarrival
	Work         distribution.ServerWork
	Iter0, Iter1 uint64
	BimodalMode  float64
	Seed         int64
	WorkerID     uint64

	RingCapacity  int
	FlushInterval time.Duration

	RunID string
	Sink  sinks.Sink

	Metrics *telemetry.Metrics

	// Clock is the tick source; nil selects the production monotonic clock.
	Clock clock.Source

	// Hist and Through let a caller observe measurements live (e.g. to back
	// a control server's /stats endpoint) by supplying the store Run writes
	// into instead of letting Run allocate a private one.
	Hist    *measure.Histogram
	Through *measure.ThroughputSampler
}

// Result is the end-of-run report.
type Result struct {
	Summary measure.Summary
	TX      txrx.TXStats
	RX      txrx.RXParserStats
}

// Run executes one full kernel-bypass load-generation run against cfg.Port.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.NumFlows <= 0 {
		cfg.NumFlows = 1
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Second
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = 4096
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Monotonic{}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	table := flow.NewTable(cfg.NumFlows, cfg.SrcMAC, cfg.DstMAC, cfg.SrcIP, cfg.DstIP, cfg.DstTCPPort, rng)

	if err := handshake.RunAll(ctx, clk, cfg.Port, table, cfg.Metrics); err != nil {
		return Result{}, fmt.Errorf("run: handshake: %w", err)
	}

	plan, err := schedule.Plan(cfg.RateHz, cfg.Duration.Seconds(), cfg.NumFlows,
		cfg.InterArrival, cfg.Work, cfg.Iter0, cfg.Iter1, cfg.BimodalMode, rng)
	if err != nil {
		return Result{}, fmt.Errorf("run: schedule: %w", err)
	}

	hist := cfg.Hist
	if hist == nil {
		hist = measure.NewHistogram(1_000_000)
	}
	through := cfg.Through
	if through == nil {
		through = measure.NewThroughputSampler(int(cfg.Duration/time.Second) + 2)
	}
	ring := txrx.NewRing(cfg.RingCapacity)

	rxCtx, cancelRX := context.WithCancel(ctx)
	defer cancelRX()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		txrx.RunRXIngest(rxCtx, clk, cfg.Port, ring)
	}()

	var parserStats txrx.RXParserStats
	wg.Add(1)
	go func() {
		defer wg.Done()
		parserStats = txrx.RunRXParser(rxCtx, ring, table, hist, cfg.Sink, cfg.Metrics)
	}()

	collectDone := make(chan []int64, 1)
	go func() { collectDone <- collect(rxCtx, cfg, hist, through) }()

	txStats, err := txrx.RunTX(ctx, clk, cfg.Port, table, plan, cfg.WorkerID, cfg.Metrics)
	if err != nil {
		cancelRX()
		wg.Wait()
		return Result{}, fmt.Errorf("run: tx: %w", err)
	}

	select {
	case <-time.After(cfg.Grace):
	case <-ctx.Done():
	}
	cancelRX()
	wg.Wait()
	lastBuckets := <-collectDone

	summary := measure.Summarize(hist, through)

	if cfg.Sink != nil {
		deltas, _ := bucketDeltas(hist, lastBuckets)
		if len(deltas) > 0 {
			if err := cfg.Sink.FlushBuckets(context.Background(), cfg.RunID, deltas); err != nil && cfg.Metrics != nil {
				cfg.Metrics.SinkFailures.Add(1)
			}
		}
	}

	return Result{Summary: summary, TX: txStats, RX: parserStats}, nil
}

// collect is the orchestrator's once-per-FlushInterval sampling loop: it
// reads the histogram's cumulative total (the kernel-bypass analogue of a
// sockets connection's completed-request counter), accumulates into the
// throughput sampler, and flushes bucket deltas to the sink.
func collect(ctx context.Context, cfg Config, hist *measure.Histogram, through *measure.ThroughputSampler) []int64 {
	ticker := time.NewTicker(cfg.FlushInterval)
	defer ticker.Stop()

	var lastBuckets []int64
	for {
		select {
		case <-ctx.Done():
			return lastBuckets
		case now := <-ticker.C:
			through.Sample(now, hist.Total())
			if cfg.Sink != nil {
				deltas, next := bucketDeltas(hist, lastBuckets)
				lastBuckets = next
				if len(deltas) > 0 {
					if err := cfg.Sink.FlushBuckets(ctx, cfg.RunID, deltas); err != nil && cfg.Metrics != nil {
						cfg.Metrics.SinkFailures.Add(1)
					}
				}
			}
		}
	}
}

// bucketDeltas diffs the histogram's current bucket snapshot against the
// previous one, returning only buckets whose count changed.
func bucketDeltas(hist *measure.Histogram, previous []int64) ([]sinks.BucketDelta, []int64) {
	current := hist.Buckets()
	var deltas []sinks.BucketDelta
	for i, count := range current {
		var prev int64
		if i < len(previous) {
			prev = previous[i]
		}
		if count > prev {
			deltas = append(deltas, sinks.BucketDelta{BucketMicros: i, Count: count - prev})
		}
	}
	return deltas, current
}
