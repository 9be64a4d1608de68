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

// Package run wires the sockets generator's Plan, Connect, Drive and
// Collect stages together: it opens connections, spreads them across a
// configured number of event-loop workers, drives each loop on its own
// goroutine, samples throughput once per flush interval, flushes
// measurements to a sink periodically, and reports an end-of-run summary.
package run

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"loadgen/internal/measure"
	"loadgen/internal/sinks"
	"loadgen/internal/sockets/conn"
	"loadgen/internal/sockets/eventloop"
	"loadgen/internal/sockets/keygen"
	"loadgen/internal/telemetry"
)

// Config describes one sockets-variant run.
type Config struct {
	Host string
	Port int

	Duration time.Duration

	// RateHz is the per-connection token-bucket rate; zero means unlimited.
	RateHz int64

	NConns       int
	NCores       int
	Pending      int
	ValueSize    int
	SetRatio     int
	GetRatio     int
	Distribution keygen.Distribution
	Seed         int64

	FlushInterval time.Duration

	RunID string
	Sink  sinks.Sink

	Metrics *telemetry.Metrics

	// Hist and Through let a caller observe measurements live (e.g. to back
	// a control server's /stats endpoint) by supplying the store Run writes
	// into instead of letting Run allocate a private one.
	Hist    *measure.Histogram
	Through *measure.ThroughputSampler
}

// Result is the end-of-run report.
type Result struct {
	Summary       measure.Summary
	Abandoned     int64
	CompletedConn int64
}

// Run executes Plan (dial + distribute connections) through Collect
// (throughput sampling, periodic sink flush, end-of-run summary). It
// returns once ctx is cancelled or cfg.Duration elapses, whichever first.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.NCores <= 0 {
		cfg.NCores = 1
	}
	if cfg.Pending <= 0 {
		cfg.Pending = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	hist := cfg.Hist
	if hist == nil {
		hist = measure.NewHistogram(1_000_000)
	}
	through := cfg.Through
	if through == nil {
		through = measure.NewThroughputSampler(int(cfg.Duration/time.Second) + 2)
	}

	loops := make([]*eventloop.Loop, cfg.NCores)
	for i := range loops {
		l, err := eventloop.New(cfg.NConns, hist)
		if err != nil {
			return Result{}, fmt.Errorf("run: create event loop %d: %w", i, err)
		}
		loops[i] = l
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	for i := 0; i < cfg.NConns; i++ {
		keys, err := keygen.New(cfg.Distribution, rng)
		if err != nil {
			return Result{}, fmt.Errorf("run: build key generator: %w", err)
		}
		fd, err := dial(addr)
		if err != nil {
			return Result{}, fmt.Errorf("run: dial connection %d: %w", i, err)
		}
		c := conn.New(fd, cfg.Pending, cfg.SetRatio, cfg.GetRatio, cfg.ValueSize, keys, cfg.RateHz, time.Now())
		loop := loops[i%cfg.NCores]
		if err := loop.Register(c); err != nil {
			unix.Close(fd)
			return Result{}, fmt.Errorf("run: register connection %d: %w", i, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func(l *eventloop.Loop) {
			defer wg.Done()
			driveLoop(runCtx, l)
		}(l)
	}

	lastBuckets := collect(runCtx, cfg, hist, through, loops)
	wg.Wait()

	for _, l := range loops {
		l.Close()
	}

	summary := measure.Summarize(hist, through)
	var abandoned, completed int64
	for _, l := range loops {
		abandoned += l.Abandoned()
		completed += l.Completed()
	}

	if cfg.Sink != nil {
		deltas, _ := bucketDeltas(hist, lastBuckets)
		if len(deltas) > 0 {
			if err := cfg.Sink.FlushBuckets(context.Background(), cfg.RunID, deltas); err != nil && cfg.Metrics != nil {
				cfg.Metrics.SinkFailures.Inc()
			}
		}
	}

	return Result{Summary: summary, Abandoned: abandoned, CompletedConn: completed}, nil
}

// driveLoop ticks one event loop until runCtx is done. It never sleeps: the
// sockets loop is a zero-timeout readiness poll, effectively busy-polling,
// per the generator's concurrency model.
func driveLoop(ctx context.Context, l *eventloop.Loop) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := l.Tick(); err != nil {
			return
		}
	}
}

// collect is the orchestrator's once-per-FlushInterval sampling loop: it reads each
// worker's cumulative completed count, accumulates into the throughput
// sampler, and periodically flushes histogram-bucket deltas to the
// configured sink.
func collect(ctx context.Context, cfg Config, hist *measure.Histogram, through *measure.ThroughputSampler, loops []*eventloop.Loop) []int64 {
	ticker := time.NewTicker(cfg.FlushInterval)
	defer ticker.Stop()

	var lastBuckets []int64
	for {
		select {
		case <-ctx.Done():
			return lastBuckets
		case now := <-ticker.C:
			var cumulative int64
			for _, l := range loops {
				cumulative += l.Completed()
			}
			through.Sample(now, cumulative)

			if cfg.Sink != nil {
				deltas, next := bucketDeltas(hist, lastBuckets)
				lastBuckets = next
				if len(deltas) > 0 {
					if err := cfg.Sink.FlushBuckets(ctx, cfg.RunID, deltas); err != nil && cfg.Metrics != nil {
						cfg.Metrics.SinkFailures.Inc()
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

// dial opens a non-blocking TCP socket and starts connecting to addr,
// tolerating EINPROGRESS the way every non-blocking connect does.
func dial(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return -1, fmt.Errorf("resolve %s: %w", addr, err)
	}
	var sa unix.SockaddrInet4
	copy(sa.Addr[:], tcpAddr.IP.To4())
	sa.Port = tcpAddr.Port

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Connect(fd, &sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("connect: %w", err)
	}
	return fd, nil
}
