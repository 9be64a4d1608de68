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

// sockets-loadgen drives a closed-loop key-value workload against a RESP
// text-protocol store (e.g. Redis) over ordinary TCP sockets: nconns
// connections spread across ncores event-loop workers, each pacing itself
// with an independent token bucket and holding up to pending outstanding
// requests.
//
// Usage:
//
//	sockets-loadgen -host 127.0.0.1 -port 6379 -duration 30s -nconns 64 -ncores 4 \
//	    -rate 1000 -pending 16 -vsize 64 -ratio 1:9 -distribution zipfian \
//	    -sink file -sink-addr results.tsv -control-addr :9090
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/xid"

	"loadgen/internal/control"
	"loadgen/internal/measure"
	"loadgen/internal/sinks"
	"loadgen/internal/sockets/keygen"
	"loadgen/internal/sockets/run"
	"loadgen/internal/telemetry"
)

func main() {
	host := flag.String("host", "127.0.0.1", "target host")
	port := flag.Int("port", 6379, "target port")
	duration := flag.Duration("duration", 30*time.Second, "run length")
	rate := flag.Int64("rate", 0, "per-connection token-bucket rate in requests/sec; 0 disables pacing")
	nconns := flag.Int("nconns", 16, "number of connections to open")
	ncores := flag.Int("ncores", 1, "number of event-loop workers connections are spread across")
	pending := flag.Int("pending", 1, "per-connection in-flight request cap")
	vsize := flag.Int("vsize", 64, "SET value length in bytes")
	ratio := flag.String("ratio", "1:1", "SET:GET request mix, e.g. 1:9")
	distribution := flag.String("distribution", "uniform", "key distribution: uniform|zipfian|sequential")
	seed := flag.Int64("seed", 1, "PRNG seed")
	flushInterval := flag.Duration("flush-interval", time.Second, "sink bucket-flush period")
	runID := flag.String("run-id", "", "identifier recorded alongside flushed measurements; defaults to sockets-<xid>")
	sink := flag.String("sink", "file", "measurement sink adapter: file|redis|kafka|postgres")
	sinkAddr := flag.String("sink-addr", "", "sink-specific address (file path, host:port, or topic name)")
	controlAddr := flag.String("control-addr", "", "address for the /stats, /metrics and /stop HTTP surface; empty disables it")
	flag.Parse()

	setRatio, getRatio, err := parseRatio(*ratio)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sockets-loadgen: %v\n", err)
		os.Exit(2)
	}
	dist := keygen.Distribution(*distribution)
	switch dist {
	case keygen.Uniform, keygen.Zipfian, keygen.Sequential:
	default:
		fmt.Fprintf(os.Stderr, "sockets-loadgen: unknown -distribution %q\n", *distribution)
		os.Exit(2)
	}
	if *nconns <= 0 || *ncores <= 0 || *pending <= 0 {
		fmt.Fprintln(os.Stderr, "sockets-loadgen: -nconns, -ncores and -pending must be > 0")
		os.Exit(2)
	}

	id := *runID
	if id == "" {
		id = "sockets-" + xid.New().String()
	}

	measurementSink, err := sinks.Build(*sink, *sinkAddr)
	if err != nil {
		log.Fatalf("sockets-loadgen: %v", err)
	}
	defer measurementSink.Close()

	metrics := telemetry.NewMetrics()
	hist := measure.NewHistogram(1_000_000)
	through := measure.NewThroughputSampler(int(*duration/time.Second) + 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *controlAddr != "" {
		srv := control.NewServer(hist, through, metrics, cancel)
		go func() {
			if err := srv.ListenAndServe(*controlAddr); err != nil && err != http.ErrServerClosed {
				log.Printf("sockets-loadgen: control server: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg := run.Config{
		Host:          *host,
		Port:          *port,
		Duration:      *duration,
		RateHz:        *rate,
		NConns:        *nconns,
		NCores:        *ncores,
		Pending:       *pending,
		ValueSize:     *vsize,
		SetRatio:      setRatio,
		GetRatio:      getRatio,
		Distribution:  dist,
		Seed:          *seed,
		FlushInterval: *flushInterval,
		RunID:         id,
		Sink:          measurementSink,
		Metrics:       metrics,
		Hist:          hist,
		Through:       through,
	}

	result, err := run.Run(ctx, cfg)
	if err != nil {
		log.Fatalf("sockets-loadgen: run failed: %v", err)
	}

	fmt.Printf("run=%s samples=%d mean_throughput=%.1f/s abandoned=%d completed=%d\n",
		id, result.Summary.SampleCount, result.Summary.MeanThroughput, result.Abandoned, result.CompletedConn)
	for _, label := range []string{"p50", "p90", "p99", "p999", "p9999"} {
		fmt.Printf("  %s=%dus\n", label, result.Summary.PercentilesUs[label])
	}
}

// parseRatio splits a "SET:GET" string like "1:9" into its two integers.
func parseRatio(s string) (setRatio, getRatio int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("ratio %q must be SET:GET, e.g. 1:9", s)
	}
	setRatio, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("ratio %q: %w", s, err)
	}
	getRatio, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("ratio %q: %w", s, err)
	}
	if setRatio < 0 || getRatio < 0 || setRatio+getRatio == 0 {
		return 0, 0, fmt.Errorf("ratio %q must have non-negative parts summing to > 0", s)
	}
	return setRatio, getRatio, nil
}
