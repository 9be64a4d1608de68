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

// kbypass-loadgen drives a closed-loop TCP workload over a raw AF_PACKET
// socket, pacing a pre-materialized send schedule against one or more
// user-space flows and measuring round-trip time from its own tx/rx
// timestamps rather than the kernel's TCP stack.
//
// Usage:
//
//	kbypass-loadgen -iface eth0 -config endpoints.ini -rate 10000 -duration 10s \
//	    -flows 8 -d exponential -D constant -i 100 -sink file -sink-addr results.tsv
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"

	"loadgen/internal/control"
	"loadgen/internal/kbypass/config"
	"loadgen/internal/kbypass/port"
	"loadgen/internal/kbypass/run"
	"loadgen/internal/measure"
	"loadgen/internal/sinks"
	"loadgen/internal/telemetry"
	"loadgen/pkg/distribution"
)

func main() {
	iface := flag.String("iface", "", "network interface to bind the raw socket to (required)")
	configPath := flag.String("config", "", "ini config file with [ethernet]/[ipv4]/[tcp] endpoint addresses (required)")
	duration := flag.Duration("duration", 10*time.Second, "run length")
	grace := flag.Duration("grace", 2*time.Second, "how long to keep receiving after the schedule is exhausted")
	rate := flag.Float64("rate", 1000, "offered load in packets/second")
	flows := flag.Int("flows", 1, "number of concurrent TCP flows")
	interArrival := flag.String("d", "uniform", "inter-arrival distribution: uniform|exponential|lognormal|pareto")
	serverWork := flag.String("D", "constant", "server-side work distribution: constant|exponential|bimodal")
	iter0 := flag.Uint64("i", 1, "srv_iter0 work parameter")
	iter1 := flag.Uint64("j", 1, "srv_iter1 work parameter")
	bimodalMode := flag.Float64("m", 0.5, "bimodal mode fraction")
	seed := flag.Int64("seed", 1, "PRNG seed")
	flushInterval := flag.Duration("flush-interval", time.Second, "sink bucket-flush period")
	runID := flag.String("run-id", "", "identifier recorded alongside flushed measurements; defaults to kbypass-<xid>")
	sink := flag.String("sink", "file", "measurement sink adapter: file|redis|kafka|postgres")
	sinkAddr := flag.String("sink-addr", "", "sink-specific address (file path, host:port, or topic name)")
	controlAddr := flag.String("control-addr", "", "address for the /stats, /metrics and /stop HTTP surface; empty disables it")
	flag.Parse()

	if *iface == "" || *configPath == "" {
		fmt.Fprintln(os.Stderr, "kbypass-loadgen: -iface and -config are required")
		os.Exit(2)
	}
	ia := distribution.Interarrival(*interArrival)
	work := distribution.ServerWork(*serverWork)
	if *flows <= 0 || *rate <= 0 {
		fmt.Fprintln(os.Stderr, "kbypass-loadgen: -flows and -rate must be > 0")
		os.Exit(2)
	}

	endpoints, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kbypass-loadgen: %v\n", err)
		os.Exit(2)
	}

	p, err := port.Open(*iface)
	if err != nil {
		log.Fatalf("kbypass-loadgen: open %s: %v", *iface, err)
	}
	defer p.Close()

	id := *runID
	if id == "" {
		id = "kbypass-" + xid.New().String()
	}

	measurementSink, err := sinks.Build(*sink, *sinkAddr)
	if err != nil {
		log.Fatalf("kbypass-loadgen: %v", err)
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
				log.Printf("kbypass-loadgen: control server: %v", err)
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
		Port:          p,
		SrcMAC:        endpoints.SrcMAC,
		DstMAC:        endpoints.DstMAC,
		SrcIP:         endpoints.SrcIP,
		DstIP:         endpoints.DstIP,
		DstTCPPort:    endpoints.DstTCP,
		NumFlows:      *flows,
		Duration:      *duration,
		Grace:         *grace,
		RateHz:        *rate,
		InterArrival:  ia,
		Work:          work,
		Iter0:         *iter0,
		Iter1:         *iter1,
		BimodalMode:   *bimodalMode,
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
		log.Fatalf("kbypass-loadgen: run failed: %v", err)
	}

	fmt.Printf("run=%s samples=%d mean_throughput=%.1f/s sent=%d never_sent=%d recorded=%d\n",
		id, result.Summary.SampleCount, result.Summary.MeanThroughput, result.TX.Sent, result.TX.NeverSent, result.RX.Recorded)
	for _, label := range []string{"p50", "p90", "p99", "p999", "p9999"} {
		fmt.Printf("  %s=%dus\n", label, result.Summary.PercentilesUs[label])
	}
}
