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

// Package sinks holds the measurement-sink adapters a run flushes its
// histogram to, periodically or at end-of-run: a default tab-separated file,
// and optional Redis/Kafka/Postgres adapters. Only the Redis adapter
// deduplicates a retried flush; Postgres adds a retried delta again. A sink
// failure is counted in the sink-failure metric; it never aborts a run.
package sinks

import "context"

// BucketDelta is the count added to one latency-histogram bucket since the
// previous flush.
type BucketDelta struct {
	BucketMicros int
	Count        int64
}

// Record is one kernel-bypass response measurement: RTT in nanoseconds, the
// flow it belongs to, and the worker identifier the server stamped into the
// reply payload.
type Record struct {
	RTTNanos int64
	FlowID   uint32
	WorkerID uint32
}

// Sink receives a run's measurements. FlushBuckets is called periodically
// (and once more at end-of-run) by both generators; WriteRecord is called
// only by the kernel-bypass variant, which persists one line per response.
type Sink interface {
	WriteRecord(ctx context.Context, r Record) error
	FlushBuckets(ctx context.Context, runID string, deltas []BucketDelta) error
	Close() error
}
