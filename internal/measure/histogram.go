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

// Package measure implements the measurement store shared by both load
// generators: a fixed-capacity latency histogram, per-second throughput
// samples, and end-of-run summarization. Every writer hits a single atomic
// fetch-add; readers only run after all writers have joined, so there is no
// locking anywhere on the hot path.
package measure

import "sync/atomic"

// Histogram is a flat array of linear, one-microsecond-wide buckets up to a
// configured cap. Samples beyond the cap are clamped into the last bucket.
// Many goroutines may call Observe concurrently; percentiles are only
// meaningful once all observers have stopped.
type Histogram struct {
	buckets []atomic.Int64
	total   atomic.Int64
}

// NewHistogram allocates a histogram with numBuckets one-microsecond buckets.
func NewHistogram(numBuckets int) *Histogram {
	if numBuckets <= 0 {
		numBuckets = 1
	}
	return &Histogram{buckets: make([]atomic.Int64, numBuckets)}
}

// Observe records one latency sample, given in microseconds.
func (h *Histogram) Observe(microseconds int64) {
	if microseconds < 0 {
		microseconds = 0
	}
	idx := microseconds
	if idx >= int64(len(h.buckets)) {
		idx = int64(len(h.buckets)) - 1
	}
	h.buckets[idx].Add(1)
	h.total.Add(1)
}

// Total returns the number of samples recorded so far.
func (h *Histogram) Total() int64 { return h.total.Load() }

// Buckets returns a point-in-time snapshot of the bucket counts.
func (h *Histogram) Buckets() []int64 {
	out := make([]int64, len(h.buckets))
	for i := range h.buckets {
		out[i] = h.buckets[i].Load()
	}
	return out
}

// Percentile returns the smallest bucket (in microseconds) whose cumulative
// count reaches the given fraction (e.g. 0.99) of all recorded samples. It
// returns -1 if the histogram has no samples.
func (h *Histogram) Percentile(p float64) int64 {
	total := h.total.Load()
	if total == 0 {
		return -1
	}
	target := int64(p * float64(total))
	if target < 1 {
		target = 1
	}
	var cumulative int64
	for i := range h.buckets {
		cumulative += h.buckets[i].Load()
		if cumulative >= target {
			return int64(i)
		}
	}
	return int64(len(h.buckets) - 1)
}

// Sum verifies the histogram integrity invariant: the sum of all buckets must
// equal Total(). It is provided for tests and diagnostics, not the hot path.
func (h *Histogram) Sum() int64 {
	var sum int64
	for i := range h.buckets {
		sum += h.buckets[i].Load()
	}
	return sum
}
