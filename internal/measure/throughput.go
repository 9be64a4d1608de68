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

package measure

import (
	"sync"
	"time"
)

// ThroughputSample is one per-second reading: the wall-clock time it was
// taken, and the cumulative completed-request count observed at that instant.
type ThroughputSample struct {
	At        time.Time
	Cumulative int64
}

// ThroughputSampler accumulates one sample per second for the duration of a
// run. It is driven by a single orchestrator goroutine (the "main thread"
// in spec terms); completed-request counters are supplied by the caller, so
// this type never touches per-connection hot-path state directly.
type ThroughputSampler struct {
	mu      sync.Mutex
	samples []ThroughputSample
}

// NewThroughputSampler preallocates storage sized to the expected run
// duration in seconds.
func NewThroughputSampler(expectedSeconds int) *ThroughputSampler {
	if expectedSeconds <= 0 {
		expectedSeconds = 1
	}
	return &ThroughputSampler{samples: make([]ThroughputSample, 0, expectedSeconds)}
}

// Sample appends one reading of the cumulative completed-request count.
func (t *ThroughputSampler) Sample(at time.Time, cumulative int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, ThroughputSample{At: at, Cumulative: cumulative})
}

// Snapshot returns a copy of all samples taken so far.
func (t *ThroughputSampler) Snapshot() []ThroughputSample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ThroughputSample, len(t.samples))
	copy(out, t.samples)
	return out
}

// MeanThroughput returns the final cumulative count divided by the number of
// samples taken, per the spec's summary definition.
func (t *ThroughputSampler) MeanThroughput() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	last := t.samples[len(t.samples)-1]
	return float64(last.Cumulative) / float64(len(t.samples))
}
