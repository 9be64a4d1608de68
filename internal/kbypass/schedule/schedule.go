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

// Package schedule pre-materializes the complete send schedule for a
// kernel-bypass run: one entry per planned request slot, built once before
// the TX pipeline starts and never mutated during the run.
package schedule

import (
	"fmt"
	"math/rand"

	"loadgen/pkg/distribution"
)

// TicksPerMicro converts a microsecond gap into clock ticks. The clock
// package's Source reads nanoseconds, so one microsecond is 1000 ticks.
const TicksPerMicro = 1000

// Entry is one planned request slot.
type Entry struct {
	GapTicks     int64 // delta from the previous slot's deadline
	FlowIndex    int
	Iterations   uint64
	Randomness   uint64
}

// Plan builds T = rateHz * durationSeconds entries, truncated to an
// integer. The first
// min(T, numFlows) entries cover flow indices 0..numFlows-1 in order, so
// every flow receives at least one request before any flow receives a
// second; entries beyond that assign flow i mod numFlows.
func Plan(rateHz float64, durationSeconds float64, numFlows int, interArrival distribution.Interarrival, work distribution.ServerWork, iter0, iter1 uint64, mode float64, rng *rand.Rand) ([]Entry, error) {
	if numFlows <= 0 {
		return nil, fmt.Errorf("schedule: numFlows must be > 0, got %d", numFlows)
	}
	total := int(rateHz * durationSeconds)
	if total <= 0 {
		return nil, fmt.Errorf("schedule: rate*duration must be > 0, got %v*%v", rateHz, durationSeconds)
	}

	gapSampler, err := distribution.GapSamplerMicros(interArrival, rateHz, rng)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	workSampler, err := distribution.NewWorkSampler(work, iter0, iter1, mode, rng)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}

	entries := make([]Entry, total)
	for i := 0; i < total; i++ {
		gapMicros := gapSampler()
		iterations, randomness := workSampler.Sample()

		flowIndex := i % numFlows

		entries[i] = Entry{
			GapTicks:   int64(gapMicros * TicksPerMicro),
			FlowIndex:  flowIndex,
			Iterations: iterations,
			Randomness: randomness,
		}
	}
	return entries, nil
}
