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

// Package distribution samples the inter-arrival gaps and server-side work
// descriptors used by the schedule planner. Every sampler takes its randomness
// from an explicit *rand.Rand so a run is reproducible from a single seed.
package distribution

import (
	"fmt"
	"math"
	"math/rand"
)

// Interarrival identifies the client-side inter-arrival distribution.
type Interarrival string

const (
	Uniform     Interarrival = "uniform"
	Exponential Interarrival = "exponential"
	Lognormal   Interarrival = "lognormal"
	Pareto      Interarrival = "pareto"
)

// ServerWork identifies the server-side work distribution.
type ServerWork string

const (
	Constant        ServerWork = "constant"
	ServerExponential ServerWork = "exponential"
	Bimodal         ServerWork = "bimodal"
)

// GapSamplerMicros returns a function producing one inter-arrival gap in
// microseconds per call, for the given distribution and target rate (req/s).
func GapSamplerMicros(d Interarrival, rateHz float64, rng *rand.Rand) (func() float64, error) {
	if rateHz <= 0 {
		return nil, fmt.Errorf("distribution: rate must be > 0, got %v", rateHz)
	}
	mean := (1.0 / rateHz) * 1e6 // microseconds between arrivals at rate

	switch d {
	case Uniform:
		return func() float64 { return mean }, nil
	case Exponential:
		lambda := rateHz / 1e6
		return func() float64 {
			u := positiveUniform(rng)
			return -math.Log(u) / lambda
		}, nil
	case Lognormal:
		sigma := math.Sqrt(2 * (math.Log(mean) - math.Log(mean/2)))
		mu := math.Log(mean) - (sigma*sigma)/2
		return func() float64 {
			u1 := positiveUniform(rng)
			u2 := rng.Float64()
			z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
			return math.Exp(mu + sigma*z)
		}, nil
	case Pareto:
		alpha := 1.0 + mean/(mean-1.0)
		xm := mean * (alpha - 1) / alpha
		return func() float64 {
			u := rng.Float64()
			return xm / math.Pow(1-u, 1.0/alpha)
		}, nil
	default:
		return nil, fmt.Errorf("distribution: unknown interarrival distribution %q", d)
	}
}

// positiveUniform returns a uniform sample in (0,1], avoiding log(0).
func positiveUniform(rng *rand.Rand) float64 {
	u := rng.Float64()
	if u == 0 {
		return 1
	}
	return u
}

// WorkSampler configures the server-side work distribution (iteration count
// the server should busy-spin on, plus an opaque randomness token forwarded
// verbatim in the request).
type WorkSampler struct {
	dist     ServerWork
	iter0    uint64
	iter1    uint64
	mode     float64
	rng      *rand.Rand
}

// NewWorkSampler validates parameters and returns a ready sampler.
func NewWorkSampler(d ServerWork, iter0, iter1 uint64, mode float64, rng *rand.Rand) (*WorkSampler, error) {
	switch d {
	case Constant, ServerExponential, Bimodal:
	default:
		return nil, fmt.Errorf("distribution: unknown server work distribution %q", d)
	}
	return &WorkSampler{dist: d, iter0: iter0, iter1: iter1, mode: mode, rng: rng}, nil
}

// Sample returns (iterations, randomness) for one schedule slot.
func (w *WorkSampler) Sample() (iterations uint64, randomness uint64) {
	randomness = w.rng.Uint64()
	switch w.dist {
	case Constant:
		return w.iter0, randomness
	case ServerExponential:
		u := positiveUniform(w.rng)
		v := -float64(w.iter0) * math.Log(u)
		if v < 0 {
			v = 0
		}
		return uint64(v), randomness
	case Bimodal:
		if w.rng.Float64() < w.mode {
			return w.iter0, randomness
		}
		return w.iter1, randomness
	}
	return 0, randomness
}
