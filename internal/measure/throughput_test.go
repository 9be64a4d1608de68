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
	"testing"
	"time"
)

func TestThroughputSamplerAccumulates(t *testing.T) {
	ts := NewThroughputSampler(4)
	base := time.Unix(1000, 0)
	ts.Sample(base, 100)
	ts.Sample(base.Add(time.Second), 250)
	ts.Sample(base.Add(2*time.Second), 400)

	snap := ts.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snap) = %d, want 3", len(snap))
	}
	if snap[1].Cumulative != 250 {
		t.Fatalf("snap[1].Cumulative = %d, want 250", snap[1].Cumulative)
	}
}

func TestThroughputSamplerMean(t *testing.T) {
	ts := NewThroughputSampler(2)
	base := time.Unix(0, 0)
	ts.Sample(base, 1000)
	ts.Sample(base.Add(time.Second), 2000)
	if got, want := ts.MeanThroughput(), 1000.0; got != want {
		t.Fatalf("MeanThroughput() = %v, want %v", got, want)
	}
}

func TestThroughputSamplerEmptyMean(t *testing.T) {
	ts := NewThroughputSampler(1)
	if got := ts.MeanThroughput(); got != 0 {
		t.Fatalf("MeanThroughput() on empty sampler = %v, want 0", got)
	}
}
