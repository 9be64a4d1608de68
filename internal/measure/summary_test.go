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

func TestSummarizeReportsAllPercentiles(t *testing.T) {
	h := NewHistogram(2000)
	for i := 0; i < 1000; i++ {
		h.Observe(int64(i))
	}
	ts := NewThroughputSampler(1)
	ts.Sample(time.Unix(0, 0), 1000)

	s := Summarize(h, ts)
	if s.SampleCount != 1000 {
		t.Fatalf("SampleCount = %d, want 1000", s.SampleCount)
	}
	if s.HistogramSamples != s.SampleCount {
		t.Fatalf("histogram integrity violated: Sum=%d Total=%d", s.HistogramSamples, s.SampleCount)
	}
	for _, label := range []string{"p50", "p90", "p99", "p999", "p9999"} {
		if _, ok := s.PercentilesUs[label]; !ok {
			t.Fatalf("missing percentile %s", label)
		}
	}
	if s.PercentilesUs["p50"] >= s.PercentilesUs["p99"] {
		t.Fatalf("p50 (%d) should be < p99 (%d)", s.PercentilesUs["p50"], s.PercentilesUs["p99"])
	}
}

func TestSummarizeEmptyHistogram(t *testing.T) {
	h := NewHistogram(10)
	ts := NewThroughputSampler(1)
	s := Summarize(h, ts)
	if s.PercentilesUs["p50"] != -1 {
		t.Fatalf("p50 of empty histogram = %d, want -1", s.PercentilesUs["p50"])
	}
}
