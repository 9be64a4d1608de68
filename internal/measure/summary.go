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

// percentilePoints are the fixed percentiles every run summary reports.
var percentilePoints = []float64{0.50, 0.90, 0.99, 0.999, 0.9999}

// Summary is the end-of-run rollup handed to a sink: a snapshot of latency
// percentiles and mean throughput over the whole run.
type Summary struct {
	SampleCount      int64
	MeanThroughput   float64
	PercentilesUs    map[string]int64
	HistogramSamples int64
}

// Percentile labels match the fixed points above, formatted without a
// leading "0." so they read naturally in a sink's output ("p50", "p999").
func percentileLabel(p float64) string {
	switch p {
	case 0.50:
		return "p50"
	case 0.90:
		return "p90"
	case 0.99:
		return "p99"
	case 0.999:
		return "p999"
	case 0.9999:
		return "p9999"
	default:
		return "pX"
	}
}

// Summarize builds a Summary from a latency histogram and a throughput
// sampler taken over the same run.
func Summarize(h *Histogram, t *ThroughputSampler) Summary {
	s := Summary{
		SampleCount:      h.Total(),
		MeanThroughput:   t.MeanThroughput(),
		PercentilesUs:    make(map[string]int64, len(percentilePoints)),
		HistogramSamples: h.Sum(),
	}
	for _, p := range percentilePoints {
		s.PercentilesUs[percentileLabel(p)] = h.Percentile(p)
	}
	return s
}
