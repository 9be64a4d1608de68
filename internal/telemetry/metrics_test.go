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

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RequestsSent.Add(3)
	b.RequestsSent.Add(7)

	if got := testutil.ToFloat64(a.RequestsSent); got != 3 {
		t.Fatalf("a.RequestsSent = %v, want 3", got)
	}
	if got := testutil.ToFloat64(b.RequestsSent); got != 7 {
		t.Fatalf("b.RequestsSent = %v, want 7", got)
	}
}

func TestMetricsCountersStartAtZero(t *testing.T) {
	m := NewMetrics()
	if got := testutil.ToFloat64(m.SinkFailures); got != 0 {
		t.Fatalf("SinkFailures = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.InFlight); got != 0 {
		t.Fatalf("InFlight = %v, want 0", got)
	}
}
