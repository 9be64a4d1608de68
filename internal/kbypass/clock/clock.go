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

// Package clock stamps the kernel-bypass variant's packets with a cheap
// monotonic counter standing in for the reference implementation's rdtsc
// cycle counter. Go has no portable cycle-counter intrinsic, so every
// timestamp here is a nanosecond reading: the wall-clock time taken once at
// process start plus the monotonic time elapsed since (time.Since) —
// monotonic, cheap, and good enough to express the same "ticks since an
// arbitrary epoch" contract the wire format and the schedule planner rely on.
package clock

import (
	"sync/atomic"
	"time"
)

// Source reads monotonic nanosecond ticks. It exists as an interface so
// tests can substitute a deterministic fake instead of the wall clock.
type Source interface {
	Now() int64
}

// Monotonic is the production Source.
type Monotonic struct{}

// processStart anchors every Monotonic reading; time.Since measures from it
// with the runtime's monotonic clock, so wall-clock steps never move Now back.
var processStart = time.Now()

func (Monotonic) Now() int64 { return processStart.UnixNano() + int64(time.Since(processStart)) }

// Fake is a test Source that advances only when told to. Reads and
// advances are atomic so a test can drive it from a goroutine other than
// the one polling Now().
type Fake struct{ t atomic.Int64 }

func NewFake(start int64) *Fake {
	f := &Fake{}
	f.t.Store(start)
	return f
}

func (f *Fake) Now() int64 { return f.t.Load() }

func (f *Fake) Advance(delta int64) { f.t.Add(delta) }
