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

// Package txrx implements the kernel-bypass variant's three busy-polling
// workers — TX pipeline, RX ingest, RX parser — and the ring between the
// latter two.
package txrx

import "context"

// Ring is a bounded single-producer/single-consumer queue of raw frames,
// standing in for the reference implementation's lock-free SPSC ring.
// A Go channel already gives single-producer/single-consumer FIFO delivery
// without extra bookkeeping, so that is all this wraps.
type Ring struct {
	ch chan []byte
}

// NewRing allocates a ring holding up to capacity frames.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{ch: make(chan []byte, capacity)}
}

// Push enqueues one frame, blocking only until ctx is done.
func (r *Ring) Push(ctx context.Context, frame []byte) error {
	select {
	case r.ch <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues one frame without blocking. ok is false if the ring is
// currently empty.
func (r *Ring) Pop() (frame []byte, ok bool) {
	select {
	case f := <-r.ch:
		return f, true
	default:
		return nil, false
	}
}

// Len reports how many frames are queued right now.
func (r *Ring) Len() int { return len(r.ch) }
