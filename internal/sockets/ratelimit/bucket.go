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

// Package ratelimit implements the per-connection token bucket that paces
// the sockets generator's request rate. It follows the same
// compare-and-swap admission shape as the generator's other atomic gates,
// but a bucket also needs to refill itself from a clock, so TryConsume
// here takes the current time rather than running as a bare counter.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// refillIntervalMicros is the minimum gap between refills; a send attempt
// that lands sooner than this since the last refill tops up no tokens.
const refillIntervalMicros = 1000

// Bucket is a per-connection token bucket. Capacity equals the configured
// rate in requests per second; a rate of zero disables the bucket entirely
// (TryConsume always admits).
type Bucket struct {
	rateHz      int64
	capacity    int64
	tokens      atomic.Int64
	lastRefillUs atomic.Int64
}

// NewBucket returns a bucket for the given rate in requests/second, seeded
// full at construction time. A non-positive rate means unlimited.
func NewBucket(rateHz int64, now time.Time) *Bucket {
	b := &Bucket{rateHz: rateHz, capacity: rateHz}
	if rateHz > 0 {
		b.tokens.Store(rateHz)
	}
	b.lastRefillUs.Store(now.UnixMicro())
	return b
}

// Bypassed reports whether this bucket imposes no rate limit.
func (b *Bucket) Bypassed() bool { return b.rateHz <= 0 }

// refill adds tokens proportional to elapsed time since the last refill,
// clamped to capacity, provided at least refillIntervalMicros has passed.
func (b *Bucket) refill(now time.Time) {
	nowUs := now.UnixMicro()
	for {
		last := b.lastRefillUs.Load()
		elapsed := nowUs - last
		if elapsed < refillIntervalMicros {
			return
		}
		if !b.lastRefillUs.CompareAndSwap(last, nowUs) {
			continue
		}
		added := b.rateHz * elapsed / 1_000_000
		if added <= 0 {
			return
		}
		for {
			cur := b.tokens.Load()
			next := cur + added
			if next > b.capacity {
				next = b.capacity
			}
			if b.tokens.CompareAndSwap(cur, next) {
				return
			}
		}
	}
}

// TryConsume refills the bucket against now, then admits one request if a
// token is available. A bypassed bucket always admits.
func (b *Bucket) TryConsume(now time.Time) bool {
	if b.Bypassed() {
		return true
	}
	b.refill(now)
	for {
		cur := b.tokens.Load()
		if cur <= 0 {
			return false
		}
		if b.tokens.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Tokens reports the current token count (always capacity for a bypassed
// bucket, which keeps no real balance).
func (b *Bucket) Tokens() int64 {
	if b.Bypassed() {
		return b.capacity
	}
	return b.tokens.Load()
}
