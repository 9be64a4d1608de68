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

package conn

import (
	"math/rand"
	"testing"
	"time"

	"loadgen/internal/sockets/keygen"
)

func newTestConn(t *testing.T, maxPending int) *Connection {
	t.Helper()
	keys, err := keygen.New(keygen.Uniform, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("keygen.New: %v", err)
	}
	return New(3, maxPending, 1, 9, 64, keys, 0, time.Now())
}

func TestNextIsSetFollowsRatio(t *testing.T) {
	c := newTestConn(t, 4)
	sets, gets := 0, 0
	for i := 0; i < 10; i++ {
		if c.NextIsSet() {
			sets++
		} else {
			gets++
		}
	}
	if sets != 1 || gets != 9 {
		t.Fatalf("sets=%d gets=%d, want 1:9 ratio over 10 requests", sets, gets)
	}
}

func TestCanSendRespectsPendingWindow(t *testing.T) {
	c := newTestConn(t, 2)
	now := time.Now()
	if !c.CanSend(now) {
		t.Fatal("expected room in an empty window")
	}
	c.StampSend(now.UnixMicro())
	if !c.CanSend(now) {
		t.Fatal("expected room for second slot")
	}
	c.StampSend(now.UnixMicro())
	if c.CanSend(now) {
		t.Fatal("expected window to be full at MaxPending")
	}
}

func TestStampAndCompleteRoundTrip(t *testing.T) {
	c := newTestConn(t, 2)
	t0 := time.Now().UnixMicro()
	c.StampSend(t0)
	t1 := t0 + 500
	c.StampSend(t1)

	latency := c.CompleteOldest(t0 + 1000)
	if latency != 1000 {
		t.Fatalf("latency = %d, want 1000", latency)
	}
	if c.Pending != 1 {
		t.Fatalf("Pending after one completion = %d, want 1", c.Pending)
	}

	// Send a third request; its slot must not collide with the still
	// in-flight second request's slot.
	t2 := t1 + 200
	c.StampSend(t2)
	latencySecond := c.CompleteOldest(t1 + 300)
	if latencySecond != 300 {
		t.Fatalf("second completion latency = %d, want 300 (no slot collision)", latencySecond)
	}
}
