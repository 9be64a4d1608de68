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

package flow

import (
	"math/rand"
	"net"
	"testing"
)

func testTable(t *testing.T, n int) *Table {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	srcMAC, _ := net.ParseMAC("02:00:00:00:00:01")
	dstMAC, _ := net.ParseMAC("02:00:00:00:00:02")
	return NewTable(n, srcMAC, dstMAC, net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 6379, rng)
}

func TestNewTableAssignsDistinctSourcePorts(t *testing.T) {
	tbl := testTable(t, 4)
	seen := map[uint16]bool{}
	for _, b := range tbl.Blocks {
		if seen[b.SrcPort] {
			t.Fatalf("duplicate source port %d", b.SrcPort)
		}
		seen[b.SrcPort] = true
		if b.Phase() != Init {
			t.Fatalf("flow %d phase = %v, want Init", b.Index, b.Phase())
		}
	}
}

func TestSeqLTHandlesWraparound(t *testing.T) {
	var max32 uint32 = 0xFFFFFFFF
	if !SeqLT(max32, 0) {
		t.Fatal("expected max32 < 0 under wraparound comparator")
	}
	if SeqLT(0, max32) {
		t.Fatal("expected 0 not < max32 under wraparound comparator")
	}
}

func TestAdvanceAckNeverGoesBackwards(t *testing.T) {
	b := testTable(t, 1).Blocks[0]
	b.AdvanceAck(100)
	if b.NextAck() != 100 {
		t.Fatalf("NextAck = %d, want 100", b.NextAck())
	}
	b.AdvanceAck(50)
	if b.NextAck() != 100 {
		t.Fatalf("NextAck regressed to %d, want still 100", b.NextAck())
	}
	b.AdvanceAck(150)
	if b.NextAck() != 150 {
		t.Fatalf("NextAck = %d, want 150", b.NextAck())
	}
}

func TestPhaseTransitionsForward(t *testing.T) {
	b := testTable(t, 1).Blocks[0]
	b.SetPhase(SynSent)
	if b.Phase() != SynSent {
		t.Fatalf("Phase = %v, want SynSent", b.Phase())
	}
	b.SetPhase(Established)
	if b.Phase() != Established {
		t.Fatalf("Phase = %v, want Established", b.Phase())
	}
}
