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

// Package flow holds the per-connection control blocks the kernel-bypass
// variant's TX and RX workers share. Every block has exactly one writer for
// its TX-owned fields (next sequence number) and exactly one writer for its
// RX-owned fields (last sequence/ack received); the fields both workers
// touch — phase, next ack, receive window — are atomics, written by RX and
// read by TX with acquire/release semantics.
package flow

import (
	"net"
	"sync/atomic"
)

// Phase is a flow's position in the TCP client subset this generator
// speaks: it only ever moves forward, Init -> SynSent -> Established, and
// (on teardown) -> Closed.
type Phase int32

const (
	Init Phase = iota
	SynSent
	Established
	Closed
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "Init"
	case SynSent:
		return "SynSent"
	case Established:
		return "Established"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// SteeringHandle identifies the NIC flow-steering rule installed for a flow
// during handshake; it is opaque to everything but the port layer that
// installed it.
type SteeringHandle uint32

// Block is one flow's control block. TX state is mutated only by the TX
// pipeline; RX state is mutated only by the RX parser; Phase, NextAck and
// RecvWindow are the shared atomics both sides touch.
type Block struct {
	Index int

	// Identity.
	SrcMAC, DstMAC net.HardwareAddr
	SrcIP, DstIP   net.IP
	SrcPort        uint16
	DstPort        uint16

	// TX-owned.
	NextSeq uint32
	ISN     uint32

	// RX-owned.
	LastSeqRecv uint32
	LastAckRecv uint32

	// Shared, atomic.
	phase   atomic.Int32
	nextAck atomic.Uint32
	rwin    atomic.Uint32

	Steering SteeringHandle

	RetransmitCount int
}

// New allocates a control block for flow index i with source port chosen
// deterministically as (i mod n) + 1 and a random initial sequence number.
func New(i, n int, srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, dstPort uint16, isn uint32) *Block {
	b := &Block{
		Index:   i,
		SrcMAC:  srcMAC,
		DstMAC:  dstMAC,
		SrcIP:   srcIP,
		DstIP:   dstIP,
		SrcPort: uint16(i%n) + 1,
		DstPort: dstPort,
		ISN:     isn,
		NextSeq: isn,
	}
	b.phase.Store(int32(Init))
	return b
}

func (b *Block) Phase() Phase        { return Phase(b.phase.Load()) }
func (b *Block) SetPhase(p Phase)    { b.phase.Store(int32(p)) }
func (b *Block) NextAck() uint32     { return b.nextAck.Load() }
func (b *Block) RecvWindow() uint32  { return b.rwin.Load() }
func (b *Block) SetRecvWindow(w uint32) { b.rwin.Store(w) }

// SeqLT is the TCP serial-number "less than" comparator (RFC 1323 §4),
// correct across 32-bit wraparound.
func SeqLT(a, b uint32) bool { return int32(a-b) < 0 }

// SeqLEQ is the corresponding "less than or equal" comparator.
func SeqLEQ(a, b uint32) bool { return a == b || SeqLT(a, b) }

// AdvanceAck atomically raises NextAck to candidate if candidate is not
// behind the current value under SeqLEQ, so a reordered or duplicate ACK
// candidate can never move it backwards.
func (b *Block) AdvanceAck(candidate uint32) {
	for {
		cur := b.nextAck.Load()
		if cur != 0 && SeqLT(candidate, cur) {
			return
		}
		if b.nextAck.CompareAndSwap(cur, candidate) {
			return
		}
	}
}

// Table is the full set of per-flow control blocks, indexed by flow index.
type Table struct {
	Blocks []*Block
}

// NewTable allocates n control blocks, one per flow, cycling through the
// configured destination port for every flow (the generator drives a single
// server per run).
func NewTable(n int, srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, dstPort uint16, rng interface{ Uint32() uint32 }) *Table {
	blocks := make([]*Block, n)
	for i := 0; i < n; i++ {
		blocks[i] = New(i, n, srcMAC, dstMAC, srcIP, dstIP, dstPort, rng.Uint32())
	}
	return &Table{Blocks: blocks}
}
