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

// Package handshake performs the kernel-bypass variant's user-space TCP
// three-way handshake: SYN, SYN+ACK, ACK, with timeout-and-retransmit per
// flow. It completes every flow before the TX/RX/parser workers start —
// a hard happens-before boundary the rest of the run depends on.
package handshake

import (
	"context"
	"fmt"

	"loadgen/internal/kbypass/clock"
	"loadgen/internal/kbypass/flow"
	"loadgen/internal/kbypass/port"
	"loadgen/internal/kbypass/wire"
	"loadgen/internal/telemetry"
)

// HandshakeTimeoutUs is how long a flow waits for a SYN+ACK before
// retransmitting its SYN.
const HandshakeTimeoutUs = 500_000

// MaxRetransmissions is the number of SYN retransmits tolerated before a
// flow's handshake — and the whole run — is declared failed.
const MaxRetransmissions = 4

const recvBurst = 32

// microToTicks converts the handshake timeout (microseconds) into the
// clock package's nanosecond ticks.
const microToTicks = 1000

func endpoint(mac []byte, ip []byte, port uint16) wire.Endpoint {
	return wire.Endpoint{MAC: mac, IP: ip, Port: port}
}

// RunAll drives every flow in table through SYN/SYN+ACK/ACK on p, blocking
// until all flows reach Established or any flow exhausts its retransmission
// budget. It returns a non-fatal nil error only once every flow is
// Established.
func RunAll(ctx context.Context, clk clock.Source, p port.Port, table *flow.Table, metrics *telemetry.Metrics) error {
	deadlines := make([]int64, len(table.Blocks))
	for i, b := range table.Blocks {
		if err := sendSYN(p, b); err != nil {
			return fmt.Errorf("handshake: flow %d: %w", i, err)
		}
		b.SetPhase(flow.SynSent)
		deadlines[i] = clk.Now() + HandshakeTimeoutUs*microToTicks
	}

	remaining := len(table.Blocks)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("handshake: cancelled with %d flows still pending", remaining)
		default:
		}

		now := clk.Now()
		for i, b := range table.Blocks {
			if b.Phase() != flow.SynSent {
				continue
			}
			if now < deadlines[i] {
				continue
			}
			b.RetransmitCount++
			if b.RetransmitCount > MaxRetransmissions {
				return fmt.Errorf("handshake: flow %d exceeded %d retransmissions", i, MaxRetransmissions)
			}
			if metrics != nil {
				metrics.HandshakeRetries.Add(1)
			}
			if err := sendSYN(p, b); err != nil {
				return fmt.Errorf("handshake: flow %d retransmit: %w", i, err)
			}
			deadlines[i] = now + HandshakeTimeoutUs*microToTicks
		}

		frames, err := p.RecvBurst(recvBurst)
		if err != nil {
			return fmt.Errorf("handshake: recv: %w", err)
		}
		for _, raw := range frames {
			f, ok, err := wire.Parse(raw)
			if err != nil || !ok {
				continue
			}
			b := findByDstPort(table, f.DstPort)
			if b == nil {
				continue
			}
			if b.Phase() != flow.SynSent {
				continue // duplicate SYN+ACK after Established is ignored
			}
			if !f.SYN || !f.ACK {
				continue
			}
			b.LastSeqRecv = f.Seq
			b.SetRecvWindow(uint32(f.Window))
			ackVal := f.Seq + 1
			b.AdvanceAck(ackVal)
			b.NextSeq = b.ISN + 1
			b.SetPhase(flow.Established)
			remaining--

			if err := sendACK(p, b, ackVal); err != nil {
				return fmt.Errorf("handshake: flow %d final ACK: %w", b.Index, err)
			}
		}
	}
	return nil
}

func sendSYN(p port.Port, b *flow.Block) error {
	frame, err := wire.BuildSYN(endpoint(b.SrcMAC, b.SrcIP, b.SrcPort), endpoint(b.DstMAC, b.DstIP, b.DstPort), b.ISN)
	if err != nil {
		return err
	}
	return p.Send(frame)
}

func sendACK(p port.Port, b *flow.Block, ack uint32) error {
	frame, err := wire.BuildACK(endpoint(b.SrcMAC, b.SrcIP, b.SrcPort), endpoint(b.DstMAC, b.DstIP, b.DstPort), b.NextSeq, ack)
	if err != nil {
		return err
	}
	return p.Send(frame)
}

func findByDstPort(table *flow.Table, dstPort uint16) *flow.Block {
	for _, b := range table.Blocks {
		if b.SrcPort == dstPort {
			return b
		}
	}
	return nil
}
