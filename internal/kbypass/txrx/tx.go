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

package txrx

import (
	"context"
	"fmt"

	"loadgen/internal/kbypass/clock"
	"loadgen/internal/kbypass/flow"
	"loadgen/internal/kbypass/port"
	"loadgen/internal/kbypass/schedule"
	"loadgen/internal/kbypass/wire"
	"loadgen/internal/telemetry"
)

// catchUpSlipTicks is the 5 microsecond slip tolerance: a slot whose
// deadline has already passed by this much is never burst-compensated, only
// accounted and skipped.
const catchUpSlipTicks = 5 * schedule.TicksPerMicro

// microToTicks converts one microsecond to clock ticks.
const microToTicks = schedule.TicksPerMicro

// TXStats summarizes one TX pipeline run.
type TXStats struct {
	Sent      int64
	NeverSent int64
}

// RunTX drives plan to completion on p, one frame per entry, pacing sends to
// each entry's scheduled deadline and applying the catch-up policy: slots
// missed by more than the slip threshold are skipped and counted, never
// burst-sent. It returns early, with a partial TXStats, if ctx is cancelled.
func RunTX(ctx context.Context, clk clock.Source, p port.Port, table *flow.Table, plan []schedule.Entry, workerID uint64, metrics *telemetry.Metrics) (TXStats, error) {
	var stats TXStats
	prevTSC := clk.Now()

	for i, entry := range plan {
		select {
		case <-ctx.Done():
			return stats, nil
		default:
		}

		nextTSC := prevTSC + entry.GapTicks
		if clk.Now() > nextTSC+catchUpSlipTicks {
			stats.NeverSent++
			if metrics != nil {
				metrics.NeverSent.Add(1)
			}
			nextTSC += entry.GapTicks + microToTicks
			prevTSC = nextTSC
			continue
		}

		b := table.Blocks[entry.FlowIndex]

		for b.RecvWindow() < uint32(wire.PayloadLen) {
			select {
			case <-ctx.Done():
				return stats, nil
			default:
			}
		}
		for clk.Now() < nextTSC {
			select {
			case <-ctx.Done():
				return stats, nil
			default:
			}
		}

		ack := b.NextAck()
		payload := wire.Payload{
			TxTSC:      uint64(nextTSC),
			FlowID:     uint64(b.Index),
			WorkerID:   workerID,
			Iterations: entry.Iterations,
			Randomness: entry.Randomness,
		}
		frame, err := wire.BuildData(
			wire.Endpoint{MAC: b.SrcMAC, IP: b.SrcIP, Port: b.SrcPort},
			wire.Endpoint{MAC: b.DstMAC, IP: b.DstIP, Port: b.DstPort},
			b.NextSeq, ack, payload,
		)
		if err != nil {
			return stats, fmt.Errorf("txrx: build data frame for slot %d: %w", i, err)
		}
		if err := p.Send(frame); err != nil {
			return stats, fmt.Errorf("txrx: send slot %d: %w", i, err)
		}

		b.NextSeq += uint32(wire.PayloadLen)
		stats.Sent++
		if metrics != nil {
			metrics.RequestsSent.Add(1)
		}
		prevTSC = nextTSC
	}
	return stats, nil
}
