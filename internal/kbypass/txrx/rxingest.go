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
	"encoding/binary"
	"fmt"

	"loadgen/internal/kbypass/clock"
	"loadgen/internal/kbypass/port"
	"loadgen/internal/kbypass/wire"
)

// rxBurstSize is the maximum number of frames pulled off the port per
// ingest iteration.
const rxBurstSize = 32

// rxTSCWordOffset is where the rx-timestamp word (payload word 1) lands
// inside a full frame.
const rxTSCWordOffset = wire.PayloadOffset + 8

// RunRXIngest pulls bursts of frames off p, stamps each one's rx-timestamp
// word with clk.Now(), and enqueues them onto ring. It returns when ctx is
// cancelled; it never drains the ring itself — that is the parser's job.
func RunRXIngest(ctx context.Context, clk clock.Source, p port.Port, ring *Ring) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frames, err := p.RecvBurst(rxBurstSize)
		if err != nil {
			return fmt.Errorf("txrx: rx ingest recv: %w", err)
		}
		now := clk.Now()
		for _, f := range frames {
			stampRxTSC(f, now)
			if err := ring.Push(ctx, f); err != nil {
				return nil
			}
		}
	}
}

// stampRxTSC writes ts into a data frame's rx-timestamp payload word. Frames
// too short to carry a measurement payload (bare ACKs, SYN+ACKs) are left
// untouched.
func stampRxTSC(frame []byte, ts int64) {
	if len(frame) < rxTSCWordOffset+8 {
		return
	}
	binary.BigEndian.PutUint64(frame[rxTSCWordOffset:rxTSCWordOffset+8], uint64(ts))
}
