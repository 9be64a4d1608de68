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
	"sync"
	"testing"
	"time"

	"loadgen/internal/measure"
	"loadgen/internal/sinks"
)

type recordingSink struct {
	mu      sync.Mutex
	records []sinks.Record
}

func (s *recordingSink) WriteRecord(ctx context.Context, r sinks.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}
func (s *recordingSink) FlushBuckets(ctx context.Context, runID string, deltas []sinks.BucketDelta) error {
	return nil
}
func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestProcessFrameRecordsLatencyAndUpdatesFlowState(t *testing.T) {
	table := testTable(t, 1)
	hist := measure.NewHistogram(1000)
	sink := &recordingSink{}

	frame := buildTestDataFrame(t, 1000, 0)
	// buildTestDataFrame leaves RxTSC at zero; stamp it the way ingest would.
	stampRxTSC(frame, 6000)

	ok := processFrame(context.Background(), frame, table, hist, sink, nil)
	if !ok {
		t.Fatal("processFrame returned false for a well-formed data frame")
	}
	if hist.Total() != 1 {
		t.Fatalf("hist.Total() = %d, want 1", hist.Total())
	}
	// RTT = 6000 - 1000 ns = 5000ns = 5us, so bucket 5 should hold the sample.
	if got := hist.Buckets()[5]; got != 1 {
		t.Fatalf("bucket[5] = %d, want 1", got)
	}

	if sink.count() != 1 {
		t.Fatalf("sink recorded %d records, want 1", sink.count())
	}

	b := table.Blocks[0]
	if b.RecvWindow() == 0 {
		t.Fatal("RecvWindow was not updated from the frame's advertised window")
	}
	if b.LastSeqRecv != 100 {
		t.Fatalf("LastSeqRecv = %d, want 100", b.LastSeqRecv)
	}
}

func TestProcessFrameDropsUnknownFlowID(t *testing.T) {
	table := testTable(t, 1)
	hist := measure.NewHistogram(1000)
	sink := &recordingSink{}

	frame := buildTestDataFrame(t, 1000, 99)
	ok := processFrame(context.Background(), frame, table, hist, sink, nil)
	if ok {
		t.Fatal("processFrame accepted a frame with an out-of-range flow id")
	}
	if hist.Total() != 0 || sink.count() != 0 {
		t.Fatal("a dropped frame must not be recorded")
	}
}

func TestRunRXParserDrainsQueuedFramesAfterCancellation(t *testing.T) {
	table := testTable(t, 1)
	hist := measure.NewHistogram(1000)
	sink := &recordingSink{}
	ring := NewRing(4)

	ctx, cancel := context.WithCancel(context.Background())
	ring.Push(ctx, buildTestDataFrame(t, 1000, 0))
	ring.Push(ctx, buildTestDataFrame(t, 2000, 0))
	cancel() // quit flag flips before the parser gets a chance to run

	stats := RunRXParser(ctx, ring, table, hist, sink, nil)
	if stats.Recorded != 2 {
		t.Fatalf("Recorded = %d, want 2 (parser must drain the ring before returning)", stats.Recorded)
	}
	if ring.Len() != 0 {
		t.Fatal("ring not drained to empty")
	}
}

func TestRunRXParserStopsPromptlyOnEmptyRingAfterCancellation(t *testing.T) {
	table := testTable(t, 1)
	hist := measure.NewHistogram(1000)
	sink := &recordingSink{}
	ring := NewRing(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		RunRXParser(ctx, ring, table, hist, sink, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunRXParser did not return after cancellation with an empty ring")
	}
}
