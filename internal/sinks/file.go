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

package sinks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
)

// FileSink is the default sink: the kernel-bypass variant's tab-separated
// per-response format, one line per response, `<rtt_ns>\t<flow_id>\t0x<worker_id_hex>`;
// the sockets variant's periodic bucket flushes append
// `<bucket_us>\t<count>\t<run_id>` lines to the same file.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewFileSink opens (or creates) path in append mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sinks: open %s: %w", path, err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *FileSink) WriteRecord(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%d\t%d\t0x%x\n", r.RTTNanos, r.FlowID, r.WorkerID)
	return err
}

func (s *FileSink) FlushBuckets(_ context.Context, runID string, deltas []BucketDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range deltas {
		if _, err := fmt.Fprintf(s.w, "%d\t%d\t%s\n", d.BucketMicros, d.Count, runID); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
