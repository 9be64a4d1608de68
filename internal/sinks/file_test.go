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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSinkWritesRecordLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tsv")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := s.WriteRecord(context.Background(), Record{RTTNanos: 1500, FlowID: 7, WorkerID: 2}); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "1500\t7\t0x2\n"
	if string(b) != want {
		t.Fatalf("content = %q, want %q", string(b), want)
	}
}

func TestFileSinkFlushBucketsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tsv")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	deltas := []BucketDelta{{BucketMicros: 100, Count: 5}, {BucketMicros: 200, Count: 3}}
	if err := s.FlushBuckets(context.Background(), "run-1", deltas); err != nil {
		t.Fatalf("FlushBuckets: %v", err)
	}
	s.Close()

	b, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), string(b))
	}
	if lines[0] != "100\t5\trun-1" || lines[1] != "200\t3\trun-1" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestFileSinkAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tsv")
	s1, _ := NewFileSink(path)
	s1.WriteRecord(context.Background(), Record{RTTNanos: 1, FlowID: 1, WorkerID: 1})
	s1.Close()

	s2, _ := NewFileSink(path)
	s2.WriteRecord(context.Background(), Record{RTTNanos: 2, FlowID: 2, WorkerID: 2})
	s2.Close()

	b, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (append mode should not truncate): %q", len(lines), string(b))
	}
}
