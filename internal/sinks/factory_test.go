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
	"path/filepath"
	"testing"
)

func TestBuildDefaultsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tsv")
	s, err := Build("", path)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*FileSink); !ok {
		t.Fatalf("got %T, want *FileSink", s)
	}
}

func TestBuildRedisWithoutAddrUsesLoggingClient(t *testing.T) {
	s, err := Build("redis", "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()
	rs, ok := s.(*RedisSink)
	if !ok {
		t.Fatalf("got %T, want *RedisSink", s)
	}
	if _, ok := rs.client.(LoggingRedisEvaler); !ok {
		t.Fatalf("expected LoggingRedisEvaler fallback, got %T", rs.client)
	}
}

func TestBuildKafkaUsesAddrAsTopic(t *testing.T) {
	s, err := Build("kafka", "custom-topic")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()
	ks, ok := s.(*KafkaSink)
	if !ok {
		t.Fatalf("got %T, want *KafkaSink", s)
	}
	if ks.topic != "custom-topic" {
		t.Fatalf("topic = %q, want %q", ks.topic, "custom-topic")
	}
}

func TestBuildUnknownAdapterErrors(t *testing.T) {
	if _, err := Build("carrier-pigeon", ""); err == nil {
		t.Fatal("expected error for unknown adapter")
	}
}
