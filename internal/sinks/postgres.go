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
	"database/sql"
	"fmt"
)

// PostgresExecer is a minimal abstraction over a *sql.DB, accepting an
// upsert statement and its bound arguments. A concrete database/sql driver
// is intentionally not imported here; callers wire one in by passing a
// *sql.DB (which already satisfies this interface, since its ExecContext
// has the same signature) to NewPostgresSink.
type PostgresExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// LoggingPostgresExecer logs what it would have executed. It lets
// -sink=postgres be selected without a database available.
type LoggingPostgresExecer struct{}

func (LoggingPostgresExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	fmt.Printf("[postgres-sink] %s %v\n", query, args)
	return nil, nil
}

const postgresUpsertSQL = `
INSERT INTO loadgen_buckets (run_id, bucket_us, count)
VALUES ($1, $2, $3)
ON CONFLICT (run_id, bucket_us) DO UPDATE SET count = loadgen_buckets.count + EXCLUDED.count
`

// PostgresSink upserts bucket-delta flushes into a loadgen_buckets table,
// accumulating counts per (run_id, bucket_us) so a retried flush simply adds
// its delta again rather than corrupting state — the caller is responsible
// for not re-flushing the same delta twice.
type PostgresSink struct {
	db PostgresExecer
}

func NewPostgresSink(db PostgresExecer) *PostgresSink {
	return &PostgresSink{db: db}
}

func (p *PostgresSink) WriteRecord(ctx context.Context, r Record) error { return nil }

func (p *PostgresSink) FlushBuckets(ctx context.Context, runID string, deltas []BucketDelta) error {
	for _, d := range deltas {
		if _, err := p.db.ExecContext(ctx, postgresUpsertSQL, runID, d.BucketMicros, d.Count); err != nil {
			return fmt.Errorf("sinks: postgres upsert run=%s bucket=%d: %w", runID, d.BucketMicros, err)
		}
	}
	return nil
}

func (p *PostgresSink) Close() error { return nil }
