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
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisEvaler abstracts the minimal surface this sink needs from a Redis
// client: scripted evaluation.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// LoggingRedisEvaler logs what it would have evaluated. It lets -sink=redis
// be selected without a Redis instance available.
type LoggingRedisEvaler struct{}

func (LoggingRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	fmt.Printf("[redis-sink] EVAL script(len=%d) KEYS=%v ARGS=%v\n", len(script), keys, args)
	return int64(1), nil
}

// GoRedisEvaler wraps a real github.com/redis/go-redis/v9 client.
type GoRedisEvaler struct{ c *redis.Client }

func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// redisFlushScript applies one flush's bucket deltas to a per-run histogram
// hash, guarded by a SETNX marker so a retried flush (same run ID and
// deltas, hence the same flushMarkerKey) is a no-op rather than
// double-counting.
const redisFlushScript = `
local histKey = KEYS[1]
local markerKey = KEYS[2]
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('EXPIRE', markerKey, 86400)
  for i = 1, #ARGV, 2 do
    redis.call('HINCRBY', histKey, ARGV[i], ARGV[i+1])
  end
  return 1
else
  return 0
end
`

// RedisSink streams histogram-bucket deltas into a Redis hash keyed by run
// ID, one flush call per EVAL.
type RedisSink struct {
	client RedisEvaler
}

func NewRedisSink(client RedisEvaler) *RedisSink {
	return &RedisSink{client: client}
}

func (r *RedisSink) WriteRecord(ctx context.Context, rec Record) error {
	// The kernel-bypass per-response record stream has no natural per-key
	// identity for a hash store; Redis is used here strictly as a
	// histogram-delta sink, matching the teacher's own choice not to force
	// every backend to support every record shape.
	return nil
}

func (r *RedisSink) FlushBuckets(ctx context.Context, runID string, deltas []BucketDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	histKey := fmt.Sprintf("loadgen:hist:%s", runID)
	markerKey := flushMarkerKey(runID, deltas)
	args := make([]interface{}, 0, len(deltas)*2)
	for _, d := range deltas {
		args = append(args, d.BucketMicros, d.Count)
	}
	_, err := r.client.Eval(ctx, redisFlushScript, []string{histKey, markerKey}, args...)
	if err != nil {
		return fmt.Errorf("sinks: redis flush run=%s: %w", runID, err)
	}
	return nil
}

// flushMarkerKey derives a marker key from the flush's own content (the run
// ID plus every delta applied) rather than a fresh random suffix, the way
// the teacher's commit marker is keyed off a caller-supplied, stable
// CommitID. Two calls carrying identical deltas for the same run collide on
// the same marker and the second is a no-op; a flush with different deltas
// gets its own marker.
func flushMarkerKey(runID string, deltas []BucketDelta) string {
	h := sha256.New()
	fmt.Fprint(h, runID)
	for _, d := range deltas {
		fmt.Fprintf(h, "|%d:%d", d.BucketMicros, d.Count)
	}
	return fmt.Sprintf("loadgen:flush:%s:%s", runID, hex.EncodeToString(h.Sum(nil)))
}

func (r *RedisSink) Close() error { return nil }
