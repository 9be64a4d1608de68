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

import "fmt"

// Build constructs a Sink from the -sink/-sink-addr CLI flags.
// Supported adapters:
//   - "file" (default): append-only tab-separated file at addr
//   - "redis": idempotent hash writer; addr is a host:port, or empty for a
//     logging client that requires no running Redis
//   - "kafka": bucket-flush producer; addr is used as the topic name, or
//     "loadgen-buckets" if empty — always uses the logging producer, since
//     no concrete Kafka client is wired in
//   - "postgres": upserting writer — always uses the logging execer, since
//     no concrete database/sql driver is wired in
func Build(adapter, addr string) (Sink, error) {
	switch adapter {
	case "", "file":
		path := addr
		if path == "" {
			path = "loadgen.out"
		}
		return NewFileSink(path)
	case "redis":
		var evaler RedisEvaler
		if addr != "" {
			evaler = NewGoRedisEvaler(addr)
		} else {
			evaler = LoggingRedisEvaler{}
		}
		return NewRedisSink(evaler), nil
	case "kafka":
		return NewKafkaSink(LoggingKafkaProducer{}, addr), nil
	case "postgres":
		return NewPostgresSink(LoggingPostgresExecer{}), nil
	default:
		return nil, fmt.Errorf("sinks: unknown adapter %q", adapter)
	}
}
