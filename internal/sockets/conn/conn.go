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

// Package conn holds the per-connection state the sockets event loop drives:
// phase, buffers, the RESP parser, the pending-request window, the token
// bucket, and the key-generation cursors. One Connection belongs to exactly
// one worker goroutine; nothing here needs synchronization from the event
// loop's perspective.
package conn

import (
	"time"

	"loadgen/internal/sockets/keygen"
	"loadgen/internal/sockets/ratelimit"
	"loadgen/internal/sockets/resp"
)

// Phase is the connection's position in its lifecycle.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Connection is one persistent socket to the target store.
type Connection struct {
	FD    int
	Phase Phase

	TxBuf    []byte
	TxCursor int

	RxBuf    []byte
	RxCursor int
	Parser   *resp.Parser

	// MaxPending bounds outstanding requests; TxTimestamps is a ring sized
	// to MaxPending holding microsecond send times; a request is stamped into
	// slot (RequestCount+Pending) % cap and completed from RequestCount % cap.
	MaxPending   int
	Pending      int
	TxTimestamps []int64

	Bucket *ratelimit.Bucket
	Keys   keygen.Generator

	// SetRatio/GetRatio and Ratio implement the request-mix cursor: r in
	// [0, SetRatio+GetRatio), r < SetRatio picks SET, else GET, then r
	// advances mod (SetRatio+GetRatio).
	SetRatio int
	GetRatio int
	Ratio    int

	RequestCount int64

	// ValueSize is the SET payload length in bytes (filled with 'a').
	ValueSize int
}

// New returns a Connection ready to transition into Connecting once its fd
// has issued a non-blocking connect.
func New(fd, maxPending, setRatio, getRatio, valueSize int, keys keygen.Generator, rateHz int64, now time.Time) *Connection {
	return &Connection{
		FD:           fd,
		Phase:        Connecting,
		TxBuf:        make([]byte, 0, 256),
		RxBuf:        make([]byte, 4096),
		Parser:       resp.New(),
		MaxPending:   maxPending,
		TxTimestamps: make([]int64, maxPending),
		Bucket:       ratelimit.NewBucket(rateHz, now),
		Keys:         keys,
		SetRatio:     setRatio,
		GetRatio:     getRatio,
		ValueSize:    valueSize,
	}
}

// CanSend reports whether this connection may transmit another request right
// now: the pending window has room and the token bucket (if any) admits.
func (c *Connection) CanSend(now time.Time) bool {
	if c.Pending >= c.MaxPending {
		return false
	}
	return c.Bucket.TryConsume(now)
}

// NextIsSet advances the ratio cursor and reports whether the next request
// should be a SET (true) or a GET (false).
func (c *Connection) NextIsSet() bool {
	total := c.SetRatio + c.GetRatio
	isSet := c.Ratio < c.SetRatio
	c.Ratio = (c.Ratio + 1) % total
	return isSet
}

// StampSend records the send timestamp for this request and increments
// Pending. The slot is keyed by the request's position in the connection's
// total send order (completed + in-flight so far), not by the current
// in-flight count alone, so it cannot collide with a still-outstanding
// request's slot once Pending cycles back down.
func (c *Connection) StampSend(nowMicros int64) {
	slot := int(c.RequestCount+int64(c.Pending)) % c.MaxPending
	c.TxTimestamps[slot] = nowMicros
	c.Pending++
}

// CompleteOldest retires the oldest outstanding request (FIFO order, since
// this is a single RESP pipeline per connection) and returns its latency in
// microseconds.
func (c *Connection) CompleteOldest(nowMicros int64) int64 {
	slot := int(c.RequestCount) % c.MaxPending
	latency := nowMicros - c.TxTimestamps[slot]
	c.Pending--
	c.RequestCount++
	return latency
}
