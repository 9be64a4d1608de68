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

// Package eventloop implements the per-worker readiness loop that drives
// the sockets generator's connections: zero-timeout poll, connect->established
// transitions, RESP decode, and request synthesis gated by the pending
// window and the per-connection token bucket.
package eventloop

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"loadgen/internal/measure"
	"loadgen/internal/sockets/conn"
	"loadgen/internal/sockets/resp"
)

// Loop owns one epoll instance and the connections registered with it. It is
// not safe for concurrent use; one goroutine (one pinned worker) drives it.
// Completed is the one exception: it is an atomic so the orchestrator's
// once-a-second sampling goroutine can read this loop's progress without
// synchronizing with the loop itself.
type Loop struct {
	epfd  int
	conns map[int32]*conn.Connection

	hist  *measure.Histogram
	nowFn func() time.Time

	events []unix.EpollEvent

	abandoned int64 // connections dropped on handshake/decode failure
	completed atomic.Int64
}

// New creates an epoll instance sized to hold up to maxConns registrations.
func New(maxConns int, hist *measure.Histogram) (*Loop, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("eventloop: epoll_create1: %w", err)
	}
	return &Loop{
		epfd:   epfd,
		conns:  make(map[int32]*conn.Connection, maxConns),
		hist:   hist,
		nowFn:  time.Now,
		events: make([]unix.EpollEvent, maxConns),
	}, nil
}

// Register adds a connection under the interest mask appropriate to its
// current phase (EPOLLOUT while connecting, EPOLLIN once established).
func (l *Loop) Register(c *conn.Connection) error {
	mask := uint32(unix.EPOLLIN)
	if c.Phase == conn.Connecting {
		mask = unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: mask, Fd: int32(c.FD)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, c.FD, &ev); err != nil {
		return fmt.Errorf("eventloop: epoll_ctl add fd %d: %w", c.FD, err)
	}
	l.conns[int32(c.FD)] = c
	return nil
}

// Deregister removes a connection from the poll set and this loop's table.
// It does not close the fd; callers own that.
func (l *Loop) Deregister(c *conn.Connection) {
	// Some kernels predating 2.6.9 dereference the event pointer even for
	// EPOLL_CTL_DEL, so pass a valid (if unused) struct rather than nil.
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, c.FD, &unix.EpollEvent{})
	delete(l.conns, int32(c.FD))
}

// Abandoned reports how many connections this loop has dropped on a fatal
// per-connection error (handshake failure, RESP decode error).
func (l *Loop) Abandoned() int64 { return l.abandoned }

// Completed reports how many responses this loop has matched to a request
// and recorded, safe to call from any goroutine.
func (l *Loop) Completed() int64 { return l.completed.Load() }

// Tick runs one iteration: a zero-timeout poll followed by servicing every
// ready connection and, unconditionally, trying to keep every registered
// connection's send window full.
func (l *Loop) Tick() error {
	n, err := unix.EpollWait(l.epfd, l.events, 0)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("eventloop: epoll_wait: %w", err)
	}
	now := l.nowFn()
	for i := 0; i < n; i++ {
		c, ok := l.conns[l.events[i].Fd]
		if !ok {
			continue
		}
		if c.Phase == conn.Connecting {
			l.completeConnect(c)
			continue
		}
		if l.events[i].Events&unix.EPOLLIN != 0 {
			l.drainReadable(c, now)
		}
	}
	for _, c := range l.conns {
		if c.Phase != conn.Connected {
			continue
		}
		l.fillSendWindow(c, now)
	}
	return nil
}

// completeConnect checks SO_ERROR on a socket that just became writable
// during its non-blocking connect and transitions it to Connected on
// success, or drops it on failure.
func (l *Loop) completeConnect(c *conn.Connection) {
	errno, err := unix.GetsockoptInt(c.FD, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		l.abandoned++
		l.Deregister(c)
		return
	}
	c.Phase = conn.Connected
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(c.FD)}
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, c.FD, &ev)
}

// drainReadable reads as many bytes as are available and feeds them through
// the connection's RESP parser, completing one pending request per parsed
// event.
func (l *Loop) drainReadable(c *conn.Connection, now time.Time) {
	for {
		n, err := unix.Read(c.FD, c.RxBuf)
		if n <= 0 {
			if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				l.abandoned++
				l.Deregister(c)
			}
			return
		}
		buf := c.RxBuf[:n]
		for len(buf) > 0 {
			events, consumed := c.Parser.Feed(buf)
			buf = buf[consumed:]
			for range events {
				latency := c.CompleteOldest(now.UnixMicro())
				l.hist.Observe(latency)
				l.completed.Add(1)
			}
			if c.Parser.State() == resp.Error {
				l.abandoned++
				l.Deregister(c)
				return
			}
			if consumed == 0 {
				break
			}
		}
		if n < len(c.RxBuf) {
			return
		}
	}
}

// fillSendWindow synthesizes and transmits requests until the pending
// window or the token bucket refuses admission.
func (l *Loop) fillSendWindow(c *conn.Connection, now time.Time) {
	keyBuf := make([]byte, 0, 16)
	for c.CanSend(now) {
		isSet := c.NextIsSet()
		var key int
		if isSet {
			key = c.Keys.NextSetKey()
		} else {
			key = c.Keys.NextGetKey()
		}
		keyBuf = appendInt(keyBuf[:0], key)

		c.TxBuf = c.TxBuf[:0]
		if isSet {
			value := make([]byte, c.ValueSize)
			for i := range value {
				value[i] = 'a'
			}
			c.TxBuf = resp.AppendSet(c.TxBuf, string(keyBuf), value)
		} else {
			c.TxBuf = resp.AppendGet(c.TxBuf, string(keyBuf))
		}

		c.StampSend(now.UnixMicro())
		if _, err := unix.Write(c.FD, c.TxBuf); err != nil {
			l.abandoned++
			l.Deregister(c)
			return
		}
	}
}

func appendInt(dst []byte, v int) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	neg := v < 0
	if neg {
		v = -v
	}
	start := len(dst)
	for v > 0 {
		dst = append(dst, byte('0'+v%10))
		v /= 10
	}
	if neg {
		dst = append(dst, '-')
	}
	// reverse in place
	for i, j := start, len(dst)-1; i < j; i, j = i+1, j-1 {
		dst[i], dst[j] = dst[j], dst[i]
	}
	return dst
}

// Close releases the epoll instance. It does not close registered fds.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}
