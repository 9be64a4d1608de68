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

package eventloop

import (
	"math/rand"
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"loadgen/internal/measure"
	"loadgen/internal/sockets/conn"
	"loadgen/internal/sockets/keygen"
)

// dialNonblocking opens a non-blocking TCP socket and starts (but does not
// wait for) a connect to addr, mirroring the sockets generator's own
// connection setup.
func dialNonblocking(t *testing.T, addr *net.TCPAddr) int {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To4())
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		t.Fatalf("connect: %v", err)
	}
	return fd
}

func TestLoopCompletesConnectAndDrivesRequests(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 256)
		for i := 0; i < 3; i++ {
			n, err := c.Read(buf)
			if err != nil || n == 0 {
				return
			}
			c.Write([]byte("+OK\r\n"))
		}
	}()

	hist := measure.NewHistogram(1_000_000)
	loop, err := New(4, hist)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	fd := dialNonblocking(t, ln.Addr().(*net.TCPAddr))
	defer unix.Close(fd)

	keys, err := keygen.New(keygen.Sequential, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("keygen.New: %v", err)
	}
	c := conn.New(fd, 4, 1, 0, 8, keys, 0, time.Now())
	if err := loop.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.RequestCount < 3 && time.Now().Before(deadline) {
		if err := loop.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	if c.Phase != conn.Connected {
		t.Fatalf("connection phase = %v, want Connected", c.Phase)
	}
	if c.RequestCount < 3 {
		t.Fatalf("RequestCount = %d, want at least 3", c.RequestCount)
	}
	if hist.Total() < 3 {
		t.Fatalf("histogram total = %d, want at least 3", hist.Total())
	}

	<-serverDone
}

func TestLoopAbandonsConnectionOnRefusedConnect(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listens now; connect should fail

	hist := measure.NewHistogram(1000)
	loop, err := New(2, hist)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	fd := dialNonblocking(t, addr)
	defer unix.Close(fd)

	keys, _ := keygen.New(keygen.Uniform, rand.New(rand.NewSource(1)))
	c := conn.New(fd, 4, 1, 1, 8, keys, 0, time.Now())
	if err := loop.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for loop.Abandoned() == 0 && time.Now().Before(deadline) {
		if err := loop.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if loop.Abandoned() != 1 {
		t.Fatalf("Abandoned() = %d, want 1", loop.Abandoned())
	}
}
