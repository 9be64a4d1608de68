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

//go:build linux

package port

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// htons converts a host-order uint16 to network order, the way AF_PACKET's
// protocol field expects it.
func htons(v uint16) uint16 {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return binary.LittleEndian.Uint16(b)
}

// AFPacketPort sends and receives raw Ethernet frames on one interface via
// an AF_PACKET socket. It stands in for the reference implementation's
// DPDK-managed NIC queue; this generator trades DPDK's poll-mode driver for
// a non-blocking raw socket, which is the closest a userspace Go process
// gets to "kernel-bypass" without a kernel module.
type AFPacketPort struct {
	fd int
}

// Open binds a non-blocking AF_PACKET socket to ifaceName, receiving every
// ethertype.
func Open(ifaceName string) (*AFPacketPort, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("port: socket: %w", err)
	}
	iface, err := interfaceIndex(ifaceName)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("port: bind %s: %w", ifaceName, err)
	}
	return &AFPacketPort{fd: fd}, nil
}

func interfaceIndex(name string) (int, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, fmt.Errorf("port: interface %s: %w", name, err)
	}
	return ifi.Index, nil
}

// Send transmits one raw frame.
func (p *AFPacketPort) Send(frame []byte) error {
	n, err := unix.Write(p.fd, frame)
	if err != nil {
		return fmt.Errorf("port: write: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("port: short write: %d bytes", n)
	}
	return nil
}

// RecvBurst reads up to max frames without blocking, stopping early on
// EAGAIN/EWOULDBLOCK.
func (p *AFPacketPort) RecvBurst(max int) ([][]byte, error) {
	frames := make([][]byte, 0, max)
	buf := make([]byte, 65536)
	for len(frames) < max {
		n, err := unix.Read(p.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return frames, fmt.Errorf("port: read: %w", err)
		}
		if n <= 0 {
			break
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		frames = append(frames, frame)
	}
	return frames, nil
}

func (p *AFPacketPort) Close() error { return unix.Close(p.fd) }
