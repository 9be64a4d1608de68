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

// Package config loads the kernel-bypass variant's L2/L3/L4 endpoint
// configuration from an ini-style file: [ethernet] src/dst MACs, [ipv4]
// src/dst dotted-quads, [tcp] dst port.
package config

import (
	"fmt"
	"net"

	"gopkg.in/ini.v1"
)

// Endpoints is the parsed address configuration for one run.
type Endpoints struct {
	SrcMAC net.HardwareAddr
	DstMAC net.HardwareAddr
	SrcIP  net.IP
	DstIP  net.IP
	DstTCP uint16
}

// Load reads and validates an endpoint configuration from path.
func Load(path string) (Endpoints, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Endpoints{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	var e Endpoints
	eth := f.Section("ethernet")
	e.SrcMAC, err = net.ParseMAC(eth.Key("src").String())
	if err != nil {
		return Endpoints{}, fmt.Errorf("config: [ethernet] src: %w", err)
	}
	e.DstMAC, err = net.ParseMAC(eth.Key("dst").String())
	if err != nil {
		return Endpoints{}, fmt.Errorf("config: [ethernet] dst: %w", err)
	}

	ip4 := f.Section("ipv4")
	e.SrcIP, err = parseIPv4(ip4.Key("src").String())
	if err != nil {
		return Endpoints{}, fmt.Errorf("config: [ipv4] src: %w", err)
	}
	e.DstIP, err = parseIPv4(ip4.Key("dst").String())
	if err != nil {
		return Endpoints{}, fmt.Errorf("config: [ipv4] dst: %w", err)
	}

	tcp := f.Section("tcp")
	port, err := tcp.Key("dst").Int()
	if err != nil {
		return Endpoints{}, fmt.Errorf("config: [tcp] dst: %w", err)
	}
	if port <= 0 || port > 65535 {
		return Endpoints{}, fmt.Errorf("config: [tcp] dst: %d out of range", port)
	}
	e.DstTCP = uint16(port)

	return e, nil
}

func parseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("not a valid IP address: %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return v4, nil
}
