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

// Package wire builds and parses the raw Ethernet/IPv4/TCP frames the
// kernel-bypass variant sends and receives. Headers are built with
// gopacket/layers; the fixed 48-byte measurement payload is encoded and
// decoded by hand, since it is not a protocol gopacket knows about.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// PayloadOffset is the byte offset of the measurement payload within a data
// frame: 14 (Ethernet) + 20 (IPv4, no options) + 20 (TCP, no options).
const PayloadOffset = 54

// PayloadWords is the number of 8-byte words in the measurement payload.
const PayloadWords = 6

// PayloadLen is the measurement payload's length in bytes.
const PayloadLen = PayloadWords * 8

// MinFrameSize is a lower bound on data-frame size: every frame BuildData
// produces (headers plus PayloadLen bytes) is at least this long. Handshake
// frames (SYN, ACK) carry no payload and are shorter.
const MinFrameSize = 96

// Payload is the fixed 6-word measurement record carried by every data
// frame, word-addressed the way the reference implementation lays out its
// packet payload.
type Payload struct {
	TxTSC      uint64
	RxTSC      uint64
	FlowID     uint64
	WorkerID   uint64
	Iterations uint64
	Randomness uint64
}

// Encode writes p into dst starting at offset 0; dst must be at least
// PayloadLen bytes.
func (p Payload) Encode(dst []byte) {
	binary.BigEndian.PutUint64(dst[0:8], p.TxTSC)
	binary.BigEndian.PutUint64(dst[8:16], p.RxTSC)
	binary.BigEndian.PutUint64(dst[16:24], p.FlowID)
	binary.BigEndian.PutUint64(dst[24:32], p.WorkerID)
	binary.BigEndian.PutUint64(dst[32:40], p.Iterations)
	binary.BigEndian.PutUint64(dst[40:48], p.Randomness)
}

// DecodePayload reads a Payload out of src, which must be at least
// PayloadLen bytes.
func DecodePayload(src []byte) (Payload, error) {
	if len(src) < PayloadLen {
		return Payload{}, fmt.Errorf("wire: payload too short: %d bytes, want %d", len(src), PayloadLen)
	}
	return Payload{
		TxTSC:      binary.BigEndian.Uint64(src[0:8]),
		RxTSC:      binary.BigEndian.Uint64(src[8:16]),
		FlowID:     binary.BigEndian.Uint64(src[16:24]),
		WorkerID:   binary.BigEndian.Uint64(src[24:32]),
		Iterations: binary.BigEndian.Uint64(src[32:40]),
		Randomness: binary.BigEndian.Uint64(src[40:48]),
	}, nil
}

// Endpoint names one side of the TCP conversation at every layer.
type Endpoint struct {
	MAC  []byte // 6 bytes
	IP   []byte // 4 bytes
	Port uint16
}

// synOptions returns the two options the reference implementation's SYN
// carries: window-scale (shift 10) and MSS 0xFFFF.
func synOptions() []layers.TCPOption {
	return []layers.TCPOption{
		{OptionType: layers.TCPOptionKindWindowScale, OptionLength: 3, OptionData: []byte{10}},
		{OptionType: layers.TCPOptionKindMSS, OptionLength: 4, OptionData: []byte{0xFF, 0xFF}},
	}
}

// BuildSYN constructs a SYN frame from src to dst with the given sequence
// number.
func BuildSYN(src, dst Endpoint, seq uint32) ([]byte, error) {
	return build(src, dst, seq, 0, false, true, false, nil, synOptions())
}

// BuildACK constructs a bare ACK frame (handshake's final leg) carrying no
// payload.
func BuildACK(src, dst Endpoint, seq, ack uint32) ([]byte, error) {
	return build(src, dst, seq, ack, true, false, false, nil, nil)
}

// BuildData constructs a PSH|ACK data frame carrying the measurement
// payload.
func BuildData(src, dst Endpoint, seq, ack uint32, payload Payload) ([]byte, error) {
	buf := make([]byte, PayloadLen)
	payload.Encode(buf)
	return build(src, dst, seq, ack, true, false, true, buf, nil)
}

func build(src, dst Endpoint, seq, ack uint32, ackFlag, synFlag, pshFlag bool, payload []byte, opts []layers.TCPOption) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src.MAC,
		DstMAC:       dst.MAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src.IP,
		DstIP:    dst.IP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src.Port),
		DstPort: layers.TCPPort(dst.Port),
		Seq:     seq,
		Ack:     ack,
		ACK:     ackFlag,
		SYN:     synFlag,
		PSH:     pshFlag,
		Window:  65535,
		Options: opts,
	}
	tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts2 := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	var err error
	if len(payload) > 0 {
		err = gopacket.SerializeLayers(buf, opts2, eth, ip, tcp, gopacket.Payload(payload))
	} else {
		err = gopacket.SerializeLayers(buf, opts2, eth, ip, tcp)
	}
	if err != nil {
		return nil, fmt.Errorf("wire: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// Frame is a parsed inbound frame.
type Frame struct {
	SrcIP, DstIP     []byte
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	SYN, ACK, FIN    bool
	Window           uint16
	Payload          []byte
}

// Parse decodes an Ethernet/IPv4/TCP frame. It returns an error only on a
// structurally invalid frame; frames that parse but aren't IPv4/TCP are
// reported via the ok return so callers can drop them per the RX parser's
// contract without treating every non-TCP frame as an error.
func Parse(data []byte) (f Frame, ok bool, err error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return Frame{}, false, fmt.Errorf("wire: decode error: %w", errLayer.Error())
	}
	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if ipLayer == nil || tcpLayer == nil {
		return Frame{}, false, nil
	}
	ip := ipLayer.(*layers.IPv4)
	tcp := tcpLayer.(*layers.TCP)
	return Frame{
		SrcIP:   []byte(ip.SrcIP),
		DstIP:   []byte(ip.DstIP),
		SrcPort: uint16(tcp.SrcPort),
		DstPort: uint16(tcp.DstPort),
		Seq:     tcp.Seq,
		Ack:     tcp.Ack,
		SYN:     tcp.SYN,
		ACK:     tcp.ACK,
		FIN:     tcp.FIN,
		Window:  tcp.Window,
		Payload: tcp.Payload,
	}, true, nil
}
