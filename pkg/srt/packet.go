package srt

import (
	"encoding/binary"
	"errors"
)

// Packet header, 16 bytes, same layout as UDT/SRT:
//
//	0: F(1) seq(31)          | F(1) type(15) subtype(16)
//	4: PP(2) msgno(30)       | type specific info
//	8: timestamp (microseconds since connection start)
//	12: destination socket ID (0 for handshake requests)
const HeaderSize = 16

const (
	MTU            = 1500
	MaxPayloadSize = MTU - 28 - HeaderSize // IPv4 + UDP headers

	DefaultPayloadSize = 1316 // 7 MPEG-TS packets
)

type ControlType uint16

const (
	ControlHandshake ControlType = 0x0
	ControlKeepAlive ControlType = 0x1
	ControlAck       ControlType = 0x2
	ControlShutdown  ControlType = 0x5
)

func (t ControlType) String() string {
	switch t {
	case ControlHandshake:
		return "handshake"
	case ControlKeepAlive:
		return "keepalive"
	case ControlAck:
		return "ack"
	case ControlShutdown:
		return "shutdown"
	}
	return "unknown"
}

const (
	flagControl = 0x80000000
	maxSeq      = 0x7FFFFFFF
	maxMsgNo    = 0x3FFFFFFF
)

// message position flags (PP)
const (
	posMiddle byte = 0b00
	posLast   byte = 0b01
	posFirst  byte = 0b10
	posSolo   byte = 0b11
)

var errShortPacket = errors.New("srt: packet too short")

type packet struct {
	Control   bool
	Type      ControlType // control only
	Seq       uint32      // data only
	Position  byte        // data only
	Info      uint32      // msgno for data, type specific for control
	Timestamp uint32
	Dest      uint32
	Payload   []byte
}

func (p *packet) Marshal() []byte {
	b := make([]byte, HeaderSize+len(p.Payload))

	if p.Control {
		binary.BigEndian.PutUint32(b, flagControl|uint32(p.Type)<<16)
		binary.BigEndian.PutUint32(b[4:], p.Info)
	} else {
		binary.BigEndian.PutUint32(b, p.Seq&maxSeq)
		binary.BigEndian.PutUint32(b[4:], uint32(p.Position)<<30|p.Info&maxMsgNo)
	}

	binary.BigEndian.PutUint32(b[8:], p.Timestamp)
	binary.BigEndian.PutUint32(b[12:], p.Dest)
	copy(b[HeaderSize:], p.Payload)

	return b
}

// parsePacket copies payload, so b can be reused by reader
func parsePacket(b []byte) (*packet, error) {
	if len(b) < HeaderSize {
		return nil, errShortPacket
	}

	p := &packet{
		Timestamp: binary.BigEndian.Uint32(b[8:]),
		Dest:      binary.BigEndian.Uint32(b[12:]),
	}

	word0 := binary.BigEndian.Uint32(b)
	word1 := binary.BigEndian.Uint32(b[4:])

	if word0&flagControl != 0 {
		p.Control = true
		p.Type = ControlType(word0 >> 16 & 0x7FFF)
		p.Info = word1
	} else {
		p.Seq = word0
		p.Position = byte(word1 >> 30)
		p.Info = word1 & maxMsgNo
	}

	if len(b) > HeaderSize {
		p.Payload = append([]byte(nil), b[HeaderSize:]...)
	}

	return p, nil
}

// seqLess compares 31 bit sequence numbers with wraparound
func seqLess(a, b uint32) bool {
	d := (b - a) & maxSeq
	return d != 0 && d < maxSeq/2
}

func seqNext(seq uint32) uint32 {
	return (seq + 1) & maxSeq
}

type handshakeType uint32

const (
	hsWaveAHand  handshakeType = 0
	hsInduction  handshakeType = 1
	hsConclusion handshakeType = 0xFFFFFFFF
	hsAgreement  handshakeType = 0xFFFFFFFE
)

// rejection reasons, same codes as libsrt
const (
	rejectRogue      handshakeType = 1004
	rejectBacklog    handshakeType = 1005
	rejectClose      handshakeType = 1007
	rejectVersion    handshakeType = 1008
	rejectMessageAPI handshakeType = 1012
)

func (t handshakeType) IsReject() bool {
	return t >= 1000 && t < 2000
}

func (t handshakeType) String() string {
	switch t {
	case hsWaveAHand:
		return "waveahand"
	case hsInduction:
		return "induction"
	case hsConclusion:
		return "conclusion"
	case hsAgreement:
		return "agreement"
	case rejectRogue:
		return "reject:rogue"
	case rejectBacklog:
		return "reject:backlog"
	case rejectClose:
		return "reject:close"
	case rejectVersion:
		return "reject:version"
	case rejectMessageAPI:
		return "reject:messageapi"
	}
	return "unknown"
}

const (
	hsVersion  = 5
	hsBodySize = 28

	hsFlagMessageAPI uint16 = 1 << 0
)

type handshake struct {
	Version     uint32
	Type        handshakeType
	SocketID    uint32
	Cookie      uint32
	InitSeq     uint32
	PayloadSize uint32
	Latency     uint16 // milliseconds
	Flags       uint16
}

func (h *handshake) Marshal() []byte {
	b := make([]byte, hsBodySize)
	binary.BigEndian.PutUint32(b, h.Version)
	binary.BigEndian.PutUint32(b[4:], uint32(h.Type))
	binary.BigEndian.PutUint32(b[8:], h.SocketID)
	binary.BigEndian.PutUint32(b[12:], h.Cookie)
	binary.BigEndian.PutUint32(b[16:], h.InitSeq)
	binary.BigEndian.PutUint32(b[20:], h.PayloadSize)
	binary.BigEndian.PutUint16(b[24:], h.Latency)
	binary.BigEndian.PutUint16(b[26:], h.Flags)
	return b
}

func (h *handshake) MessageAPI() bool {
	return h.Flags&hsFlagMessageAPI != 0
}

func parseHandshake(b []byte) (*handshake, error) {
	if len(b) < hsBodySize {
		return nil, errShortPacket
	}

	return &handshake{
		Version:     binary.BigEndian.Uint32(b),
		Type:        handshakeType(binary.BigEndian.Uint32(b[4:])),
		SocketID:    binary.BigEndian.Uint32(b[8:]),
		Cookie:      binary.BigEndian.Uint32(b[12:]),
		InitSeq:     binary.BigEndian.Uint32(b[16:]),
		PayloadSize: binary.BigEndian.Uint32(b[20:]),
		Latency:     binary.BigEndian.Uint16(b[24:]),
		Flags:       binary.BigEndian.Uint16(b[26:]),
	}, nil
}
