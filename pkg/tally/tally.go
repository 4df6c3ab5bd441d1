package tally

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Protocol types of the VISCA-SRT proxy. Only tally messages are handled here.
const (
	ProtocolVISCA byte = 0x01
	ProtocolType  byte = 0x02
)

const (
	HeaderSize    = 7
	MaxSourceName = 255
)

// State is a raw tally byte. Values outside of the four known states are
// passed through unchanged, the wire format does not restrict them.
type State byte

const (
	Off State = iota
	Program
	Preview
	ProgramPreview
)

func (s State) String() string {
	switch s {
	case Off:
		return "OFF"
	case Program:
		return "PROGRAM"
	case Preview:
		return "PREVIEW"
	case ProgramPreview:
		return "PROGRAM+PREVIEW"
	}
	return "UNKNOWN"
}

var (
	ErrEncoding = errors.New("tally: encoding error")
	ErrDecoding = errors.New("tally: decoding error")
)

// Message - tally state announcement for one NDI source
type Message struct {
	State     State
	Timestamp int32 // unix seconds
	Source    string
}

func NewMessage(source string, state State) *Message {
	return &Message{State: state, Timestamp: int32(time.Now().Unix()), Source: source}
}

func (m *Message) Marshal() ([]byte, error) {
	return Encode(m.Source, m.State, m.Timestamp)
}

func (m *Message) String() string {
	return fmt.Sprintf("source=%s state=%s ts=%d", m.Source, m.State, m.Timestamp)
}

// Encode - [type:1][state:1][name length:1][timestamp:4 BE][name]
func Encode(source string, state State, timestamp int32) ([]byte, error) {
	if len(source) > MaxSourceName {
		return nil, fmt.Errorf("%w: source name too long: %d", ErrEncoding, len(source))
	}
	if !utf8.ValidString(source) {
		return nil, fmt.Errorf("%w: source name is not valid UTF-8", ErrEncoding)
	}

	b := make([]byte, HeaderSize+len(source))
	b[0] = ProtocolType
	b[1] = byte(state)
	b[2] = byte(len(source))
	binary.BigEndian.PutUint32(b[3:], uint32(timestamp))
	copy(b[HeaderSize:], source)
	return b, nil
}

func Decode(b []byte) (*Message, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: message too short: %d", ErrDecoding, len(b))
	}
	if b[0] != ProtocolType {
		return nil, fmt.Errorf("%w: wrong protocol type: %d", ErrDecoding, b[0])
	}
	if size := HeaderSize + int(b[2]); size != len(b) {
		return nil, fmt.Errorf("%w: wrong message size: %d, expected %d", ErrDecoding, len(b), size)
	}

	return &Message{
		State:     State(b[1]),
		Timestamp: int32(binary.BigEndian.Uint32(b[3:])),
		Source:    string(b[HeaderSize:]),
	}, nil
}
