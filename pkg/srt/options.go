package srt

import (
	"errors"
	"time"
)

// Options - socket options applied before connection setup.
// Zero send, receive and accept timeouts wait without limit.
type Options struct {
	RecvBuffer int // bytes
	SendBuffer int // bytes, also max message size

	ConnectTimeout  time.Duration
	AcceptTimeout   time.Duration
	SendTimeout     time.Duration
	RecvTimeout     time.Duration
	PeerIdleTimeout time.Duration

	Latency     time.Duration
	PayloadSize int

	MessageAPI bool
	Rendezvous bool
}

func DefaultOptions() Options {
	return Options{
		RecvBuffer:      1024 * 1024,
		SendBuffer:      1024 * 1024,
		ConnectTimeout:  3 * time.Second,
		SendTimeout:     3 * time.Second,
		RecvTimeout:     3 * time.Second,
		PeerIdleTimeout: 5 * time.Second,
		Latency:         200 * time.Millisecond,
		PayloadSize:     DefaultPayloadSize,
		MessageAPI:      true,
	}
}

func (o *Options) validate() error {
	switch {
	case o.RecvBuffer <= 0 || o.SendBuffer <= 0:
		return errors.New("srt: wrong buffer size")
	case o.ConnectTimeout <= 0:
		return errors.New("srt: wrong connect timeout")
	case o.Latency < 0 || o.Latency > 0xFFFF*time.Millisecond:
		return errors.New("srt: wrong latency")
	case o.PayloadSize <= 0 || o.PayloadSize > MaxPayloadSize:
		return errors.New("srt: wrong payload size")
	}
	return nil
}

// retransmit - retry interval for unacknowledged packets and handshakes
func (o *Options) retransmit() time.Duration {
	d := o.Latency / 4
	if d < 10*time.Millisecond {
		return 10 * time.Millisecond
	}
	if d > 250*time.Millisecond {
		return 250 * time.Millisecond
	}
	return d
}
