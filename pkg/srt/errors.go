package srt

import (
	"errors"
	"io"
)

var (
	ErrConnectTimeout    = errors.New("connection setup timeout")
	ErrAcceptTimeout     = errors.New("accept timeout")
	ErrSendTimeout       = errors.New("send timeout")
	ErrReceiveTimeout    = errors.New("receive timeout")
	ErrConnectionRefused = errors.New("connection refused")
	ErrConnectionLost    = errors.New("connection lost")
	ErrInvalidState      = errors.New("invalid session state")
	ErrMessageTooLarge   = errors.New("message too large")
	ErrTransport         = errors.New("transport error")
)

// ErrPeerClosed - orderly close by remote side, also matches io.EOF
var ErrPeerClosed error = &eofError{"connection closed by peer"}

type eofError struct {
	s string
}

func (e *eofError) Error() string {
	return e.s
}

func (e *eofError) Is(target error) bool {
	return target == io.EOF
}

// OpError - error of session operation, similar to net.OpError
type OpError struct {
	Op   string
	Addr string
	Err  error
}

func (e *OpError) Error() string {
	s := "srt: " + e.Op
	if e.Addr != "" {
		s += " " + e.Addr
	}
	return s + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Timeout() bool {
	return IsTimeout(e.Err)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrConnectTimeout) || errors.Is(err, ErrAcceptTimeout) ||
		errors.Is(err, ErrSendTimeout) || errors.Is(err, ErrReceiveTimeout)
}

// transportError wraps socket error, so it matches ErrTransport and keeps cause
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return ErrTransport.Error() + ": " + e.err.Error()
}

func (e *transportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *transportError) Unwrap() error {
	return e.err
}

func wrapTransport(err error) error {
	if err == nil || errors.Is(err, ErrTransport) {
		return err
	}
	return &transportError{err: err}
}
