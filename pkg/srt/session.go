package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

type Mode byte

const (
	ModeCaller Mode = iota + 1
	ModeListener
	ModeRendezvous
)

func (m Mode) String() string {
	switch m {
	case ModeCaller:
		return "caller"
	case ModeListener:
		return "listener"
	case ModeRendezvous:
		return "rendezvous"
	}
	return "unknown"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "caller", "client":
		return ModeCaller, nil
	case "listener", "server":
		return ModeListener, nil
	case "rendezvous":
		return ModeRendezvous, nil
	}
	return 0, errors.New("srt: unknown mode: " + s)
}

type State byte

const (
	StateUninitialized State = iota
	StateConfigured
	StateConnecting // also listening
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session - one SRT socket. Lifecycle:
//
//	uninitialized -> configured -> connecting -> connected -> closed
//
// Any error while connecting moves session to failed state. A failed or
// closed session can't be reused.
type Session struct {
	mode  Mode
	state State
	opts  Options

	conn *conn     // caller, rendezvous and accepted sessions
	ln   *listener // listener session

	rest []byte // unread part of message in stream mode

	mu sync.Mutex
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Configure(opts Options) error {
	if err := opts.validate(); err != nil {
		return &OpError{Op: "configure", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized && s.state != StateConfigured {
		return &OpError{Op: "configure", Err: ErrInvalidState}
	}

	s.opts = opts
	s.state = StateConfigured
	return nil
}

// Connect - caller mode
func (s *Session) Connect(ctx context.Context, address string) error {
	const op = "connect"

	opts, err := s.begin(ModeCaller)
	if err != nil {
		return &OpError{Op: op, Addr: address, Err: err}
	}

	peer, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return s.fail(op, address, wrapTransport(err))
	}

	m, err := listenMux("")
	if err != nil {
		return s.fail(op, address, wrapTransport(err))
	}

	c := newConn(m, peer, opts)
	if err = s.attach(c, nil); err != nil {
		return s.fail(op, address, err)
	}

	if err = c.dial(ctx); err != nil {
		return s.fail(op, address, err)
	}

	return s.connected(op, address)
}

// Listen - listener mode, bind local address and answer handshakes in
// background. Connected peers wait in queue of backlog size for Accept.
func (s *Session) Listen(address string, backlog int) error {
	const op = "listen"

	opts, err := s.begin(ModeListener)
	if err != nil {
		return &OpError{Op: op, Addr: address, Err: err}
	}

	m, err := listenMux(address)
	if err != nil {
		return s.fail(op, address, wrapTransport(err))
	}

	if err = s.attach(nil, newListener(m, opts, backlog)); err != nil {
		return s.fail(op, address, err)
	}

	return nil
}

// Accept returns new connected session for next caller
func (s *Session) Accept(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	ln, state, opts := s.ln, s.state, s.opts
	s.mu.Unlock()

	if ln == nil || state != StateConnecting {
		return nil, &OpError{Op: "accept", Err: ErrInvalidState}
	}

	c, err := ln.accept(ctx)
	if err != nil {
		return nil, &OpError{Op: "accept", Addr: ln.mux.LocalAddr().String(), Err: err}
	}

	return &Session{mode: ModeListener, state: StateConnected, opts: opts, conn: c}, nil
}

// Rendezvous - bind local address and connect to peer, that does the same
func (s *Session) Rendezvous(ctx context.Context, local, remote string) error {
	const op = "rendezvous"

	opts, err := s.begin(ModeRendezvous)
	if err != nil {
		return &OpError{Op: op, Addr: remote, Err: err}
	}

	peer, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return s.fail(op, remote, wrapTransport(err))
	}

	m, err := listenMux(local)
	if err != nil {
		return s.fail(op, remote, wrapTransport(err))
	}

	c := newConn(m, peer, opts)
	m.setHandshake(c.handle)

	if err = s.attach(c, nil); err != nil {
		return s.fail(op, remote, err)
	}

	if err = c.rendezvous(ctx); err != nil {
		return s.fail(op, remote, err)
	}

	return s.connected(op, remote)
}

// Establish runs connection setup for selected mode. Listener mode returns
// accepted session, other modes return s itself.
func (s *Session) Establish(ctx context.Context, mode Mode, local, remote string) (*Session, error) {
	switch mode {
	case ModeCaller:
		if err := s.Connect(ctx, remote); err != nil {
			return nil, err
		}
		return s, nil
	case ModeListener:
		if err := s.Listen(local, 1); err != nil {
			return nil, err
		}
		return s.Accept(ctx)
	case ModeRendezvous:
		if err := s.Rendezvous(ctx, local, remote); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, &OpError{Op: "establish", Err: fmt.Errorf("%w: unknown mode %d", ErrInvalidState, mode)}
}

// Send one message. Message boundaries are kept in message API mode.
func (s *Session) Send(ctx context.Context, b []byte) error {
	c, opts, err := s.active()
	if err != nil {
		return &OpError{Op: "send", Err: err}
	}

	if len(b) > opts.SendBuffer {
		return &OpError{Op: "send", Addr: c.peer.String(), Err: ErrMessageTooLarge}
	}

	if len(b) == 0 {
		return nil
	}

	if err = c.send(ctx, b); err != nil {
		return &OpError{Op: "send", Addr: c.peer.String(), Err: err}
	}

	return nil
}

// Receive one whole message. Orderly close by peer returns ErrPeerClosed,
// that also matches io.EOF.
func (s *Session) Receive(ctx context.Context) ([]byte, error) {
	c, _, err := s.active()
	if err != nil {
		return nil, &OpError{Op: "receive", Err: err}
	}

	b, err := c.receive(ctx)
	if err != nil {
		return nil, &OpError{Op: "receive", Addr: c.peer.String(), Err: err}
	}

	return b, nil
}

// Read - io.Reader. In message API mode buffer should fit whole message,
// otherwise message is truncated with io.ErrShortBuffer.
func (s *Session) Read(b []byte) (int, error) {
	if len(s.rest) == 0 {
		msg, err := s.Receive(context.Background())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, err
		}

		if s.opts.MessageAPI {
			if n := copy(b, msg); n < len(msg) {
				return n, io.ErrShortBuffer
			}
			return len(msg), nil
		}

		s.rest = msg
	}

	n := copy(b, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}

// Write - io.Writer. In stream mode data is split by SendBuffer size.
func (s *Session) Write(b []byte) (n int, err error) {
	if s.opts.MessageAPI {
		if err = s.Send(context.Background(), b); err != nil {
			return 0, err
		}
		return len(b), nil
	}

	for n < len(b) {
		size := len(b) - n
		if size > s.opts.SendBuffer {
			size = s.opts.SendBuffer
		}
		if err = s.Send(context.Background(), b[n:n+size]); err != nil {
			return
		}
		n += size
	}

	return
}

// Close is safe to call many times and in any state
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateFailed {
		s.state = StateClosed
	}
	c, ln := s.conn, s.ln
	s.mu.Unlock()

	if ln != nil {
		ln.close()
	}
	if c != nil {
		c.close()
	}

	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Session) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.conn != nil:
		return s.conn.mux.LocalAddr()
	case s.ln != nil:
		return s.ln.mux.LocalAddr()
	}
	return nil
}

func (s *Session) RemoteAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.peer
	}
	return nil
}

// Latency - negotiated latency, max of both sides
func (s *Session) Latency() time.Duration {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		return c.Latency()
	}
	return 0
}

// begin moves configured session to connecting state
func (s *Session) begin(mode Mode) (Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfigured {
		return Options{}, ErrInvalidState
	}

	s.mode = mode
	s.state = StateConnecting

	if mode == ModeRendezvous {
		s.opts.Rendezvous = true
	}

	return s.opts, nil
}

// attach stores socket resources, so Close can release them while connecting
func (s *Session) attach(c *conn, ln *listener) error {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.conn, s.ln = c, ln
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if c != nil {
		c.close()
	}
	if ln != nil {
		ln.close()
	}
	return net.ErrClosed
}

func (s *Session) connected(op, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return &OpError{Op: op, Addr: addr, Err: net.ErrClosed}
	}

	s.state = StateConnected
	return nil
}

func (s *Session) fail(op, addr string, err error) error {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateFailed
	}
	c, ln := s.conn, s.ln
	s.mu.Unlock()

	if ln != nil {
		ln.close()
	}
	if c != nil {
		c.close()
	}

	return &OpError{Op: op, Addr: addr, Err: err}
}

func (s *Session) active() (*conn, Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnected:
		return s.conn, s.opts, nil
	case StateClosed:
		return nil, s.opts, net.ErrClosed
	}
	return nil, s.opts, ErrInvalidState
}
