package srt

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"
)

const keepAliveInterval = time.Second

// conn - one peer connection over shared mux. Messages are split to
// PayloadSize packets, each packet is sent until acknowledged (stop-and-wait),
// so the receiver gets messages in order and never partial.
type conn struct {
	mux   *mux
	id    uint32
	isn   uint32 // initial sequence number
	peer  *net.UDPAddr
	opts  Options
	start time.Time

	hsCh chan *handshake // handshakes before connection established

	// sender side, guarded by sendMu
	sendMu  sync.Mutex
	sendSeq uint32
	msgNo   uint32
	pending *packet // unacknowledged packet after send timeout

	mu        sync.Mutex
	connected bool
	peerID    uint32
	latency   time.Duration
	hsReply   *packet // answer for repeated handshake from peer
	acked     uint32  // next sequence number expected by peer
	recvSeq   uint32  // next sequence number expected from peer
	frags     []byte
	queue     [][]byte
	queued    int
	lastSeen  time.Time

	ackCh  chan struct{}
	recvCh chan struct{}

	down     chan struct{}
	downErr  error
	downOnce sync.Once

	closeOnce sync.Once
	onClose   func()
}

func newConn(m *mux, peer *net.UDPAddr, opts Options) *conn {
	isn := rand.Uint32() & maxSeq

	c := &conn{
		mux:     m,
		id:      m.newSocketID(),
		isn:     isn,
		peer:    peer,
		opts:    opts,
		start:   time.Now(),
		hsCh:    make(chan *handshake, 16),
		sendSeq: isn,
		acked:   isn,
		ackCh:   make(chan struct{}, 1),
		recvCh:  make(chan struct{}, 1),
		down:    make(chan struct{}),
	}

	m.register(c)

	return c
}

func (c *conn) newHandshake(typ handshakeType, cookie uint32) *handshake {
	hs := &handshake{
		Version:     hsVersion,
		Type:        typ,
		SocketID:    c.id,
		Cookie:      cookie,
		InitSeq:     c.isn,
		PayloadSize: uint32(c.opts.PayloadSize),
		Latency:     uint16(c.opts.Latency / time.Millisecond),
	}
	if c.opts.MessageAPI {
		hs.Flags |= hsFlagMessageAPI
	}
	return hs
}

func (c *conn) writeHandshake(hs *handshake, dest uint32) error {
	return c.write(&packet{Control: true, Type: ControlHandshake, Dest: dest, Payload: hs.Marshal()})
}

func (c *conn) write(p *packet) error {
	p.Timestamp = uint32(time.Since(c.start).Microseconds())
	return c.mux.writeTo(p, c.peer)
}

// establish switches connection to data transfer with peer from handshake
func (c *conn) establish(hs *handshake) {
	c.mu.Lock()
	c.connected = true
	c.peerID = hs.SocketID
	c.recvSeq = hs.InitSeq & maxSeq
	c.latency = c.opts.Latency
	if peer := time.Duration(hs.Latency) * time.Millisecond; peer > c.latency {
		c.latency = peer
	}
	c.lastSeen = time.Now()
	c.mu.Unlock()

	go c.keepalive()
}

func (c *conn) handle(p *packet, addr *net.UDPAddr) {
	if addr.Port != c.peer.Port || !addr.IP.Equal(c.peer.IP) {
		return
	}

	c.mu.Lock()
	c.lastSeen = time.Now()
	connected := c.connected
	c.mu.Unlock()

	if !p.Control {
		if connected {
			c.handleData(p)
		}
		return
	}

	switch p.Type {
	case ControlHandshake:
		hs, err := parseHandshake(p.Payload)
		if err != nil {
			return
		}

		if !connected {
			select {
			case c.hsCh <- hs:
			default:
			}
			return
		}

		c.mu.Lock()
		reply := c.hsReply
		c.mu.Unlock()

		if reply != nil && hs.Type == hsConclusion {
			_ = c.write(reply)
		}

	case ControlAck:
		if !connected {
			return
		}

		c.mu.Lock()
		if seqLess(c.acked, p.Info) {
			c.acked = p.Info
		}
		c.mu.Unlock()

		notify(c.ackCh)

	case ControlShutdown:
		if connected {
			c.shutdown(ErrPeerClosed)
		}
	}
}

func (c *conn) handleData(p *packet) {
	c.mu.Lock()

	if p.Seq == c.recvSeq {
		// no space in receive buffer, sender will retransmit
		if c.queued > 0 && c.queued+len(c.frags)+len(p.Payload) > c.opts.RecvBuffer {
			c.mu.Unlock()
			return
		}

		c.recvSeq = seqNext(p.Seq)

		if p.Position&posFirst != 0 {
			c.frags = nil
		}
		c.frags = append(c.frags, p.Payload...)

		if p.Position&posLast != 0 {
			c.queue = append(c.queue, c.frags)
			c.queued += len(c.frags)
			c.frags = nil
			notify(c.recvCh)
		}
	}

	ack := &packet{Control: true, Type: ControlAck, Info: c.recvSeq, Dest: c.peerID}
	c.mu.Unlock()

	_ = c.write(ack)
}

func (c *conn) send(ctx context.Context, b []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var deadline <-chan time.Time
	if c.opts.SendTimeout > 0 {
		timer := time.NewTimer(c.opts.SendTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	if c.pending != nil {
		if err := c.deliver(ctx, c.pending, deadline); err != nil {
			return err
		}
		c.pending = nil
	}

	msgNo := c.msgNo
	c.msgNo = (c.msgNo + 1) & maxMsgNo

	c.mu.Lock()
	dest := c.peerID
	c.mu.Unlock()

	size := c.opts.PayloadSize

	for i := 0; i < len(b); i += size {
		j := i + size
		if j > len(b) {
			j = len(b)
		}

		p := &packet{Seq: c.sendSeq, Info: msgNo, Dest: dest, Payload: b[i:j]}
		if i == 0 {
			p.Position |= posFirst
		}
		if j == len(b) {
			p.Position |= posLast
		}

		c.sendSeq = seqNext(c.sendSeq)

		if err := c.deliver(ctx, p, deadline); err != nil {
			c.pending = p
			return err
		}
	}

	return nil
}

func (c *conn) deliver(ctx context.Context, p *packet, deadline <-chan time.Time) error {
	if err := c.write(p); err != nil {
		return err
	}

	retry := time.NewTicker(c.opts.retransmit())
	defer retry.Stop()

	for !c.isAcked(p.Seq) {
		select {
		case <-c.ackCh:
		case <-retry.C:
			if err := c.write(p); err != nil {
				return err
			}
		case <-deadline:
			return ErrSendTimeout
		case <-ctx.Done():
			return ctx.Err()
		case <-c.down:
			return c.downErr
		}
	}

	return nil
}

func (c *conn) isAcked(seq uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seqLess(seq, c.acked)
}

func (c *conn) receive(ctx context.Context) ([]byte, error) {
	var deadline <-chan time.Time
	if c.opts.RecvTimeout > 0 {
		timer := time.NewTimer(c.opts.RecvTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if msg := c.pop(); msg != nil {
			return msg, nil
		}

		select {
		case <-c.recvCh:
		case <-deadline:
			return nil, ErrReceiveTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.down:
			// deliver messages received before shutdown
			if msg := c.pop(); msg != nil {
				return msg, nil
			}
			return nil, c.downErr
		}
	}
}

func (c *conn) pop() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}

	msg := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.queued -= len(msg)
	return msg
}

func (c *conn) keepalive() {
	interval := keepAliveInterval
	if idle := c.opts.PeerIdleTimeout; idle > 0 && idle/4 < interval {
		interval = idle / 4
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.down:
			return
		case <-c.mux.done:
			c.shutdown(wrapTransport(c.mux.err))
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		idle := time.Since(c.lastSeen)
		dest := c.peerID
		c.mu.Unlock()

		if c.opts.PeerIdleTimeout > 0 && idle > c.opts.PeerIdleTimeout {
			c.shutdown(ErrConnectionLost)
			return
		}

		_ = c.write(&packet{Control: true, Type: ControlKeepAlive, Dest: dest})
	}
}

func (c *conn) shutdown(err error) {
	c.downOnce.Do(func() {
		c.downErr = err
		close(c.down)
	})
}

func (c *conn) isDown() bool {
	select {
	case <-c.down:
		return true
	default:
		return false
	}
}

// close sends shutdown to connected peer and releases shared socket
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		connected := c.connected
		dest := c.peerID
		c.mu.Unlock()

		if connected && !c.isDown() {
			_ = c.write(&packet{Control: true, Type: ControlShutdown, Dest: dest})
		}

		c.shutdown(net.ErrClosed)
		c.mux.unregister(c)
		c.mux.release()

		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *conn) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
