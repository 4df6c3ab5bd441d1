package srt

import (
	"context"
	"crypto/rand"
	"hash/fnv"
	"net"
	"strconv"
	"sync"
	"time"
)

type listener struct {
	mux    *mux
	opts   Options
	secret [8]byte

	conns  map[string]*conn // by caller address and socket ID
	queue  chan *conn
	closed bool
	mu     sync.Mutex
}

func newListener(m *mux, opts Options, backlog int) *listener {
	if backlog < 1 {
		backlog = 1
	}

	l := &listener{
		mux:   m,
		opts:  opts,
		conns: map[string]*conn{},
		queue: make(chan *conn, backlog),
	}
	_, _ = rand.Read(l.secret[:])

	m.setHandshake(l.handshake)

	return l
}

func (l *listener) cookie(addr *net.UDPAddr) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(l.secret[:])
	_, _ = h.Write([]byte(addr.String()))
	return h.Sum32()
}

func (l *listener) reply(hs *handshake, addr *net.UDPAddr, dest uint32) {
	p := &packet{Control: true, Type: ControlHandshake, Dest: dest, Payload: hs.Marshal()}
	_ = l.mux.writeTo(p, addr)
}

func (l *listener) reject(reason handshakeType, addr *net.UDPAddr, dest uint32) {
	l.reply(&handshake{Version: hsVersion, Type: reason}, addr, dest)
}

func (l *listener) handshake(p *packet, addr *net.UDPAddr) {
	req, err := parseHandshake(p.Payload)
	if err != nil {
		return
	}

	switch req.Type {
	case hsInduction:
		res := &handshake{Version: hsVersion, Type: hsInduction, Cookie: l.cookie(addr)}
		l.reply(res, addr, req.SocketID)

	case hsConclusion:
		if req.Cookie != l.cookie(addr) {
			l.reject(rejectRogue, addr, req.SocketID)
			return
		}
		if req.Version != hsVersion {
			l.reject(rejectVersion, addr, req.SocketID)
			return
		}
		if req.MessageAPI() != l.opts.MessageAPI {
			l.reject(rejectMessageAPI, addr, req.SocketID)
			return
		}

		key := addr.String() + "/" + strconv.FormatUint(uint64(req.SocketID), 10)

		l.mu.Lock()
		defer l.mu.Unlock()

		// repeated conclusion, previous answer was lost
		if c := l.conns[key]; c != nil {
			_ = c.write(c.hsReply)
			return
		}

		if l.closed {
			l.reject(rejectClose, addr, req.SocketID)
			return
		}

		// only handshake goroutine writes to queue
		if len(l.queue) == cap(l.queue) {
			l.reject(rejectBacklog, addr, req.SocketID)
			return
		}

		l.mux.acquire()

		c := newConn(l.mux, addr, l.opts)
		c.establish(req)

		res := c.newHandshake(hsConclusion, 0)
		res.Latency = uint16(c.Latency() / time.Millisecond)
		c.hsReply = &packet{Control: true, Type: ControlHandshake, Dest: req.SocketID, Payload: res.Marshal()}
		c.onClose = func() {
			l.mu.Lock()
			delete(l.conns, key)
			l.mu.Unlock()
		}

		l.conns[key] = c
		l.queue <- c

		_ = c.write(c.hsReply)
	}
}

func (l *listener) accept(ctx context.Context) (*conn, error) {
	var deadline <-chan time.Time
	if l.opts.AcceptTimeout > 0 {
		timer := time.NewTimer(l.opts.AcceptTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case c, ok := <-l.queue:
		if !ok {
			return nil, net.ErrClosed
		}
		return c, nil
	case <-deadline:
		return nil, ErrAcceptTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.mux.done:
		return nil, wrapTransport(l.mux.err)
	}
}

// close rejects new callers and closes connections that were never accepted
func (l *listener) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.mux.setHandshake(nil)

	for c := range l.queue {
		c.close()
	}

	l.mux.release()
}
