package srt

import (
	"errors"
	"math/rand"
	"net"
	"sync"

	"github.com/viscasrt/viscasrt/pkg/udp"
)

// mux - one UDP socket shared by listener and all accepted connections.
// Packets are routed by destination socket ID, zero ID goes to handshake func.
type mux struct {
	conn *udp.UDPServer

	conns     map[uint32]*conn
	handshake func(p *packet, addr *net.UDPAddr)
	refs      int
	mu        sync.Mutex

	done chan struct{}
	err  error
}

// listenMux binds local address, empty address binds any free port
func listenMux(address string) (*mux, error) {
	if address == "" {
		address = ":0"
	}

	sock, err := udp.NewUDPServer(address)
	if err != nil {
		return nil, err
	}

	m := &mux{
		conn:  sock,
		conns: map[uint32]*conn{},
		refs:  1,
		done:  make(chan struct{}),
	}

	go m.handle()

	return m, nil
}

func (m *mux) handle() {
	b := make([]byte, MTU)
	var failures int
	for {
		n, addr, err := m.conn.ReadFrom(b)
		if err != nil {
			// ICMP errors may come to unconnected socket on some OS
			if failures++; failures < 10 && !errors.Is(err, net.ErrClosed) && m.alive() {
				continue
			}
			m.err = err
			close(m.done)
			return
		}
		failures = 0

		p, err := parsePacket(b[:n])
		if err != nil {
			continue
		}

		m.dispatch(p, addr)
	}
}

func (m *mux) alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs > 0
}

func (m *mux) dispatch(p *packet, addr *net.UDPAddr) {
	m.mu.Lock()
	c := m.conns[p.Dest]
	handshake := m.handshake
	m.mu.Unlock()

	if c != nil {
		c.handle(p, addr)
		return
	}

	if p.Dest == 0 && p.Control && p.Type == ControlHandshake && handshake != nil {
		handshake(p, addr)
	}
}

func (m *mux) writeTo(p *packet, addr *net.UDPAddr) error {
	if _, err := m.conn.WriteTo(p.Marshal(), addr); err != nil {
		return wrapTransport(err)
	}
	return nil
}

func (m *mux) setHandshake(fn func(p *packet, addr *net.UDPAddr)) {
	m.mu.Lock()
	m.handshake = fn
	m.mu.Unlock()
}

// newSocketID returns random non zero ID, unique for this socket
func (m *mux) newSocketID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		id := rand.Uint32()
		if _, ok := m.conns[id]; !ok && id != 0 {
			return id
		}
	}
}

func (m *mux) register(c *conn) {
	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()
}

func (m *mux) unregister(c *conn) {
	m.mu.Lock()
	if m.conns[c.id] == c {
		delete(m.conns, c.id)
	}
	m.mu.Unlock()
}

func (m *mux) acquire() {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()
}

// release closes UDP socket after last user
func (m *mux) release() {
	m.mu.Lock()
	m.refs--
	last := m.refs == 0
	m.mu.Unlock()

	if last {
		_ = m.conn.Close()
	}
}

func (m *mux) LocalAddr() net.Addr {
	return m.conn.Addr()
}
