package srt

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viscasrt/viscasrt/pkg/udp"
)

// relay forwards datagrams between one caller and the listener,
// drop decides which of them are lost
type relay struct {
	sock   *udp.UDPServer
	server *net.UDPAddr
	client *net.UDPAddr
	drop   func(p *packet, toServer bool) bool
	mu     sync.Mutex
}

func newRelay(t *testing.T, server net.Addr) *relay {
	sock, err := udp.NewUDPServer("127.0.0.1:0")
	require.Nil(t, err)
	t.Cleanup(func() { _ = sock.Close() })

	r := &relay{sock: sock, server: server.(*net.UDPAddr)}
	go r.run()
	return r
}

func (r *relay) setDrop(drop func(p *packet, toServer bool) bool) {
	r.mu.Lock()
	r.drop = drop
	r.mu.Unlock()
}

func (r *relay) run() {
	b := make([]byte, MTU)
	for {
		n, addr, err := r.sock.ReadFrom(b)
		if err != nil {
			return
		}

		p, err := parsePacket(b[:n])
		if err != nil {
			continue
		}

		toServer := addr.Port != r.server.Port || !addr.IP.Equal(r.server.IP)

		r.mu.Lock()
		if toServer {
			r.client = addr
		}
		client, drop := r.client, r.drop
		r.mu.Unlock()

		if drop != nil && drop(p, toServer) {
			continue
		}

		if toServer {
			_, _ = r.sock.WriteTo(b[:n], r.server)
		} else if client != nil {
			_, _ = r.sock.WriteTo(b[:n], client)
		}
	}
}

// relayPair returns caller and accepted sessions connected through relay
func relayPair(t *testing.T, opts Options) (caller, accepted *Session, r *relay) {
	ln := listen(t, opts, 1)
	t.Cleanup(func() { _ = ln.Close() })

	r = newRelay(t, ln.LocalAddr())

	caller, err := dial(t, opts, r.sock.Addr().String())
	require.Nil(t, err)
	t.Cleanup(func() { _ = caller.Close() })

	accepted, err = ln.Accept(context.Background())
	require.Nil(t, err)
	t.Cleanup(func() { _ = accepted.Close() })

	return
}

func isHandshake(p *packet) bool {
	return p.Control && p.Type == ControlHandshake
}

func TestLossyLink(t *testing.T) {
	opts := testOptions()
	opts.SendTimeout = 3 * time.Second
	opts.PayloadSize = 1000

	caller, accepted, r := relayPair(t, opts)

	// every 4th data, ack or keepalive is lost in both directions
	var n int
	r.setDrop(func(p *packet, _ bool) bool {
		if isHandshake(p) {
			return false
		}
		n++
		return n%4 == 0
	})

	var messages [][]byte
	for i := 0; i < 20; i++ {
		msg := bytes.Repeat([]byte(strconv.Itoa(i%10)), 2500) // three packets
		messages = append(messages, msg)
		require.Nil(t, caller.Send(context.Background(), msg), i)
	}

	for i, msg := range messages {
		b, err := accepted.Receive(context.Background())
		require.Nil(t, err, i)
		require.Equal(t, msg, b, i)
	}
}

func TestSendTimeout(t *testing.T) {
	opts := testOptions()
	opts.SendTimeout = 300 * time.Millisecond

	caller, accepted, r := relayPair(t, opts)

	r.setDrop(func(p *packet, toServer bool) bool {
		return toServer && !p.Control
	})

	start := time.Now()
	err := caller.Send(context.Background(), []byte("x"))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrSendTimeout)
	require.True(t, IsTimeout(err))
	require.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	require.Less(t, elapsed, time.Second)

	// session stays usable after timeout
	require.Equal(t, StateConnected, caller.State())

	r.setDrop(nil)

	// unacknowledged packet goes first
	require.Nil(t, caller.Send(context.Background(), []byte("after")))

	b, err := accepted.Receive(context.Background())
	require.Nil(t, err)
	require.Equal(t, "x", string(b))

	b, err = accepted.Receive(context.Background())
	require.Nil(t, err)
	require.Equal(t, "after", string(b))
}

func TestPeerIdleTimeout(t *testing.T) {
	opts := testOptions()
	opts.PeerIdleTimeout = 300 * time.Millisecond
	opts.RecvTimeout = 0

	caller, accepted, r := relayPair(t, opts)

	// keepalive holds idle connection
	time.Sleep(500 * time.Millisecond)
	require.Equal(t, StateConnected, accepted.State())

	r.setDrop(func(*packet, bool) bool { return true })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := accepted.Receive(ctx)
	require.ErrorIs(t, err, ErrConnectionLost)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	_, err = caller.Receive(ctx)
	require.ErrorIs(t, err, ErrConnectionLost)
}

func TestListenerForgetsClosed(t *testing.T) {
	opts := testOptions()
	ln := listen(t, opts, 2)
	defer ln.Close()

	conns := func() int {
		ln.ln.mu.Lock()
		defer ln.ln.mu.Unlock()
		return len(ln.ln.conns)
	}

	for i := 0; i < 3; i++ {
		caller, err := dial(t, opts, ln.LocalAddr().String())
		require.Nil(t, err)

		accepted, err := ln.Accept(context.Background())
		require.Nil(t, err)

		require.Equal(t, 1, conns())

		require.Nil(t, accepted.Close())
		require.Nil(t, caller.Close())

		require.Equal(t, 0, conns())
	}
}
