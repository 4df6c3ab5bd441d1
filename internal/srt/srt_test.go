package srt

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viscasrt/viscasrt/internal/app"
	"github.com/viscasrt/viscasrt/pkg/srt"
	"github.com/viscasrt/viscasrt/pkg/udp"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Count = 3
	cfg.Interval = 10
	cfg.ConnTimeout = 1000
	cfg.SendTimeout = 1000
	cfg.RecvTimeout = 1000
	cfg.Latency = 40
	return cfg
}

func freeAddr(t *testing.T) string {
	port, err := udp.GetFreePort()
	require.Nil(t, err)
	return "127.0.0.1:" + strconv.Itoa(port)
}

func TestCallerListener(t *testing.T) {
	cfg := testConfig()
	cfg.Local = freeAddr(t)
	cfg.Remote = cfg.Local

	listener := NewDriver(srt.ModeListener, cfg)
	caller := NewDriver(srt.ModeCaller, cfg)

	done := make(chan error, 1)
	go func() {
		done <- listener.Run(context.Background())
	}()

	require.Nil(t, caller.Run(context.Background()))
	require.Nil(t, <-done)

	require.Equal(t, [][]byte{
		[]byte("Caller message 0"), []byte("Caller message 1"), []byte("Caller message 2"),
	}, listener.Messages())
	require.Empty(t, caller.Messages())
}

func TestRendezvous(t *testing.T) {
	cfg1 := testConfig()
	cfg1.Local, cfg1.Peer = freeAddr(t), freeAddr(t)

	cfg2 := cfg1
	cfg2.Local, cfg2.Peer = cfg1.Peer, cfg1.Local

	peer1 := NewDriver(srt.ModeRendezvous, cfg1)
	peer2 := NewDriver(srt.ModeRendezvous, cfg2)

	done := make(chan error, 1)
	go func() {
		done <- peer2.Run(context.Background())
	}()

	require.Nil(t, peer1.Run(context.Background()))
	require.Nil(t, <-done)

	expected := [][]byte{
		[]byte("Rendezvous message 0"), []byte("Rendezvous message 1"), []byte("Rendezvous message 2"),
	}
	require.Equal(t, expected, peer1.Messages())
	require.Equal(t, expected, peer2.Messages())
}

func TestConnectTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Remote = freeAddr(t)
	cfg.ConnTimeout = 200

	// timeout ends scenario without error
	require.Nil(t, NewDriver(srt.ModeCaller, cfg).Run(context.Background()))
}

func TestRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Local = freeAddr(t)
	cfg.Remote = cfg.Local

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewDriver(srt.ModeListener, cfg)

	done := make(chan error, 1)
	go func() {
		done <- listener.Run(ctx)
	}()

	cfg.MessageAPI = false

	err := NewDriver(srt.ModeCaller, cfg).Run(context.Background())
	require.ErrorIs(t, err, srt.ErrConnectionRefused)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSendTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Local = freeAddr(t)
	cfg.Remote = cfg.Local
	cfg.SendTimeout = 200

	// peer never reads and has room for one message only
	opts := cfg.Options()
	opts.RecvBuffer = 20

	ln := srt.NewSession()
	require.Nil(t, ln.Configure(opts))
	require.Nil(t, ln.Listen(cfg.Local, 1))
	defer ln.Close()

	// timeout ends scenario without error
	start := time.Now()
	require.Nil(t, NewDriver(srt.ModeCaller, cfg).Run(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	accepted, err := ln.Accept(context.Background())
	require.Nil(t, err)
	defer accepted.Close()

	b, err := accepted.Receive(context.Background())
	require.Nil(t, err)
	require.Equal(t, "Caller message 0", string(b))
}

func TestCancel(t *testing.T) {
	port, err := udp.GetFreePort()
	require.Nil(t, err)

	cfg := testConfig()
	cfg.Local = "127.0.0.1:" + strconv.Itoa(port)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err = NewDriver(srt.ModeListener, cfg).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)

	// port is released after cancel
	require.True(t, udp.IsPortAvailable(port))

	err = NewDriver(0, cfg).Run(context.Background())
	require.NotNil(t, err)
}

func TestLoadConfig(t *testing.T) {
	_, err := app.Init("viscasrt", []string{"-c", "{srt: {latency: 120, count: 2, messageapi: false}}"})
	require.Nil(t, err)

	cfg := LoadConfig()
	require.Equal(t, 2, cfg.Count)
	require.Equal(t, "127.0.0.1:9000", cfg.Local)
	require.Equal(t, "127.0.0.1:9001", NewDriver(srt.ModeRendezvous, cfg).Remote)
	require.Equal(t, "127.0.0.1:9000", NewDriver(srt.ModeCaller, cfg).Remote)

	opts := cfg.Options()
	require.Equal(t, 120*time.Millisecond, opts.Latency)
	require.Equal(t, 3*time.Second, opts.ConnectTimeout)
	require.False(t, opts.MessageAPI)
	require.False(t, opts.Rendezvous)
}
