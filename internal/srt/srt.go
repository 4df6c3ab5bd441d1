package srt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/viscasrt/viscasrt/internal/app"
	"github.com/viscasrt/viscasrt/pkg/srt"
	"go.uber.org/multierr"
)

// Config - `srt:` section, all timeouts in milliseconds
type Config struct {
	Local    string `yaml:"local"`
	Remote   string `yaml:"remote"` // caller
	Peer     string `yaml:"peer"`   // rendezvous
	Backlog  int    `yaml:"backlog"`
	Count    int    `yaml:"count"`
	Interval int    `yaml:"interval"`

	RecvBuffer    int  `yaml:"rcvbuf"`
	SendBuffer    int  `yaml:"sndbuf"`
	ConnTimeout   int  `yaml:"conntimeo"`
	AcceptTimeout int  `yaml:"accepttimeo"`
	SendTimeout   int  `yaml:"sndtimeo"`
	RecvTimeout   int  `yaml:"rcvtimeo"`
	PeerIdle      int  `yaml:"peeridletimeo"`
	Latency       int  `yaml:"latency"`
	PayloadSize   int  `yaml:"payloadsize"`
	MessageAPI    bool `yaml:"messageapi"`
}

func DefaultConfig() Config {
	opts := srt.DefaultOptions()
	return Config{
		Local:    "127.0.0.1:9000",
		Remote:   "127.0.0.1:9000",
		Peer:     "127.0.0.1:9001",
		Backlog:  1,
		Count:    5,
		Interval: 1000,

		RecvBuffer:    opts.RecvBuffer,
		SendBuffer:    opts.SendBuffer,
		ConnTimeout:   ms(opts.ConnectTimeout),
		AcceptTimeout: ms(opts.AcceptTimeout),
		SendTimeout:   ms(opts.SendTimeout),
		RecvTimeout:   ms(opts.RecvTimeout),
		PeerIdle:      ms(opts.PeerIdleTimeout),
		Latency:       ms(opts.Latency),
		PayloadSize:   opts.PayloadSize,
		MessageAPI:    opts.MessageAPI,
	}
}

// LoadConfig - defaults overridden by `srt:` section of app configs
func LoadConfig() Config {
	var cfg struct {
		Mod Config `yaml:"srt"`
	}

	cfg.Mod = DefaultConfig()

	app.LoadConfig(&cfg)
	app.Info["srt"] = cfg.Mod

	return cfg.Mod
}

func (c Config) Options() srt.Options {
	return srt.Options{
		RecvBuffer:      c.RecvBuffer,
		SendBuffer:      c.SendBuffer,
		ConnectTimeout:  duration(c.ConnTimeout),
		AcceptTimeout:   duration(c.AcceptTimeout),
		SendTimeout:     duration(c.SendTimeout),
		RecvTimeout:     duration(c.RecvTimeout),
		PeerIdleTimeout: duration(c.PeerIdle),
		Latency:         duration(c.Latency),
		PayloadSize:     c.PayloadSize,
		MessageAPI:      c.MessageAPI,
	}
}

// Driver runs one session scenario end to end for selected mode
type Driver struct {
	Mode    srt.Mode
	Local   string // listener and rendezvous
	Remote  string // caller and rendezvous
	Backlog int
	Count   int // messages to send, zero - until interrupt
	Options srt.Options

	Interval time.Duration

	log      zerolog.Logger
	messages [][]byte
	mu       sync.Mutex
}

func NewDriver(mode srt.Mode, cfg Config) *Driver {
	remote := cfg.Remote
	if mode == srt.ModeRendezvous {
		remote = cfg.Peer
	}

	return &Driver{
		Mode:     mode,
		Local:    cfg.Local,
		Remote:   remote,
		Backlog:  cfg.Backlog,
		Count:    cfg.Count,
		Interval: duration(cfg.Interval),
		Options:  cfg.Options(),
	}
}

// Run returns nil when scenario ends with timeout or peer close, and
// context error on cancel. Sessions are closed on every exit path.
func (d *Driver) Run(ctx context.Context) error {
	d.log = app.GetLogger("srt")

	switch d.Mode {
	case srt.ModeCaller:
		return d.runCaller(ctx)
	case srt.ModeListener:
		return d.runListener(ctx)
	case srt.ModeRendezvous:
		return d.runRendezvous(ctx)
	}
	return fmt.Errorf("srt: unknown mode: %d", d.Mode)
}

// Messages - payloads received by driver
func (d *Driver) Messages() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messages
}

func (d *Driver) runCaller(ctx context.Context) (err error) {
	s := srt.NewSession()
	defer d.close(s, &err)

	if err = s.Configure(d.Options); err != nil {
		return
	}

	d.log.Info().Str("remote", d.Remote).Msg("[srt] connect")

	if err = s.Connect(ctx, d.Remote); err != nil {
		return d.stop(err)
	}

	d.log.Info().Str("remote", d.Remote).Dur("latency", s.Latency()).Msg("[srt] connected")

	for i := 0; d.Count <= 0 || i < d.Count; i++ {
		msg := fmt.Sprintf("Caller message %d", i)
		if err = s.Send(ctx, []byte(msg)); err != nil {
			return d.stop(err)
		}

		d.log.Debug().Str("msg", msg).Msg("[srt] sent")

		if err = sleep(ctx, d.Interval); err != nil {
			return
		}
	}

	return
}

func (d *Driver) runListener(ctx context.Context) (err error) {
	ln := srt.NewSession()
	defer d.close(ln, &err)

	if err = ln.Configure(d.Options); err != nil {
		return
	}

	if err = ln.Listen(d.Local, d.Backlog); err != nil {
		return d.stop(err)
	}

	d.log.Info().Stringer("addr", ln.LocalAddr()).Msg("[srt] listen")

	conn, err := ln.Accept(ctx)
	if err != nil {
		return d.stop(err)
	}

	// accepted session closes before listening one
	defer d.close(conn, &err)

	d.log.Info().Stringer("remote", conn.RemoteAddr()).Msg("[srt] accepted")

	for {
		var b []byte
		if b, err = conn.Receive(ctx); err != nil {
			return d.stop(err)
		}

		d.received(b)
	}
}

func (d *Driver) runRendezvous(ctx context.Context) (err error) {
	s := srt.NewSession()
	defer d.close(s, &err)

	opts := d.Options
	opts.Rendezvous = true

	if err = s.Configure(opts); err != nil {
		return
	}

	d.log.Info().Str("local", d.Local).Str("remote", d.Remote).Msg("[srt] rendezvous")

	if err = s.Rendezvous(ctx, d.Local, d.Remote); err != nil {
		return d.stop(err)
	}

	d.log.Info().Str("remote", d.Remote).Dur("latency", s.Latency()).Msg("[srt] connected")

	for i := 0; d.Count <= 0 || i < d.Count; i++ {
		msg := fmt.Sprintf("Rendezvous message %d", i)
		if err = s.Send(ctx, []byte(msg)); err != nil {
			return d.stop(err)
		}

		d.log.Debug().Str("msg", msg).Msg("[srt] sent")

		var b []byte
		switch b, err = s.Receive(ctx); {
		case err == nil:
			d.received(b)
		case !errors.Is(err, srt.ErrReceiveTimeout):
			return d.stop(err)
		}

		if err = sleep(ctx, d.Interval); err != nil {
			return
		}
	}

	return nil
}

func (d *Driver) received(b []byte) {
	d.log.Debug().Str("msg", string(b)).Msg("[srt] received")

	d.mu.Lock()
	d.messages = append(d.messages, b)
	d.mu.Unlock()
}

// stop turns end of scenario errors into clean exit
func (d *Driver) stop(err error) error {
	switch {
	case errors.Is(err, srt.ErrPeerClosed):
		d.log.Info().Msg("[srt] closed by peer")
		return nil
	case srt.IsTimeout(err):
		d.log.Warn().Err(err).Msg("[srt] timeout")
		return nil
	}
	return err
}

func (d *Driver) close(s *srt.Session, err *error) {
	multierr.AppendInto(err, s.Close())
	d.log.Debug().Stringer("mode", s.Mode()).Msg("[srt] close")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func ms(d time.Duration) int {
	return int(d / time.Millisecond)
}
