package tally

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/viscasrt/viscasrt/internal/app"
	"github.com/viscasrt/viscasrt/pkg/tally"
	"github.com/viscasrt/viscasrt/pkg/udp"
	"github.com/viscasrt/viscasrt/pkg/yaml"
)

// Config - `tally:` section
type Config struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Source   string        `yaml:"source"`
	Interval yaml.Duration `yaml:"interval"`
	Listen   string        `yaml:"listen"`

	State *int `yaml:"state"`
	Cycle bool `yaml:"cycle"`
}

func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     9000,
		Source:   "MainCam",
		Interval: yaml.Duration(tally.DefaultInterval),
		Listen:   ":9000",
	}
}

func LoadConfig() Config {
	var cfg struct {
		Mod Config `yaml:"tally"`
	}

	cfg.Mod = DefaultConfig()

	app.LoadConfig(&cfg)
	app.Info["tally"] = cfg.Mod

	log = app.GetLogger("tally")

	return cfg.Mod
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// States - endless cycle or one selected state
func (c Config) States() (tally.Source, error) {
	switch {
	case c.Cycle:
		return tally.NewCycle(), nil
	case c.State == nil:
		return nil, errors.New("tally: state is required when not using cycle")
	case *c.State < int(tally.Off) || *c.State > int(tally.ProgramPreview):
		return nil, fmt.Errorf("tally: wrong state: %d", *c.State)
	}
	return tally.Single(tally.State(*c.State)), nil
}

// Send encodes states from src and writes one datagram per state.
// Returns nil when src is exhausted and ctx.Err() on cancel.
func Send(ctx context.Context, cfg Config, src tally.Source) error {
	sender, err := udp.Dial(cfg.Address())
	if err != nil {
		return err
	}
	defer sender.Close()

	log.Info().Str("addr", sender.RemoteAddr()).Str("source", cfg.Source).Msg("[tally] send")

	return tally.Run(ctx, src, time.Duration(cfg.Interval), func(state tally.State) error {
		msg := tally.NewMessage(cfg.Source, state)

		b, err := msg.Marshal()
		if err != nil {
			return err
		}

		if _, err = sender.Write(b); err != nil {
			return err
		}

		log.Debug().Stringer("state", state).Str("source", cfg.Source).Msg("[tally] sent")
		return nil
	})
}

// Listen decodes incoming tally datagrams until ctx is canceled.
// Malformed datagrams are logged and skipped.
func Listen(ctx context.Context, address string, handle func(msg *tally.Message, addr *net.UDPAddr)) error {
	srv, err := udp.NewUDPServer(address)
	if err != nil {
		return err
	}

	log.Info().Stringer("addr", srv.Addr()).Msg("[tally] listen")

	defer srv.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = srv.Close()
		case <-done:
		}
	}()

	b := make([]byte, tally.HeaderSize+tally.MaxSourceName)

	for {
		n, addr, err := srv.ReadFrom(b)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		msg, err := tally.Decode(b[:n])
		if err != nil {
			log.Warn().Err(err).Stringer("addr", addr).Msg("[tally] decode")
			continue
		}

		log.Info().Str("source", msg.Source).Stringer("state", msg.State).
			Time("time", time.Unix(int64(msg.Timestamp), 0)).Msg("[tally] received")

		if handle != nil {
			handle(msg, addr)
		}
	}
}

var log = app.GetLogger("tally")
