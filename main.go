package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/viscasrt/viscasrt/internal/app"
	"github.com/viscasrt/viscasrt/internal/srt"
	"github.com/viscasrt/viscasrt/internal/tally"
	"github.com/viscasrt/viscasrt/pkg/shell"
	pkgsrt "github.com/viscasrt/viscasrt/pkg/srt"
)

const usage = `Usage: viscasrt <command> [flags]

Commands:
  tally                       send tally state (--state) or cycle all states (--cycle)
  tally-listen                decode and log incoming tally messages
  srt <mode> [peer2]          run SRT session scenario, mode: caller, listener, rendezvous
  config                      print merged config

Run 'viscasrt <command> --help' for command flags.
`

var tallyFlags = []app.Flag{
	{Name: "host", Key: "tally.host", Usage: "tally receiver host (default localhost)", Text: true},
	{Name: "port", Key: "tally.port", Usage: "tally receiver port (default 9000)"},
	{Name: "source", Key: "tally.source", Usage: "NDI source name (default MainCam)", Text: true},
	{Name: "state", Key: "tally.state", Usage: "tally state: 0 off, 1 program, 2 preview, 3 both"},
	{Name: "cycle", Key: "tally.cycle", Usage: "cycle through all tally states", Bool: true},
	{Name: "interval", Key: "tally.interval", Usage: "interval between states in cycle mode, seconds or duration, ex. 0.5 or 500ms (default 2)"},
}

var listenFlags = []app.Flag{
	{Name: "listen", Key: "tally.listen", Usage: "listen address (default :9000)", Text: true},
}

var srtFlags = []app.Flag{
	{Name: "local", Key: "srt.local", Usage: "listener and rendezvous local address (default 127.0.0.1:9000)", Text: true},
	{Name: "remote", Key: "srt.remote", Usage: "caller remote address (default 127.0.0.1:9000)", Text: true},
	{Name: "peer", Key: "srt.peer", Usage: "rendezvous peer address (default 127.0.0.1:9001)", Text: true},
	{Name: "backlog", Key: "srt.backlog", Usage: "listener queue size"},
	{Name: "count", Key: "srt.count", Usage: "messages to send, 0 - until interrupt (default 5)"},
	{Name: "interval", Key: "srt.interval", Usage: "interval between messages, ms (default 1000)"},
	{Name: "rcvbuf", Key: "srt.rcvbuf", Usage: "receive buffer, bytes"},
	{Name: "sndbuf", Key: "srt.sndbuf", Usage: "send buffer, bytes"},
	{Name: "conntimeo", Key: "srt.conntimeo", Usage: "connect timeout, ms (default 3000)"},
	{Name: "accepttimeo", Key: "srt.accepttimeo", Usage: "accept timeout, ms (default 0 - wait)"},
	{Name: "sndtimeo", Key: "srt.sndtimeo", Usage: "send timeout, ms (default 3000)"},
	{Name: "rcvtimeo", Key: "srt.rcvtimeo", Usage: "receive timeout, ms (default 3000)"},
	{Name: "peeridletimeo", Key: "srt.peeridletimeo", Usage: "peer idle timeout, ms (default 5000)"},
	{Name: "latency", Key: "srt.latency", Usage: "latency, ms (default 200)"},
	{Name: "payloadsize", Key: "srt.payloadsize", Usage: "max payload per packet, bytes (default 1316)"},
	{Name: "messageapi", Key: "srt.messageapi", Usage: "keep message boundaries (default true)", Bool: true},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := shell.SignalContext(context.Background())
	defer cancel()

	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error

	switch cmd {
	case "tally":
		err = runTally(ctx, args)
	case "tally-listen":
		err = runTallyListen(ctx, args)
	case "srt":
		err = runSRT(ctx, args)
	case "config":
		err = runConfig(args)
	default:
		// support `viscasrt --version` and `viscasrt --help`
		if _, err = app.Init("viscasrt", append([]string{cmd}, args...)); err == nil {
			err = errors.New("unknown command: " + cmd)
		}
		fmt.Fprint(os.Stderr, usage)
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, pflag.ErrHelp):
		return 0
	}

	app.Logger.Error().Err(err).Msg(cmd)
	return 1
}

func runTally(ctx context.Context, args []string) error {
	if _, err := app.Init("tally", args, tallyFlags...); err != nil {
		return err
	}

	cfg := tally.LoadConfig()

	src, err := cfg.States()
	if err != nil {
		return err
	}

	return tally.Send(ctx, cfg, src)
}

func runTallyListen(ctx context.Context, args []string) error {
	if _, err := app.Init("tally-listen", args, listenFlags...); err != nil {
		return err
	}

	cfg := tally.LoadConfig()

	return tally.Listen(ctx, cfg.Listen, nil)
}

func runSRT(ctx context.Context, args []string) error {
	args, err := app.Init("srt", args, srtFlags...)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return errors.New("srt: mode is required: caller, listener, rendezvous")
	}

	mode, err := pkgsrt.ParseMode(args[0])
	if err != nil {
		return err
	}

	cfg := srt.LoadConfig()

	// second rendezvous peer swaps addresses
	if mode == pkgsrt.ModeRendezvous && len(args) > 1 && args[1] == "peer2" {
		cfg.Local, cfg.Peer = cfg.Peer, cfg.Local
	}

	return srt.NewDriver(mode, cfg).Run(ctx)
}

func runConfig(args []string) error {
	if _, err := app.Init("config", args); err != nil {
		return err
	}

	b, err := app.MergedConfig()
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(b)
	return err
}
