package app

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var Version = "0.3.0"

var ConfigPath string
var Info = map[string]any{
	"version": Version,
}

// Flag - command line shortcut for config key, ex. `--latency 120` is
// the same as `-c srt.latency=120`
type Flag struct {
	Name  string
	Key   string // config path with dots
	Usage string
	Bool  bool // value can be omitted
	Text  bool // value is always a string, ex. `--source null`
}

// Init parses common and module flags, loads configs and creates logger.
// Returns positional arguments left after flags.
func Init(name string, args []string, options ...Flag) ([]string, error) {
	var confs []string
	var verbose int
	var version bool

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringArrayVarP(&confs, "config", "c", nil, "config (path to file, raw YAML or key.path=value), support multiple")
	flags.CountVarP(&verbose, "verbose", "v", "increase log level (-v debug, -vv trace)")
	flags.BoolVar(&version, "version", false, "print the version of the application and exit")
	flags.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", name)
		flags.PrintDefaults()
	}

	for _, option := range options {
		flags.String(option.Name, "", option.Usage)
		if option.Bool {
			flags.Lookup(option.Name).NoOptDefVal = "true"
		}
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if confs == nil {
		confs = []string{DefaultConfig}
	}

	// flags override any config
	for _, option := range options {
		if f := flags.Lookup(option.Name); f.Changed {
			value := f.Value.String()
			if option.Text {
				value = strconv.Quote(value)
			} else {
				value = quote(value)
			}
			confs = append(confs, option.Key+"="+value)
		}
	}

	if version {
		printVersion(name)
		os.Exit(0)
	}

	initConfig(confs)
	initLogger(verbose)

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	Logger.Info().Str("version", Version).Str("platform", platform).Msg(name)
	Logger.Debug().Str("version", runtime.Version()).Msg("build")

	if ConfigPath != "" {
		Logger.Info().Str("path", ConfigPath).Msg("config")
	}

	return flags.Args(), nil
}

func printVersion(name string) {
	vcsRevision := ""
	vcsTime := time.Now().Local()
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if len(setting.Value) > 7 {
					vcsRevision = "(" + setting.Value[:7] + ")"
				} else {
					vcsRevision = "(" + setting.Value + ")"
				}
			case "vcs.time":
				vcsTime, _ = time.Parse(time.RFC3339, setting.Value)
			}
		}
	}
	fmt.Printf("%s version %s%s: %s %s/%s\n", name, Version, vcsRevision, vcsTime.Local().String(), runtime.GOOS, runtime.GOARCH)
}

// quote strings with YAML flow symbols, ex. `127.0.0.1:9000`
func quote(s string) string {
	if strings.ContainsAny(s, ":{}[],#&*!|>'\"%@`") {
		return strconv.Quote(s)
	}
	return s
}
