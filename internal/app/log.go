package app

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

func GetLogger(module string) zerolog.Logger {
	if s, ok := modules[module]; ok {
		lvl, err := zerolog.ParseLevel(s)
		if err == nil {
			return Logger.Level(lvl)
		}
		Logger.Warn().Err(err).Caller().Send()
	}

	return Logger
}

// initLogger support:
// - output: stderr, stdout
// - format: empty (autodetect color support), color, json, text
// - time:   empty (disable timestamp), UNIXMS, UNIXMICRO, UNIXNANO
// - level:  disabled, trace, debug, info, warn, error...
// - other keys are per module levels, ex. `srt: debug`
func initLogger(verbose int) {
	var cfg struct {
		Mod map[string]string `yaml:"log"`
	}

	cfg.Mod = map[string]string{}
	for k, v := range defaults {
		cfg.Mod[k] = v
	}

	LoadConfig(&cfg)

	modules = cfg.Mod

	switch {
	case verbose > 1:
		modules["level"] = "trace"
	case verbose == 1:
		modules["level"] = "debug"
	}

	var writer io.Writer = os.Stderr
	if modules["output"] == "stdout" {
		writer = os.Stdout
	}

	Logger = NewLogger(writer, modules["format"], modules["level"], modules["time"])
}

func NewLogger(writer io.Writer, format, level, timeFormat string) zerolog.Logger {
	if format != "json" {
		console := &zerolog.ConsoleWriter{Out: writer}

		switch format {
		case "text":
			console.NoColor = true
		case "color":
			console.NoColor = false
		default:
			// autodetection if output support color
			if f, ok := writer.(*os.File); ok {
				console.NoColor = !isatty.IsTerminal(f.Fd())
			} else {
				console.NoColor = true
			}
		}

		if timeFormat != "" {
			console.TimeFormat = "15:04:05.000"
		} else {
			console.PartsOrder = []string{
				zerolog.LevelFieldName,
				zerolog.CallerFieldName,
				zerolog.MessageFieldName,
			}
		}

		writer = console
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(writer).Level(lvl)

	if timeFormat != "" {
		zerolog.TimeFieldFormat = timeFormat
		logger = logger.With().Timestamp().Logger()
	}

	return logger
}

var Logger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel)

var defaults = map[string]string{
	"format": "",
	"level":  "info",
	"output": "stderr",
	"time":   zerolog.TimeFormatUnixMs,
}

// modules log levels
var modules = map[string]string{}
