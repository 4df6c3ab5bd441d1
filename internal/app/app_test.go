package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viscasrt.yaml")
	t.Setenv("TALLY_HOST", "10.0.0.5")
	data := "tally:\n  host: ${TALLY_HOST}\n  port: 9000\nlog:\n  srt: warn\n"
	require.Nil(t, os.WriteFile(path, []byte(data), 0644))

	args, err := Init("viscasrt", []string{
		"-c", path, "-c", "{tally: {source: CamB}}", "srt", "-c", "tally.port=9001", "caller", "-v",
	})
	require.Nil(t, err)
	require.Equal(t, []string{"srt", "caller"}, args)
	require.Equal(t, path, ConfigPath)

	var cfg struct {
		Mod struct {
			Host   string `yaml:"host"`
			Port   int    `yaml:"port"`
			Source string `yaml:"source"`
		} `yaml:"tally"`
	}
	LoadConfig(&cfg)

	require.Equal(t, "10.0.0.5", cfg.Mod.Host)
	require.Equal(t, 9001, cfg.Mod.Port)
	require.Equal(t, "CamB", cfg.Mod.Source)

	require.Equal(t, zerolog.DebugLevel, Logger.GetLevel())
	require.Equal(t, zerolog.WarnLevel, GetLogger("srt").GetLevel())
	require.Equal(t, zerolog.DebugLevel, GetLogger("tally").GetLevel())
}

func TestInitMissingConfig(t *testing.T) {
	args, err := Init("viscasrt", []string{"-c", filepath.Join(t.TempDir(), "none.yaml"), "tally"})
	require.Nil(t, err)
	require.Equal(t, []string{"tally"}, args)
	require.Empty(t, configs)

	_, err = Init("viscasrt", []string{"--unknown"})
	require.NotNil(t, err)
}

func TestInitFlags(t *testing.T) {
	flags := []Flag{
		{Name: "remote", Key: "srt.remote"},
		{Name: "latency", Key: "srt.latency"},
		{Name: "messageapi", Key: "srt.messageapi", Bool: true},
	}

	args, err := Init("srt", []string{
		"-c", "{srt: {latency: 200, count: 3}}", "caller", "--remote", "127.0.0.1:9001", "--latency=120", "--messageapi",
	}, flags...)
	require.Nil(t, err)
	require.Equal(t, []string{"caller"}, args)

	var cfg struct {
		Mod struct {
			Remote     string `yaml:"remote"`
			Latency    int    `yaml:"latency"`
			Count      int    `yaml:"count"`
			MessageAPI bool   `yaml:"messageapi"`
		} `yaml:"srt"`
	}
	LoadConfig(&cfg)

	require.Equal(t, "127.0.0.1:9001", cfg.Mod.Remote)
	require.Equal(t, 120, cfg.Mod.Latency)
	require.Equal(t, 3, cfg.Mod.Count)
	require.True(t, cfg.Mod.MessageAPI)
}

func TestInitTextFlags(t *testing.T) {
	flags := []Flag{
		{Name: "source", Key: "tally.source", Text: true},
		{Name: "host", Key: "tally.host", Text: true},
		{Name: "port", Key: "tally.port"},
	}

	_, err := Init("tally", []string{
		"-c", "{tally: {}}", "--source", "null", "--host", "yes", "--port", "9001",
	}, flags...)
	require.Nil(t, err)

	var cfg struct {
		Mod struct {
			Source string `yaml:"source"`
			Host   string `yaml:"host"`
			Port   int    `yaml:"port"`
		} `yaml:"tally"`
	}
	LoadConfig(&cfg)

	require.Equal(t, "null", cfg.Mod.Source)
	require.Equal(t, "yes", cfg.Mod.Host)
	require.Equal(t, 9001, cfg.Mod.Port)
}

func TestParseConfString(t *testing.T) {
	require.Equal(t, "{srt: {latency: 120}}", string(parseConfString("srt.latency=120")))
	require.Nil(t, parseConfString("latency=120"))
	require.Nil(t, parseConfString("viscasrt.yaml"))
}

func TestMergedConfig(t *testing.T) {
	initConfig([]string{"{srt: {latency: 120, messageapi: true}}", "srt.latency=200", "{tally: {port: 9000}}"})

	b, err := MergedConfig()
	require.Nil(t, err)
	require.Equal(t, "srt:\n  latency: 200\n  messageapi: true\ntally:\n  port: 9000\n", string(b))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, "json", "debug", "")
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logger.Trace().Msg("skip")
	logger.Info().Str("mode", "caller").Msg("[srt] connected")
	require.Equal(t, `{"level":"info","mode":"caller","message":"[srt] connected"}`+"\n", buf.String())

	buf.Reset()

	logger = NewLogger(&buf, "text", "wrong", "")
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger.Info().Msg("hello")
	require.Contains(t, buf.String(), "INF hello")
}
