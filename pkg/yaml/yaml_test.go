package yaml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	var cfg struct {
		Mod struct {
			Host string `yaml:"host"`
			Port int    `yaml:"port"`
		} `yaml:"tally"`
	}

	// later config overrides only present keys
	require.Nil(t, Unmarshal([]byte("tally:\n  host: localhost\n  port: 9000\n"), &cfg))
	require.Nil(t, Unmarshal([]byte("{tally: {port: 9001}}"), &cfg))

	require.Equal(t, "localhost", cfg.Mod.Host)
	require.Equal(t, 9001, cfg.Mod.Port)

	require.NotNil(t, Unmarshal([]byte("tally: [1"), &cfg))
}

func TestEncode(t *testing.T) {
	v := map[string]any{
		"srt": map[string]any{"latency": 200, "messageapi": true},
	}

	b, err := Encode(v, 2)
	require.Nil(t, err)
	require.Equal(t, "srt:\n  latency: 200\n  messageapi: true\n", string(b))
}

func TestMerge(t *testing.T) {
	b, err := Merge(
		[]byte("srt:\n  latency: 120\n  messageapi: true\nlog:\n  level: info\n"),
		[]byte("{srt: {latency: 200}}"),
		[]byte("log: debug"),
	)
	require.Nil(t, err)
	require.Equal(t, "log: debug\nsrt:\n  latency: 200\n  messageapi: true\n", string(b))

	_, err = Merge([]byte("srt: [1"))
	require.NotNil(t, err)
}

func TestDuration(t *testing.T) {
	var cfg struct {
		Interval Duration `yaml:"interval"`
	}

	require.Nil(t, Unmarshal([]byte("interval: 2"), &cfg))
	require.Equal(t, 2*time.Second, time.Duration(cfg.Interval))

	require.Nil(t, Unmarshal([]byte("interval: 0.5"), &cfg))
	require.Equal(t, 500*time.Millisecond, time.Duration(cfg.Interval))

	require.Nil(t, Unmarshal([]byte(`interval: "1.5"`), &cfg))
	require.Equal(t, 1500*time.Millisecond, time.Duration(cfg.Interval))

	require.Nil(t, Unmarshal([]byte("interval: 250ms"), &cfg))
	require.Equal(t, 250*time.Millisecond, time.Duration(cfg.Interval))

	require.NotNil(t, Unmarshal([]byte("interval: soon"), &cfg))
	require.Equal(t, 250*time.Millisecond, time.Duration(cfg.Interval))

	b, err := Encode(cfg, 2)
	require.Nil(t, err)
	require.Equal(t, "interval: 250ms\n", string(b))
}
