package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/viscasrt/viscasrt/pkg/shell"
	"github.com/viscasrt/viscasrt/pkg/yaml"
)

const DefaultConfig = "viscasrt.yaml"

func LoadConfig(v any) {
	for _, data := range configs {
		if err := yaml.Unmarshal(data, v); err != nil {
			Logger.Warn().Err(err).Msg("[app] read config")
		}
	}
}

// MergedConfig - all loaded configs as one YAML document
func MergedConfig() ([]byte, error) {
	return yaml.Merge(configs...)
}

var configs [][]byte

func initConfig(confs []string) {
	configs = nil
	ConfigPath = ""

	if confs == nil {
		confs = []string{DefaultConfig}
	}

	for _, conf := range confs {
		if len(conf) == 0 {
			continue
		}
		if conf[0] == '{' {
			// config as raw YAML or JSON
			configs = append(configs, []byte(conf))
		} else if data := parseConfString(conf); data != nil {
			configs = append(configs, data)
		} else {
			// config as file
			if ConfigPath == "" {
				ConfigPath = conf
			}

			data, _ := os.ReadFile(conf)
			if data == nil {
				continue
			}

			data = []byte(shell.ReplaceEnvVars(string(data)))
			configs = append(configs, data)
		}
	}

	if ConfigPath != "" {
		if !filepath.IsAbs(ConfigPath) {
			if cwd, err := os.Getwd(); err == nil {
				ConfigPath = filepath.Join(cwd, ConfigPath)
			}
		}
		Info["config_path"] = ConfigPath
	}
}

func parseConfString(s string) []byte {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return nil
	}

	items := strings.Split(s[:i], ".")
	if len(items) < 2 {
		return nil
	}

	// `srt.latency=120` => `{srt: {latency: 120}}`
	var pre string
	var suf = s[i+1:]
	for _, item := range items {
		pre += "{" + item + ": "
		suf += "}"
	}

	return []byte(pre + suf)
}
