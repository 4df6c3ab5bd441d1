package shell

import (
	"context"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
)

// SignalContext - context that is canceled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var reEnv = regexp.MustCompile(`\${([^}{]+)}`)

// ReplaceEnvVars support `${NAME}` and `${NAME:default}`, unknown names
// without default stay as is
func ReplaceEnvVars(text string) string {
	return reEnv.ReplaceAllStringFunc(text, func(match string) string {
		name, def, hasDef := strings.Cut(match[2:len(match)-1], ":")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDef {
			return def
		}
		return match
	})
}
