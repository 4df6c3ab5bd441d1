//go:build unix

package shell

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalContext(t *testing.T) {
	ctx, cancel := SignalContext(context.Background())
	defer cancel()

	require.Nil(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		require.FailNow(t, "context not canceled")
	}
}
