package shell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("VISCASRT_HOST", "10.0.0.5")

	s := ReplaceEnvVars("host: ${VISCASRT_HOST}\nport: ${VISCASRT_PORT:9000}\nsource: ${VISCASRT_SOURCE}")
	require.Equal(t, "host: 10.0.0.5\nport: 9000\nsource: ${VISCASRT_SOURCE}", s)
}

func TestReplaceEnvVarsDefault(t *testing.T) {
	t.Setenv("VISCASRT_EMPTY", "")

	// default may contain colons
	s := ReplaceEnvVars("remote: ${VISCASRT_REMOTE:127.0.0.1:9000}\nsource: ${VISCASRT_EMPTY:MainCam}")
	require.Equal(t, "remote: 127.0.0.1:9000\nsource: ", s)
}
