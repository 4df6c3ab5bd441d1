package udp

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSender(t *testing.T) {
	srv, err := NewUDPServer("127.0.0.1:0")
	require.Nil(t, err)
	defer srv.Close()

	snd, err := Dial("127.0.0.1:" + strconv.Itoa(srv.Port()))
	require.Nil(t, err)
	defer snd.Close()

	require.Equal(t, srv.Addr().String(), snd.RemoteAddr())

	_, err = snd.Write([]byte("hello"))
	require.Nil(t, err)

	require.Nil(t, srv.SetReadDeadline(time.Now().Add(time.Second)))

	b := make([]byte, 16)
	n, addr, err := srv.ReadFrom(b)
	require.Nil(t, err)
	require.Equal(t, "hello", string(b[:n]))
	require.NotNil(t, addr)
}

func TestGetFreePort(t *testing.T) {
	port, err := GetFreePort()
	require.Nil(t, err)
	require.NotZero(t, port)
	require.True(t, IsPortAvailable(port))
}
