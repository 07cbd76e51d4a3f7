//go:build linux

package netutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func acceptOne(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	c, err := ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sockopt(t *testing.T, c net.Conn, level, opt int) int {
	t.Helper()
	raw, err := c.(*net.TCPConn).SyscallConn()
	require.NoError(t, err)
	var v int
	var gerr error
	require.NoError(t, raw.Control(func(fd uintptr) { v, gerr = unix.GetsockoptInt(int(fd), level, opt) }))
	require.NoError(t, gerr)
	return v
}

func TestListenWith_TunesAcceptedSockets(t *testing.T) {
	ln, err := ListenWith(SocketOptions{SendBuffer: 64 << 10, UserTimeout: 5 * time.Second})(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	c := acceptOne(t, ln)
	// the kernel doubles SO_SNDBUF for bookkeeping
	assert.GreaterOrEqual(t, sockopt(t, c, unix.SOL_SOCKET, unix.SO_SNDBUF), 64<<10)
	assert.Equal(t, 5000, sockopt(t, c, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT))
}

func TestListen_KernelDefaults(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	c := acceptOne(t, ln)
	assert.Equal(t, 0, sockopt(t, c, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT))
	_, tuned := ln.(*tunedListener)
	assert.False(t, tuned)
}
