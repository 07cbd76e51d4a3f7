// Package netutil opens listening sockets with the options rfbhost relies on.
package netutil

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/matst80/rfbhost/internal/obs"
)

// ErrNoSocket is returned by Tune for connections without a raw socket.
var ErrNoSocket = errors.New("netutil: connection has no raw socket")

// SocketOptions tune every accepted connection. Zero values keep the kernel
// defaults.
type SocketOptions struct {
	// SendBuffer is the SO_SNDBUF size in bytes. Framebuffer updates are
	// large bursts; a bigger buffer lets a slow reader lag without blocking
	// the encoder.
	SendBuffer int
	// UserTimeout bounds how long unacknowledged data may sit before the
	// kernel drops the connection (TCP_USER_TIMEOUT, linux only).
	UserTimeout time.Duration
}

func (o SocketOptions) empty() bool { return o.SendBuffer <= 0 && o.UserTimeout <= 0 }

// Addr joins bindHost with the port basePort+display.
func Addr(bindHost string, basePort, display int) string {
	return net.JoinHostPort(bindHost, strconv.Itoa(basePort+display))
}

// Listen opens a TCP listener on addr. Accepted connections get TCP
// keep-alives.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	return ListenWith(SocketOptions{})(ctx, addr)
}

// ListenWith returns a listen function whose accepted connections carry opts.
func ListenWith(opts SocketOptions) func(ctx context.Context, addr string) (net.Listener, error) {
	return func(ctx context.Context, addr string) (net.Listener, error) {
		lc := net.ListenConfig{KeepAlive: 30 * time.Second}
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if opts.empty() {
			return ln, nil
		}
		return &tunedListener{Listener: ln, opts: opts}, nil
	}
}

type tunedListener struct {
	net.Listener
	opts SocketOptions
}

// Accept hands out the connection even when tuning fails; the kernel
// defaults still work.
func (l *tunedListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := Tune(c, l.opts); err != nil {
		obs.Warn("netutil.tune", obs.Fields{"remote": c.RemoteAddr().String(), "err": err.Error()})
	}
	return c, nil
}

// Tune applies opts to the socket behind c.
func Tune(c net.Conn, opts SocketOptions) error {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return ErrNoSocket
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) { serr = setOptions(int(fd), opts) }); err != nil {
		return err
	}
	return serr
}
