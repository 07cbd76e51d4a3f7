// Package wsbridge exposes websocket clients (noVNC and friends) as plain
// net.Conn streams so a host can serve them like TCP connections.
package wsbridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/matst80/rfbhost/internal/obs"
)

// DefaultPath is where websocket clients connect.
const DefaultPath = "/websockify"

// Listener accepts websocket upgrades on an HTTP server and hands each
// upgraded stream out through Accept.
type Listener struct {
	tcp      net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	conns    chan net.Conn
	closed   chan struct{}
	once     sync.Once

	// serveErr is written once before failed is closed.
	serveErr error
	failed   chan struct{}
}

// Listen serves websocket clients on addr at DefaultPath.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	return ListenPath(DefaultPath)(ctx, addr)
}

// ListenPath returns a listen function serving websocket clients at path.
func ListenPath(path string) func(ctx context.Context, addr string) (net.Listener, error) {
	return func(ctx context.Context, addr string) (net.Listener, error) {
		var lc net.ListenConfig
		tcp, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return Serve(tcp, path), nil
	}
}

// Serve runs the upgrade server on tcp and returns the listener handing out
// the upgraded clients. If tcp fails, Accept returns that failure.
func Serve(tcp net.Listener, path string) *Listener {
	l := &Listener{
		tcp: tcp,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"binary"},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
		failed: make(chan struct{}),
	}
	r := chi.NewRouter()
	r.Get(path, l.upgrade)
	l.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		err := l.srv.Serve(tcp)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		obs.Error("wsbridge.serve", obs.Fields{"addr": tcp.Addr().String(), "err": err.Error()})
		l.serveErr = err
		close(l.failed)
	}()
	return l
}

func (l *Listener) upgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.Debug("wsbridge.upgrade", obs.Fields{"remote": r.RemoteAddr, "err": err.Error()})
		return
	}
	c := newConn(ws)
	select {
	case l.conns <- c:
	case <-l.closed:
		_ = c.Close()
	}
}

// Accept waits for the next upgraded client.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-l.failed:
		select {
		case <-l.closed:
			return nil, net.ErrClosed
		default:
		}
		return nil, l.serveErr
	}
}

// Close stops the HTTP server. Already handed out connections stay open.
func (l *Listener) Close() error {
	err := net.ErrClosed
	l.once.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

func (l *Listener) Addr() net.Addr { return l.tcp.Addr() }
