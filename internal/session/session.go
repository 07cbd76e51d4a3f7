// Package session provides the session the rfbhost binary registers for each
// connection. It runs the authenticator when one is configured and then
// holds the connection open, discarding input, until either side closes.
// Protocol handling plugs in by supplying a different host.SessionFunc.
package session

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/matst80/rfbhost/internal/backend"
	"github.com/matst80/rfbhost/internal/host"
	"github.com/matst80/rfbhost/internal/obs"
)

// Passive is a session without protocol logic.
type Passive struct {
	conn    net.Conn
	backend backend.Backend
	host    *host.Host
	auth    backend.Authenticator
	started time.Time

	once sync.Once
	done chan struct{}
}

var _ host.Session = (*Passive)(nil)

// New is a host.SessionFunc.
func New(conn net.Conn, b backend.Backend, h *host.Host, auth backend.Authenticator) (host.Session, error) {
	s := &Passive{
		conn:    conn,
		backend: b,
		host:    h,
		auth:    auth,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	go s.run()
	go s.watch()
	return s, nil
}

func (s *Passive) run() {
	defer s.end()
	if s.auth != nil {
		if err := s.auth.Authenticate(s.host.Context(), s.conn); err != nil {
			obs.Info("session.auth.rejected", obs.Fields{"remote": s.conn.RemoteAddr().String(), "err": err.Error()})
			return
		}
	}
	if _, err := io.Copy(io.Discard, s.conn); err != nil {
		select {
		case <-s.done:
		default:
			obs.Debug("session.read", obs.Fields{"remote": s.conn.RemoteAddr().String(), "err": err.Error()})
		}
	}
}

// watch closes the session when the host shuts down.
func (s *Passive) watch() {
	select {
	case <-s.host.Context().Done():
		_ = s.Close()
	case <-s.done:
	}
}

func (s *Passive) end() {
	_ = s.Close()
	s.host.Detach(s)
}

// Close closes the connection once.
func (s *Passive) Close() error {
	err := net.ErrClosed
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
		obs.SessionDurationSeconds.Observe(time.Since(s.started).Seconds())
		obs.Debug("session.closed", obs.Fields{"display": s.backend.Display(), "remote": s.conn.RemoteAddr().String()})
	})
	return err
}

// Backend returns the backend the session drives.
func (s *Passive) Backend() backend.Backend { return s.backend }

// Done is closed once the session has closed.
func (s *Passive) Done() <-chan struct{} { return s.done }
