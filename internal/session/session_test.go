package session_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/matst80/rfbhost/internal/backend"
	"github.com/matst80/rfbhost/internal/host"
	"github.com/matst80/rfbhost/internal/session"
	"github.com/matst80/rfbhost/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type screen struct{ ep backend.Endpoint }

func (s *screen) Display() int        { return s.ep.Display }
func (s *screen) DisplayName() string { return s.ep.Name }

type rejectAll struct{}

func (rejectAll) Authenticate(context.Context, net.Conn) error { return errors.New("bad password") }

func start(t *testing.T, store state.Store, opts ...backend.Option) *host.Host {
	t.Helper()
	f, err := backend.NewShareable(backend.Endpoint{Name: "passive"}, func(ep backend.Endpoint) (*screen, error) {
		return &screen{ep: ep}, nil
	}, opts...)
	require.NoError(t, err)
	h, err := host.New(f, session.New, host.WithBasePort(0), host.WithBindHost("127.0.0.1"), host.WithStore(store))
	require.NoError(t, err)
	return h
}

func TestPassive_EndsWhenClientLeaves(t *testing.T) {
	store := state.NewMemory()
	h := start(t, store)
	defer h.Close()

	c, err := net.Dial("tcp", h.Addr().String())
	require.NoError(t, err)
	_, err = c.Write([]byte("ignored"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return store.Stats().Active == 1 }, 5*time.Second, 5*time.Millisecond)

	s := h.Sessions()[0].(*session.Passive)
	assert.Equal(t, "passive", s.Backend().DisplayName())

	require.NoError(t, c.Close())
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after client close")
	}
	require.Eventually(t, func() bool { return store.Stats().Active == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Len(t, h.Sessions(), 1)
}

func TestPassive_ClosedByHost(t *testing.T) {
	h := start(t, state.NewMemory())

	c, err := net.Dial("tcp", h.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return len(h.Sessions()) == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.Close())
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestPassive_AuthenticatorRejects(t *testing.T) {
	store := state.NewMemory()
	h := start(t, store, backend.WithAuthenticator(rejectAll{}))
	defer h.Close()

	c, err := net.Dial("tcp", h.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool { return store.Stats().Active == 0 && store.Stats().Total == 1 }, 5*time.Second, 5*time.Millisecond)
}

func TestPassive_CloseTwice(t *testing.T) {
	h := start(t, state.NewMemory())
	defer h.Close()

	c, err := net.Dial("tcp", h.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return len(h.Sessions()) == 1 }, 5*time.Second, 5*time.Millisecond)

	s := h.Sessions()[0]
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), net.ErrClosed)
}
