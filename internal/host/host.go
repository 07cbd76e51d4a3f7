package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matst80/rfbhost/internal/backend"
	"github.com/matst80/rfbhost/internal/netutil"
	"github.com/matst80/rfbhost/internal/obs"
	"github.com/matst80/rfbhost/internal/state"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session is a client session owned by a host. Close must be safe to call
// more than once.
type Session interface {
	Close() error
}

// SessionFunc builds the session for an accepted connection. It runs on the
// accept goroutine and must not block on the connection; protocol work
// belongs on the session's own goroutines. On error the host closes conn.
type SessionFunc func(conn net.Conn, b backend.Backend, h *Host, auth backend.Authenticator) (Session, error)

// Host accepts connections for one endpoint and tracks their sessions.
type Host struct {
	factory    backend.Factory
	newSession SessionFunc
	opts       options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	ln      net.Listener
	err     error

	addr     net.Addr
	done     chan struct{}
	sessions registry
}

// New binds the listener for f's display and starts the accept loop. When
// the listener cannot be opened the error wraps ErrBind and no loop runs.
func New(f backend.Factory, newSession SessionFunc, opts ...Option) (*Host, error) {
	if f == nil || newSession == nil {
		return nil, errors.New("host: factory and session func are required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	addr := netutil.Addr(o.bindHost, o.basePort, f.Display())
	fields := obs.Fields{"display": f.Display(), "name": f.DisplayName(), "addr": addr}

	ln, err := o.listen(o.ctx, addr)
	if err != nil {
		fields["err"] = err.Error()
		obs.Error("host.bind", fields)
		obs.ErrorsTotal.WithLabelValues("bind").Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
	}

	ctx, cancel := context.WithCancel(o.ctx)
	h := &Host{
		factory:    f,
		newSession: newSession,
		opts:       o,
		ctx:        ctx,
		cancel:     cancel,
		running:    true,
		ln:         ln,
		addr:       ln.Addr(),
		done:       make(chan struct{}),
	}
	fields["addr"] = h.addr.String()
	fields["shared"] = f.Shareable()
	obs.Info("host.listen", fields)
	go h.acceptLoop(ln)
	return h, nil
}

func (h *Host) acceptLoop(ln net.Listener) {
	defer close(h.done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			h.mu.Lock()
			running := h.running
			if running {
				h.running = false
				h.err = fmt.Errorf("%w: %w", ErrUnexpectedAccept, err)
			}
			h.mu.Unlock()
			if !running {
				obs.Debug("host.accept.closed", obs.Fields{"display": h.Display(), "name": h.DisplayName()})
				return
			}
			obs.Error("host.accept", obs.Fields{"display": h.Display(), "name": h.DisplayName(), "err": err.Error()})
			obs.ErrorsTotal.WithLabelValues("accept").Inc()
			return
		}
		h.handle(conn)
	}
}

func (h *Host) handle(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	_, span := h.opts.tracer.Start(h.ctx, "host.accept", trace.WithAttributes(
		attribute.Int("rfb.display", h.Display()),
		attribute.String("net.peer.addr", remote),
	))
	defer span.End()
	obs.AcceptedTotal.Inc()

	if h.opts.limiter != nil && !h.opts.limiter.Allow(remote) {
		obs.RefusedTotal.Inc()
		obs.Info("host.refused", obs.Fields{"display": h.Display(), "remote": remote})
		span.SetStatus(codes.Error, "rate limited")
		_ = conn.Close()
		return
	}

	b, err := h.factory.Instance(true)
	if err != nil {
		h.reject(conn, span, "backend", err)
		return
	}
	s, err := h.newSession(conn, b, h, h.factory.Authenticator())
	if err == nil && s == nil {
		err = errors.New("session func returned nil session")
	}
	if err != nil {
		h.reject(conn, span, "session", err)
		return
	}

	e := &entry{id: uuid.NewString(), session: s, remote: remote, started: time.Now()}
	h.publish(e)
	pos, ok, ended := h.sessions.add(e)
	if !ok {
		// shutdown drained the registry while this session was being built
		obs.Info("host.session.late", obs.Fields{"display": h.Display(), "remote": remote})
		_ = s.Close()
		h.unpublish(e)
		return
	}
	span.SetAttributes(attribute.String("rfb.session", e.id), attribute.Int("rfb.position", pos))
	if ended {
		h.unpublish(e)
		return
	}
	obs.Info("host.session.registered", obs.Fields{"display": h.Display(), "id": e.id, "remote": remote, "position": pos})
}

// publish counts e as active and mirrors it into the store. It runs before
// the entry becomes visible so a concurrent release always follows it.
func (h *Host) publish(e *entry) {
	obs.ActiveSessions.Inc()
	if h.opts.store == nil {
		return
	}
	rec := state.Record{ID: e.id, Display: h.Display(), DisplayName: h.DisplayName(), Remote: e.remote, Started: e.started}
	ctx, cancel := context.WithTimeout(h.ctx, h.opts.storeTimeout)
	defer cancel()
	if err := h.opts.store.Register(ctx, rec); err != nil {
		obs.Error("host.store.register", obs.Fields{"id": e.id, "err": err.Error()})
		obs.ErrorsTotal.WithLabelValues("store").Inc()
	}
}

func (h *Host) unpublish(e *entry) {
	obs.ActiveSessions.Dec()
	if h.opts.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), h.opts.storeTimeout)
	defer cancel()
	if err := h.opts.store.Remove(ctx, e.id); err != nil {
		obs.Error("host.store.remove", obs.Fields{"id": e.id, "err": err.Error()})
	}
}

func (h *Host) reject(conn net.Conn, span trace.Span, kind string, err error) {
	obs.Error("host.session."+kind, obs.Fields{"display": h.Display(), "remote": conn.RemoteAddr().String(), "err": err.Error()})
	obs.ErrorsTotal.WithLabelValues(kind).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	_ = conn.Close()
}

// Close stops accepting, waits for the accept loop to exit and closes every
// session in insertion order. A listener close failure is logged, not
// returned.
func (h *Host) Close() error {
	ln := h.takeListener()
	if ln != nil {
		if err := ln.Close(); err != nil {
			obs.Error("host.close.listener", obs.Fields{"display": h.Display(), "name": h.DisplayName(), "err": fmt.Errorf("%w: %w", ErrSocketClose, err).Error()})
			obs.ErrorsTotal.WithLabelValues("socket_close").Inc()
		}
	}
	<-h.done
	h.closeSessions(h.sessions.drain())
	h.cancel()
	obs.Info("host.closed", obs.Fields{"display": h.Display(), "name": h.DisplayName()})
	return nil
}

// Stop closes every session immediately and then the listener. It does not
// wait for the accept loop; use Done for that. A listener close failure is
// returned wrapped in ErrSocketClose.
func (h *Host) Stop() error {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	h.closeSessions(h.sessions.drain())

	var err error
	if ln := h.takeListener(); ln != nil {
		if cerr := ln.Close(); cerr != nil {
			err = fmt.Errorf("%w: %w", ErrSocketClose, cerr)
			obs.ErrorsTotal.WithLabelValues("socket_close").Inc()
		}
	}
	h.cancel()
	obs.Info("host.stopped", obs.Fields{"display": h.Display(), "name": h.DisplayName()})
	return err
}

// takeListener marks the host not running and hands the listener to exactly
// one caller.
func (h *Host) takeListener() net.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	ln := h.ln
	h.ln = nil
	return ln
}

func (h *Host) closeSessions(entries []*entry) {
	for _, e := range entries {
		if err := e.session.Close(); err != nil {
			obs.Debug("host.session.close", obs.Fields{"id": e.id, "err": err.Error()})
		}
		h.release(e)
	}
}

// Detach reports that s ended on its own. The session keeps its registry
// slot; its presence record and gauge contribution are released.
func (h *Host) Detach(s Session) {
	if e := h.sessions.lookup(s); e != nil {
		h.release(e)
	}
}

func (h *Host) release(e *entry) {
	if h.sessions.finish(e) {
		h.unpublish(e)
	}
}

// Sessions returns the registered sessions in accept order.
func (h *Host) Sessions() []Session {
	entries := h.sessions.snapshot()
	out := make([]Session, len(entries))
	for i, e := range entries {
		out[i] = e.session
	}
	return out
}

// Running reports whether the host still accepts connections.
func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Err returns the accept failure that stopped a running host, if any.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed when the accept loop has exited.
func (h *Host) Done() <-chan struct{} { return h.done }

// Finished reports whether the accept loop has exited.
func (h *Host) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Context is cancelled by Close and Stop once shutdown is complete.
func (h *Host) Context() context.Context { return h.ctx }

func (h *Host) Addr() net.Addr      { return h.addr }
func (h *Host) Display() int        { return h.factory.Display() }
func (h *Host) DisplayName() string { return h.factory.DisplayName() }
func (h *Host) Shareable() bool     { return h.factory.Shareable() }
