package host

import (
	"context"
	"net"
	"time"

	"github.com/matst80/rfbhost/internal/netutil"
	"github.com/matst80/rfbhost/internal/ratelimit"
	"github.com/matst80/rfbhost/internal/state"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBasePort is added to the display number to form the listening port.
const DefaultBasePort = 5900

// DefaultStoreTimeout bounds each presence store call made on the accept path.
const DefaultStoreTimeout = 2 * time.Second

// ListenFunc opens the host's listening socket.
type ListenFunc func(ctx context.Context, addr string) (net.Listener, error)

type options struct {
	ctx          context.Context
	basePort     int
	bindHost     string
	listen       ListenFunc
	store        state.Store
	storeTimeout time.Duration
	limiter      *ratelimit.Limiter
	tracer       trace.Tracer
}

// Option configures a Host.
type Option func(*options)

func defaultOptions() options {
	return options{
		ctx:          context.Background(),
		basePort:     DefaultBasePort,
		listen:       netutil.Listen,
		storeTimeout: DefaultStoreTimeout,
		tracer:       otel.Tracer("github.com/matst80/rfbhost/internal/host"),
	}
}

// WithBasePort overrides DefaultBasePort.
func WithBasePort(p int) Option { return func(o *options) { o.basePort = p } }

// WithBindHost restricts the listener to one interface. Empty means all.
func WithBindHost(h string) Option { return func(o *options) { o.bindHost = h } }

// WithListenFunc replaces the TCP listener, e.g. with wsbridge.Listen.
func WithListenFunc(fn ListenFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.listen = fn
		}
	}
}

// WithStore mirrors registered sessions into s.
func WithStore(s state.Store) Option { return func(o *options) { o.store = s } }

// WithStoreTimeout overrides DefaultStoreTimeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

// WithRateLimiter refuses connections the limiter does not allow.
func WithRateLimiter(l *ratelimit.Limiter) Option { return func(o *options) { o.limiter = l } }

// WithContext sets the parent of the host's lifecycle context.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithTracerProvider sets where accept spans are reported.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer("github.com/matst80/rfbhost/internal/host")
		}
	}
}
