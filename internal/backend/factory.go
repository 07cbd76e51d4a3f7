package backend

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/matst80/rfbhost/internal/obs"
)

// Constructor builds a backend of concrete type T for an endpoint.
type Constructor[T any] func(ep Endpoint) (T, error)

// Option configures a factory.
type Option func(*endpointInfo)

// WithAuthenticator sets the authenticator handed to every session.
func WithAuthenticator(a Authenticator) Option {
	return func(e *endpointInfo) { e.auth = a }
}

var backendType = reflect.TypeOf((*Backend)(nil)).Elem()

type endpointInfo struct {
	ep   Endpoint
	auth Authenticator
}

func (e *endpointInfo) Display() int                 { return e.ep.Display }
func (e *endpointInfo) DisplayName() string          { return e.ep.Name }
func (e *endpointInfo) Authenticator() Authenticator { return e.auth }

func newEndpointInfo[T any](ep Endpoint, ctor Constructor[T], opts []Option) (endpointInfo, error) {
	if t := reflect.TypeOf((*T)(nil)).Elem(); !t.Implements(backendType) {
		return endpointInfo{}, fmt.Errorf("%w: %s", ErrInvalidBackendType, t)
	}
	if ctor == nil {
		return endpointInfo{}, fmt.Errorf("backend: nil constructor for %s", ep)
	}
	info := endpointInfo{ep: ep}
	for _, o := range opts {
		o(&info)
	}
	return info, nil
}

func construct[T any](ep Endpoint, ctor Constructor[T]) (b Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, &ConstructionError{Endpoint: ep, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := ctor(ep)
	if err != nil {
		return nil, &ConstructionError{Endpoint: ep, Err: err}
	}
	b, ok := any(v).(Backend)
	if !ok || isNil(b) {
		return nil, &ConstructionError{Endpoint: ep, Err: errors.New("constructor returned nil")}
	}
	obs.BackendConstructions.WithLabelValues(strconv.Itoa(ep.Display)).Inc()
	obs.Debug("backend.constructed", obs.Fields{"display": ep.Display, "name": ep.Name})
	return b, nil
}

// isNil also catches typed nils such as a nil *T held in a Backend.
func isNil(b Backend) bool {
	if b == nil {
		return true
	}
	rv := reflect.ValueOf(b)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Shared hands every connection of an endpoint the same lazily constructed
// backend.
type Shared[T any] struct {
	endpointInfo
	ctor Constructor[T]

	mu   sync.Mutex
	inst Backend
}

// NewShareable returns a factory that constructs one T on first use and
// returns it to every caller afterwards. T must implement Backend.
func NewShareable[T any](ep Endpoint, ctor Constructor[T], opts ...Option) (*Shared[T], error) {
	info, err := newEndpointInfo(ep, ctor, opts)
	if err != nil {
		return nil, err
	}
	return &Shared[T]{endpointInfo: info, ctor: ctor}, nil
}

// Instance returns the cached backend, constructing it on the first call. A
// failed construction is not cached.
func (f *Shared[T]) Instance(bool) (Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inst != nil {
		return f.inst, nil
	}
	b, err := construct(f.ep, f.ctor)
	if err != nil {
		return nil, err
	}
	f.inst = b
	return b, nil
}

func (f *Shared[T]) Shareable() bool { return true }

// PerConnection constructs a fresh backend for every call.
type PerConnection[T any] struct {
	endpointInfo
	ctor Constructor[T]
}

// NewPerConnection returns a factory that constructs a new T per connection.
// T must implement Backend.
func NewPerConnection[T any](ep Endpoint, ctor Constructor[T], opts ...Option) (*PerConnection[T], error) {
	info, err := newEndpointInfo(ep, ctor, opts)
	if err != nil {
		return nil, err
	}
	return &PerConnection[T]{endpointInfo: info, ctor: ctor}, nil
}

func (f *PerConnection[T]) Instance(bool) (Backend, error) { return construct(f.ep, f.ctor) }

func (f *PerConnection[T]) Shareable() bool { return false }

var (
	_ Factory = (*Shared[Backend])(nil)
	_ Factory = (*PerConnection[Backend])(nil)
)
