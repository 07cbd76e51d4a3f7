package backend

import (
	"context"
	"net"
	"strconv"
)

// Endpoint identifies the logical server a host serves. The listening port
// is derived from Display.
type Endpoint struct {
	Display int
	Name    string
}

func (e Endpoint) String() string { return e.Name + ":" + strconv.Itoa(e.Display) }

// Backend is the capability every backend server type must carry. Sessions
// drive it; the host only hands it over.
type Backend interface {
	Display() int
	DisplayName() string
}

// Authenticator is passed unchanged from the factory to each session.
type Authenticator interface {
	Authenticate(ctx context.Context, conn net.Conn) error
}

// Factory decides how backend instances are produced for one endpoint.
type Factory interface {
	// Instance returns the backend for a connection. newConn is true when
	// called from the accept path.
	Instance(newConn bool) (Backend, error)
	// Shareable reports whether every call returns the same instance.
	Shareable() bool
	Display() int
	DisplayName() string
	// Authenticator may be nil.
	Authenticator() Authenticator
}
