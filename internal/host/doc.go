// Package host owns the listening socket of one endpoint and turns every
// accepted connection into a registered client session.
//
// The listener is bound to basePort+display (5900+display by default). The
// accept loop runs on its own goroutine; for each connection it asks the
// backend.Factory for an instance, builds a Session with the SessionFunc and
// appends it to the registry in accept order.
//
// # Shutdown
//
// Two entry points exist with different guarantees:
//
//   - Close stops accepting, waits for the accept loop to exit and then closes
//     every session in insertion order. Listener close errors are logged.
//   - Stop closes every session immediately, then the listener, without
//     waiting for the accept loop. Listener close errors are returned.
//
// Both may be called more than once and concurrently; the listener is closed
// at most once and each session is drained at most once.
package host
