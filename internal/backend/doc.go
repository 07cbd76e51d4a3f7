// Package backend decides how backend server instances are produced for an
// endpoint.
//
// A factory is bound at construction time to a concrete backend type T; the
// type is checked against the Backend capability before the factory exists, so
// a misconfigured type never reaches the accept path.
//
//   - Shared constructs one T on first use and returns it to every caller.
//   - PerConnection constructs a new T for each connection.
//
// # Usage
//
//	f, err := backend.NewShareable(backend.Endpoint{Display: 1, Name: "desk"}, newDesktop,
//	    backend.WithAuthenticator(auth))
//	if err != nil {
//	    return err
//	}
//	b, err := f.Instance(true)
package backend
