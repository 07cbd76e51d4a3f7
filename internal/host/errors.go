package host

import "errors"

var (
	// ErrBind means the listening socket could not be opened. The accept
	// loop never ran.
	ErrBind = errors.New("host: bind failed")

	// ErrUnexpectedAccept means Accept failed while the host was still
	// running. The accept loop has exited and will not retry.
	ErrUnexpectedAccept = errors.New("host: accept failed while running")

	// ErrSocketClose means closing the listening socket failed.
	ErrSocketClose = errors.New("host: closing listener failed")
)
