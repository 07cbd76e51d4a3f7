package main

import (
	"time"

	"github.com/matst80/rfbhost/internal/backend"
)

// desktop is the backend the binary serves. It only carries identity; frame
// production is not part of this program.
type desktop struct {
	ep      backend.Endpoint
	created time.Time
}

func newDesktop(ep backend.Endpoint) (*desktop, error) {
	return &desktop{ep: ep, created: time.Now()}, nil
}

func (d *desktop) Display() int        { return d.ep.Display }
func (d *desktop) DisplayName() string { return d.ep.Name }

func newFactory(ep backend.Endpoint, shared bool) (backend.Factory, error) {
	var (
		f   backend.Factory
		err error
	)
	if shared {
		f, err = backend.NewShareable(ep, newDesktop)
	} else {
		f, err = backend.NewPerConnection(ep, newDesktop)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
