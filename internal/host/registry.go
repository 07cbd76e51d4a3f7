package host

import (
	"sync"
	"time"
)

type entry struct {
	id      string
	session Session
	remote  string
	started time.Time
	ended   bool
}

// registry is the insertion-ordered set of sessions of one host. It is
// append-only until drained; a drained registry refuses new entries.
type registry struct {
	mu      sync.Mutex
	entries []*entry
	index   map[Session]*entry
	sealed  bool
	// sessions that ended before they were added
	early map[Session]struct{}
}

// add appends e and returns its position. ended reports a session that
// already finished before it was added; it still takes its slot.
func (r *registry) add(e *entry) (pos int, ok, ended bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return -1, false, false
	}
	if _, gone := r.early[e.session]; gone {
		delete(r.early, e.session)
		e.ended = true
	}
	r.entries = append(r.entries, e)
	if r.index == nil {
		r.index = make(map[Session]*entry)
	}
	r.index[e.session] = e
	return len(r.entries) - 1, true, e.ended
}

// drain seals the registry and hands every entry to the caller once.
func (r *registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil
	}
	r.sealed = true
	out := r.entries
	r.entries = nil
	r.index = nil
	r.early = nil
	return out
}

func (r *registry) snapshot() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// finish marks e ended and reports whether this call did it.
func (r *registry) finish(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ended {
		return false
	}
	e.ended = true
	return true
}

// lookup finds the entry holding s. An unknown session on an open registry
// is remembered so a later add marks it ended.
func (r *registry) lookup(s Session) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.index[s]; ok {
		return e
	}
	if !r.sealed {
		if r.early == nil {
			r.early = make(map[Session]struct{})
		}
		r.early[s] = struct{}{}
	}
	return nil
}
