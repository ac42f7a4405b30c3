// Package registry maintains the process-wide mapping from user ID to that
// user's live delivery channels. It is the only structure shared between the
// feed listener and the per-connection stream sessions, so every operation
// holds its lock only around map access and never across a blocking call.
package registry

import (
	"sync"

	"github.com/chatspace/notify-server/internal/event"
)

// Registry maps user IDs to their fan-out entries. An entry is created
// lazily on a user's first subscription and then lives for the rest of the
// process; a stale entry whose receivers have all detached makes Publish a
// no-op, which is harmless.
type Registry struct {
	mu      sync.RWMutex
	bufSize int
	entries map[int64]*entry
}

// entry is one user's fan-out point. Multiple concurrent connections for the
// same user each hold their own Receiver here.
type entry struct {
	mu        sync.Mutex
	receivers map[*Receiver]struct{}
}

// New creates an empty registry whose receivers buffer up to bufSize events.
// A bufSize <= 0 falls back to DefaultBufferSize.
func New(bufSize int) *Registry {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Registry{
		bufSize: bufSize,
		entries: make(map[int64]*entry),
	}
}

// Subscribe returns a new Receiver bound to the user's entry, creating the
// entry if this is the user's first ever subscription. Creation is atomic
// under the registry lock, so concurrent first-subscribers end up sharing
// one entry.
func (r *Registry) Subscribe(userID int64) *Receiver {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok {
		e = &entry{receivers: make(map[*Receiver]struct{})}
		r.entries[userID] = e
	}
	r.mu.Unlock()

	rc := newReceiver(e, r.bufSize)

	e.mu.Lock()
	e.receivers[rc] = struct{}{}
	e.mu.Unlock()

	return rc
}

// Publish delivers ev to every live receiver of the given user. If the user
// has no entry (nobody ever subscribed) or the entry has no receivers, the
// call is a silent no-op. It never blocks: a full receiver drops its oldest
// buffered event instead.
func (r *Registry) Publish(userID int64, ev *event.AppEvent) {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	receivers := make([]*Receiver, 0, len(e.receivers))
	for rc := range e.receivers {
		receivers = append(receivers, rc)
	}
	e.mu.Unlock()

	for _, rc := range receivers {
		rc.push(ev)
	}
}

// Receivers reports how many live receivers the user currently has. Used by
// the health endpoint and tests.
func (r *Registry) Receivers(userID int64) int {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.receivers)
}

// detach removes rc from its entry. The entry itself stays in the map so a
// later reconnect reuses it.
func (e *entry) detach(rc *Receiver) {
	e.mu.Lock()
	delete(e.receivers, rc)
	e.mu.Unlock()
}
