package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/chatspace/notify-server/internal/event"
)

// DefaultBufferSize is the per-receiver event buffer capacity. A receiver
// that falls this many events behind starts losing its oldest ones and is
// flagged as lagged.
const DefaultBufferSize = 256

var (
	// ErrLagged is returned by Next once a receiver has overflowed and
	// dropped events. The owning session must close its stream so the loss
	// is visible to the client instead of silently skipping events.
	ErrLagged = errors.New("registry: receiver lagged, events were dropped")

	// ErrClosed is returned by Next after Close has been called and the
	// remaining buffered events have been drained.
	ErrClosed = errors.New("registry: receiver closed")
)

// Receiver is one connection's view of a user's fan-out entry. Events are
// buffered in a fixed-size ring: the publisher appends without ever
// blocking, overwriting the oldest event (and marking the receiver lagged)
// when the consumer cannot keep up.
type Receiver struct {
	entry *entry

	mu     sync.Mutex
	buf    []*event.AppEvent
	head   int
	count  int
	lagged bool
	closed bool

	notify chan struct{} // capacity 1, coalesced wakeup signal
}

func newReceiver(e *entry, bufSize int) *Receiver {
	return &Receiver{
		entry:  e,
		buf:    make([]*event.AppEvent, bufSize),
		notify: make(chan struct{}, 1),
	}
}

// push appends ev to the ring, dropping the oldest buffered event when full.
// Called by Registry.Publish; never blocks.
func (rc *Receiver) push(ev *event.AppEvent) {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	if rc.count == len(rc.buf) {
		// Drop the oldest event rather than stall the feed listener.
		rc.head = (rc.head + 1) % len(rc.buf)
		rc.count--
		rc.lagged = true
	}
	rc.buf[(rc.head+rc.count)%len(rc.buf)] = ev
	rc.count++
	rc.mu.Unlock()

	select {
	case rc.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available and returns it. It returns
// ErrLagged if the receiver has overflowed, ErrClosed after Close drained
// the buffer, or the context's error if ctx is done first. A lagged
// receiver keeps returning ErrLagged; the owner is expected to close it.
func (rc *Receiver) Next(ctx context.Context) (*event.AppEvent, error) {
	for {
		rc.mu.Lock()
		if rc.lagged {
			rc.mu.Unlock()
			return nil, ErrLagged
		}
		if rc.count > 0 {
			ev := rc.buf[rc.head]
			rc.buf[rc.head] = nil
			rc.head = (rc.head + 1) % len(rc.buf)
			rc.count--
			rc.mu.Unlock()
			return ev, nil
		}
		if rc.closed {
			rc.mu.Unlock()
			return nil, ErrClosed
		}
		rc.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-rc.notify:
		}
	}
}

// Close detaches the receiver from its entry and wakes any blocked Next
// call. The registry entry itself survives for later reconnects. Close is
// idempotent.
func (rc *Receiver) Close() {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	rc.mu.Unlock()

	rc.entry.detach(rc)

	select {
	case rc.notify <- struct{}{}:
	default:
	}
}
