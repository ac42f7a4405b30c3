// Package stream bridges authenticated client connections to the subscriber
// registry. A Session owns one connection's receiver and relays its events
// onto an outbound transport (SSE or WebSocket) until the client goes away,
// the caller cancels, or the receiver lags past its buffer.
package stream

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chatspace/notify-server/internal/event"
	"github.com/chatspace/notify-server/internal/metrics"
	"github.com/chatspace/notify-server/internal/registry"
)

// DefaultPingInterval is how often an idle session writes a keep-alive so
// intermediaries don't reap the connection.
const DefaultPingInterval = 30 * time.Second

// CloseReason records why a session ended. There is no transition out of a
// closed session; a reconnecting client starts a fresh one with no replay.
type CloseReason string

const (
	CloseNormal    CloseReason = "normal"    // outbound write failed, client gone
	CloseLagged    CloseReason = "lagged"    // receiver overflowed, loss made visible
	CloseCancelled CloseReason = "cancelled" // caller cancelled the context
)

// Session states.
const (
	StateConnected int32 = iota
	StateStreaming
	StateClosed
)

// Sink is the outbound side of one connection. Implementations must make
// WriteEvent visible to the client immediately (flush per frame).
type Sink interface {
	// WriteEvent serializes and writes one event frame.
	WriteEvent(ev *event.AppEvent) error

	// WritePing writes a keep-alive frame.
	WritePing() error

	// WriteLagged writes the final frame telling the client events were
	// dropped, before the stream is closed.
	WriteLagged() error
}

// Session relays events from one receiver to one sink.
type Session struct {
	ID           string
	UserID       int64
	PingInterval time.Duration

	receiver *registry.Receiver
	state    atomic.Int32
}

// NewSession creates a session for an already-subscribed receiver. The
// session takes ownership of the receiver and closes it when Run returns.
func NewSession(userID int64, rc *registry.Receiver) *Session {
	return &Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		PingInterval: DefaultPingInterval,
		receiver:     rc,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() int32 {
	return s.state.Load()
}

// Close releases the session's receiver without streaming. For transports
// that fail after subscribing but before Run, so the registry entry does not
// keep a dead receiver that every publish fills.
func (s *Session) Close() {
	s.state.Store(StateClosed)
	s.receiver.Close()
}

// Run streams events to the sink until the session closes and reports why.
// Write failures are the normal disconnect signal and are not treated as
// errors. Run always releases the receiver.
func (s *Session) Run(ctx context.Context, sink Sink) CloseReason {
	defer s.receiver.Close()
	defer s.state.Store(StateClosed)
	s.state.Store(StateStreaming)

	for {
		waitCtx, cancel := context.WithTimeout(ctx, s.PingInterval)
		ev, err := s.receiver.Next(waitCtx)
		cancel()

		switch {
		case err == nil:
			if writeErr := sink.WriteEvent(ev); writeErr != nil {
				return CloseNormal
			}

		case errors.Is(err, registry.ErrLagged):
			log.Printf("[stream] session=%s user=%d lagged, closing", s.ID, s.UserID)
			metrics.LaggedSessions.Inc()
			_ = sink.WriteLagged()
			return CloseLagged

		case errors.Is(err, registry.ErrClosed):
			// Receiver torn down underneath us (shutdown).
			return CloseCancelled

		case ctx.Err() != nil:
			return CloseCancelled

		case errors.Is(err, context.DeadlineExceeded):
			// Idle interval elapsed with no event: keep-alive.
			if writeErr := sink.WritePing(); writeErr != nil {
				return CloseNormal
			}

		default:
			return CloseCancelled
		}
	}
}
