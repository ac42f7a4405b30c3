package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chatspace/notify-server/internal/event"
	"github.com/chatspace/notify-server/internal/metrics"
	"github.com/chatspace/notify-server/internal/registry"
)

// Listener owns the single long-lived feed consumer for the process. It
// decodes every raw notification and publishes the resulting event to each
// affected user's registry entry, in feed arrival order.
type Listener struct {
	source   Source
	registry *registry.Registry
}

// NewListener wires a feed source to the subscriber registry.
func NewListener(source Source, reg *registry.Registry) *Listener {
	return &Listener{source: source, registry: reg}
}

// Run subscribes to the known feed channels and consumes until the feed
// connection is lost or ctx is cancelled. A decode failure never stops the
// loop; only losing the feed does, returning ErrFeedClosed so the caller
// can crash out and let the supervisor restart the process. Cancellation
// via ctx returns nil.
func (l *Listener) Run(ctx context.Context) error {
	msgs, err := l.source.Subscribe(ctx, event.Channels()...)
	if err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}

	log.Printf("[feed] listener running, channels=%v", event.Channels())

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrFeedClosed
			}
			l.dispatch(msg)
		}
	}
}

// dispatch decodes one feed message and fans it out. Decode errors are
// logged and counted, then forgotten.
func (l *Listener) dispatch(msg Message) {
	metrics.FeedMessages.WithLabelValues(msg.Channel).Inc()

	notif, err := event.Decode(msg.Channel, msg.Payload)
	if err != nil {
		log.Printf("[feed] skipping message on %s: %v", msg.Channel, err)
		metrics.DecodeErrors.WithLabelValues(decodeReason(err)).Inc()
		return
	}

	start := time.Now()
	for userID := range notif.UserIDs {
		l.registry.Publish(userID, notif.Event)
	}
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	metrics.EventsDelivered.WithLabelValues(string(notif.Event.Type)).Add(float64(len(notif.UserIDs)))

	log.Printf("[feed] %s -> %s for %d users", msg.Channel, notif.Event.Type, len(notif.UserIDs))
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, event.ErrUnknownChannel):
		return "unknown_channel"
	case errors.Is(err, event.ErrUnknownOperation):
		return "unknown_operation"
	default:
		return "malformed"
	}
}
