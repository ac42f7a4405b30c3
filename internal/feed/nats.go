package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chatspace/notify-server/internal/messaging"
)

// NATSSource consumes the change feed from bridged feed.<channel> subjects.
// A bridge process (or the eventgen tool) republishes Postgres NOTIFY
// payloads there verbatim.
type NATSSource struct {
	client *messaging.NATSClient
}

// NewNATSSource wraps an already-connected NATS client as a feed source.
func NewNATSSource(client *messaging.NATSClient) *NATSSource {
	return &NATSSource{client: client}
}

// Subscribe subscribes every bridged channel and pumps messages into the
// returned stream. The stream closes when the NATS connection is
// permanently closed or ctx is cancelled.
func (s *NATSSource) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	// Handlers deliver into this buffered channel; the pump goroutine owns
	// the outbound stream and its close, so a late NATS callback can never
	// write to a closed channel.
	in := make(chan Message, 64)

	for _, ch := range channels {
		ch := ch
		err := s.client.SubscribeFeed(ch, func(data []byte) {
			select {
			case in <- Message{Channel: ch, Payload: string(data)}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			return nil, fmt.Errorf("natsfeed: %w", err)
		}
		log.Printf("[natsfeed] listening on %s%s", messaging.SubjectFeedPrefix, ch)
	}

	out := make(chan Message)
	go s.pump(ctx, in, out)
	return out, nil
}

func (s *NATSSource) pump(ctx context.Context, in <-chan Message, out chan<- Message) {
	defer close(out)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-in:
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}

		case <-ticker.C:
			// A permanently closed connection means the feed is gone.
			if s.client.Closed() {
				log.Printf("[natsfeed] connection closed")
				return
			}
		}
	}
}

// Close drains the underlying NATS client.
func (s *NATSSource) Close() error {
	s.client.Close()
	return nil
}
