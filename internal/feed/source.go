// Package feed consumes the storage change feed and fans decoded events out
// to subscribed users. The transport behind the feed is pluggable: Postgres
// LISTEN/NOTIFY for single-database deployments, or NATS subjects when the
// feed is bridged onto a broker.
package feed

import (
	"context"
	"errors"
)

// Message is one raw feed notification: the channel it arrived on and its
// UTF-8 payload.
type Message struct {
	Channel string
	Payload string
}

// ErrFeedClosed is returned by Listener.Run when the underlying feed
// connection is lost. It is fatal to the listener: the process supervisor is
// expected to restart it, and subscribers stay registered in the meantime.
var ErrFeedClosed = errors.New("feed: connection to change feed lost")

// Source is a transport delivering change-feed messages. Subscribe starts
// consuming the given channels and returns a stream of messages; the stream
// closing signals that the connection was lost (or ctx was cancelled).
type Source interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	Close() error
}
