// Package presence tracks which users currently hold open event streams,
// and on which server instance. The data is advisory: delivery decisions
// come from the in-process registry, presence only feeds dashboards and the
// chat API's online indicators. All writes are best effort.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// UserPrefix keys the set of a user's live connection IDs.
	UserPrefix = "presence:user:"

	// ConnPrefix keys the per-connection detail hash.
	ConnPrefix = "presence:conn:"

	// TTL bounds how long a record can outlive a crashed server instance.
	TTL = 1 * time.Hour
)

// Store manages presence state in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this notify server instance
}

// NewStore creates a presence store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Connect records a new stream connection for the user.
func (s *Store) Connect(ctx context.Context, userID int64, connID string) error {
	userKey := fmt.Sprintf("%s%d", UserPrefix, userID)
	connKey := ConnPrefix + connID

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userKey, connID)
	pipe.Expire(ctx, userKey, TTL)
	pipe.HSet(ctx, connKey, map[string]interface{}{
		"user_id":      userID,
		"server":       s.serverName,
		"connected_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, connKey, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Disconnect removes one stream connection for the user.
func (s *Store) Disconnect(ctx context.Context, userID int64, connID string) error {
	userKey := fmt.Sprintf("%s%d", UserPrefix, userID)

	pipe := s.client.Pipeline()
	pipe.SRem(ctx, userKey, connID)
	pipe.Del(ctx, ConnPrefix+connID)
	_, err := pipe.Exec(ctx)
	return err
}

// Online reports whether the user has at least one live stream connection
// anywhere.
func (s *Store) Online(ctx context.Context, userID int64) (bool, error) {
	userKey := fmt.Sprintf("%s%d", UserPrefix, userID)
	n, err := s.client.SCard(ctx, userKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Client exposes the underlying Redis client so other components (the rate
// limiter) can share the connection pool.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close releases the Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
