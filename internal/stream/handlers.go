package stream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/chatspace/notify-server/internal/auth"
	"github.com/chatspace/notify-server/internal/metrics"
	"github.com/chatspace/notify-server/internal/presence"
	"github.com/chatspace/notify-server/internal/ratelimit"
	"github.com/chatspace/notify-server/internal/registry"
)

// Handlers builds the HTTP endpoints that turn authenticated requests into
// stream sessions. Presence and Limiter are optional; a nil value disables
// that concern.
type Handlers struct {
	Registry     *registry.Registry
	Presence     *presence.Store
	Limiter      *ratelimit.Limiter
	PingInterval time.Duration
}

// Online answers whether a user currently holds any stream connection, so
// the chat API can fall back to push delivery for offline users.
func (h *Handlers) Online() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFrom(r.Context()); !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		if h.Presence == nil {
			http.Error(w, "presence disabled", http.StatusNotFound)
			return
		}
		userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		if err != nil || userID <= 0 {
			http.Error(w, "invalid user", http.StatusBadRequest)
			return
		}
		online, err := h.Presence.Online(r.Context(), userID)
		if err != nil {
			log.Printf("[stream] presence lookup failed for user=%d: %v", userID, err)
			http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id": userID,
			"online":  online,
		})
	})
}

// begin runs the shared pre-stream checks and subscribes the user. It
// returns false after writing an error response if the request may not
// proceed. The returned cleanup must run when the session ends.
func (h *Handlers) begin(w http.ResponseWriter, r *http.Request, transport string) (*Session, func(), bool) {
	userID, ok := auth.UserFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return nil, nil, false
	}

	if h.Limiter != nil {
		allowed, _ := h.Limiter.Allow(r.Context(), strconv.FormatInt(userID, 10), ratelimit.RuleConnect)
		if !allowed {
			log.Printf("[stream] user=%d rate limited on %s connect", userID, transport)
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return nil, nil, false
		}
	}

	sess := NewSession(userID, h.Registry.Subscribe(userID))
	if h.PingInterval > 0 {
		sess.PingInterval = h.PingInterval
	}

	metrics.StreamConnections.WithLabelValues(transport).Inc()
	if h.Presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := h.Presence.Connect(ctx, userID, sess.ID); err != nil {
			log.Printf("[stream] presence connect failed for user=%d: %v", userID, err)
		}
		cancel()
	}

	log.Printf("[stream] session=%s user=%d connected (%s)", sess.ID, userID, transport)

	cleanup := func() {
		metrics.StreamConnections.WithLabelValues(transport).Dec()
		if h.Presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := h.Presence.Disconnect(ctx, userID, sess.ID); err != nil {
				log.Printf("[stream] presence disconnect failed for user=%d: %v", userID, err)
			}
			cancel()
		}
	}

	return sess, cleanup, true
}
