package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/chatspace/notify-server/internal/event"
)

// SSE returns the handler for the /events endpoint: one long-lived HTTP
// response per connection, carrying one JSON-serialized event per frame as
// a named server-sent event.
func (h *Handlers) SSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		sess, cleanup, ok := h.begin(w, r, "sse")
		if !ok {
			return
		}
		defer cleanup()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		// Tell nginx-style proxies not to buffer the stream.
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		reason := sess.Run(r.Context(), &sseSink{w: w, flusher: flusher})
		log.Printf("[sse] session=%s user=%d closed (%s)", sess.ID, sess.UserID, reason)
	})
}

// sseSink writes server-sent event frames. Each frame is flushed so the
// client sees it immediately.
type sseSink struct {
	w       io.Writer
	flusher http.Flusher
}

func (s *sseSink) WriteEvent(ev *event.AppEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) WritePing() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) WriteLagged() error {
	if _, err := fmt.Fprint(s.w, "event: lagged\ndata: {\"error\":\"events were dropped, reconnect for a fresh stream\"}\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
