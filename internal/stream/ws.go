package stream

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/chatspace/notify-server/internal/event"
)

// statusTryAgainLater is close code 1013 (RFC 6455 registry), which gobwas/ws
// does not name.
const statusTryAgainLater = ws.StatusCode(1013)

// WS returns the handler for the /ws endpoint: the same event stream over a
// WebSocket for clients that prefer it to SSE. The server never reads data
// frames; the inbound side exists only to notice the peer closing.
func (h *Handlers) WS() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// All checks happen before the upgrade so failures are still plain
		// HTTP responses.
		sess, cleanup, ok := h.begin(w, r, "ws")
		if !ok {
			return
		}
		defer cleanup()

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			log.Printf("[ws] upgrade failed for session=%s: %v", sess.ID, err)
			sess.Close()
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Drain the inbound side: control frames are answered by wsutil,
		// and any read error (including a clean close) ends the session.
		go func() {
			defer cancel()
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		reason := sess.Run(ctx, &wsSink{conn: conn})
		if reason == CloseNormal || reason == CloseCancelled {
			body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
			_ = ws.WriteFrame(conn, ws.NewCloseFrame(body))
		}
		log.Printf("[ws] session=%s user=%d closed (%s)", sess.ID, sess.UserID, reason)
	})
}

// wsSink writes event frames as WebSocket text messages.
type wsSink struct {
	conn net.Conn
}

func (s *wsSink) WriteEvent(ev *event.AppEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return wsutil.WriteServerMessage(s.conn, ws.OpText, data)
}

func (s *wsSink) WritePing() error {
	return wsutil.WriteServerMessage(s.conn, ws.OpPing, nil)
}

// WriteLagged closes the socket with a "try again later" status so the
// client knows events were lost rather than the stream just ending.
func (s *wsSink) WriteLagged() error {
	body := ws.NewCloseFrameBody(statusTryAgainLater, "events were dropped")
	return ws.WriteFrame(s.conn, ws.NewCloseFrame(body))
}
