package stream

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/chatspace/notify-server/internal/auth"
	"github.com/chatspace/notify-server/internal/registry"
)

func TestSSERejectsUnauthenticated(t *testing.T) {
	h := &Handlers{Registry: registry.New(0)}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	h.SSE().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSSEStreamDeliversFrames(t *testing.T) {
	reg := registry.New(0)
	h := &Handlers{Registry: reg, PingInterval: time.Hour}

	ctx, cancel := context.WithCancel(auth.WithUser(context.Background(), 7))
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.SSE().ServeHTTP(rec, req)
		close(done)
	}()

	// Wait until the handler has subscribed, then publish.
	waitFor(t, func() bool { return reg.Receivers(7) == 1 })
	reg.Publish(7, testEvent(1))

	// Give the session a moment to write the frame, then end the request.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream content type, got %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: NewMessage\n") {
		t.Errorf("body missing named event frame: %q", body)
	}
	if !strings.Contains(body, `"type":"NewMessage"`) {
		t.Errorf("body missing tagged JSON payload: %q", body)
	}

	// The receiver must be released once the request ends.
	waitFor(t, func() bool { return reg.Receivers(7) == 0 })
}

func TestOnlineHandler(t *testing.T) {
	h := &Handlers{Registry: registry.New(0)}

	req := httptest.NewRequest(http.MethodGet, "/online?user=7", nil)
	rec := httptest.NewRecorder()
	h.Online().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", rec.Code)
	}

	// Presence is optional; the endpoint reports that instead of panicking.
	req = req.WithContext(auth.WithUser(context.Background(), 7))
	rec = httptest.NewRecorder()
	h.Online().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with presence disabled, got %d", rec.Code)
	}
}

func TestWSFailedUpgradeReleasesReceiver(t *testing.T) {
	reg := registry.New(0)
	h := &Handlers{Registry: reg}

	ctx := auth.WithUser(context.Background(), 7)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	// A recorder cannot be hijacked, so the upgrade fails after the user
	// was already subscribed.
	h.WS().ServeHTTP(rec, req)

	if n := reg.Receivers(7); n != 0 {
		t.Fatalf("expected no live receivers after failed upgrade, got %d", n)
	}
}

func TestWSSinkFrames(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sink := &wsSink{conn: server}

	go func() {
		_ = sink.WriteEvent(testEvent(3))
	}()

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	data, err := wsutil.ReadServerText(client)
	if err != nil {
		t.Fatalf("read frame failed: %v", err)
	}
	if !strings.Contains(string(data), `"type":"NewMessage"`) {
		t.Fatalf("frame missing type tag: %s", data)
	}

	go func() {
		_ = sink.WriteLagged()
	}()

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	frame, err := ws.ReadFrame(client)
	if err != nil {
		t.Fatalf("read close frame failed: %v", err)
	}
	if frame.Header.OpCode != ws.OpClose {
		t.Fatalf("expected close frame, got opcode %v", frame.Header.OpCode)
	}
	code, reason := ws.ParseCloseFrameData(frame.Payload)
	if code != statusTryAgainLater {
		t.Fatalf("expected status %d, got %d", statusTryAgainLater, code)
	}
	if reason == "" {
		t.Fatal("close frame should explain the loss")
	}
}
