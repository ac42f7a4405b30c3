package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret", "chat-api")

	token, err := v.GenerateToken(42, time.Hour)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret", "chat-api")

	token, err := v.GenerateToken(42, -time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuing := NewVerifier("secret-a", "chat-api")
	verifying := NewVerifier("secret-b", "chat-api")

	token, _ := issuing.GenerateToken(42, time.Hour)
	if _, err := verifying.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuing := NewVerifier("test-secret", "someone-else")
	verifying := NewVerifier("test-secret", "chat-api")

	token, _ := issuing.GenerateToken(42, time.Hour)
	if _, err := verifying.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret", "chat-api")
	if _, err := v.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMiddlewareHeaderToken(t *testing.T) {
	v := NewVerifier("test-secret", "chat-api")
	token, _ := v.GenerateToken(7, time.Hour)

	var gotUser int64
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUser != 7 {
		t.Fatalf("expected user 7 in context, got %d", gotUser)
	}
}

func TestMiddlewareQueryToken(t *testing.T) {
	v := NewVerifier("test-secret", "chat-api")
	token, _ := v.GenerateToken(7, time.Hour)

	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/events?access_token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for query token, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsMissingAndInvalid(t *testing.T) {
	v := NewVerifier("test-secret", "chat-api")
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a valid token")
	}))

	for _, tt := range []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no token", func(r *http.Request) {}},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}
