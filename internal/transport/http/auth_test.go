package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndParseToken(t *testing.T) {
	auth := NewAuthenticator(testSecret, time.Hour)
	token, err := auth.SignToken(alice)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	player, err := auth.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if player != alice {
		t.Fatalf("expected %+v, got %+v", alice, player)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthenticator(testSecret, time.Minute)
	issued := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issued }
	token, err := auth.SignToken(alice)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	auth.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := auth.Parse(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	auth := NewAuthenticator(testSecret, time.Hour)
	token, _ := auth.SignToken(bob)

	var seen string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		player, _ := PlayerFromContext(r.Context())
		seen = player.Login
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil))
	if rec.Code != http.StatusOK || seen != "bob" {
		t.Fatalf("expected bob authenticated via query, got code=%d login=%q", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Basic abc")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-bearer scheme, got %d", rec.Code)
	}
}
