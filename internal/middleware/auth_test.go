package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionAuth_WithValidCookie(t *testing.T) {
	m := NewSessionAuth("site-pass", "test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	w := httptest.NewRecorder()
	if err := m.SetSessionCookie(w, false); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}
	resCookies := w.Result().Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetSessionCookie")
	}
	if !resCookies[0].HttpOnly {
		t.Fatalf("session cookie must be HttpOnly")
	}

	r := httptest.NewRequest(http.MethodGet, "/api/tax-requests", nil)
	r.AddCookie(resCookies[0])

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestSessionAuth_WithoutCookie(t *testing.T) {
	m := NewSessionAuth("site-pass", "test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.Middleware(next).ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSessionAuth_ExpiredCookie(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	now := issued
	m := NewSessionAuth("site-pass", "test-secret").WithClock(func() time.Time { return now })

	w := httptest.NewRecorder()
	if err := m.SetSessionCookie(w, false); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(w.Result().Cookies()[0])

	if !m.Authenticated(r) {
		t.Fatalf("fresh session must be accepted")
	}

	now = issued.Add(SessionTTL + time.Minute)
	if m.Authenticated(r) {
		t.Fatalf("expired session must be rejected")
	}
}

func TestSessionAuth_ForeignSignature(t *testing.T) {
	issuer := NewSessionAuth("site-pass", "other-secret")
	m := NewSessionAuth("site-pass", "test-secret")

	w := httptest.NewRecorder()
	if err := issuer.SetSessionCookie(w, false); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(w.Result().Cookies()[0])

	if m.Authenticated(r) {
		t.Fatalf("token signed with another key must be rejected")
	}
}

func TestSessionAuth_Disabled(t *testing.T) {
	m := NewSessionAuth("", "")

	if !m.Authenticated(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Fatalf("disabled protection must let every request through")
	}
	if m.CheckPassword("") {
		t.Fatalf("empty password must never match")
	}
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name     string
		password string
		header   string
		query    string
		want     bool
	}{
		{name: "header", password: "admin", header: "admin", want: true},
		{name: "query key", password: "admin", query: "?key=admin", want: true},
		{name: "wrong", password: "admin", header: "nope", want: false},
		{name: "missing", password: "admin", want: false},
		{name: "not configured", password: "", header: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdminAuth(tt.password)
			r := httptest.NewRequest(http.MethodGet, "/api/tax-requests"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set(AdminPasswordHeader, tt.header)
			}

			if got := a.Authorized(r); got != tt.want {
				t.Fatalf("Authorized = %v, want %v", got, tt.want)
			}
		})
	}
}
