package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	cases := []struct {
		name   string
		key    string
		header func(*http.Request)
		want   int
	}{
		{
			name:   "valid bearer token",
			key:    "secret",
			header: func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") },
			want:   http.StatusOK,
		},
		{
			name:   "valid api key header",
			key:    "secret",
			header: func(r *http.Request) { r.Header.Set("X-API-Key", "secret") },
			want:   http.StatusOK,
		},
		{
			name:   "wrong token",
			key:    "secret",
			header: func(r *http.Request) { r.Header.Set("X-API-Key", "nope") },
			want:   http.StatusForbidden,
		},
		{
			name:   "missing token",
			key:    "secret",
			header: func(r *http.Request) {},
			want:   http.StatusForbidden,
		},
		{
			name:   "empty key keeps admin closed",
			key:    "",
			header: func(r *http.Request) { r.Header.Set("X-API-Key", "anything") },
			want:   http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/treasury", nil)
			tc.header(req)
			rec := httptest.NewRecorder()
			Auth(tc.key)(okHandler).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s *stubLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return s.allowed, s.err
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw := RateLimit(&stubLimiter{allowed: true}, 10, time.Second, logger)
		mw(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("denied", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw := RateLimit(&stubLimiter{allowed: false}, 10, time.Second, logger)
		mw(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want 429", rec.Code)
		}
	})

	t.Run("limiter outage fails open", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw := RateLimit(&stubLimiter{err: context.DeadlineExceeded}, 10, time.Second, logger)
		mw(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw := RateLimit(nil, 0, 0, logger)
		mw(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	CORS(nil)(okHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestCORSRestrictedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	CORS([]string{"https://app.example.com"})(okHandler).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin = %q, want empty", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (request still served)", rec.Code)
	}
}
