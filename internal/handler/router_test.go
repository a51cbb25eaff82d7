package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/eventinator/internal/middleware"
)

type pingChecker struct{ err error }

func (p pingChecker) PingContext(context.Context) error { return p.err }

func TestNewRouter_Health(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"connected", nil, http.StatusOK},
		{"not connected", errors.New("not connected"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
			defer limiter.Stop()
			router := NewRouter(&RouterDeps{
				Logger:        discardLogger(),
				SessionLoader: noSessionLoader{},
				Authenticator: &cookieAuthenticator{},
				RateLimiter:   limiter,
				HealthChecker: pingChecker{err: tt.err},
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestNewRouter_MetricsMounted(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer limiter.Stop()
	router := NewRouter(&RouterDeps{
		Logger:        discardLogger(),
		SessionLoader: noSessionLoader{},
		Authenticator: &cookieAuthenticator{},
		RateLimiter:   limiter,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("eventinator_http_requests_total 1\n"))
		}),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_SecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/events/01JA0000000000000000000999", "", "")
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be set")
	}
}

func TestNewRouter_CSRFApplied(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer limiter.Stop()
	router := NewRouter(&RouterDeps{
		Logger:        discardLogger(),
		SessionLoader: noSessionLoader{},
		Authenticator: &cookieAuthenticator{},
		RateLimiter:   limiter,
		AuthService:   &mockAuthService{},
		CSRF: middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			AuthKey: []byte("0123456789abcdef0123456789abcdef"),
		}),
	})

	// GETはトークン不要
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d, want 200", w.Code)
	}

	// トークンなしのPOSTは拒否
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("POST without token status = %d, want 403", w.Code)
	}
}
