package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vibast-solutions/ms-go-parish-auth/app/middleware"

	"github.com/labstack/echo/v4"
)

func newLimitedServer(perMinute, burst int) *echo.Echo {
	e := echo.New()
	limiter := middleware.NewRateLimiter(nil, perMinute, burst)
	e.POST("/auth/login", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, limiter.Middleware)
	e.POST("/auth/signup", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, limiter.Middleware)
	return e
}

func post(e *echo.Echo, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_LocalFallbackBlocksAfterBurst(t *testing.T) {
	e := newLimitedServer(1, 2)

	for i := 0; i < 2; i++ {
		if rec := post(e, "/auth/login", "10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := post(e, "/auth/login", "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	body := decodeError(t, rec)
	if body.Success || body.Message == "" {
		t.Fatalf("expected failure envelope, got %#v", body)
	}
}

func TestRateLimiter_KeysByClientAndRoute(t *testing.T) {
	e := newLimitedServer(1, 1)

	if rec := post(e, "/auth/login", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := post(e, "/auth/login", "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second login to be limited, got %d", rec.Code)
	}
	if rec := post(e, "/auth/login", "10.0.0.2"); rec.Code != http.StatusOK {
		t.Fatalf("expected another client to pass, got %d", rec.Code)
	}
	if rec := post(e, "/auth/signup", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("expected another route to pass, got %d", rec.Code)
	}
}
