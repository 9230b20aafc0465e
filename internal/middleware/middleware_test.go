package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/EmpoweredVote/EV-Geo/internal/middleware"
)

// callWithKey wraps a simple 200-OK inner handler in the provided middleware,
// optionally setting the API key header, and returns the recorded response.
func callWithKey(t *testing.T, mw func(http.Handler) http.Handler, key string) *httptest.ResponseRecorder {
	t.Helper()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := mw(inner)
	req := httptest.NewRequest(http.MethodPost, "/cron/enrich", nil)
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func mustHash(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

// TestAPIKeyMiddleware_MissingKey verifies that a request with no key is rejected.
func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	mw := middleware.APIKeyMiddleware(mustHash(t, "secret"))

	rec := callWithKey(t, mw, "")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing API key") {
		t.Errorf("expected body to mention the missing key, got: %q", rec.Body.String())
	}
}

// TestAPIKeyMiddleware_WrongKey verifies that a non-matching key is rejected.
func TestAPIKeyMiddleware_WrongKey(t *testing.T) {
	mw := middleware.APIKeyMiddleware(mustHash(t, "secret"))

	rec := callWithKey(t, mw, "guess")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// TestAPIKeyMiddleware_ValidKey verifies that the matching key passes through.
func TestAPIKeyMiddleware_ValidKey(t *testing.T) {
	mw := middleware.APIKeyMiddleware(mustHash(t, "secret"))

	rec := callWithKey(t, mw, "secret")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
}

// TestAPIKeyMiddleware_Unconfigured verifies that an empty hash rejects everything.
func TestAPIKeyMiddleware_Unconfigured(t *testing.T) {
	mw := middleware.APIKeyMiddleware("")

	rec := callWithKey(t, mw, "anything")

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

// TestCORSMiddleware verifies origin echoing and preflight handling.
func TestCORSMiddleware(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"https://essentials.empowered.vote"})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/areas/x", nil)
	req.Header.Set("Origin", "https://essentials.empowered.vote")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://essentials.empowered.vote" {
		t.Errorf("expected origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/areas/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow-origin header, got %q", got)
	}
}
