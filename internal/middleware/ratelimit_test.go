package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRateLimiter(rdb), mr
}

func doRequest(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":54321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
}

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	rl, _ := newTestLimiter(t)
	h := rl.Middleware(okHandler())

	for i := 0; i < RateLimitMaxRequests; i++ {
		rec := doRequest(h, "10.0.0.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d rejected with %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl, _ := newTestLimiter(t)
	h := rl.Middleware(okHandler())

	for i := 0; i < RateLimitMaxRequests; i++ {
		doRequest(h, "10.0.0.2")
	}

	rec := doRequest(h, "10.0.0.2")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}

	// The IP is now on the 24h block list; even a fresh window rejects it.
	rec = doRequest(h, "10.0.0.2")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected blocked IP to stay blocked, got %d", rec.Code)
	}
}

func TestRateLimiterIsolatesIPs(t *testing.T) {
	rl, _ := newTestLimiter(t)
	h := rl.Middleware(okHandler())

	for i := 0; i <= RateLimitMaxRequests; i++ {
		doRequest(h, "10.0.0.3")
	}

	rec := doRequest(h, "10.0.0.4")
	if rec.Code != http.StatusOK {
		t.Fatalf("unrelated IP caught by block: %d", rec.Code)
	}
}

func TestRateLimiterHeaders(t *testing.T) {
	rl, _ := newTestLimiter(t)
	h := rl.Middleware(okHandler())

	rec := doRequest(h, "10.0.0.5")
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("missing X-RateLimit-Limit header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("missing X-RateLimit-Remaining header")
	}
}

func TestRateLimiterUnblockIP(t *testing.T) {
	rl, _ := newTestLimiter(t)
	h := rl.Middleware(okHandler())

	for i := 0; i <= RateLimitMaxRequests; i++ {
		doRequest(h, "10.0.0.6")
	}
	blocked, err := rl.IsIPBlocked(httptest.NewRequest("GET", "/", nil).Context(), "10.0.0.6")
	if err != nil || !blocked {
		t.Fatalf("expected IP blocked, got blocked=%v err=%v", blocked, err)
	}

	if err := rl.UnblockIP(httptest.NewRequest("GET", "/", nil).Context(), "10.0.0.6"); err != nil {
		t.Fatalf("UnblockIP failed: %v", err)
	}
	blocked, _ = rl.IsIPBlocked(httptest.NewRequest("GET", "/", nil).Context(), "10.0.0.6")
	if blocked {
		t.Fatal("IP still blocked after unblock")
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	rl, mr := newTestLimiter(t)
	h := rl.Middleware(okHandler())
	mr.Close()

	rec := doRequest(h, "10.0.0.7")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected fail-open when Redis is down, got %d", rec.Code)
	}
}

func TestIPRateLimiterBurst(t *testing.T) {
	l := NewIPRateLimiter()
	h := l.Middleware(okHandler())

	// Burst of 10 passes, the 11th immediate request is rejected.
	for i := 0; i < 10; i++ {
		rec := doRequest(h, "10.0.1.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("burst request %d rejected with %d", i+1, rec.Code)
		}
	}
	rec := doRequest(h, "10.0.1.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past burst, got %d", rec.Code)
	}

	// Another IP is unaffected.
	rec = doRequest(h, "10.0.1.2")
	if rec.Code != http.StatusOK {
		t.Fatalf("unrelated IP rejected: %d", rec.Code)
	}
}
