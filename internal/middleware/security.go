package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/audiolog-app/audiolog-backend/pkg/clientip"
	"golang.org/x/time/rate"
)

// SecurityHeaders sets security-related response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter is an in-process per-IP token bucket (1 req/s, burst 10). It
// sits in front of the Redis-backed window limiter so bursts are absorbed
// without a Redis round-trip.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func NewIPRateLimiter() *IPRateLimiter {
	l := &IPRateLimiter{entries: make(map[string]*limiterEntry)}
	go l.cleanupLoop()
	return l
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(1), 10)}
		l.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (l *IPRateLimiter) cleanupLoop() {
	for range time.Tick(5 * time.Minute) {
		l.mu.Lock()
		for ip, e := range l.entries {
			if time.Since(e.lastSeen) > 10*time.Minute {
				delete(l.entries, ip)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware rejects requests exceeding the per-IP bucket with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientip.RealClientIP(r)
		if !l.get(ip).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many requests. Please slow down."}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
