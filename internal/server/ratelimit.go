// internal/server/ratelimit.go
package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// rateLimiter is a per-client token bucket. Idle buckets expire from the
// cache, which also bounds memory under many distinct clients.
type rateLimiter struct {
	perMinute int
	burst     int
	buckets   *cache.Cache
	now       func() time.Time
}

type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func newRateLimiter(perMinute, burst int) *rateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &rateLimiter{
		perMinute: perMinute,
		burst:     burst,
		buckets:   cache.New(10*time.Minute, 5*time.Minute),
		now:       time.Now,
	}
}

// allow takes a token for key and reports whether one was available.
func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	b := &bucket{tokens: float64(l.burst), last: now}
	if err := l.buckets.Add(key, b, cache.DefaultExpiration); err != nil {
		if existing, ok := l.buckets.Get(key); ok {
			b = existing.(*bucket)
		}
	}
	// refresh expiry while the client stays active
	l.buckets.Set(key, b, cache.DefaultExpiration)

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.last)
	if elapsed > 0 {
		b.tokens += elapsed.Minutes() * float64(l.perMinute)
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfter is the wait in whole seconds until one token refills.
func (l *rateLimiter) retryAfter() int {
	s := int(60/float64(l.perMinute) + 0.999)
	if s < 1 {
		s = 1
	}
	return s
}

// middleware rejects clients over their budget with 429.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
			writeDetail(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the request's remote host. Forwarding headers only count
// when the server trusts a proxy and middleware.RealIP has rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
