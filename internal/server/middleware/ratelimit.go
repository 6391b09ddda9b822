package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// RateLimit returns middleware that limits each client IP to limit requests
// per window using limiter. Limiter errors fail open.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), "api:"+extractClientIP(r), limit, window)
			if err != nil || allowed {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
		})
	}
}

// LocalLimiter implements domain.RateLimiter in process with one token
// bucket per key. It is used when Redis is not configured.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ domain.RateLimiter = (*LocalLimiter)(nil)

// NewLocalLimiter creates an empty LocalLimiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow spends one token from key's bucket, which refills at limit per
// window with a burst of limit.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(window/time.Duration(max(limit, 1))), max(limit, 1))
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow(), nil
}

// extractClientIP determines the client IP from proxy headers, falling back
// to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
