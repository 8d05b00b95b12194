// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dalemusser/cadence/internal/app/system/auth"
	"github.com/dalemusser/cadence/internal/app/system/clientip"
	"go.uber.org/zap"
)

// Limiter counts requests per key in fixed windows. It is safe for
// concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int           // max requests per window
	duration time.Duration // window duration
	now      func() time.Time

	nextSweep time.Time
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing limit requests per duration for each key.
// A limit <= 0 disables limiting.
func New(limit int, duration time.Duration) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
	}
}

// Allow reports whether one more request for key fits in its window.
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(2 * l.duration)
	}
	w, exists := l.windows[key]
	if !exists || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// sweep drops expired windows.
func (l *Limiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.expiresAt) {
			delete(l.windows, key)
		}
	}
}

// KeyFunc picks the bucket a request is counted in.
type KeyFunc func(r *http.Request) string

// ByIP counts requests per client address as resolved by res.
func ByIP(res *clientip.Resolver) KeyFunc {
	return func(r *http.Request) string { return "ip:" + res.IP(r) }
}

// ByUser counts requests per signed-in user, falling back to the client
// address for anonymous callers.
func ByUser(res *clientip.Resolver) KeyFunc {
	byIP := ByIP(res)
	return func(r *http.Request) string {
		if u, ok := auth.CurrentUser(r); ok {
			return "user:" + u.ID
		}
		return byIP(r)
	}
}

// Middleware rejects requests over the limit with 429 and a JSON error
// body in the same shape the API uses elsewhere.
func (l *Limiter) Middleware(key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	retry := strconv.Itoa(int(l.duration.Round(time.Second).Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if l.Allow(k) {
				next.ServeHTTP(w, r)
				return
			}
			if logger != nil {
				logger.Warn("rate limited",
					zap.String("key", k),
					zap.String("path", r.URL.Path))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retry)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"kind":    "rate_limited",
					"message": "too many requests; try again shortly",
				},
			})
		})
	}
}
