/*
Package limiter provides keyed token-bucket rate limiting.

A KeyedLimiter hands out one rate.Limiter per key (a client IP for HTTP routes, a
connection id for socket frames) and runs a janitor goroutine that drops idle buckets.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"huddle/internal/pkg/errs"
	"huddle/internal/pkg/logx"
	"huddle/internal/pkg/resp"
)

// janitorInterval is how often idle buckets are swept.
const janitorInterval = 3 * time.Minute

// KeyedLimiter implements per-key token-bucket rate limiting.
type KeyedLimiter struct {
	// mu protects the limits map.
	mu sync.RWMutex

	// limits maps a key to its token bucket.
	limits map[string]*rate.Limiter

	// r is the refill rate, in events per second.
	r rate.Limit

	// b is the bucket size.
	b int

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a KeyedLimiter with refill rate r and burst b, and starts its janitor.
func New(r rate.Limit, b int) *KeyedLimiter {
	l := &KeyedLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	go l.janitor()

	return l
}

// Get returns the bucket for key, creating it on first use (double-checked locking).
func (l *KeyedLimiter) Get(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limits[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		limiter, exists = l.limits[key]
		if !exists {
			limiter = rate.NewLimiter(l.r, l.b)
			l.limits[key] = limiter
		}
		l.mu.Unlock()
	}

	return limiter
}

// Allow reports whether one event for key may happen now.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.Get(key).Allow()
}

// Forget drops the bucket for key.
func (l *KeyedLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.limits, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limits)
}

// Stop terminates the janitor goroutine. It is safe to call more than once.
func (l *KeyedLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// janitor periodically removes buckets that are full again, i.e. keys that have been idle
// long enough to refill completely.
func (l *KeyedLimiter) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			removed := l.sweep(now)
			logx.Debug("Rate limiter sweep finished", "removed", removed, "remaining", l.Len())
		}
	}
}

func (l *KeyedLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for key, limiter := range l.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(l.limits, key)
			count++
		}
	}
	return count
}

// ClientIP returns the host part of r.RemoteAddr (already rewritten by chi's RealIP middleware).
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware rejects requests whose client IP exceeded the limit with ErrRateLimitExceeded.
func (l *KeyedLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
