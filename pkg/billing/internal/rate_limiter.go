package internal

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key (the client IP for webhooks).
// Each key may burst up to limit requests and refills at limit per window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	interval time.Duration
	burst    int
	idle     time.Duration
	seen     int
	now      func() time.Time
}

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	sweepEvery  = 100
	sweepAtSize = 200
)

// NewRateLimiter creates a limiter allowing limit requests per window for each key
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*keyLimiter),
		interval: window / time.Duration(limit),
		burst:    limit,
		idle:     window,
		now:      time.Now,
	}
}

// Allow reports whether one more request for key is within its budget
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.seen++
	if rl.seen >= sweepEvery || len(rl.limiters) > sweepAtSize {
		rl.sweep(now)
		rl.seen = 0
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &keyLimiter{limiter: rate.NewLimiter(rate.Every(rl.interval), rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops keys idle long enough for their bucket to be full again.
// Must be called with mu held.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.idle {
			delete(rl.limiters, key)
		}
	}
}

// Len returns the number of tracked keys
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// retryAfter is the wait for one token, in whole seconds
func (rl *RateLimiter) retryAfter() int {
	return int(math.Ceil(rl.interval.Seconds()))
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClientIP returns the first X-Forwarded-For address, else RemoteAddr
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	return r.RemoteAddr
}
