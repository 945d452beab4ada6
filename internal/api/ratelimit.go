package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter admits up to limit requests per key in each fixed window.
// Keys are player ids for orders and client addresses for socket upgrades.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]*usage
}

type usage struct {
	since time.Time
	count int
}

// NewRateLimiter returns a limiter admitting limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		seen:   make(map[string]*usage),
	}
}

// Take spends one request for key. When the budget is gone it reports
// false and how long until the window rolls over.
func (rl *RateLimiter) Take(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.seen[key]
	if u == nil || now.Sub(u.since) >= rl.window {
		if u == nil && len(rl.seen) >= 1024 {
			rl.sweepLocked(now)
		}
		u = &usage{since: now}
		rl.seen[key] = u
	}
	if u.count >= rl.limit {
		return false, u.since.Add(rl.window).Sub(now)
	}
	u.count++
	return true, 0
}

// sweepLocked forgets keys idle for a full window.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for key, u := range rl.seen {
		if now.Sub(u.since) >= rl.window {
			delete(rl.seen, key)
		}
	}
}

// limited answers 429 when key is out of budget and reports whether it did.
func limited(w http.ResponseWriter, rl *RateLimiter, key string) bool {
	ok, wait := rl.Take(key)
	if ok {
		return false
	}
	secs := int(math.Ceil(wait.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	return true
}

// clientIP is the first X-Forwarded-For hop, else the remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware limits next per client address.
func RateLimitMiddleware(rl *RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limited(w, rl, clientIP(r)) {
			return
		}
		next.ServeHTTP(w, r)
	})
}
