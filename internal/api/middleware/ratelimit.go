package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig sizes one per-IP token bucket family.
type RateLimitConfig struct {
	PerSecond  rate.Limit    // sustained requests per second per IP
	Burst      int           // bucket depth per IP
	SweepEvery time.Duration // how often idle buckets are collected
	IdleCutoff time.Duration // bucket lifetime without traffic
}

// APIRateLimitConfig bounds general /api traffic. Generous enough for a
// dashboard polling several endpoints at once.
func APIRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerSecond:  20,
		Burst:      40,
		SweepEvery: 5 * time.Minute,
		IdleCutoff: 10 * time.Minute,
	}
}

// LoginRateLimitConfig is the tight bucket in front of /auth/login, sized
// to keep credential guessing slow without locking out a fumbled password.
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerSecond:  5,
		Burst:      10,
		SweepEvery: 5 * time.Minute,
		IdleCutoff: 10 * time.Minute,
	}
}

// visitor is one client IP's token bucket and its last activity.
type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// IPRateLimiter hands out a token bucket per client IP and collects idle
// ones in the background.
type IPRateLimiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	visitors map[string]*visitor

	done chan struct{}
}

// NewIPRateLimiter creates the limiter and starts its sweep goroutine.
// Callers must Stop it on shutdown.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	rl := &IPRateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow takes one token from ip's bucket, creating the bucket on first
// contact.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(rl.cfg.PerSecond, rl.cfg.Burst)}
		rl.visitors[ip] = v
	}
	v.seen = time.Now()
	rl.mu.Unlock()

	return v.lim.Allow()
}

// Stop ends the sweep goroutine.
func (rl *IPRateLimiter) Stop() {
	close(rl.done)
}

func (rl *IPRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep drops buckets idle past the cutoff. A returning client simply gets
// a fresh full bucket, which errs in its favor.
func (rl *IPRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.cfg.IdleCutoff)
	before := len(rl.visitors)
	for ip, v := range rl.visitors {
		if v.seen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
	if dropped := before - len(rl.visitors); dropped > 0 {
		slog.Debug("rate limiter sweep", "dropped", dropped, "tracked", len(rl.visitors))
	}
}

// RateLimit rejects requests over the per-IP budget with 429 and a
// Retry-After hint. Runs after chi's RealIP so proxied clients are limited
// by their real address.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := requestIP(r)
			if !limiter.Allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "method", r.Method, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(authEnvelope{Error: "rate limit exceeded"}) //nolint:errcheck
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestIP strips the port from RemoteAddr; RemoteAddr without a port
// (already rewritten upstream) passes through as is.
func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
