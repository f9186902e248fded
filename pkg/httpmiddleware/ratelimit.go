package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the token bucket rate limiter.
type RateLimitConfig struct {
	// Max is the bucket capacity: the number of requests a client may burst.
	Max int
	// Window is the time it takes an empty bucket to refill completely. The
	// sustained rate is therefore Max requests per Window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
}

// bucket holds per-client token state. Tokens refill continuously; lastSeen
// feeds the cleanup sweep.
type bucket struct {
	tokens   float64
	lastFill time.Time
	lastSeen time.Time
}

type rateLimiter struct {
	cfg     RateLimitConfig
	rate    float64 // tokens per second
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKeyFunc
	}
	return &rateLimiter{
		cfg:     cfg,
		rate:    float64(cfg.Max) / cfg.Window.Seconds(),
		buckets: make(map[string]*bucket),
	}
}

// allow takes one token from key's bucket if available. It returns the number
// of whole tokens left and, when the bucket is empty, how long until the next
// token arrives.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, retryAfter time.Duration, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.cfg.Max), lastFill: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastFill).Seconds() * rl.rate
	if b.tokens > float64(rl.cfg.Max) {
		b.tokens = float64(rl.cfg.Max)
	}
	b.lastFill = now
	b.lastSeen = now

	if b.tokens < 1 {
		wait := (1 - b.tokens) / rl.rate
		return 0, time.Duration(wait * float64(time.Second)), false
	}

	b.tokens--
	return int(b.tokens), 0, true
}

// cleanup drops buckets idle long enough to have refilled completely.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.cfg.Window {
			delete(rl.buckets, key)
		}
	}
}

func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now)
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-key token bucket rate
// limit. When the bucket is empty it responds with 429 Too Many Requests and a
// Retry-After header. Every response carries X-RateLimit-Limit and
// X-RateLimit-Remaining.
//
// This variant does not start a background cleanup goroutine. Use
// RateLimitWithCleanup if you need automatic eviction of idle buckets.
func RateLimit(cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	return rateLimitMiddleware(rl)
}

// RateLimitWithCleanup is like RateLimit but additionally starts a background
// goroutine that evicts idle buckets once per window. The goroutine stops when
// ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startCleanup(ctx)
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, retryAfter, allowed := rl.allow(rl.cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// defaultKeyFunc extracts the client IP from the request, checking
// X-Forwarded-For first, then X-Real-IP, then falling back to RemoteAddr.
func defaultKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For may contain a comma-separated list; use the first.
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
