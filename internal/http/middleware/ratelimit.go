package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	visitorIdleEviction = 10 * time.Minute
	sweepInterval       = time.Minute
)

// RateLimiter throttles callers by key with a token bucket per key. Webhook
// endpoints sit in front of it keyed by source IP; the refill rate is the
// sustained allowance and burst is the headroom for gateway redelivery
// spikes.
type RateLimiter struct {
	refillPerSec float64
	burst        float64
	now          func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter creates a limiter refilling refillPerSec tokens up to burst
// per key.
func NewRateLimiter(refillPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		refillPerSec: refillPerSec,
		burst:        float64(burst),
		now:          time.Now,
		visitors:     make(map[string]*visitor),
	}
}

// Allow reports whether the caller identified by key may proceed, consuming
// one token when it does. Idle keys are swept inline, so an idle limiter
// holds no goroutine and no stale entries beyond the eviction window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweepLocked(now)

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{tokens: rl.burst}
		rl.visitors[key] = v
	} else {
		v.tokens += now.Sub(v.seen).Seconds() * rl.refillPerSec
		if v.tokens > rl.burst {
			v.tokens = rl.burst
		}
	}
	v.seen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < sweepInterval {
		return
	}
	rl.lastSweep = now
	for key, v := range rl.visitors {
		if now.Sub(v.seen) > visitorIdleEviction {
			delete(rl.visitors, key)
		}
	}
}

// retryAfter is the hint sent with a 429, long enough for one token to
// accrue.
func (rl *RateLimiter) retryAfter() int {
	if rl.refillPerSec <= 0 {
		return 1
	}
	secs := int(1 / rl.refillPerSec)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimit rejects requests over the per-IP allowance with 429 and a
// Retry-After hint. The client IP comes from X-Real-Ip when chi's RealIP
// middleware runs earlier in the chain, falling back to the socket address.
func RateLimit(refillPerSec float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(refillPerSec, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Real-Ip")
			if key == "" {
				key = r.RemoteAddr
			}
			if !limiter.Allow(key) {
				w.Header().Set("Retry-After", strconv.Itoa(limiter.retryAfter()))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
