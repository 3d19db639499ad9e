package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apiContext "smartqr/internal/api/context"
	"smartqr/internal/pkg/errors"
	"smartqr/internal/pkg/parser"
	"smartqr/internal/platform/config"
)

const idleLimiterTTL = 10 * time.Minute

type visitor struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles scans per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	r        rate.Limit
	b        int
	now      func() time.Time

	// Proxies resolves the client address keyed on. Nil keys on RemoteAddr.
	Proxies *parser.TrustedProxies
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	perMinute := cfg.ScansPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		r:        rate.Limit(float64(perMinute) / 60.0),
		b:        burst,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.r, rl.b)}
		rl.visitors[key] = v
	}
	v.lastAccess = now
	return v.limiter.AllowN(now, 1)
}

// Cleanup drops limiters idle for longer than ten minutes and returns how many it removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, v := range rl.visitors {
		if now.Sub(v.lastAccess) > idleLimiterTTL {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := rl.Proxies.ClientIP(r)
		if !rl.Allow(ip) {
			retry := int(math.Ceil(1 / float64(rl.r)))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", nil)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), apiContext.ClientIP, ip)))
	}
}
