// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds an in-process token-bucket limiter with one bucket per
// caller. Buckets idle for longer than the TTL are swept at most once per
// TTL. Limits are per process; replicas each keep their own buckets.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-clinic-api/internal/apperr"
)

const (
	msgRateLimited = "Demasiadas solicitudes, intente de nuevo más tarde"

	defaultBucketTTL = 10 * time.Minute
	// retryAfterBlocked is sent when the bucket can never refill (RATE_RPS=0).
	retryAfterBlocked = 60
)

// keyFunc maps a request to its bucket, e.g. "user:<id>" or "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the authenticated user when Authenticate has
// already run, otherwise by client IP. The prefixes keep the two namespaces
// apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := c.GetString(userIDKey); id != "" {
			return "user:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter allows rps requests per second per key with bursts of up to
// burst (at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		ttl:     defaultBucketTTL,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	rl.lastSweep = rl.now()
	return rl
}

// limiter returns the bucket for key, creating it when absent. Stale buckets
// are dropped first so a long-idle caller starts with a full bucket.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.ttl {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Handler enforces the limit. Rejected requests get Retry-After (whole
// seconds until the next token) and a 429 through ErrorHandler.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := rl.now()
		res := rl.limiter(rl.keyFn(c)).ReserveN(now, 1)
		if res.OK() && res.DelayFrom(now) == 0 {
			c.Next()
			return
		}

		wait := retryAfterBlocked
		if res.OK() {
			wait = int(math.Ceil(res.DelayFrom(now).Seconds()))
			if wait < 1 {
				wait = 1
			}
			// Hand the token back; this request is not going to use it.
			res.CancelAt(now)
		}
		c.Header("Retry-After", strconv.Itoa(wait))
		Fail(c, apperr.New(msgRateLimited, http.StatusTooManyRequests))
	}
}
