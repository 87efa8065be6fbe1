package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/celery8911/InnerLedger/internal/metrics"
)

const ipLimiterIdle = 10 * time.Minute

// IPRateLimiter token bucket per client IP. Sits in front of the relay route so that
// one client cannot spray requests under many sender addresses.
type IPRateLimiter struct {
	limit  rate.Limit
	burst  int
	logger *logrus.Logger

	mu       sync.Mutex
	limiters map[string]*ipLimiterEntry
	now      func() time.Time
}

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewIPRateLimiter perSecond <= 0 disables the guard.
func NewIPRateLimiter(perSecond float64, burst int, logger *logrus.Logger) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		logger:   logger,
		limiters: make(map[string]*ipLimiterEntry),
		now:      time.Now,
	}
}

func (rl *IPRateLimiter) enabled() bool { return rl.limit > 0 }

// Allow reports whether one more request from ip fits its bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if !rl.enabled() {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastAccess = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Len number of tracked IPs
func (rl *IPRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Sweep drops buckets idle for longer than ten minutes.
func (rl *IPRateLimiter) Sweep() int {
	cutoff := rl.now().Add(-ipLimiterIdle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for ip, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// Run sweeps on a ticker until ctx is done.
func (rl *IPRateLimiter) Run(ctx context.Context, interval time.Duration) {
	if !rl.enabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Sweep(); n > 0 {
				rl.logger.WithField("removed", n).Debug("ip limiter sweep")
			}
		}
	}
}

// Middleware rejects with 429 once an IP's bucket is empty
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if rl.Allow(ip) {
			c.Next()
			return
		}

		metrics.IPRateLimited.Inc()
		rl.logger.WithFields(logrus.Fields{
			"client_ip": ip,
			"path":      c.Request.URL.Path,
		}).Warn("IP rate limit exceeded")

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "Rate limit exceeded. Please try again later.",
		})
	}
}
