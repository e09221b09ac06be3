package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"keymint/internal/config"
	"keymint/internal/models"
	"keymint/internal/service"
	"keymint/internal/store"
)

// RateLimiter holds one token bucket per client IP in an expiring LRU.
// It is non-authoritative and tolerates races: a lost update means at most
// one extra allowed request, never a corrupted license.
type RateLimiter struct {
	ips     *expirable.LRU[string, *rate.Limiter]
	r       rate.Limit
	b       int
	enabled bool
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	size := cfg.CacheSize
	if size <= 0 {
		size = 5000
	}
	ttl := cfg.CacheTTL

	return &RateLimiter{
		ips:     expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
		r:       rate.Limit(cfg.RequestsPerSecond),
		b:       cfg.Burst,
		enabled: cfg.Enabled,
	}
}

func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	if limiter, ok := rl.ips.Get(ip); ok {
		return limiter
	}

	limiter := rate.NewLimiter(rl.r, rl.b)
	rl.ips.Add(ip, limiter)
	return limiter
}

// RateLimitMiddleware rejects over-limit requests with 429 and audits each
// rejection.
func RateLimitMiddleware(cfg config.RateLimitConfig, audit store.AuditStore) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	rl := NewRateLimiter(cfg)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := rl.GetLimiter(ip)

		if !limiter.Allow() {
			service.AsyncAudit(audit, &models.AuditEntry{
				Action:  models.ActionRateLimited,
				Origin:  ip,
				Details: fmt.Sprintf("IP: %s", ip),
			})
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
