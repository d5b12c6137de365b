package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/carebridge/internal/handler"
)

type RateLimiterConfig struct {
	// Rate and Burst bound the whole instance.
	Rate  rate.Limit
	Burst int
	// PerClientRate and PerClientBurst bound each client IP. Zero disables
	// the per-client bucket.
	PerClientRate  rate.Limit
	PerClientBurst int
	ClientTTL      time.Duration
}

type RateLimiter struct {
	global  *rate.Limiter
	clients *cache.Cache
	config  RateLimiterConfig
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.ClientTTL <= 0 {
		config.ClientTTL = 10 * time.Minute
	}
	return &RateLimiter{
		global:  rate.NewLimiter(config.Rate, config.Burst),
		clients: cache.New(config.ClientTTL, 2*config.ClientTTL),
		config:  config,
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.global.Allow() || !rl.client(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, handler.NewErrorResponse("RATE_LIMITED", "Rate limit exceeded"))
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) client(ip string) *rate.Limiter {
	if rl.config.PerClientRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if v, ok := rl.clients.Get(ip); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.config.PerClientRate, rl.config.PerClientBurst)
	// Add loses the race to a concurrent caller; use whichever won.
	if err := rl.clients.Add(ip, l, cache.DefaultExpiration); err != nil {
		if v, ok := rl.clients.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}
