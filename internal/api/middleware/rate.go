package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTimeout drops per-client limiters not seen for this long
	IdleTimeout time.Duration
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTimeout:       10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client IP
type clientLimiters struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	clients   map[string]*client
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiters(cfg RateLimitConfig, now func() time.Time) *clientLimiters {
	return &clientLimiters{
		cfg:       cfg,
		clients:   make(map[string]*client),
		lastSweep: now(),
		now:       now,
	}
}

func (l *clientLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.cfg.IdleTimeout > 0 && now.Sub(l.lastSweep) >= l.cfg.IdleTimeout {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) >= l.cfg.IdleTimeout {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *clientLimiters) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return rateLimit(newClientLimiters(cfg, time.Now))
}

func rateLimit(limiters *clientLimiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			tooMany(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			tooMany(c)
			return
		}
		c.Next()
	}
}

func tooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"error":   "rate limit exceeded",
	})
}
