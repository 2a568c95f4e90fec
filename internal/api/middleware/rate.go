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
	RequestsPerSecond float64
	Burst             int
	// IdleTTL is how long an idle client's limiter is kept.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the socket connection rate limit.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		IdleTTL:           10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per client IP.
type limiterSet struct {
	cfg RateLimitConfig

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &limiterSet{
		cfg:       cfg,
		clients:   make(map[string]*client),
		lastSweep: time.Now(),
	}
}

func (s *limiterSet) allow(ip string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, c := range s.clients {
			if now.Sub(c.lastSeen) > s.cfg.IdleTTL {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}

	c, ok := s.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	set := newLimiterSet(cfg)

	return func(c *gin.Context) {
		if !set.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
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
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
