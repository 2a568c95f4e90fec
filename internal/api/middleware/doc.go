// Package middleware provides HTTP middleware for the terminal server.
//
// Middleware stack includes:
//   - RequestID: X-Request-ID propagation (google/uuid)
//   - Logger: structured request logging via zap
//   - Recovery: panic recovery with a logged stack
//   - CORS: cross-origin access to the read-only endpoints
//   - RateLimit: per-IP token bucket, applied to socket upgrades
//
// Rate Limiting:
//   - Per-IP tracking with idle eviction
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//   - Global rate limiting option
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(log), middleware.Recovery(log))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	sockets.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
