// Package middleware provides HTTP middleware for request identification,
// session authentication and login rate limiting.
//
// # Middleware Components
//
// RequestID: assigns an X-Request-ID and a request-scoped logger
//
//	router.Use(middleware.RequestID(logger))
//
// SessionAuth: resolves the session token from the Authorization header or
// cookie and stores the principal in the request context
//
//	protected.Use(middleware.SessionAuth(issuer, logger))
//	principal := middleware.GetAuthContext(r)
//
// RateLimit: limits login attempts per client address, in memory or shared
// through Redis
//
//	limiter := middleware.NewRedisLimiter(redisClient, cfg, "federate:ratelimit:login")
//	login.Use(middleware.RateLimit(limiter, logger))
//
// # Related Packages
//
//   - pkg/auth: the AuthContext stored by SessionAuth
//   - pkg/contextkeys: context keys shared with handlers
package middleware
