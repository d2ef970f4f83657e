package middleware

import (
	"math"
	"net/http"

	"github.com/labstack/echo/v4"

	"cuidar/internal/infrastructure/ratelimit"
	"cuidar/pkg/logger"
)

// ActionHTTP is the limiter action shared by every REST request.
const ActionHTTP = "http"

// RateLimit throttles requests per authenticated user, or per client IP
// before authentication has run.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, ok := UID(c)
			if !ok {
				key = "ip:" + c.RealIP()
			}

			if allowed, wait := limiter.Allow(key, ActionHTTP); !allowed {
				logger.Warn("RATE LIMIT: blocked request from %s (retry in %v)", key, wait)
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded",
					"retry_after": int(math.Ceil(wait.Seconds())),
				})
			}
			return next(c)
		}
	}
}
