package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/vaultiq/mediavault/common/ratelimit"
)

// GlobalRateLimitMiddleware enforces the service-wide upload limit.
// A limiter failure allows the request (fail open for availability).
func GlobalRateLimitMiddleware(limiter *ratelimit.Limiter, limit int64, windowSec int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limit <= 0 {
				return next(c)
			}

			result, err := limiter.CheckGlobalLimit(c.Request().Context(), limit, windowSec)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error_code": "global_rate_limit_exceeded",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// OwnerRateLimitMiddleware enforces the per-owner upload limit using the
// owner_id route parameter.
func OwnerRateLimitMiddleware(limiter *ratelimit.Limiter, limit int64, windowSec int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limit <= 0 {
				return next(c)
			}

			ownerID, err := uuid.Parse(c.Param("owner_id"))
			if err != nil {
				// Malformed ids are the handler's problem, not the limiter's
				return next(c)
			}

			result, err := limiter.CheckOwnerLimit(c.Request().Context(), ownerID, limit, windowSec)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error_code": "owner_rate_limit_exceeded",
					"details": map[string]interface{}{
						"owner_id":            ownerID,
						"limit":               result.Limit,
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
