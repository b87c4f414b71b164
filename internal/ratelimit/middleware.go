package ratelimit

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// MiddlewareConfig configures the Fiber rate limit middleware
type MiddlewareConfig struct {
	// KeyFunc identifies the client, c.IP() by default.
	KeyFunc func(c *fiber.Ctx) string

	// LimitReached writes the rejection, a bare 429 by default.
	LimitReached fiber.Handler

	// OnStoreError is called when the store fails; the request continues.
	OnStoreError func(c *fiber.Ctx, err error)
}

// Middleware rejects requests over the limiter's budget and reports the
// budget in X-RateLimit-* headers.
func Middleware(l *Limiter, cfg MiddlewareConfig) fiber.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}
	if cfg.LimitReached == nil {
		cfg.LimitReached = func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusTooManyRequests)
		}
	}

	return func(c *fiber.Ctx) error {
		result, err := l.Allow(c.UserContext(), cfg.KeyFunc(c))
		if err != nil {
			log.Warn().Err(err).Msg("Rate limit check failed, allowing request")
			if cfg.OnStoreError != nil {
				cfg.OnStoreError(c, err)
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(result.RetryAfter(time.Now()).Seconds())))
			return cfg.LimitReached(c)
		}
		return c.Next()
	}
}
