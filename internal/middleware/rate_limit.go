package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "rl:v1:"

// RateLimit caps requests per caller (or client IP when anonymous) to maxPerMin
// within a fixed one-minute window kept in Redis. A nil cache or a
// non-positive limit disables it, and Redis errors fail open.
func RateLimit(cache *redis.Client, scope string, maxPerMin int, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}

		subject := CallerID(c)
		if subject == "" {
			subject = "ip:" + c.IP()
		}
		window := time.Now().Unix() / 60
		key := rateLimitPrefix + scope + ":" + subject + ":" + strconv.FormatInt(window, 10)

		ctx := c.UserContext()
		pipe := cache.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*time.Minute)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("rate limit check failed", slog.String("scope", scope), slog.Any("error", err))
			return c.Next()
		}

		if incr.Val() > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
