package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request. Health-check paths can be skipped.
func Audit(logger *slog.Logger, skip ...string) fiber.Handler {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := skipped[c.Path()]; ok {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if err != nil {
			status = fiber.StatusInternalServerError
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if userID := CallerID(c); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			logger.Error("request completed", attrs...)
		case err != nil:
			attrs = append(attrs, slog.Any("error", err))
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}
