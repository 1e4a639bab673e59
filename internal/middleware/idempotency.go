package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	inProgressMarker     = "__in_progress__"
	cacheOpTimeout       = 2 * time.Second
)

type storedResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers"`
}

// Idempotency replays the stored response when an unsafe request repeats its
// Idempotency-Key. Keys are scoped per caller and route; reusing a key with a
// different body is refused. Requests without the header pass through, and
// server errors are never stored so the client can retry them.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > 255 {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key is too long")
		}

		cacheKey := idempotencyPrefix + CallerID(c) + ":" + c.Method() + ":" + c.Path() + ":" + key
		fingerprint := bodyFingerprint(c.Body())
		log := logger.With(slog.String("idempotency_key", key))

		ctx, cancel := context.WithTimeout(c.UserContext(), cacheOpTimeout)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			return replay(c, cached, fingerprint, log)
		case !errors.Is(err, redis.Nil):
			log.Error("idempotency lookup failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			forget(cache, cacheKey)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			forget(cache, cacheKey)
			return nil
		}

		stored := storedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			Body:        string(c.Response().Body()),
			Headers:     map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			log.Error("failed to encode idempotent response", slog.Any("error", err))
			forget(cache, cacheKey)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), cacheOpTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			// The request already succeeded; only the replay is lost.
			log.Error("failed to persist idempotent response", slog.Any("error", err))
			forget(cache, cacheKey)
		}
		return nil
	}
}

func replay(c *fiber.Ctx, cached, fingerprint string, log *slog.Logger) error {
	if cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		log.Warn("failed to decode stored idempotent response", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if stored.Fingerprint != fingerprint {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request body")
	}

	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(stored.Status).SendString(stored.Body)
}

func forget(cache *redis.Client, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	cache.Del(ctx, key)
}

func bodyFingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
