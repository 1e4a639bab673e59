package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds a readiness endpoint that runs every configured check.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := fiber.Map{}
		for name, check := range d.Checks {
			results[name] = "ok"
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		if d.Cache != nil {
			results["redis"] = "ok"
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				results["redis"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    results,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
