package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/revobank/revobank/internal/accounts"
)

// RegisterAccountRoutes wires account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *accounts.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts", h.List)
	r.Get("/accounts/:id", h.Get)
	r.Put("/accounts/:id", h.Update)
	r.Delete("/accounts/:id", h.Delete)
}
