package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/revobank/revobank/internal/transactions"
)

// RegisterTransactionRoutes wires transaction endpoints. submitLimit guards creation only.
func RegisterTransactionRoutes(r fiber.Router, h *transactions.Handler, submitLimit fiber.Handler) {
	r.Post("/transactions", submitLimit, h.Create)
	r.Get("/transactions", h.List)
	r.Get("/transactions/:id", h.Get)
}
