package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	// CallerHeader carries the authenticated user id set by the gateway.
	CallerHeader = "X-User-ID"
	callerLocal  = "user_id"
)

// Caller requires the gateway-provided user id and exposes it to handlers.
func Caller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// c.Get aliases the request buffer; the id outlives the request as an account owner.
		userID := strings.TrimSpace(utils.CopyString(c.Get(CallerHeader)))
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+CallerHeader+" header")
		}
		if len(userID) > 64 {
			return fiber.NewError(fiber.StatusBadRequest, CallerHeader+" is too long")
		}
		c.Locals(callerLocal, userID)
		return c.Next()
	}
}

// CallerID returns the user id stored by Caller, or "" outside that middleware.
func CallerID(c *fiber.Ctx) string {
	userID, _ := c.Locals(callerLocal).(string)
	return userID
}
