package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestID keeps a client-supplied request id when it is reasonable, otherwise
// mints one, and echoes it on the response.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(requestIDHeader, reqID)
		return c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestID.
func RequestIDFrom(c *fiber.Ctx) string {
	reqID, _ := c.Locals(requestIDHeader).(string)
	return reqID
}
