// Package httperr maps ledger failures onto HTTP responses.
package httperr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/revobank/revobank/internal/ledger"
	"github.com/revobank/revobank/internal/money"
)

// Status returns the HTTP status for a ledger error.
func Status(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidIntent),
		errors.Is(err, ledger.ErrInvalidKind),
		errors.Is(err, money.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNonZeroBalance):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromLedger converts err into a fiber error. Storage faults keep their detail
// out of the response body.
func FromLedger(err error) *fiber.Error {
	status := Status(err)
	if errors.Is(err, ledger.ErrCompensationFailed) {
		return fiber.NewError(status, ledger.ErrCompensationFailed.Error())
	}
	if status == http.StatusInternalServerError {
		return fiber.NewError(status, ledger.ErrStorageFault.Error())
	}
	return fiber.NewError(status, err.Error())
}

// Handler renders every error as {"error": message}.
func Handler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}
