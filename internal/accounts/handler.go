package accounts

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/revobank/revobank/internal/httperr"
	"github.com/revobank/revobank/internal/ledger"
	"github.com/revobank/revobank/internal/middleware"
	"github.com/revobank/revobank/internal/money"
)

// Handler exposes account endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type accountRequest struct {
	AccountType string `json:"account_type"`
}

// Response is the wire form of an account.
type Response struct {
	ID            int64     `json:"id"`
	AccountNumber string    `json:"account_number"`
	AccountType   string    `json:"account_type"`
	Balance       string    `json:"balance"`
	OwnerID       string    `json:"owner_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToResponse renders an account for the API.
func ToResponse(a ledger.Account) Response {
	return Response{
		ID:            a.ID,
		AccountNumber: a.Number,
		AccountType:   string(a.Kind),
		Balance:       money.Format(a.Balance),
		OwnerID:       a.OwnerID,
		CreatedAt:     a.CreatedAt,
	}
}

// Create opens a new account for the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	account, err := h.service.Open(c.UserContext(), middleware.CallerID(c), kind)
	if err != nil {
		return httperr.FromLedger(err)
	}
	return c.Status(http.StatusCreated).JSON(ToResponse(account))
}

// List returns the caller's accounts.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts, err := h.service.List(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return httperr.FromLedger(err)
	}
	out := make([]Response, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, ToResponse(a))
	}
	return c.JSON(out)
}

// Get returns one of the caller's accounts.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	account, err := h.service.Get(c.UserContext(), middleware.CallerID(c), id)
	if err != nil {
		return httperr.FromLedger(err)
	}
	return c.JSON(ToResponse(account))
}

// Update changes the account type.
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	account, err := h.service.UpdateKind(c.UserContext(), middleware.CallerID(c), id, kind)
	if err != nil {
		return httperr.FromLedger(err)
	}
	return c.JSON(ToResponse(account))
}

// Delete closes an empty account.
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	if err := h.service.Close(c.UserContext(), middleware.CallerID(c), id); err != nil {
		return httperr.FromLedger(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func parseKind(c *fiber.Ctx) (ledger.AccountKind, error) {
	var req accountRequest
	if err := c.BodyParser(&req); err != nil {
		return "", fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	kind, err := ledger.ParseAccountKind(req.AccountType)
	if err != nil {
		return "", fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return kind, nil
}

func accountID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid account id")
	}
	return id, nil
}
