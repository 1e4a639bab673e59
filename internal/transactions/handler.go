package transactions

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/revobank/revobank/internal/httperr"
	"github.com/revobank/revobank/internal/ledger"
	"github.com/revobank/revobank/internal/middleware"
	"github.com/revobank/revobank/internal/money"
)

const dateLayout = "2006-01-02"

// Handler exposes transaction endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transaction handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type submitRequest struct {
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	AccountID       int64           `json:"account_id"`
	FromAccountID   int64           `json:"from_account_id"`
	ToAccountID     int64           `json:"to_account_id"`
	Description     string          `json:"description"`
}

// Response is the wire form of a logged transaction.
type Response struct {
	ID              int64     `json:"id"`
	TransactionType string    `json:"transaction_type"`
	Amount          string    `json:"amount"`
	FromAccountID   *int64    `json:"from_account_id,omitempty"`
	ToAccountID     *int64    `json:"to_account_id,omitempty"`
	Status          string    `json:"status"`
	Description     string    `json:"description"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ToResponse renders a transaction for the API.
func ToResponse(tx ledger.Transaction) Response {
	resp := Response{
		ID:              tx.ID,
		TransactionType: string(tx.Kind),
		Amount:          money.Format(tx.Amount),
		Status:          string(tx.Status),
		Description:     tx.Description,
		Reason:          tx.Reason,
		CreatedAt:       tx.CreatedAt,
	}
	if tx.SourceID != 0 {
		from := tx.SourceID
		resp.FromAccountID = &from
	}
	if tx.DestinationID != 0 {
		to := tx.DestinationID
		resp.ToAccountID = &to
	}
	return resp
}

// Create submits a deposit, withdrawal or transfer.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	intent, err := req.intent()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.service.Submit(c.UserContext(), middleware.CallerID(c), intent)
	if err != nil {
		if outcome.Status == ledger.StatusRejected && outcome.Transaction.ID != 0 {
			return c.Status(httperr.Status(err)).JSON(fiber.Map{
				"error":       httperr.FromLedger(err).Message,
				"transaction": ToResponse(outcome.Transaction),
			})
		}
		return httperr.FromLedger(err)
	}
	return c.Status(http.StatusCreated).JSON(ToResponse(outcome.Transaction))
}

func (r submitRequest) intent() (ledger.Intent, error) {
	amount, err := money.ToMinor(r.Amount)
	if err != nil {
		return ledger.Intent{}, err
	}
	intent := ledger.Intent{
		Kind:        ledger.TransactionKind(strings.ToLower(strings.TrimSpace(r.TransactionType))),
		Amount:      amount,
		Description: strings.TrimSpace(r.Description),
	}
	switch intent.Kind {
	case ledger.TxDeposit:
		intent.DestinationID, err = sameAccount(r.AccountID, r.ToAccountID)
		intent.SourceID = r.FromAccountID
	case ledger.TxWithdrawal:
		intent.SourceID, err = sameAccount(r.AccountID, r.FromAccountID)
		intent.DestinationID = r.ToAccountID
	default:
		intent.SourceID, err = sameAccount(r.FromAccountID, r.AccountID)
		intent.DestinationID = r.ToAccountID
	}
	if err != nil {
		return ledger.Intent{}, err
	}
	if err := intent.Validate(); err != nil {
		return ledger.Intent{}, err
	}
	return intent, nil
}

// sameAccount merges two request fields that name the same account. Either may be
// omitted, but they must agree when both are set.
func sameAccount(a, b int64) (int64, error) {
	switch {
	case a == 0:
		return b, nil
	case b == 0 || a == b:
		return a, nil
	default:
		return 0, fmt.Errorf("%w: conflicting account ids %d and %d", ledger.ErrInvalidIntent, a, b)
	}
}

// List returns the caller's history, optionally narrowed to one account and a date range.
func (h *Handler) List(c *fiber.Ctx) error {
	var q ListQuery
	if raw := c.Query("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(http.StatusBadRequest, "invalid account_id")
		}
		q.AccountID = id
	}
	var err error
	if q.Start, err = parseBound(c.Query("start_date"), false); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid start_date")
	}
	if q.End, err = parseBound(c.Query("end_date"), true); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid end_date")
	}

	txs, err := h.service.List(c.UserContext(), middleware.CallerID(c), q)
	if err != nil {
		return httperr.FromLedger(err)
	}
	out := make([]Response, 0, len(txs))
	for _, tx := range txs {
		out = append(out, ToResponse(tx))
	}
	return c.JSON(out)
}

// Get returns one transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return fiber.NewError(http.StatusBadRequest, "invalid transaction id")
	}
	tx, err := h.service.Get(c.UserContext(), middleware.CallerID(c), id)
	if err != nil {
		return httperr.FromLedger(err)
	}
	return c.JSON(ToResponse(tx))
}

// parseBound accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseBound(raw string, end bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp or YYYY-MM-DD")
	}
	if end {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}
