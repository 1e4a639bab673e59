package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/revobank/revobank/internal/accounts"
	"github.com/revobank/revobank/internal/config"
	"github.com/revobank/revobank/internal/ledger"
	"github.com/revobank/revobank/internal/middleware"
	"github.com/revobank/revobank/internal/notification"
	"github.com/revobank/revobank/internal/transactions"
)

// Check reports the health of one backing service.
type Check func(ctx context.Context) error

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Store    ledger.Store
	Locker   ledger.Locker
	Cache    *redis.Client
	Notifier notification.Notifier
	Checks   map[string]Check
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil || d.Locker == nil {
		return fmt.Errorf("ledger store and locker are required")
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger, "/healthz"))

	RegisterHealthRoutes(app, d)

	engine := ledger.NewEngine(d.Store, d.Store, d.Locker,
		ledger.WithLockTimeout(d.Cfg.LockTimeout),
		ledger.WithStoreTimeout(d.Cfg.StoreTimeout),
		ledger.WithLogger(d.Logger.With(slog.String("component", "ledger"))),
	)
	accountHandler := accounts.NewHandler(accounts.NewService(engine))
	txHandler := transactions.NewHandler(transactions.NewService(engine, d.Notifier, d.Logger))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.Caller())
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterAccountRoutes(protected, accountHandler)
	submitLimit := middleware.RateLimit(d.Cache, "submit", d.Cfg.SubmitRateLimit, d.Logger)
	RegisterTransactionRoutes(protected, txHandler, submitLimit)

	return nil
}
