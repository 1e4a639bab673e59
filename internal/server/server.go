package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/revobank/revobank/internal/httperr"
	"github.com/revobank/revobank/internal/routes"
)

// Server wraps the Fiber application.
type Server struct {
	app  *fiber.App
	addr string
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(deps routes.Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	app := fiber.New(fiber.Config{
		AppName:               deps.Cfg.AppName,
		Immutable:             true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: !deps.Cfg.IsDev(),
		ErrorHandler:          httperr.Handler(deps.Logger),
	})

	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, addr: deps.Cfg.Address()}, nil
}

// App exposes the underlying Fiber app, mainly for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
