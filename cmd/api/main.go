package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/revobank/revobank/internal/config"
	"github.com/revobank/revobank/internal/logging"
	"github.com/revobank/revobank/internal/notification"
	"github.com/revobank/revobank/internal/routes"
	"github.com/revobank/revobank/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With(slog.String("app", cfg.AppName))

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("close backends", "error", err)
		}
	}()

	notifier := notification.Fanout{notification.NewLoggerNotifier(logger)}
	if b.cache != nil {
		notifier = append(notifier, notification.NewRedisNotifier(b.cache, ""))
	}

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		Store:    b.store,
		Locker:   b.locker,
		Cache:    b.cache,
		Notifier: notifier,
		Checks:   b.checks,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	logger.Info("starting server",
		slog.String("addr", cfg.Address()),
		slog.String("store", cfg.StoreDriver),
		slog.String("locks", cfg.LockBackend),
	)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
