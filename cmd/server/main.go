package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/docparse/internal/config"
	"github.com/JonMunkholm/docparse/internal/core"
	"github.com/JonMunkholm/docparse/internal/logging"
	"github.com/JonMunkholm/docparse/internal/parser"
	"github.com/JonMunkholm/docparse/internal/session"
	"github.com/JonMunkholm/docparse/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(cfg *config.Config) error {
	client := parser.New(cfg.Parser.URL, parser.WithTimeout(cfg.Parser.Timeout))
	previews := core.NewPreviewStore()
	limiter := core.NewParseLimiter(cfg.Parser.MaxConcurrent, cfg.Parser.MaxWait)

	sessions := session.NewStore(func() *core.Workflow {
		return core.NewWorkflow(client, previews,
			core.WithLimiter(limiter),
			core.WithMaxFileSize(cfg.Upload.MaxFileSize),
		)
	}, cfg.Session.IdleTimeout)

	server := web.NewServer(cfg, sessions, previews, limiter)
	slog.Info("parser configured", "endpoint", client.Endpoint(), "timeout", cfg.Parser.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sessions.Run(gctx, cfg.Session.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for parses to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("parses did not complete in time", "error", err)
			}
		}

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
