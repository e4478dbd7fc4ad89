package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/stewardhq/steward/internal/catalog"
	"github.com/stewardhq/steward/internal/engine"
	"github.com/stewardhq/steward/internal/expressions"
	"github.com/stewardhq/steward/internal/logging"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/trigger"
	"github.com/stewardhq/steward/internal/validation"
	"github.com/stewardhq/steward/pkg/mcp"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		printVersion()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "steward: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	engines, err := expressions.NewSet()
	if err != nil {
		return fmt.Errorf("init expression engines: %w", err)
	}

	runner := &engine.Runner{
		Evaluator: &engine.Evaluator{Engines: engines, Logger: logger},
		Applier:   &engine.Applier{Logger: logger},
		Logger:    logger,
	}

	validator, err := validation.NewValidator()
	if err != nil {
		return fmt.Errorf("init validator: %w", err)
	}

	cat := catalog.New(st, logger)

	dispatcher := trigger.NewDispatcher(st, cat, runner, logger, cfg.schedulerInterval())
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	defer func() {
		if err := dispatcher.Stop(); err != nil {
			logger.Error("dispatcher shutdown failed", "error", err.Error())
		}
	}()

	srv := mcp.NewStewardServer(mcp.StewardServerDeps{
		Catalog:   cat,
		Store:     st,
		Runner:    runner,
		Validator: validator,
		Logger:    logger,
	})

	logger.Info("steward started",
		"version", version,
		"db_path", cfg.DBPath,
		"scheduler_interval", cfg.schedulerInterval().String(),
	)

	return srv.Serve(ctx)
}

// newLogger builds the process logger. Logs go to stderr so the stdio MCP
// transport keeps stdout to itself.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
