package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/logging"
	"github.com/rendis/ruleflow/internal/panel"
	"github.com/rendis/ruleflow/internal/scheduler"
	"github.com/rendis/ruleflow/internal/store"
	"github.com/rendis/ruleflow/internal/streaming"
	"github.com/rendis/ruleflow/internal/validation"
	"github.com/rendis/ruleflow/pkg/mcp"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ruleflow: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve":
		return runServe()
	case "mcp":
		return runMCP()
	case "import":
		if len(args) < 2 {
			return fmt.Errorf("usage: ruleflow import <file.json>")
		}
		return runImport(args[1])
	case "version":
		fmt.Println(version)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: ruleflow [command]

Commands:
  serve            Start the diagram panel HTTP server (default)
  mcp              Start the MCP server on stdio
  import <file>    Validate a rule document and load it into the store
  version          Print the version`)
}

func newLogger(cfg Config, w *os.File) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func runServe() error {
	cfg := loadConfig()
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := streaming.NewMemoryHub()

	previewer, err := expressions.NewPreviewer()
	if err != nil {
		return err
	}
	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}

	deps := panel.Deps{
		Store:     st,
		Hub:       hub,
		Previewer: previewer,
		Validator: validator,
		Logger:    logger,
	}

	if cfg.RefreshCron != "" {
		refresher, err := scheduler.NewRefresher(cfg.RefreshCron, cfg.refreshPollInterval(), logger)
		if err != nil {
			return err
		}
		if err := refresher.Start(ctx); err != nil {
			return err
		}
		defer refresher.Stop()
		deps.Refresher = refresher
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: panel.NewServer(deps).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("panel server listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg := loadConfig()
	// stdout carries the MCP protocol; logs go to stderr.
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := streaming.NewMemoryHub()

	previewer, err := expressions.NewPreviewer()
	if err != nil {
		return err
	}
	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}

	flowServer := mcp.NewFlowServer(mcp.FlowServerDeps{
		Store:     st,
		Previewer: previewer,
		Validator: validator,
		Hub:       hub,
		Logger:    logger,
	})

	notifier := mcp.NewFlowNotifier(flowServer)
	go func() {
		if err := notifier.Run(ctx, hub); err != nil {
			logger.Error("notifier stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("mcp server listening on stdio")
	return flowServer.Serve(ctx)
}
