package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdfmcp/pdfmcp/internal/answer"
	"github.com/pdfmcp/pdfmcp/internal/corpus"
	"github.com/pdfmcp/pdfmcp/internal/logging"
	"github.com/pdfmcp/pdfmcp/internal/mcp"
	"github.com/pdfmcp/pdfmcp/internal/query"
	"github.com/pdfmcp/pdfmcp/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server.

The server speaks JSON-RPC on stdio; stdout carries protocol frames
only, so logs go to the state directory. Unless corpus.lazy is set the
corpus is built before the server accepts requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport (only stdio is supported)")

	return cmd
}

// runServe wires the full serving stack and blocks until the client
// disconnects or the context is canceled.
func runServe(ctx context.Context, transport string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport != "" {
		cfg.Server.Transport = transport
	}

	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupServe(level)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()
	logger := slog.Default()

	manager, err := corpus.NewManagerFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	var generator answer.Generator
	if cfg.Answer.Enabled() {
		generator, err = answer.New(cfg.Answer)
		if err != nil {
			return fmt.Errorf("create answer provider: %w", err)
		}
	}

	service, err := query.NewService(cfg, query.Dependencies{
		Corpus:    manager,
		Generator: generator,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(cfg, mcp.Dependencies{
		Service: service,
		Corpus:  manager,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if !cfg.Corpus.Lazy {
		if err := manager.Ensure(ctx); err != nil {
			return fmt.Errorf("initial corpus build: %w", err)
		}
	}

	if cfg.Watch.Enabled {
		w, err := watcher.New(cfg.Corpus.DocumentsDir, cfg.WatchDebounce(), manager.Reload, logger)
		if err != nil {
			// Watching is best effort; the reload_corpus tool remains
			// the manual path.
			logger.Warn("watcher_unavailable", slog.String("error", err.Error()))
		} else {
			go func() {
				if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("watcher_stopped", slog.String("error", err.Error()))
				}
			}()
			defer w.Stop()
		}
	}

	return server.Run(ctx)
}
