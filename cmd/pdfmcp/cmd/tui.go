package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdfmcp/pdfmcp/internal/corpus"
	"github.com/pdfmcp/pdfmcp/internal/query"
	"github.com/pdfmcp/pdfmcp/internal/ui"
)

func newTuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive search session",
		Long: `Open an interactive terminal session for searching the corpus.

Type a query and press enter; arrow keys scroll the results. Requires
a TTY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTui(ctx, cmd)
		},
	}
}

func runTui(ctx context.Context, cmd *cobra.Command) error {
	cleanup := setupCLILogging()
	defer cleanup()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := corpus.NewManagerFromConfig(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	service, err := query.NewService(cfg, query.Dependencies{
		Corpus: manager,
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}

	// Validate the terminal before building anything.
	session, err := ui.NewSession(service, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	// Build before the first keystroke so searches never block on
	// indexing.
	if err := manager.Ensure(ctx); err != nil {
		return fmt.Errorf("prepare corpus: %w", err)
	}

	return session.Run()
}
