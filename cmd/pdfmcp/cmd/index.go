package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdfmcp/pdfmcp/internal/corpus"
	"github.com/pdfmcp/pdfmcp/internal/ui"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or rebuild the corpus index",
		Long: `Parse, chunk, and embed every PDF in the documents directory, then
persist the lexical and vector indexes. Existing index state is
replaced; unchanged documents reuse cached embeddings, so a rebuild
over a stable corpus is cheap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd)
		},
	}

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command) error {
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

	out := cmd.OutOrStdout()
	styles := ui.GetStyles(!ui.IsTTY(out) || ui.DetectNoColor())

	_, _ = fmt.Fprintf(out, "Indexing %s\n", cfg.Corpus.DocumentsDir)

	started := time.Now()
	if err := manager.Reload(ctx); err != nil {
		return err
	}
	st := manager.Status()

	_, _ = fmt.Fprintf(out, "%s %d documents, %d chunks (%d embedded) in %s\n",
		styles.Success.Render("Indexed"),
		st.Documents, st.Chunks, st.ChunksEmbedded,
		time.Since(started).Round(time.Millisecond))
	if st.Skipped > 0 {
		_, _ = fmt.Fprintf(out, "%s %d documents skipped; see 'pdfmcp status' for reasons\n",
			styles.Warning.Render("!"), st.Skipped)
	}

	return nil
}
