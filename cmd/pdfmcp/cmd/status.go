package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdfmcp/pdfmcp/internal/corpus"
	"github.com/pdfmcp/pdfmcp/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show corpus and index status",
		Long: `Show the state of the persisted corpus: build generation, document
and chunk counts, index location, and per-document detail.

Reads recorded state only; it never parses documents or rebuilds
indexes. A corpus whose documents changed since the last build is
reported as stale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cleanup := setupCLILogging()
	defer cleanup()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Corpus.IndexDir); err != nil {
		return fmt.Errorf("no index found in %s\nRun 'pdfmcp index' to create one", cfg.Corpus.IndexDir)
	}

	manager, err := corpus.NewManagerFromConfig(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	st, exists, err := manager.PersistedStatus(ctx)
	if err != nil {
		return fmt.Errorf("read corpus state: %w", err)
	}
	if !exists {
		return fmt.Errorf("no index found in %s\nRun 'pdfmcp index' to create one", cfg.Corpus.IndexDir)
	}

	info := ui.StatusInfo{
		State:          string(st.State),
		Generation:     st.Generation,
		BuiltAt:        st.BuiltAt,
		Documents:      st.Documents,
		Skipped:        st.Skipped,
		Chunks:         st.Chunks,
		EmbeddedChunks: st.ChunksEmbedded,
		EmbeddingModel: st.EmbeddingModel,
		LexicalBackend: st.LexicalBackend,
		LastError:      st.LastError,
		Stale:          st.Stale,
		DocumentsDir:   cfg.Corpus.DocumentsDir,
		IndexDir:       cfg.Corpus.IndexDir,
		IndexSize:      dirSize(cfg.Corpus.IndexDir),
	}

	docs, err := manager.Documents(ctx)
	if err != nil {
		return fmt.Errorf("read document records: %w", err)
	}
	for _, d := range docs {
		info.Files = append(info.Files, ui.DocumentRow{
			Name:   d.Name,
			Status: string(d.Status),
			Pages:  d.Pages,
			Chunks: d.Chunks,
			Size:   d.SizeBytes,
			Reason: d.Reason,
		})
	}

	out := cmd.OutOrStdout()
	renderer := ui.NewStatusRenderer(out, !ui.IsTTY(out) || ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// dirSize sums file sizes under path, ignoring traversal errors.
func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})
	return size
}
