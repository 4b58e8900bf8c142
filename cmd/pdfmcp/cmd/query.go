package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/pdfmcp/pdfmcp/internal/answer"
	"github.com/pdfmcp/pdfmcp/internal/corpus"
	"github.com/pdfmcp/pdfmcp/internal/query"
	"github.com/pdfmcp/pdfmcp/internal/ui"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	maxChunks  int
	answerMode bool
	jsonOutput bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a one-shot query against the corpus",
		Long: `Retrieve the best-matching chunks for a query.

With --answer an LLM synthesizes an answer from the retrieved chunks
(requires answer.provider in the configuration).

Examples:
  pdfmcp query "warranty coverage for water damage"
  pdfmcp query "maintenance schedule" --max-chunks 10
  pdfmcp query "how do I reset the unit" --answer
  pdfmcp query "torque specs" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runQuery(ctx, cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.maxChunks, "max-chunks", "n", 0, "Maximum chunks to retrieve (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.answerMode, "answer", false, "Synthesize an answer from the retrieved chunks")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, text string, opts queryOptions) error {
	cleanup := setupCLILogging()
	defer cleanup()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.answerMode && !cfg.Answer.Enabled() {
		return fmt.Errorf("--answer requires answer.provider in the configuration")
	}

	manager, err := corpus.NewManagerFromConfig(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	var generator answer.Generator
	if opts.answerMode {
		generator, err = answer.New(cfg.Answer)
		if err != nil {
			return err
		}
	}

	service, err := query.NewService(cfg, query.Dependencies{
		Corpus:    manager,
		Generator: generator,
		Logger:    slog.Default(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	styles := ui.GetStyles(!ui.IsTTY(out) || ui.DetectNoColor())

	if opts.answerMode {
		resp, err := service.Ask(ctx, text, opts.maxChunks)
		if err != nil {
			return err
		}
		if opts.jsonOutput {
			return encodeJSON(out, resp)
		}
		renderAnswer(out, styles, resp)
		return nil
	}

	resp, err := service.Retrieve(ctx, text, opts.maxChunks)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return encodeJSON(out, resp)
	}
	renderRetrieval(out, styles, resp)
	return nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderRetrieval prints ranked chunks with document and page
// attribution.
func renderRetrieval(w io.Writer, styles ui.Styles, resp *query.RetrievalResponse) {
	if resp.TotalChunks == 0 {
		_, _ = fmt.Fprintf(w, "No results for %q\n", resp.Query)
		return
	}

	_, _ = fmt.Fprintf(w, "%s\n\n",
		styles.Header.Render(fmt.Sprintf("%d results for %q", resp.TotalChunks, resp.Query)))

	for i, c := range resp.Chunks {
		head := styles.Active.Render(fmt.Sprintf("%d. %s", i+1, c.DocumentName)) +
			styles.Label.Render(fmt.Sprintf("  page %d", c.PageNumber))
		if score, ok := c.Metadata["score"].(float64); ok {
			head += styles.Score.Render(fmt.Sprintf("  score %.3f", score))
		}
		_, _ = fmt.Fprintln(w, head)

		for _, line := range snippet(c.Content, 3) {
			_, _ = fmt.Fprintf(w, "   %s\n", line)
		}
		_, _ = fmt.Fprintln(w)
	}
}

// renderAnswer prints a synthesized answer with its citations, or the
// degraded chunk payload when generation failed.
func renderAnswer(w io.Writer, styles ui.Styles, resp *query.AnswerResponse) {
	if resp.Note != "" {
		_, _ = fmt.Fprintf(w, "%s\n\n", styles.Warning.Render(resp.Note))
	}
	if resp.Answer != "" {
		_, _ = fmt.Fprintf(w, "%s\n", resp.Answer)
	}

	if len(resp.Sources) > 0 {
		_, _ = fmt.Fprintf(w, "\n%s\n", styles.Header.Render("Sources"))
		for i, s := range resp.Sources {
			_, _ = fmt.Fprintf(w, "  %d. %s (page %d)\n", i+1, s.DocumentName, s.PageNumber)
		}
		_, _ = fmt.Fprintf(w, "\n%s\n",
			styles.Dim.Render(fmt.Sprintf("confidence %.2f", resp.ConfidenceScore)))
	}

	for i, c := range resp.Chunks {
		_, _ = fmt.Fprintf(w, "  %d. %s (page %d)\n", i+1, c.DocumentName, c.PageNumber)
		for _, line := range snippet(c.Content, 2) {
			_, _ = fmt.Fprintf(w, "     %s\n", line)
		}
	}
}

// snippet returns up to n display lines of chunk content, each capped
// to a terminal-friendly width.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[:n]
	}
	for i, line := range lines {
		lines[i] = truncateLine(strings.TrimSpace(line), 160)
	}
	return lines
}

// truncateLine cuts s to max bytes on a rune boundary.
func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
