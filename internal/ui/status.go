package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the corpus and its indexes for the status command.
type StatusInfo struct {
	State          string    `json:"state"`
	Generation     int       `json:"generation"`
	BuiltAt        time.Time `json:"built_at"`
	Documents      int       `json:"documents"`
	Skipped        int       `json:"skipped_documents"`
	Chunks         int       `json:"chunks"`
	EmbeddedChunks int       `json:"embedded_chunks"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	LexicalBackend string    `json:"lexical_backend,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	Stale          bool      `json:"stale,omitempty"`

	DocumentsDir string `json:"documents_dir"`
	IndexDir     string `json:"index_dir"`
	IndexSize    int64  `json:"index_size_bytes"`

	Files []DocumentRow `json:"files,omitempty"`
}

// DocumentRow is one document's accounting line.
type DocumentRow struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Pages  int    `json:"pages"`
	Chunks int    `json:"chunks"`
	Size   int64  `json:"size_bytes"`
	Reason string `json:"reason,omitempty"`
}

// StatusRenderer displays corpus status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Corpus Status"))

	_, _ = fmt.Fprintf(r.out, "  State:      %s\n", r.renderState(info.State))
	_, _ = fmt.Fprintf(r.out, "  Generation: %d\n", info.Generation)
	if !info.BuiltAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Built:      %s\n", formatTime(info.BuiltAt))
	}
	if info.Stale {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.styles.Warning.Render("Documents changed since last build; run 'pdfmcp index'"))
	}
	if info.LastError != "" {
		_, _ = fmt.Fprintf(r.out, "  Last error: %s\n", r.styles.Error.Render(info.LastError))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Documents:  %d indexed, %d skipped\n", info.Documents, info.Skipped)
	_, _ = fmt.Fprintf(r.out, "  Chunks:     %d (%d embedded)\n", info.Chunks, info.EmbeddedChunks)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Index:")
	_, _ = fmt.Fprintf(r.out, "    Source:    %s\n", info.DocumentsDir)
	_, _ = fmt.Fprintf(r.out, "    Directory: %s\n", info.IndexDir)
	_, _ = fmt.Fprintf(r.out, "    Size:      %s\n", FormatBytes(info.IndexSize))
	if info.LexicalBackend != "" {
		_, _ = fmt.Fprintf(r.out, "    Lexical:   %s\n", info.LexicalBackend)
	}
	if info.EmbeddingModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Embedding: %s\n", info.EmbeddingModel)
	}

	if len(info.Files) > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Files:")
		for _, f := range info.Files {
			r.renderFile(f)
		}
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderFile(f DocumentRow) {
	if f.Status == "indexed" {
		mark := r.styles.Success.Render("+")
		_, _ = fmt.Fprintf(r.out, "    %s %-30s %3d pages  %4d chunks  %s\n",
			mark, f.Name, f.Pages, f.Chunks, FormatBytes(f.Size))
		return
	}
	mark := r.styles.Warning.Render("-")
	_, _ = fmt.Fprintf(r.out, "    %s %-30s skipped: %s\n", mark, f.Name, f.Reason)
}

// renderState formats a corpus state with color.
func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "ready":
		return r.styles.Success.Render(state)
	case "loading", "reloading":
		return r.styles.Warning.Render(state)
	case "empty":
		return r.styles.Dim.Render(state)
	default:
		return state
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
