package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdfmcp/pdfmcp/internal/logging"
)

// logsOptions holds CLI flags for logs.
type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View server logs",
		Long: `View and tail the server log.

The server logs to file only, since stdout belongs to the MCP protocol.
By default the last 50 lines are shown; use -f to follow new entries.

Examples:
  pdfmcp logs                  # Show last 50 lines
  pdfmcp logs -n 200           # Show last 200 lines
  pdfmcp logs -f               # Follow in real time
  pdfmcp logs --level error    # Show only errors
  pdfmcp logs --filter reload  # Filter by pattern`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLogs(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter by pattern (regex)")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}
	keep := func(line string) bool {
		return matchesLevel(line, opts.level) && (pattern == nil || pattern.MatchString(line))
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(errOut, "Log file: %s\n", path)

	if opts.follow {
		_, _ = fmt.Fprintln(errOut, "Following... (Ctrl+C to stop)")
		return followFile(ctx, out, path, keep)
	}

	lines, err := tailLines(path, opts.lines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if keep(line) {
			_, _ = fmt.Fprintln(out, line)
		}
	}
	return nil
}

// matchesLevel reports whether a JSON log line carries the given level.
// An empty level matches everything.
func matchesLevel(line, level string) bool {
	if level == "" {
		return true
	}
	return strings.Contains(line, `"level":"`+strings.ToUpper(level)+`"`)
}

// tailLines returns the last n lines of the file.
func tailLines(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// followFile streams appended lines until the context is canceled.
// A shrinking file means rotation; reading restarts from the top.
func followFile(ctx context.Context, out io.Writer, path string, keep func(string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	reader := bufio.NewReader(f)

	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			line = strings.TrimRight(line, "\n")
			if keep(line) {
				_, _ = fmt.Fprintln(out, line)
			}
			continue
		}
		if err != io.EOF {
			return err
		}

		fi, statErr := os.Stat(path)
		if statErr == nil {
			pos, _ := f.Seek(0, io.SeekCurrent)
			if fi.Size() < pos {
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					return err
				}
				reader.Reset(f)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}
}
