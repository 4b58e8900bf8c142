// Package cmd provides the CLI commands for PDFMCP.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdfmcp/pdfmcp/internal/config"
	"github.com/pdfmcp/pdfmcp/internal/logging"
	"github.com/pdfmcp/pdfmcp/pkg/version"
)

// Global flags shared by every command.
var (
	cfgPath   string
	debugMode bool
)

// NewRootCmd creates the root command for the pdfmcp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdfmcp",
		Short: "Hybrid-search MCP server for PDF document collections",
		Long: `PDFMCP indexes a directory of PDF documents and serves hybrid
retrieval (BM25 + semantic) over the Model Context Protocol.

Running 'pdfmcp' with no arguments starts the MCP server on stdio,
which is what MCP client configurations should invoke. Point it at a
document directory via pdfmcp.yaml or PDF_DOCUMENTS_DIR.`,
		Version:      version.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd.Context(), "")
		},
	}

	cmd.SetVersionTemplate("pdfmcp version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a config file (default: pdfmcp.yaml in the working directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newTuiCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves configuration for a command run, honoring the
// --config override.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFile(cfgPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	return config.Load(wd)
}

// setupCLILogging routes logs to the state file so stdout stays clean
// for command output. The returned cleanup runs on command exit.
func setupCLILogging() func() {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Commands still work without a log file.
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}
