// Package main provides the entry point for the pdfmcp CLI.
package main

import (
	"os"

	"github.com/pdfmcp/pdfmcp/cmd/pdfmcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
