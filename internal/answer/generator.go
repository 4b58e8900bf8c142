// Package answer synthesizes natural-language answers from retrieved
// chunks through an LLM provider. Generation is optional; retrieval
// works without it.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdfmcp/pdfmcp/internal/config"
)

// Generator produces an answer to a query from a block of document
// context.
type Generator interface {
	Generate(ctx context.Context, query, contextBlock string) (string, error)
}

// New creates a generator from configuration. Providers: "openai" for
// the OpenAI chat API, "local" for an OpenAI-compatible endpoint such
// as Ollama.
func New(cfg config.AnswerConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIGenerator(OpenAIConfig{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}), nil

	case "local", "ollama":
		return NewLocalGenerator(LocalConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})

	default:
		return nil, fmt.Errorf("unknown answer provider %q (valid: openai, local)", cfg.Provider)
	}
}
