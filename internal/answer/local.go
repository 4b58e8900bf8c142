package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	openaillm "github.com/tmc/langchaingo/llms/openai"
)

// DefaultLocalEndpoint is the OpenAI-compatible endpoint Ollama exposes.
const DefaultLocalEndpoint = "http://localhost:11434/v1"

// DefaultLocalModel is the chat model requested from local endpoints.
const DefaultLocalModel = "llama3.1"

// LocalGenerator answers questions through any OpenAI-compatible chat
// endpoint, typically Ollama or LM Studio running on the same machine.
// The token "none" satisfies clients of services without auth.
type LocalGenerator struct {
	client      llms.Model
	model       string
	temperature float64
}

// LocalConfig configures the local generator.
type LocalConfig struct {
	BaseURL     string  // OpenAI-compatible endpoint (default: DefaultLocalEndpoint)
	Model       string  // Chat model name (default: DefaultLocalModel)
	Temperature float64 // Sampling temperature (default: DefaultTemperature)
}

// NewLocalGenerator creates a generator for a local OpenAI-compatible
// endpoint. The endpoint is not contacted until the first request.
func NewLocalGenerator(cfg LocalConfig) (*LocalGenerator, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLocalEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLocalModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	client, err := openaillm.New(
		openaillm.WithBaseURL(cfg.BaseURL),
		openaillm.WithToken("none"),
		openaillm.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create local chat client: %w", err)
	}

	return &LocalGenerator{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Generate produces an answer from the query and its context block.
func (g *LocalGenerator) Generate(ctx context.Context, query, contextBlock string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt(query, contextBlock))},
		},
	}

	resp, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", fmt.Errorf("local chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("local chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
