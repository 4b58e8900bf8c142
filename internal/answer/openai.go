package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultOpenAIModel is the chat model used when none is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// DefaultTemperature keeps synthesis close to the source text.
const DefaultTemperature = 0.1

// OpenAIGenerator answers questions through the OpenAI chat completions
// API. The API key comes from the OPENAI_API_KEY environment variable.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
}

// OpenAIConfig configures the OpenAI generator.
type OpenAIConfig struct {
	Model       string  // Chat model (default: DefaultOpenAIModel)
	Temperature float64 // Sampling temperature (default: DefaultTemperature)
}

// NewOpenAIGenerator creates an OpenAI chat generator. No network call
// is made until the first request.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Generate produces an answer from the query and its context block.
func (g *OpenAIGenerator) Generate(ctx context.Context, query, contextBlock string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(query, contextBlock)),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
