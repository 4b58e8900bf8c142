package embed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// Known OpenAI embedding model dimensions.
var openAIModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder generates embeddings through the OpenAI API.
// The API key comes from the OPENAI_API_KEY environment variable.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	batchSize int

	mu     sync.RWMutex
	dims   int
	closed bool
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	Model      string // Embedding model (default: DefaultOpenAIModel)
	Dimensions int    // Override when the model is not in the known table
	BatchSize  int    // Texts per request (default: DefaultBatchSize)
}

// NewOpenAIEmbedder creates an OpenAI embedder. No network call is made
// until the first embedding request.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize < MinBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = openAIModelDims[cfg.Model]
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		dims:      dims,
	}
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting the
// input into API-sized batches.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := e.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}

	return results, nil
}

// embedOnce sends one embedding request with retry on transient failures.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	// The API rejects empty strings; a lone space embeds to a near-zero
	// signal and keeps input and output positions aligned.
	input := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		input[i] = t
	}

	var vecs [][]float32
	operation := func() error {
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return classifyAPIError(err)
		}
		if len(resp.Data) != len(input) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(input), len(resp.Data)))
		}

		vecs = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vecs[i] = normalizeVector(toFloat32(d.Embedding))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	e.recordDims(vecs)
	return vecs, nil
}

// classifyAPIError marks client-side API errors permanent so the retry
// loop gives up immediately; rate limits and server errors stay retryable.
func classifyAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}
	return err
}

// recordDims captures the dimension from the first response when the
// model was not in the known table.
func (e *OpenAIEmbedder) recordDims(vecs [][]float32) {
	if len(vecs) == 0 {
		return
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// Dimensions returns the embedding dimension, or 0 before the first
// request when the model is unknown.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Available reports whether an API key is configured.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed && os.Getenv("OPENAI_API_KEY") != ""
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
