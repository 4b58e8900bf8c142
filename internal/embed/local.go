package embed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	openaillm "github.com/tmc/langchaingo/llms/openai"
)

// DefaultLocalEndpoint is the OpenAI-compatible endpoint Ollama exposes.
const DefaultLocalEndpoint = "http://localhost:11434/v1"

// DefaultLocalModel is the embedding model requested from local endpoints.
const DefaultLocalModel = "nomic-embed-text"

// LocalEmbedder generates embeddings through any OpenAI-compatible
// endpoint, typically Ollama or LM Studio running on the same machine.
// The token "none" satisfies clients of services without auth.
type LocalEmbedder struct {
	embedder  embeddings.Embedder
	baseURL   string
	model     string
	batchSize int

	mu     sync.RWMutex
	dims   int
	closed bool
}

// LocalConfig configures the local embedder.
type LocalConfig struct {
	BaseURL    string // OpenAI-compatible endpoint (default: DefaultLocalEndpoint)
	Model      string // Embedding model name (default: DefaultLocalModel)
	Dimensions int    // Skip auto-detection when set
	BatchSize  int    // Texts per request (default: DefaultBatchSize)
}

// NewLocalEmbedder creates an embedder for a local OpenAI-compatible
// endpoint. The endpoint is not contacted until the first request.
func NewLocalEmbedder(cfg LocalConfig) (*LocalEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLocalEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLocalModel
	}
	if cfg.BatchSize < MinBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}

	client, err := openaillm.New(
		openaillm.WithBaseURL(cfg.BaseURL),
		openaillm.WithToken("none"),
		openaillm.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create local embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &LocalEmbedder{
		embedder:  embedder,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		dims:      cfg.Dimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in endpoint-sized
// batches.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Empty strings confuse some local servers; a single space keeps
	// positions aligned without changing the result materially.
	input := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		input[i] = t
	}

	results := make([][]float32, 0, len(input))
	for start := 0; start < len(input); start += e.batchSize {
		end := start + e.batchSize
		if end > len(input) {
			end = len(input)
		}

		vecs, err := e.embedder.EmbedDocuments(ctx, input[start:end])
		if err != nil {
			return nil, fmt.Errorf("local embeddings (%s): %w", e.model, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs))
		}
		for _, v := range vecs {
			results = append(results, normalizeVector(v))
		}
	}

	e.recordDims(results)
	return results, nil
}

func (e *LocalEmbedder) recordDims(vecs [][]float32) {
	if len(vecs) == 0 {
		return
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()
}

// Dimensions returns the embedding dimension, or 0 before the first
// request when auto-detecting.
func (e *LocalEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *LocalEmbedder) ModelName() string {
	return e.model
}

// Available probes the endpoint's model listing with a short timeout.
func (e *LocalEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

var _ Embedder = (*LocalEmbedder)(nil)
