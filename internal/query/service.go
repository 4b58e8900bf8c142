// Package query implements the request-facing query service: input
// validation, corpus readiness, retrieval formatting, and optional
// answer synthesis.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdfmcp/pdfmcp/internal/answer"
	"github.com/pdfmcp/pdfmcp/internal/config"
	pdferrors "github.com/pdfmcp/pdfmcp/internal/errors"
	"github.com/pdfmcp/pdfmcp/internal/search"
)

// noResultsAnswer is returned when retrieval finds nothing to ground an
// answer on.
const noResultsAnswer = "I couldn't find any relevant information in the documents to answer your question."

// generationFailedNote explains a degraded answer response.
const generationFailedNote = "Answer generation failed; returning the retrieved chunks instead."

// EngineSource yields the current retrieval engine, building the corpus
// first when needed.
type EngineSource interface {
	Engine(ctx context.Context) (*search.Engine, error)
}

// RetrievedChunk is one chunk in a retrieval response. Core fields are
// typed; retrieval evidence rides in the open metadata map.
type RetrievedChunk struct {
	Content      string         `json:"content"`
	DocumentName string         `json:"document_name"`
	PageNumber   int            `json:"page_number"`
	Metadata     map[string]any `json:"metadata"`
}

// RetrievalResponse is the pure-retrieval payload.
type RetrievalResponse struct {
	Query       string           `json:"query"`
	Chunks      []RetrievedChunk `json:"chunks"`
	TotalChunks int              `json:"total_chunks"`
}

// AnswerResponse is the answer-mode payload. When generation fails the
// degraded fields carry the retrieval payload instead.
type AnswerResponse struct {
	Answer          string          `json:"answer"`
	Sources         []answer.Source `json:"sources"`
	ConfidenceScore float64         `json:"confidence_score"`

	Chunks []RetrievedChunk `json:"chunks,omitempty"`
	Note   string           `json:"note,omitempty"`
}

// Dependencies are the service's collaborators.
type Dependencies struct {
	Corpus    EngineSource
	Generator answer.Generator // nil disables Ask
	Logger    *slog.Logger
}

// Service validates, retrieves, and formats query responses.
type Service struct {
	corpus    EngineSource
	generator answer.Generator
	logger    *slog.Logger

	defaultChunks int
	maxChunks     int
	timeout       time.Duration
}

// NewService creates a query service.
func NewService(cfg *config.Config, deps Dependencies) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Corpus == nil {
		return nil, fmt.Errorf("corpus is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaultChunks := cfg.Query.DefaultChunks
	if defaultChunks <= 0 {
		defaultChunks = 5
	}
	maxChunks := cfg.Query.MaxChunks
	if maxChunks <= 0 {
		maxChunks = 20
	}

	return &Service{
		corpus:        deps.Corpus,
		generator:     deps.Generator,
		logger:        logger,
		defaultChunks: defaultChunks,
		maxChunks:     maxChunks,
		timeout:       cfg.QueryTimeout(),
	}, nil
}

// AnswerEnabled reports whether answer synthesis is configured.
func (s *Service) AnswerEnabled() bool {
	return s.generator != nil
}

// Retrieve runs a pure-retrieval query and returns the ranked chunks.
func (s *Service) Retrieve(ctx context.Context, query string, maxChunks int) (*RetrievalResponse, error) {
	query, k, err := s.normalize(query, maxChunks)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := s.retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("retrieval_completed",
		slog.String("query", query),
		slog.Int("chunks", len(results)),
		slog.Duration("duration", time.Since(start)))

	return &RetrievalResponse{
		Query:       query,
		Chunks:      toChunkPayload(results),
		TotalChunks: len(results),
	}, nil
}

// Ask runs an answer-mode query: retrieval plus LLM synthesis. A
// generation failure degrades to the retrieved chunks with a note; the
// query still succeeds.
func (s *Service) Ask(ctx context.Context, query string, maxChunks int) (*AnswerResponse, error) {
	if s.generator == nil {
		return nil, pdferrors.ValidationError("no answer provider configured", nil)
	}

	query, k, err := s.normalize(query, maxChunks)
	if err != nil {
		return nil, err
	}

	results, err := s.retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return &AnswerResponse{
			Answer:          noResultsAnswer,
			Sources:         []answer.Source{},
			ConfidenceScore: 0,
		}, nil
	}

	generated, err := s.generator.Generate(ctx, query, answer.BuildContext(results))
	if err != nil {
		genErr := pdferrors.GenerationError("answer generation failed", err)
		s.logger.Warn("answer_generation_failed",
			slog.String("query", query),
			slog.String("error", genErr.Error()))

		return &AnswerResponse{
			Sources: []answer.Source{},
			Chunks:  toChunkPayload(results),
			Note:    generationFailedNote,
		}, nil
	}

	return &AnswerResponse{
		Answer:          generated,
		Sources:         answer.ExtractSources(results),
		ConfidenceScore: meanScore(results),
	}, nil
}

// normalize validates the query text and resolves the chunk budget.
func (s *Service) normalize(query string, maxChunks int) (string, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", 0, pdferrors.ValidationError("query cannot be empty", nil)
	}

	switch {
	case maxChunks < 0:
		return "", 0, pdferrors.ValidationError(
			fmt.Sprintf("max_chunks must be positive, got %d", maxChunks), nil)
	case maxChunks == 0:
		maxChunks = s.defaultChunks
	case maxChunks > s.maxChunks:
		maxChunks = s.maxChunks
	}
	return query, maxChunks, nil
}

// retrieve resolves the engine (building lazily on the first query) and
// runs the bounded search.
func (s *Service) retrieve(ctx context.Context, query string, k int) ([]search.Result, error) {
	engine, err := s.corpus.Engine(ctx)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	results, err := engine.Retrieve(ctx, query, k)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, pdferrors.RetrievalTimeout(err)
		}
		return nil, err
	}
	return results, nil
}

func toChunkPayload(results []search.Result) []RetrievedChunk {
	chunks := make([]RetrievedChunk, len(results))
	for i, r := range results {
		meta := map[string]any{
			"chunk_id":      r.Chunk.ID,
			"score":         r.Score,
			"lexical_rank":  r.LexRank,
			"semantic_rank": r.SemRank,
		}
		if len(r.MatchedTerms) > 0 {
			meta["matched_terms"] = r.MatchedTerms
		}

		chunks[i] = RetrievedChunk{
			Content:      r.Chunk.Content,
			DocumentName: r.Chunk.Document,
			PageNumber:   r.Chunk.Page,
			Metadata:     meta,
		}
	}
	return chunks
}

// meanScore derives answer confidence from retrieval evidence alone,
// never from anything the generator asserts.
func meanScore(results []search.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	mean := sum / float64(len(results))
	return min(max(mean, 0), 1)
}
