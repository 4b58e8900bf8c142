package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdfmcp/pdfmcp/internal/chunk"
	"github.com/pdfmcp/pdfmcp/internal/embed"
	"github.com/pdfmcp/pdfmcp/internal/store"
)

// minOverfetch floors the per-source candidate count so small k still
// gives fusion something to rank.
const minOverfetch = 10

// ChunkGetter resolves chunk IDs to full chunks. *store.ChunkStore
// satisfies it.
type ChunkGetter interface {
	GetChunks(ctx context.Context, ids []string) ([]chunk.Chunk, error)
}

// EngineOptions configures the retrieval engine.
type EngineOptions struct {
	// Weights for fusion; zero value means DefaultWeights.
	Weights Weights

	// Logger for degradation warnings; nil means slog.Default.
	Logger *slog.Logger
}

// Engine runs hybrid retrieval: both indexes searched concurrently,
// candidates fused, the winners enriched from the chunk store.
type Engine struct {
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	chunks   ChunkGetter
	embedder embed.Embedder
	fuser    *Fuser
	logger   *slog.Logger
}

// NewEngine creates an engine with default options.
func NewEngine(lexical store.LexicalIndex, vector store.VectorIndex, chunks ChunkGetter, embedder embed.Embedder) (*Engine, error) {
	return NewEngineWithOptions(lexical, vector, chunks, embedder, EngineOptions{})
}

// NewEngineWithOptions creates an engine with explicit options.
func NewEngineWithOptions(lexical store.LexicalIndex, vector store.VectorIndex, chunks ChunkGetter, embedder embed.Embedder, opts EngineOptions) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if vector == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if chunks == nil {
		return nil, fmt.Errorf("chunk getter is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	fuser, err := NewFuser(opts.Weights)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		lexical:  lexical,
		vector:   vector,
		chunks:   chunks,
		embedder: embedder,
		fuser:    fuser,
		logger:   logger,
	}, nil
}

// Retrieve returns the top k chunks for query by fused score. An empty
// query or k <= 0 yields an empty result; validation errors belong to
// the caller.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}

	fetchK := 2 * k
	if fetchK < minOverfetch {
		fetchK = minOverfetch
	}

	lexResults, semResults, err := e.parallelSearch(ctx, query, fetchK)
	if err != nil {
		return nil, err
	}
	if len(lexResults) == 0 && len(semResults) == 0 {
		return []Result{}, nil
	}

	chunksByID, err := e.fetchChunks(ctx, lexResults, semResults)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}

	ordinalOf := func(id string) int {
		if c, ok := chunksByID[id]; ok {
			return c.Ordinal
		}
		return math.MaxInt
	}

	fused := e.fuser.Fuse(lexResults, semResults, ordinalOf)
	if len(fused) > k {
		fused = fused[:k]
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		c, ok := chunksByID[f.ChunkID]
		if !ok {
			// Index and store disagree; the next rebuild reconciles them.
			e.logger.Warn("chunk_missing_from_store",
				slog.String("chunk_id", f.ChunkID))
			continue
		}
		results = append(results, Result{
			Chunk:        c,
			Score:        f.Score,
			LexScore:     f.LexScore,
			LexRank:      f.LexRank,
			SemScore:     f.SemScore,
			SemRank:      f.SemRank,
			MatchedTerms: f.MatchedTerms,
		})
	}
	return results, nil
}

// parallelSearch runs both sub-searches concurrently. One source
// failing degrades to the other with a warning; both failing is an
// error. A dead context is always an error, never a partial fusion.
func (e *Engine) parallelSearch(ctx context.Context, query string, limit int) ([]*store.LexicalResult, []*store.VectorResult, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		lexResults []*store.LexicalResult
		semResults []*store.VectorResult
		lexErr     error
		semErr     error
	)

	g.Go(func() error {
		var err error
		lexResults, err = e.lexical.Search(gctx, query, limit)
		if err != nil {
			// Recorded, not returned: the semantic search continues.
			lexErr = err
		}
		return nil
	})

	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, query)
		if err != nil {
			semErr = fmt.Errorf("embed query: %w", err)
			return nil
		}
		semResults, err = e.vector.Search(gctx, vec, limit)
		if err != nil {
			semErr = err
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if lexErr != nil && semErr != nil {
		return nil, nil, errors.Join(lexErr, semErr)
	}
	if lexErr != nil {
		e.logger.Warn("lexical_search_failed",
			slog.String("error", lexErr.Error()))
		lexResults = nil
	}
	if semErr != nil {
		e.logger.Warn("semantic_search_failed",
			slog.String("error", semErr.Error()))
		semResults = nil
	}

	return lexResults, semResults, nil
}

// fetchChunks batch-loads every candidate chunk in one query.
func (e *Engine) fetchChunks(ctx context.Context, lex []*store.LexicalResult, sem []*store.VectorResult) (map[string]chunk.Chunk, error) {
	seen := make(map[string]struct{}, len(lex)+len(sem))
	ids := make([]string, 0, len(lex)+len(sem))
	for _, r := range lex {
		if _, ok := seen[r.ID]; !ok {
			seen[r.ID] = struct{}{}
			ids = append(ids, r.ID)
		}
	}
	for _, r := range sem {
		if _, ok := seen[r.ID]; !ok {
			seen[r.ID] = struct{}{}
			ids = append(ids, r.ID)
		}
	}

	chunks, err := e.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]chunk.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return byID, nil
}
