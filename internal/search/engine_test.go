package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfmcp/pdfmcp/internal/chunk"
	"github.com/pdfmcp/pdfmcp/internal/embed"
	"github.com/pdfmcp/pdfmcp/internal/store"
)

type fakeLexical struct {
	results  []*store.LexicalResult
	err      error
	gotQuery string
	gotLimit int
	calls    int
}

func (f *fakeLexical) Index(context.Context, []*store.Document) error { return nil }
func (f *fakeLexical) Stats() *store.LexicalStats                     { return &store.LexicalStats{} }
func (f *fakeLexical) Save(string) error                              { return nil }
func (f *fakeLexical) Load(string) error                              { return nil }
func (f *fakeLexical) Close() error                                   { return nil }

func (f *fakeLexical) Search(_ context.Context, query string, limit int) ([]*store.LexicalResult, error) {
	f.calls++
	f.gotQuery = query
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeVector struct {
	results  []*store.VectorResult
	err      error
	gotLimit int
	calls    int
}

func (f *fakeVector) Add(context.Context, []string, [][]float32) error { return nil }
func (f *fakeVector) Contains(string) bool                             { return false }
func (f *fakeVector) Count() int                                       { return len(f.results) }
func (f *fakeVector) Dimensions() int                                  { return embed.StaticDimensions }
func (f *fakeVector) Save(string) error                                { return nil }
func (f *fakeVector) Load(string) error                                { return nil }
func (f *fakeVector) Close() error                                     { return nil }

func (f *fakeVector) Search(_ context.Context, _ []float32, k int) ([]*store.VectorResult, error) {
	f.calls++
	f.gotLimit = k
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeChunks struct {
	chunks map[string]chunk.Chunk
	err    error
}

func (f *fakeChunks) GetChunks(_ context.Context, ids []string) ([]chunk.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]chunk.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func chunkFixtures(ids ...string) map[string]chunk.Chunk {
	m := make(map[string]chunk.Chunk, len(ids))
	for i, id := range ids {
		m[id] = chunk.Chunk{
			ID:       id,
			Document: "doc.pdf",
			Page:     i + 1,
			Ordinal:  i,
			Content:  "content of " + id,
		}
	}
	return m
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, lex *fakeLexical, vec *fakeVector, chunks *fakeChunks) *Engine {
	t.Helper()
	engine, err := NewEngineWithOptions(lex, vec, chunks, embed.NewStaticEmbedder(),
		EngineOptions{Logger: quietLogger()})
	require.NoError(t, err)
	return engine
}

func TestEngine_Retrieve_FusesBothSources(t *testing.T) {
	// Given: overlapping lexical and semantic candidates
	lex := &fakeLexical{results: []*store.LexicalResult{
		lexResult("A", 3), lexResult("B", 2), lexResult("C", 1),
	}}
	vec := &fakeVector{results: []*store.VectorResult{
		vecResult("B", 0.9), vecResult("D", 0.8),
	}}
	chunks := &fakeChunks{chunks: chunkFixtures("A", "B", "C", "D")}

	engine := newTestEngine(t, lex, vec, chunks)

	// When: retrieving the top 2
	results, err := engine.Retrieve(context.Background(), "some query", 2)
	require.NoError(t, err)

	// Then: B (in both sources) wins, A follows
	require.Len(t, results, 2)
	assert.Equal(t, "B", results[0].Chunk.ID)
	assert.InDelta(t, 0.75, results[0].Score, 1e-12)
	assert.Equal(t, 2, results[0].LexRank)
	assert.Equal(t, 1, results[0].SemRank)
	assert.Equal(t, "content of B", results[0].Chunk.Content)

	assert.Equal(t, "A", results[1].Chunk.ID)
	assert.InDelta(t, 0.5, results[1].Score, 1e-12)

	// And: both sources were over-fetched to the floor of 10
	assert.Equal(t, 10, lex.gotLimit)
	assert.Equal(t, 10, vec.gotLimit)
	assert.Equal(t, "some query", lex.gotQuery)
}

func TestEngine_Retrieve_OverfetchScalesWithK(t *testing.T) {
	lex := &fakeLexical{}
	vec := &fakeVector{}
	engine := newTestEngine(t, lex, vec, &fakeChunks{})

	_, err := engine.Retrieve(context.Background(), "query", 7)
	require.NoError(t, err)

	assert.Equal(t, 14, lex.gotLimit)
	assert.Equal(t, 14, vec.gotLimit)
}

func TestEngine_Retrieve_EmptyQueryOrZeroK(t *testing.T) {
	lex := &fakeLexical{results: []*store.LexicalResult{lexResult("A", 1)}}
	vec := &fakeVector{}
	engine := newTestEngine(t, lex, vec, &fakeChunks{chunks: chunkFixtures("A")})

	for _, query := range []string{"", "   \t"} {
		results, err := engine.Retrieve(context.Background(), query, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	}

	results, err := engine.Retrieve(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	// No sub-search ever ran.
	assert.Equal(t, 0, lex.calls)
	assert.Equal(t, 0, vec.calls)
}

func TestEngine_Retrieve_DegradesWhenSemanticFails(t *testing.T) {
	// Given: a failing vector index
	lex := &fakeLexical{results: []*store.LexicalResult{
		lexResult("A", 2), lexResult("B", 1),
	}}
	vec := &fakeVector{err: errors.New("vector index exploded")}
	engine := newTestEngine(t, lex, vec, &fakeChunks{chunks: chunkFixtures("A", "B")})

	// When: retrieving
	results, err := engine.Retrieve(context.Background(), "query", 2)

	// Then: lexical results come back alone, no error
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Chunk.ID)
	assert.InDelta(t, 0.5, results[0].Score, 1e-12) // norm 1 at half weight
	assert.Equal(t, 0, results[0].SemRank)
	assert.Equal(t, "B", results[1].Chunk.ID)
	assert.InDelta(t, 0.0, results[1].Score, 1e-12)
}

func TestEngine_Retrieve_DegradesWhenLexicalFails(t *testing.T) {
	lex := &fakeLexical{err: errors.New("lexical index exploded")}
	vec := &fakeVector{results: []*store.VectorResult{
		vecResult("X", 0.9), vecResult("Y", 0.5),
	}}
	engine := newTestEngine(t, lex, vec, &fakeChunks{chunks: chunkFixtures("X", "Y")})

	results, err := engine.Retrieve(context.Background(), "query", 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "X", results[0].Chunk.ID)
	assert.InDelta(t, 0.5, results[0].Score, 1e-12)
	assert.Equal(t, 0, results[0].LexRank)
	assert.Equal(t, 1, results[0].SemRank)
}

func TestEngine_Retrieve_BothSourcesFailing(t *testing.T) {
	lex := &fakeLexical{err: errors.New("lexical down")}
	vec := &fakeVector{err: errors.New("vector down")}
	engine := newTestEngine(t, lex, vec, &fakeChunks{})

	_, err := engine.Retrieve(context.Background(), "query", 2)

	require.Error(t, err)
	assert.ErrorContains(t, err, "lexical down")
	assert.ErrorContains(t, err, "vector down")
}

func TestEngine_Retrieve_NoCandidates(t *testing.T) {
	engine := newTestEngine(t, &fakeLexical{}, &fakeVector{}, &fakeChunks{})

	results, err := engine.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestEngine_Retrieve_CancelledContext(t *testing.T) {
	lex := &fakeLexical{results: []*store.LexicalResult{lexResult("A", 1)}}
	engine := newTestEngine(t, lex, &fakeVector{}, &fakeChunks{chunks: chunkFixtures("A")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Retrieve(ctx, "query", 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Retrieve_SkipsChunksMissingFromStore(t *testing.T) {
	// Given: the lexical index knows a chunk the store no longer has
	lex := &fakeLexical{results: []*store.LexicalResult{
		lexResult("A", 2), lexResult("ghost", 1),
	}}
	engine := newTestEngine(t, lex, &fakeVector{}, &fakeChunks{chunks: chunkFixtures("A")})

	results, err := engine.Retrieve(context.Background(), "query", 5)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Chunk.ID)
}

func TestEngine_Retrieve_ChunkFetchError(t *testing.T) {
	lex := &fakeLexical{results: []*store.LexicalResult{lexResult("A", 1)}}
	engine := newTestEngine(t, lex, &fakeVector{}, &fakeChunks{err: errors.New("db locked")})

	_, err := engine.Retrieve(context.Background(), "query", 2)
	assert.ErrorContains(t, err, "fetch chunks")
}

func TestNewEngine_Validation(t *testing.T) {
	lex := &fakeLexical{}
	vec := &fakeVector{}
	chunks := &fakeChunks{}
	embedder := embed.NewStaticEmbedder()

	_, err := NewEngine(nil, vec, chunks, embedder)
	assert.ErrorContains(t, err, "lexical index")

	_, err = NewEngine(lex, nil, chunks, embedder)
	assert.ErrorContains(t, err, "vector index")

	_, err = NewEngine(lex, vec, nil, embedder)
	assert.ErrorContains(t, err, "chunk getter")

	_, err = NewEngine(lex, vec, chunks, nil)
	assert.ErrorContains(t, err, "embedder")

	_, err = NewEngineWithOptions(lex, vec, chunks, embedder,
		EngineOptions{Weights: Weights{Lexical: 0.9, Semantic: 0.9}})
	assert.ErrorContains(t, err, "sum to 1")
}
