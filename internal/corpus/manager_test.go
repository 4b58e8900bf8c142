package corpus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfmcp/pdfmcp/internal/chunk"
	"github.com/pdfmcp/pdfmcp/internal/config"
	"github.com/pdfmcp/pdfmcp/internal/embed"
	pdferrors "github.com/pdfmcp/pdfmcp/internal/errors"
	"github.com/pdfmcp/pdfmcp/internal/pdf"
	"github.com/pdfmcp/pdfmcp/internal/store"
)

// fakeParser serves canned pages keyed by file base name. The files on
// disk only matter for hashing; their bytes are never parsed.
type fakeParser struct {
	mu    sync.Mutex
	pages map[string][]pdf.Page
	errs  map[string]error
	block chan struct{}
	calls int
}

func (p *fakeParser) Parse(_ context.Context, path string) ([]pdf.Page, error) {
	name := filepath.Base(path)
	p.mu.Lock()
	p.calls++
	block := p.block
	err := p.errs[name]
	pages := p.pages[name]
	p.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return pages, nil
}

func (p *fakeParser) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// countingEmbedder counts provider calls over the real static embedder
// and can be flipped to fail.
type countingEmbedder struct {
	embed.Embedder
	name string

	mu      sync.Mutex
	batches int
	fail    bool
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{Embedder: embed.NewStaticEmbedder(), name: "static"}
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches++
	fail := e.fail
	e.mu.Unlock()

	if fail {
		return nil, errors.New("provider down")
	}
	return e.Embedder.EmbedBatch(ctx, texts)
}

func (e *countingEmbedder) ModelName() string { return e.name }

func (e *countingEmbedder) batchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batches
}

func (e *countingEmbedder) setFail(fail bool) {
	e.mu.Lock()
	e.fail = fail
	e.mu.Unlock()
}

func singlePage(text string) []pdf.Page {
	return []pdf.Page{{Number: 1, Text: text}}
}

func testConfig(t *testing.T, docsDir string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Corpus.DocumentsDir = docsDir
	cfg.Corpus.IndexDir = filepath.Join(t.TempDir(), "index")
	cfg.Corpus.Workers = 2
	return cfg
}

// newTestManager wires a manager over an in-memory chunk store.
func newTestManager(t *testing.T, cfg *config.Config, parser pdf.Parser, embedder embed.Embedder) *Manager {
	t.Helper()
	st, err := store.NewChunkStore("")
	require.NoError(t, err)

	m, err := NewManager(cfg, Dependencies{
		Parser:   parser,
		Chunker:  chunk.NewPageChunker(),
		Embedder: embedder,
		Store:    st,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// newPersistentManager wires a manager whose chunk store lives on disk
// in the index directory, like production.
func newPersistentManager(t *testing.T, cfg *config.Config, parser pdf.Parser, embedder embed.Embedder) *Manager {
	t.Helper()
	st, err := store.NewChunkStore(filepath.Join(cfg.Corpus.IndexDir, chunksDBName))
	require.NoError(t, err)

	m, err := NewManager(cfg, Dependencies{
		Parser:   parser,
		Chunker:  chunk.NewPageChunker(),
		Embedder: embedder,
		Store:    st,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return m
}

func TestManager_BuildsCorpus(t *testing.T) {
	// Given: two documents with three pages between them
	docsDir := t.TempDir()
	writeFile(t, docsDir, "guide.pdf", "guide bytes")
	writeFile(t, docsDir, "notes.pdf", "notes bytes")

	parser := &fakeParser{pages: map[string][]pdf.Page{
		"guide.pdf": {
			{Number: 1, Text: "the cat sat on the mat"},
			{Number: 2, Text: "a dog barked at the moon"},
		},
		"notes.pdf": singlePage("sailing ships cross the ocean"),
	}}

	cfg := testConfig(t, docsDir)
	m := newTestManager(t, cfg, parser, newCountingEmbedder())

	// When: building
	require.NoError(t, m.Ensure(context.Background()))

	// Then: the corpus is ready and fully embedded
	status := m.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, 1, status.Generation)
	assert.Equal(t, 2, status.Documents)
	assert.Equal(t, 0, status.Skipped)
	assert.Equal(t, 3, status.Chunks)
	assert.Equal(t, 3, status.ChunksEmbedded)
	assert.Equal(t, "static", status.EmbeddingModel)

	// And: retrieval finds page-attributed content
	engine, err := m.Engine(context.Background())
	require.NoError(t, err)
	results, err := engine.Retrieve(context.Background(), "cat mat", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "guide.pdf", results[0].Chunk.Document)
	assert.Equal(t, 1, results[0].Chunk.Page)

	// And: accounting rows are persisted
	docs, err := m.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, store.DocumentStatusIndexed, docs[0].Status)
	assert.NotEmpty(t, docs[0].SHA256)
}

func TestManager_EnsureIsIdempotent(t *testing.T) {
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "a")
	parser := &fakeParser{pages: map[string][]pdf.Page{
		"a.pdf": singlePage("hello world"),
	}}
	m := newTestManager(t, testConfig(t, docsDir), parser, newCountingEmbedder())

	require.NoError(t, m.Ensure(context.Background()))
	parsed := parser.callCount()

	// A second Ensure finds the generation and does no work.
	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, parsed, parser.callCount())
}

func TestManager_SkipsFailingDocument(t *testing.T) {
	// Given: one parseable document and one that fails
	docsDir := t.TempDir()
	writeFile(t, docsDir, "good.pdf", "good")
	writeFile(t, docsDir, "bad.pdf", "bad")

	parser := &fakeParser{
		pages: map[string][]pdf.Page{"good.pdf": singlePage("useful content here")},
		errs:  map[string]error{"bad.pdf": errors.New("trailer not found")},
	}
	m := newTestManager(t, testConfig(t, docsDir), parser, newCountingEmbedder())

	// When: building
	require.NoError(t, m.Ensure(context.Background()))

	// Then: the build succeeded around the failure
	status := m.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, 1, status.Documents)
	assert.Equal(t, 1, status.Skipped)

	docs, err := m.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "bad.pdf", docs[0].Name)
	assert.Equal(t, store.DocumentStatusSkipped, docs[0].Status)
	assert.Contains(t, docs[0].Reason, "parse failed")
	assert.Equal(t, store.DocumentStatusIndexed, docs[1].Status)
}

func TestManager_EmptyCorpusIsFatal(t *testing.T) {
	t.Run("no documents at all", func(t *testing.T) {
		docsDir := t.TempDir()
		writeFile(t, docsDir, "readme.txt", "not a pdf")

		m := newTestManager(t, testConfig(t, docsDir), &fakeParser{}, newCountingEmbedder())

		err := m.Ensure(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, pdferrors.CorpusEmptyError(docsDir))
		assert.True(t, pdferrors.IsFatal(err))
		assert.Equal(t, StateEmpty, m.Status().State)
	})

	t.Run("every document unparseable", func(t *testing.T) {
		docsDir := t.TempDir()
		writeFile(t, docsDir, "bad.pdf", "bad")

		parser := &fakeParser{errs: map[string]error{"bad.pdf": errors.New("garbled")}}
		m := newTestManager(t, testConfig(t, docsDir), parser, newCountingEmbedder())

		err := m.Ensure(context.Background())
		assert.ErrorIs(t, err, pdferrors.CorpusEmptyError(docsDir))
	})
}

func TestManager_DeduplicatesAcrossDocuments(t *testing.T) {
	// Given: two files with identical text
	docsDir := t.TempDir()
	writeFile(t, docsDir, "copy.pdf", "copy bytes")
	writeFile(t, docsDir, "original.pdf", "original bytes")

	shared := singlePage("identical paragraph in both files")
	parser := &fakeParser{pages: map[string][]pdf.Page{
		"copy.pdf":     shared,
		"original.pdf": shared,
	}}
	m := newTestManager(t, testConfig(t, docsDir), parser, newCountingEmbedder())

	// When: building
	require.NoError(t, m.Ensure(context.Background()))

	// Then: the content is indexed once; the later file is a skip.
	// Discovery order is by name, so copy.pdf wins.
	status := m.Status()
	assert.Equal(t, 1, status.Chunks)
	assert.Equal(t, 1, status.Documents)
	assert.Equal(t, 1, status.Skipped)

	docs, err := m.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, store.DocumentStatusIndexed, docs[0].Status) // copy.pdf
	assert.Equal(t, store.DocumentStatusSkipped, docs[1].Status) // original.pdf
	assert.Equal(t, "duplicate content", docs[1].Reason)
}

func TestManager_EmbedFailureDegradesToLexical(t *testing.T) {
	// Given: an embedder whose provider is down
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "a")
	parser := &fakeParser{pages: map[string][]pdf.Page{
		"a.pdf": singlePage("findable by keyword search"),
	}}
	embedder := newCountingEmbedder()
	embedder.setFail(true)

	m := newTestManager(t, testConfig(t, docsDir), parser, embedder)

	// When: building
	require.NoError(t, m.Ensure(context.Background()))

	// Then: the corpus is ready but unembedded
	status := m.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, 1, status.Chunks)
	assert.Equal(t, 0, status.ChunksEmbedded)

	// And: keyword retrieval still works
	engine, err := m.Engine(context.Background())
	require.NoError(t, err)
	results, err := engine.Retrieve(context.Background(), "keyword", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].SemRank)
}

func TestManager_RebuildHitsEmbeddingCache(t *testing.T) {
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "a")
	writeFile(t, docsDir, "b.pdf", "b")
	parser := &fakeParser{pages: map[string][]pdf.Page{
		"a.pdf": singlePage("first document body"),
		"b.pdf": singlePage("second document body"),
	}}
	embedder := newCountingEmbedder()
	m := newTestManager(t, testConfig(t, docsDir), parser, embedder)

	require.NoError(t, m.Ensure(context.Background()))
	firstBatches := embedder.batchCount()
	require.Positive(t, firstBatches)

	firstIDs := retrieveIDs(t, m, "document body")
	require.Len(t, firstIDs, 2)

	// When: rebuilding over unchanged input
	require.NoError(t, m.Reload(context.Background()))

	// Then: every embedding came from the cache
	assert.Equal(t, firstBatches, embedder.batchCount())

	// And: the rebuild is idempotent
	assert.Equal(t, firstIDs, retrieveIDs(t, m, "document body"))
	status := m.Status()
	assert.Equal(t, 2, status.Generation)
	assert.Equal(t, 2, status.ChunksEmbedded)
}

func TestManager_ReloadPicksUpNewDocument(t *testing.T) {
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "a")
	parser := &fakeParser{pages: map[string][]pdf.Page{
		"a.pdf": singlePage("original material"),
		"b.pdf": singlePage("freshly added material about volcanoes"),
	}}
	m := newTestManager(t, testConfig(t, docsDir), parser, newCountingEmbedder())

	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, 1, m.Status().Documents)

	// When: a document appears and the corpus reloads
	writeFile(t, docsDir, "b.pdf", "b")
	require.NoError(t, m.Reload(context.Background()))

	// Then: the new document is searchable
	status := m.Status()
	assert.Equal(t, 2, status.Generation)
	assert.Equal(t, 2, status.Documents)

	engine, err := m.Engine(context.Background())
	require.NoError(t, err)
	results, err := engine.Retrieve(context.Background(), "volcanoes", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "b.pdf", results[0].Chunk.Document)
}

func TestManager_CoalescesConcurrentReloads(t *testing.T) {
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "a")
	writeFile(t, docsDir, "b.pdf", "b")
	parser := &fakeParser{pages: map[string][]pdf.Page{
		"a.pdf": singlePage("one"),
		"b.pdf": singlePage("two"),
	}}
	m := newTestManager(t, testConfig(t, docsDir), parser, newCountingEmbedder())
	require.NoError(t, m.Ensure(context.Background()))
	afterBuild := parser.callCount()

	// Given: a reload stuck inside the parser
	gate := make(chan struct{})
	parser.mu.Lock()
	parser.block = gate
	parser.mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- m.Reload(context.Background()) }()
	require.Eventually(t, func() bool {
		return m.Status().State == StateReloading
	}, time.Second, 5*time.Millisecond)

	// When: a second reload arrives while the first is running
	second := make(chan error, 1)
	go func() { second <- m.Reload(context.Background()) }()
	time.Sleep(50 * time.Millisecond) // let it reach the waiter path

	parser.mu.Lock()
	parser.block = nil
	parser.mu.Unlock()
	close(gate)

	// Then: both succeed off a single build
	require.NoError(t, <-first)
	require.NoError(t, <-second)
	assert.Equal(t, afterBuild+2, parser.callCount())
	assert.Equal(t, 2, m.Status().Generation)
}

func TestManager_LoadsPersistedStateWithoutParsing(t *testing.T) {
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "a bytes")
	writeFile(t, docsDir, "b.pdf", "b bytes")
	pages := map[string][]pdf.Page{
		"a.pdf": singlePage("persistent knowledge on gardening"),
		"b.pdf": singlePage("unrelated material"),
	}
	cfg := testConfig(t, docsDir)

	// Given: a previous process built and persisted the corpus
	first := newPersistentManager(t, cfg, &fakeParser{pages: pages}, newCountingEmbedder())
	require.NoError(t, first.Ensure(context.Background()))
	built := first.Status()
	require.NoError(t, first.Close())

	// When: a fresh process starts over the same index directory
	parser := &fakeParser{pages: pages}
	second := newPersistentManager(t, cfg, parser, newCountingEmbedder())
	defer second.Close()
	require.NoError(t, second.Ensure(context.Background()))

	// Then: nothing was re-parsed
	assert.Zero(t, parser.callCount())

	status := second.Status()
	assert.Equal(t, built.Generation, status.Generation)
	assert.Equal(t, built.Chunks, status.Chunks)
	assert.Equal(t, built.ChunksEmbedded, status.ChunksEmbedded)
	assert.Equal(t, built.Documents, status.Documents)

	// And: retrieval serves from the loaded indexes
	engine, err := second.Engine(context.Background())
	require.NoError(t, err)
	results, err := engine.Retrieve(context.Background(), "gardening", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.pdf", results[0].Chunk.Document)
}

func TestManager_RebuildsWhenDocumentsChange(t *testing.T) {
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "version one")
	pages := map[string][]pdf.Page{"a.pdf": singlePage("some text")}
	cfg := testConfig(t, docsDir)

	first := newPersistentManager(t, cfg, &fakeParser{pages: pages}, newCountingEmbedder())
	require.NoError(t, first.Ensure(context.Background()))
	require.NoError(t, first.Close())

	// When: the file changes on disk before the next start
	writeFile(t, docsDir, "a.pdf", "version two")
	parser := &fakeParser{pages: pages}
	second := newPersistentManager(t, cfg, parser, newCountingEmbedder())
	defer second.Close()
	require.NoError(t, second.Ensure(context.Background()))

	// Then: the stale index was rejected and the corpus rebuilt
	assert.Positive(t, parser.callCount())
	assert.Equal(t, 2, second.Status().Generation)
}

func TestManager_RebuildsWhenEmbeddingModelChanges(t *testing.T) {
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "stable bytes")
	pages := map[string][]pdf.Page{"a.pdf": singlePage("some text")}
	cfg := testConfig(t, docsDir)

	first := newPersistentManager(t, cfg, &fakeParser{pages: pages}, newCountingEmbedder())
	require.NoError(t, first.Ensure(context.Background()))
	require.NoError(t, first.Close())

	// When: the configured embedding model differs from the index's
	renamed := newCountingEmbedder()
	renamed.name = "static-v2"
	parser := &fakeParser{pages: pages}
	second := newPersistentManager(t, cfg, parser, renamed)
	defer second.Close()
	require.NoError(t, second.Ensure(context.Background()))

	// Then: the corpus was re-embedded under the new model
	assert.Positive(t, parser.callCount())
	assert.Positive(t, renamed.batchCount())
	assert.Equal(t, "static-v2", second.Status().EmbeddingModel)
}

func TestManager_StatusBeforeAnyBuild(t *testing.T) {
	docsDir := t.TempDir()
	m := newTestManager(t, testConfig(t, docsDir), &fakeParser{}, newCountingEmbedder())

	status := m.Status()
	assert.Equal(t, StateEmpty, status.State)
	assert.Zero(t, status.Generation)
	assert.Zero(t, status.Chunks)
	assert.Empty(t, status.LastError)
}

func TestManager_StatusRecordsBuildError(t *testing.T) {
	docsDir := t.TempDir() // no documents
	m := newTestManager(t, testConfig(t, docsDir), &fakeParser{}, newCountingEmbedder())

	require.Error(t, m.Ensure(context.Background()))

	status := m.Status()
	assert.Equal(t, StateEmpty, status.State)
	assert.Contains(t, status.LastError, "no indexable documents")
}

func TestManager_PersistedStatus(t *testing.T) {
	docsDir := t.TempDir()
	writeFile(t, docsDir, "a.pdf", "a")
	parser := &fakeParser{pages: map[string][]pdf.Page{
		"a.pdf": singlePage("material on heat pumps"),
	}}
	m := newTestManager(t, testConfig(t, docsDir), parser, newCountingEmbedder())

	// Given: nothing indexed yet
	status, exists, err := m.PersistedStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, StateEmpty, status.State)
	assert.Equal(t, "static", status.EmbeddingModel)

	// When: a build completes
	require.NoError(t, m.Ensure(context.Background()))

	// Then: the persisted view matches the live one
	status, exists, err = m.PersistedStatus(context.Background())
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, 1, status.Generation)
	assert.Equal(t, 1, status.Documents)
	assert.Equal(t, 1, status.Chunks)
	assert.Equal(t, 1, status.ChunksEmbedded)
	assert.Equal(t, "static", status.EmbeddingModel)
	assert.Equal(t, "memory", status.LexicalBackend)
	assert.False(t, status.BuiltAt.IsZero())
	assert.False(t, status.Stale)

	// When: a new document appears without a rebuild
	writeFile(t, docsDir, "b.pdf", "b")

	// Then: the persisted view reports staleness, and reading it did
	// not trigger a build
	before := parser.callCount()
	status, exists, err = m.PersistedStatus(context.Background())
	require.NoError(t, err)
	require.True(t, exists)
	assert.True(t, status.Stale)
	assert.Equal(t, before, parser.callCount())
}

func TestManager_CloseStopsBuilds(t *testing.T) {
	docsDir := t.TempDir()
	m := newTestManager(t, testConfig(t, docsDir), &fakeParser{}, newCountingEmbedder())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close()) // second close is a no-op

	err := m.Ensure(context.Background())
	assert.ErrorContains(t, err, "closed")
}

func TestNewManager_Validation(t *testing.T) {
	cfg := config.NewConfig()
	st, err := store.NewChunkStore("")
	require.NoError(t, err)
	defer st.Close()

	deps := Dependencies{
		Parser:   &fakeParser{},
		Chunker:  chunk.NewPageChunker(),
		Embedder: newCountingEmbedder(),
		Store:    st,
	}

	_, err = NewManager(nil, deps)
	assert.ErrorContains(t, err, "config")

	broken := deps
	broken.Parser = nil
	_, err = NewManager(cfg, broken)
	assert.ErrorContains(t, err, "parser")

	broken = deps
	broken.Store = nil
	_, err = NewManager(cfg, broken)
	assert.ErrorContains(t, err, "chunk store")
}

// retrieveIDs runs a query and returns the matched chunk IDs in rank
// order.
func retrieveIDs(t *testing.T, m *Manager, query string) []string {
	t.Helper()
	engine, err := m.Engine(context.Background())
	require.NoError(t, err)
	results, err := engine.Retrieve(context.Background(), query, 10)
	require.NoError(t, err)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	return ids
}

func TestFingerprintDocs_OrderAndContentSensitive(t *testing.T) {
	a := store.DocumentInfo{Name: "a.pdf", SHA256: "aaa"}
	b := store.DocumentInfo{Name: "b.pdf", SHA256: "bbb"}

	base := fingerprintDocs([]store.DocumentInfo{a, b})
	assert.Equal(t, base, fingerprintDocs([]store.DocumentInfo{a, b}))
	assert.NotEqual(t, base, fingerprintDocs([]store.DocumentInfo{b, a}))

	changed := a
	changed.SHA256 = "zzz"
	assert.NotEqual(t, base, fingerprintDocs([]store.DocumentInfo{changed, b}))
	assert.NotEqual(t, base, fingerprintDocs([]store.DocumentInfo{a}))
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f.bin", "payload")

	sum, err := hashFile(filepath.Join(dir, "f.bin"))
	require.NoError(t, err)
	assert.Len(t, sum, 64)
	assert.Equal(t, contentHash("payload"), sum)

	_, err = hashFile(filepath.Join(dir, "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
