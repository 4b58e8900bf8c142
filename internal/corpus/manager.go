// Package corpus discovers PDF documents, ingests them into chunks,
// and publishes searchable generations.
//
// A generation bundles a lexical index, a vector index, and a search
// engine over both. Queries read the current generation without locks;
// a rebuild assembles the next generation off to the side and installs
// it with a pointer swap, so a long rebuild never blocks retrieval.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pdfmcp/pdfmcp/internal/chunk"
	"github.com/pdfmcp/pdfmcp/internal/config"
	"github.com/pdfmcp/pdfmcp/internal/embed"
	pdferrors "github.com/pdfmcp/pdfmcp/internal/errors"
	"github.com/pdfmcp/pdfmcp/internal/pdf"
	"github.com/pdfmcp/pdfmcp/internal/search"
	"github.com/pdfmcp/pdfmcp/internal/store"
)

// State is the corpus lifecycle state.
type State string

const (
	// StateEmpty means no generation has been published yet.
	StateEmpty State = "empty"
	// StateLoading means the first build is running.
	StateLoading State = "loading"
	// StateReady means a generation is published and serving queries.
	StateReady State = "ready"
	// StateReloading means a rebuild is running while the previous
	// generation keeps serving.
	StateReloading State = "reloading"
)

const chunksDBName = "chunks.db"

// Dependencies are the injected collaborators for a Manager.
type Dependencies struct {
	// Parser extracts page text from documents (required).
	Parser pdf.Parser

	// Chunker splits page text into retrievable units (required).
	Chunker chunk.Chunker

	// Embedder produces chunk and query vectors (required).
	Embedder embed.Embedder

	// Store holds chunk text, document accounting, and the embedding
	// cache; it outlives generations (required).
	Store *store.ChunkStore

	// Logger for build progress and skips; nil means slog.Default.
	Logger *slog.Logger
}

// Manager owns the corpus lifecycle: discovery, ingestion, index
// builds, and generation publication.
type Manager struct {
	cfg      *config.Config
	parser   pdf.Parser
	chunker  chunk.Chunker
	embedder embed.Embedder
	store    *store.ChunkStore
	logger   *slog.Logger
	lock     *FileLock

	mu         sync.Mutex
	state      State
	generation *Generation
	// retired is the previously published generation, kept open until
	// the next publish so in-flight queries against it finish cleanly.
	retired  *Generation
	lastErr  error
	inflight *buildOutcome
	closed   bool
}

// buildOutcome lets coalesced callers wait on one build's result.
// err is written before done closes, so waiters read it race-free.
type buildOutcome struct {
	done chan struct{}
	err  error
}

// NewManager creates a manager with injected dependencies.
func NewManager(cfg *config.Config, deps Dependencies) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:      cfg,
		parser:   deps.Parser,
		chunker:  deps.Chunker,
		embedder: deps.Embedder,
		store:    deps.Store,
		logger:   logger,
		lock:     NewFileLock(cfg.Corpus.IndexDir),
		state:    StateEmpty,
	}, nil
}

// NewManagerFromConfig assembles the production dependency set: file
// parser, page chunker, configured embedder, and the SQLite chunk
// store inside the index directory.
func NewManagerFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	embedder, err := embed.New(ctx, embed.Config{
		Provider:   cfg.Semantic.Provider,
		Model:      cfg.Semantic.Model,
		BaseURL:    cfg.Semantic.BaseURL,
		Dimensions: cfg.Semantic.Dimensions,
		BatchSize:  cfg.Semantic.BatchSize,
		CacheSize:  cfg.Semantic.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	chunkStore, err := store.NewChunkStore(filepath.Join(cfg.Corpus.IndexDir, chunksDBName))
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	chunker := chunk.NewPageChunkerWithOptions(chunk.PageChunkerOptions{
		MaxChars:     cfg.Chunking.MaxChars,
		OverlapChars: cfg.Chunking.Overlap,
	})

	return NewManager(cfg, Dependencies{
		Parser:   pdf.NewFileParser(),
		Chunker:  chunker,
		Embedder: embedder,
		Store:    chunkStore,
		Logger:   logger,
	})
}

// Ensure makes a generation available, building one if none exists.
// Callers arriving during a build wait for its outcome.
func (m *Manager) Ensure(ctx context.Context) error {
	return m.rebuild(ctx, false)
}

// Reload rebuilds the corpus from the documents directory and installs
// the result. Concurrent reload requests coalesce into one build.
func (m *Manager) Reload(ctx context.Context) error {
	return m.rebuild(ctx, true)
}

// rebuild is the single entry point for builds. force skips both the
// already-built fast path and the persisted-state load.
func (m *Manager) rebuild(ctx context.Context, force bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("corpus manager is closed")
	}
	if !force && m.generation != nil {
		m.mu.Unlock()
		return nil
	}
	if m.inflight != nil {
		outcome := m.inflight
		m.mu.Unlock()
		select {
		case <-outcome.done:
			return outcome.err
		case <-ctx.Done():
			// The build keeps running; only this caller gives up.
			return ctx.Err()
		}
	}

	outcome := &buildOutcome{done: make(chan struct{})}
	m.inflight = outcome
	if m.generation == nil {
		m.state = StateLoading
	} else {
		m.state = StateReloading
	}
	m.mu.Unlock()

	err := m.buildAndPublish(ctx, force)

	m.mu.Lock()
	m.inflight = nil
	m.lastErr = err
	if m.generation != nil {
		m.state = StateReady
	} else {
		m.state = StateEmpty
	}
	outcome.err = err
	close(outcome.done)
	m.mu.Unlock()

	return err
}

// buildAndPublish runs one full build under the cross-process lock.
// When not forced and nothing is published yet, it first tries to load
// the persisted index instead of re-parsing the corpus.
func (m *Manager) buildAndPublish(ctx context.Context, force bool) error {
	acquired, err := m.lock.TryLock()
	if err != nil {
		return pdferrors.Wrap(pdferrors.ErrCodeIndexIO, err)
	}
	if !acquired {
		m.logger.Info("index_lock_waiting", slog.String("path", m.lock.Path()))
		if err := m.lock.Lock(); err != nil {
			return pdferrors.Wrap(pdferrors.ErrCodeIndexIO, err)
		}
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("index_lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	if !force && m.current() == nil {
		gen, err := m.loadPersisted(ctx)
		if err == nil {
			m.install(gen)
			m.logger.Info("corpus_loaded",
				slog.Int("generation", gen.Seq),
				slog.Int("documents", gen.Documents),
				slog.Int("chunks", gen.Chunks),
				slog.Int("chunks_embedded", gen.ChunksEmbedded))
			return nil
		}
		m.logger.Info("persisted_index_unusable",
			slog.String("reason", err.Error()))
	}

	return m.build(ctx)
}

// loadPersisted reconstructs a generation from the index directory.
// Any incompatibility is an error; the caller falls back to a build.
func (m *Manager) loadPersisted(ctx context.Context) (*Generation, error) {
	genStr, err := m.store.GetState(ctx, store.StateKeyGeneration)
	if err != nil {
		return nil, fmt.Errorf("read generation state: %w", err)
	}
	if genStr == "" {
		return nil, fmt.Errorf("no persisted corpus")
	}
	seq, err := strconv.Atoi(genStr)
	if err != nil {
		return nil, fmt.Errorf("malformed generation state %q", genStr)
	}

	total, embedded, err := m.store.ChunkCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chunk counts: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("persisted corpus has no chunks")
	}

	// The source directory must still hold exactly the files the index
	// was built from.
	storedPrint, err := m.store.GetState(ctx, store.StateKeyFingerprint)
	if err != nil {
		return nil, fmt.Errorf("read corpus fingerprint: %w", err)
	}
	currentPrint, err := m.sourceFingerprint(ctx)
	if err != nil {
		return nil, fmt.Errorf("fingerprint documents directory: %w", err)
	}
	if storedPrint != currentPrint {
		return nil, fmt.Errorf("documents changed since last build")
	}

	backend := m.cfg.Lexical.Backend
	detected := store.DetectLexicalBackend(m.lexicalBasePath())
	if detected == "" {
		return nil, fmt.Errorf("no lexical index on disk")
	}
	if string(detected) != backend {
		return nil, fmt.Errorf("lexical backend changed: index is %s, configured %s", detected, backend)
	}

	lexical, err := store.NewLexicalIndexWithBackend(m.lexicalBasePath(), m.lexicalConfig(), backend)
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}
	if backend == string(store.LexicalBackendMemory) {
		if err := lexical.Load(store.GetLexicalIndexPath(m.cfg.Corpus.IndexDir, backend)); err != nil {
			_ = lexical.Close()
			return nil, fmt.Errorf("load lexical index: %w", err)
		}
	}
	if got := lexical.Stats().DocumentCount; got != total {
		_ = lexical.Close()
		return nil, fmt.Errorf("lexical index holds %d chunks, store holds %d", got, total)
	}

	vector, err := m.loadPersistedVectors(embedded)
	if err != nil {
		_ = lexical.Close()
		return nil, err
	}

	docs, err := m.store.Documents(ctx)
	if err != nil {
		_ = lexical.Close()
		_ = vector.Close()
		return nil, fmt.Errorf("read document rows: %w", err)
	}
	indexed, skipped := countByStatus(docs)

	builtAt := time.Time{}
	if at, err := m.store.GetState(ctx, store.StateKeyIndexedAt); err == nil && at != "" {
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			builtAt = t
		}
	}

	engine, err := m.newEngine(lexical, vector)
	if err != nil {
		_ = lexical.Close()
		_ = vector.Close()
		return nil, err
	}

	return &Generation{
		Seq:            seq,
		BuiltAt:        builtAt,
		Lexical:        lexical,
		Vector:         vector,
		Engine:         engine,
		Documents:      indexed,
		Skipped:        skipped,
		Chunks:         total,
		ChunksEmbedded: embedded,
	}, nil
}

// loadPersistedVectors loads the HNSW export, validating it against
// the store's embedded count and the configured model. A corpus with
// zero embedded chunks legitimately has no vector file.
func (m *Manager) loadPersistedVectors(embedded int) (store.VectorIndex, error) {
	meta, err := store.ReadVectorMeta(m.vectorPath())
	if err != nil {
		return nil, fmt.Errorf("read vector meta: %w", err)
	}
	if meta == nil {
		if embedded != 0 {
			return nil, fmt.Errorf("store marks %d chunks embedded but no vector index exists", embedded)
		}
		return m.newVectorIndex()
	}

	if want := m.embedder.ModelName(); meta.Config.Model != want {
		return nil, fmt.Errorf("embedding model changed: index built with %q, configured %q", meta.Config.Model, want)
	}

	vector, err := store.NewHNSWVectorIndex(store.VectorConfig{})
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if err := vector.Load(m.vectorPath()); err != nil {
		_ = vector.Close()
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	if got := vector.Count(); got != embedded {
		_ = vector.Close()
		return nil, fmt.Errorf("vector index holds %d vectors, store marks %d embedded", got, embedded)
	}
	return vector, nil
}

// install publishes gen as the current generation. The generation it
// replaces stays open until the publish after this one.
func (m *Manager) install(gen *Generation) {
	m.mu.Lock()
	toClose := m.retired
	m.retired = m.generation
	m.generation = gen
	m.mu.Unlock()

	if toClose != nil {
		if err := toClose.Close(); err != nil {
			m.logger.Warn("generation_close_failed",
				slog.Int("generation", toClose.Seq),
				slog.String("error", err.Error()))
		}
	}
}

// current returns the published generation, or nil.
func (m *Manager) current() *Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Engine returns a search engine over the current generation, building
// the corpus first when necessary.
func (m *Manager) Engine(ctx context.Context) (*search.Engine, error) {
	if err := m.Ensure(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == nil {
		return nil, pdferrors.IndexUnavailable(m.lastErr)
	}
	return m.generation.Engine, nil
}

// Status describes the manager for status surfaces.
type Status struct {
	State          State
	Generation     int
	BuiltAt        time.Time
	Documents      int
	Skipped        int
	Chunks         int
	ChunksEmbedded int
	EmbeddingModel string
	LexicalBackend string
	LastError      string

	// Stale reports that the documents directory no longer matches the
	// last build. Only PersistedStatus computes it; a live manager
	// rebuilds instead of going stale.
	Stale bool
}

// Status reports the current lifecycle state and generation counters.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		State:          m.state,
		EmbeddingModel: m.embedder.ModelName(),
		LexicalBackend: m.cfg.Lexical.Backend,
	}
	if m.generation != nil {
		s.Generation = m.generation.Seq
		s.BuiltAt = m.generation.BuiltAt
		s.Documents = m.generation.Documents
		s.Skipped = m.generation.Skipped
		s.Chunks = m.generation.Chunks
		s.ChunksEmbedded = m.generation.ChunksEmbedded
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// PersistedStatus reports the corpus state recorded on disk without
// loading indexes or triggering a build. The boolean is false when no
// build has ever completed. The status command uses this; Ensure would
// rebuild a stale corpus, which a read-only command must not do.
func (m *Manager) PersistedStatus(ctx context.Context) (Status, bool, error) {
	s := Status{
		State:          StateEmpty,
		EmbeddingModel: m.embedder.ModelName(),
		LexicalBackend: m.cfg.Lexical.Backend,
	}

	genStr, err := m.store.GetState(ctx, store.StateKeyGeneration)
	if err != nil {
		return s, false, fmt.Errorf("read generation state: %w", err)
	}
	if genStr == "" {
		return s, false, nil
	}
	seq, err := strconv.Atoi(genStr)
	if err != nil {
		return s, false, fmt.Errorf("malformed generation state %q", genStr)
	}
	s.State = StateReady
	s.Generation = seq

	total, embedded, err := m.store.ChunkCounts(ctx)
	if err != nil {
		return s, false, fmt.Errorf("read chunk counts: %w", err)
	}
	s.Chunks = total
	s.ChunksEmbedded = embedded

	docs, err := m.store.Documents(ctx)
	if err != nil {
		return s, false, fmt.Errorf("read document rows: %w", err)
	}
	s.Documents, s.Skipped = countByStatus(docs)

	if at, err := m.store.GetState(ctx, store.StateKeyIndexedAt); err == nil && at != "" {
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			s.BuiltAt = t
		}
	}
	if model, err := m.store.GetState(ctx, store.StateKeyEmbedModel); err == nil && model != "" {
		s.EmbeddingModel = model
	}
	if backend, err := m.store.GetState(ctx, store.StateKeyLexicalBackend); err == nil && backend != "" {
		s.LexicalBackend = backend
	}

	if stored, err := m.store.GetState(ctx, store.StateKeyFingerprint); err == nil && stored != "" {
		if current, err := m.sourceFingerprint(ctx); err == nil {
			s.Stale = current != stored
		}
	}

	return s, true, nil
}

// Documents returns the per-file accounting rows of the last build.
func (m *Manager) Documents(ctx context.Context) ([]store.DocumentInfo, error) {
	return m.store.Documents(ctx)
}

// Close releases the generations, the chunk store, and the file lock.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	gen := m.generation
	retired := m.retired
	m.generation = nil
	m.retired = nil
	m.mu.Unlock()

	return errors.Join(gen.Close(), retired.Close(), m.store.Close(), m.lock.Unlock())
}

// newEngine wires a search engine over the given indexes with the
// configured fusion weights.
func (m *Manager) newEngine(lexical store.LexicalIndex, vector store.VectorIndex) (*search.Engine, error) {
	return search.NewEngineWithOptions(lexical, vector, m.store, m.embedder, search.EngineOptions{
		Weights: search.Weights{
			Lexical:  m.cfg.Fusion.LexicalWeight,
			Semantic: m.cfg.Fusion.SemanticWeight,
		},
		Logger: m.logger,
	})
}

// newVectorIndex creates an empty vector index for the configured
// model and dimensions.
func (m *Manager) newVectorIndex() (store.VectorIndex, error) {
	cfg := store.DefaultVectorConfig(m.cfg.Semantic.Dimensions)
	cfg.Model = m.embedder.ModelName()
	vector, err := store.NewHNSWVectorIndex(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	return vector, nil
}

func (m *Manager) lexicalConfig() store.LexicalConfig {
	return store.LexicalConfig{K1: m.cfg.Lexical.K1, B: m.cfg.Lexical.B}
}

// lexicalBasePath is the lexical index path without its backend
// extension, matching what the store's backend factory expects.
func (m *Manager) lexicalBasePath() string {
	return filepath.Join(m.cfg.Corpus.IndexDir, "lexical")
}

func (m *Manager) vectorPath() string {
	return filepath.Join(m.cfg.Corpus.IndexDir, "vectors.hnsw")
}

func countByStatus(docs []store.DocumentInfo) (indexed, skipped int) {
	for _, d := range docs {
		if d.Status == store.DocumentStatusIndexed {
			indexed++
		} else {
			skipped++
		}
	}
	return indexed, skipped
}

