package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/pdfmcp/pdfmcp/internal/chunk"
	pdferrors "github.com/pdfmcp/pdfmcp/internal/errors"
	"github.com/pdfmcp/pdfmcp/internal/store"
)

// stageTiming tracks how long each build stage took.
type stageTiming struct {
	discover time.Duration
	ingest   time.Duration
	embed    time.Duration
	index    time.Duration
}

// build runs the full pipeline: discover, parse and chunk, dedupe,
// embed, index, persist, install.
func (m *Manager) build(ctx context.Context) error {
	start := time.Now()
	var timing stageTiming

	dir := m.cfg.Corpus.DocumentsDir
	discoverStart := time.Now()
	candidates, err := Discover(dir)
	if err != nil {
		return pdferrors.ConfigError(
			fmt.Sprintf("cannot read documents directory %s", dir), err)
	}
	timing.discover = time.Since(discoverStart)

	if len(candidates) == 0 {
		return pdferrors.CorpusEmptyError(dir)
	}

	m.logger.Info("corpus_build_started",
		slog.Int("candidates", len(candidates)),
		slog.String("documents_dir", dir))

	ingestStart := time.Now()
	docs, chunks, err := m.ingestAll(ctx, candidates)
	if err != nil {
		return err
	}
	timing.ingest = time.Since(ingestStart)

	if len(chunks) == 0 {
		return pdferrors.CorpusEmptyError(dir)
	}

	embedStart := time.Now()
	vectors, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}
	timing.embed = time.Since(embedStart)

	indexStart := time.Now()
	gen, embeddedIDs, err := m.assembleGeneration(ctx, docs, chunks, vectors)
	if err != nil {
		return err
	}
	if err := m.persist(ctx, docs, chunks, embeddedIDs, gen); err != nil {
		_ = gen.Close()
		return err
	}
	timing.index = time.Since(indexStart)

	m.install(gen)

	m.logger.Info("corpus_published",
		slog.Int("generation", gen.Seq),
		slog.Int("documents", gen.Documents),
		slog.Int("skipped", gen.Skipped),
		slog.Int("chunks", gen.Chunks),
		slog.Int("chunks_embedded", gen.ChunksEmbedded),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		slog.Int64("duration_discover_ms", timing.discover.Milliseconds()),
		slog.Int64("duration_ingest_ms", timing.ingest.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.Int64("duration_index_ms", timing.index.Milliseconds()))

	return nil
}

// docResult is one worker's output for a single candidate.
type docResult struct {
	info   store.DocumentInfo
	chunks []chunk.Chunk
}

// ingestAll parses and chunks every candidate on a bounded worker
// pool, then deduplicates the chunks corpus-wide. Results keep
// discovery order regardless of worker completion order.
func (m *Manager) ingestAll(ctx context.Context, candidates []Candidate) ([]store.DocumentInfo, []chunk.Chunk, error) {
	workers := m.cfg.Corpus.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, nil, pdferrors.InternalError("create ingest worker pool", err)
	}
	defer pool.Release()

	results := make([]docResult, len(candidates))
	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = m.ingestDocument(ctx, cand)
		})
		if submitErr != nil {
			wg.Done()
			results[i] = m.skipDocument(cand, "", pdferrors.ErrCodeInternal,
				fmt.Sprintf("worker pool rejected document: %v", submitErr))
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	docs, kept := m.dedupe(results)
	return docs, kept, nil
}

// ingestDocument hashes, parses, and chunks one file. Failures come
// back as a skipped row, never an error, so one bad document cannot
// sink the build.
func (m *Manager) ingestDocument(ctx context.Context, cand Candidate) docResult {
	sha, err := hashFile(cand.Path)
	if err != nil {
		return m.skipDocument(cand, "", pdferrors.ErrCodeDocumentUnreadable,
			fmt.Sprintf("unreadable: %v", err))
	}
	if err := ctx.Err(); err != nil {
		return m.skipDocument(cand, sha, pdferrors.ErrCodeDocumentUnreadable, "build cancelled")
	}

	pages, err := m.parser.Parse(ctx, cand.Path)
	if err != nil {
		return m.skipDocument(cand, sha, pdferrors.ErrCodeDocumentParse,
			fmt.Sprintf("parse failed: %v", err))
	}

	chunks := m.chunker.Chunk(cand.Name, pages)
	if len(chunks) == 0 {
		return m.skipDocument(cand, sha, pdferrors.ErrCodeDocumentEmpty, "no extractable text")
	}

	return docResult{
		info: store.DocumentInfo{
			Name:       cand.Name,
			SHA256:     sha,
			Pages:      len(pages),
			Chunks:     len(chunks),
			SizeBytes:  cand.SizeBytes,
			ModifiedAt: cand.ModifiedAt,
			IndexedAt:  time.Now().UTC(),
			Status:     store.DocumentStatusIndexed,
		},
		chunks: chunks,
	}
}

// skipDocument records and logs a document the build leaves out.
func (m *Manager) skipDocument(cand Candidate, sha, code, reason string) docResult {
	m.logger.Warn("document_skipped",
		slog.String("document", cand.Name),
		slog.String("code", code),
		slog.String("reason", reason))
	return docResult{
		info: store.DocumentInfo{
			Name:       cand.Name,
			SHA256:     sha,
			SizeBytes:  cand.SizeBytes,
			ModifiedAt: cand.ModifiedAt,
			IndexedAt:  time.Now().UTC(),
			Status:     store.DocumentStatusSkipped,
			Reason:     reason,
		},
	}
}

// dedupe drops chunks whose content already appeared earlier in the
// corpus. First occurrence wins, in discovery order. A document whose
// every chunk is a duplicate becomes a skipped row.
func (m *Manager) dedupe(results []docResult) ([]store.DocumentInfo, []chunk.Chunk) {
	seen := make(map[string]string) // content hash -> first holder
	docs := make([]store.DocumentInfo, 0, len(results))
	var kept []chunk.Chunk

	for _, r := range results {
		if r.info.Status == store.DocumentStatusSkipped {
			docs = append(docs, r.info)
			continue
		}

		keptHere := 0
		for _, c := range r.chunks {
			h := contentHash(c.Content)
			if first, dup := seen[h]; dup {
				m.logger.Debug("chunk_deduplicated",
					slog.String("document", c.Document),
					slog.Int("page", c.Page),
					slog.String("first_seen_in", first))
				continue
			}
			seen[h] = c.Document
			kept = append(kept, c)
			keptHere++
		}

		info := r.info
		info.Chunks = keptHere
		if keptHere == 0 {
			info.Status = store.DocumentStatusSkipped
			info.Reason = "duplicate content"
			m.logger.Warn("document_skipped",
				slog.String("document", info.Name),
				slog.String("code", pdferrors.ErrCodeDocumentEmpty),
				slog.String("reason", info.Reason))
		}
		docs = append(docs, info)
	}

	return docs, kept
}

// embedChunks returns vectors for as many chunks as possible. Cached
// embeddings are used first; misses go to the provider in bounded
// batches. A failed batch leaves its chunks unembedded rather than
// failing the build, so the corpus stays lexically searchable.
func (m *Manager) embedChunks(ctx context.Context, chunks []chunk.Chunk) (map[string][]float32, error) {
	model := m.embedder.ModelName()
	batchSize := m.cfg.Semantic.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		hashes[i] = contentHash(c.Content)
	}

	cached, err := m.store.GetCachedEmbeddings(ctx, model, hashes)
	if err != nil {
		m.logger.Warn("embedding_cache_read_failed", slog.String("error", err.Error()))
		cached = nil
	}

	vectors := make(map[string][]float32, len(chunks))
	var misses []int
	for i, c := range chunks {
		if vec, ok := cached[hashes[i]]; ok {
			vectors[c.ID] = vec
		} else {
			misses = append(misses, i)
		}
	}
	if len(vectors) > 0 {
		m.logger.Info("embedding_cache_consulted",
			slog.Int("hits", len(vectors)),
			slog.Int("misses", len(misses)))
	}

	var unembedded int
	for start := 0; start < len(misses); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch := misses[start:min(start+batchSize, len(misses))]
		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = chunks[idx].Content
		}

		embeddings, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			unembedded += len(batch)
			m.logger.Warn("embed_batch_failed",
				slog.Int("chunks", len(batch)),
				slog.String("error", err.Error()))
			continue
		}
		if len(embeddings) != len(batch) {
			unembedded += len(batch)
			m.logger.Warn("embed_batch_short",
				slog.Int("want", len(batch)),
				slog.Int("got", len(embeddings)))
			continue
		}

		entries := make(map[string][]float32, len(batch))
		for j, idx := range batch {
			vectors[chunks[idx].ID] = embeddings[j]
			entries[hashes[idx]] = embeddings[j]
		}
		if err := m.store.PutCachedEmbeddings(ctx, model, entries); err != nil {
			m.logger.Warn("embedding_cache_write_failed", slog.String("error", err.Error()))
		}
	}

	if unembedded > 0 {
		m.logger.Warn("corpus_partially_embedded",
			slog.Int("unembedded", unembedded),
			slog.Int("total", len(chunks)))
	}

	return vectors, nil
}

// assembleGeneration builds both indexes and the engine for a new
// generation. Nothing is persisted or published yet; the caller owns
// cleanup on failure.
func (m *Manager) assembleGeneration(ctx context.Context, docs []store.DocumentInfo, chunks []chunk.Chunk, vectors map[string][]float32) (*Generation, []string, error) {
	lexical, err := m.newBuildLexicalIndex()
	if err != nil {
		return nil, nil, err
	}

	lexDocs := make([]*store.Document, len(chunks))
	for i, c := range chunks {
		lexDocs[i] = &store.Document{ID: c.ID, Content: c.Content}
	}
	if err := lexical.Index(ctx, lexDocs); err != nil {
		_ = lexical.Close()
		return nil, nil, pdferrors.Wrap(pdferrors.ErrCodeIndexIO,
			fmt.Errorf("index chunks: %w", err))
	}

	vector, err := m.newVectorIndex()
	if err != nil {
		_ = lexical.Close()
		return nil, nil, err
	}

	// Chunk order keeps vector insertion deterministic across rebuilds.
	var embeddedIDs []string
	var vecs [][]float32
	for _, c := range chunks {
		if v, ok := vectors[c.ID]; ok {
			embeddedIDs = append(embeddedIDs, c.ID)
			vecs = append(vecs, v)
		}
	}
	if len(embeddedIDs) > 0 {
		if err := vector.Add(ctx, embeddedIDs, vecs); err != nil {
			if ctx.Err() != nil {
				_ = lexical.Close()
				_ = vector.Close()
				return nil, nil, ctx.Err()
			}
			// Malformed provider output; serve lexically instead.
			m.logger.Warn("vector_index_build_failed", slog.String("error", err.Error()))
			_ = vector.Close()
			vector, err = m.newVectorIndex()
			if err != nil {
				_ = lexical.Close()
				return nil, nil, err
			}
			embeddedIDs = nil
		}
	}

	engine, err := m.newEngine(lexical, vector)
	if err != nil {
		_ = lexical.Close()
		_ = vector.Close()
		return nil, nil, err
	}

	indexed, skipped := countByStatus(docs)
	gen := &Generation{
		Seq:            m.nextSeq(ctx),
		BuiltAt:        time.Now().UTC(),
		Lexical:        lexical,
		Vector:         vector,
		Engine:         engine,
		Documents:      indexed,
		Skipped:        skipped,
		Chunks:         len(chunks),
		ChunksEmbedded: len(embeddedIDs),
	}
	return gen, embeddedIDs, nil
}

// nextSeq continues the generation counter from the published
// generation, or from persisted state when nothing is published yet.
func (m *Manager) nextSeq(ctx context.Context) int {
	if cur := m.current(); cur != nil {
		return cur.Seq + 1
	}
	if s, err := m.store.GetState(ctx, store.StateKeyGeneration); err == nil && s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n + 1
		}
	}
	return 1
}

// newBuildLexicalIndex creates the lexical index a build writes into.
// The memory backend builds off-disk and saves at persist time; the
// bleve backend builds at a staging path that persist renames over
// the live one.
func (m *Manager) newBuildLexicalIndex() (store.LexicalIndex, error) {
	backend := m.cfg.Lexical.Backend
	if backend == string(store.LexicalBackendBleve) {
		if err := os.RemoveAll(m.lexicalStagePath() + ".bleve"); err != nil {
			return nil, pdferrors.Wrap(pdferrors.ErrCodeIndexIO, err)
		}
		return store.NewLexicalIndexWithBackend(m.lexicalStagePath(), m.lexicalConfig(), backend)
	}
	return store.NewLexicalIndexWithBackend("", m.lexicalConfig(), backend)
}

func (m *Manager) lexicalStagePath() string {
	return m.lexicalBasePath() + ".next"
}

// persist writes the build to the chunk store and the index files.
// The SQLite corpus swap is the commit point; index file failures only
// log, because the in-memory generation serves regardless and the next
// startup rebuilds whatever is missing.
func (m *Manager) persist(ctx context.Context, docs []store.DocumentInfo, chunks []chunk.Chunk, embeddedIDs []string, gen *Generation) error {
	if err := m.store.ReplaceCorpus(ctx, docs, chunks); err != nil {
		return pdferrors.Wrap(pdferrors.ErrCodeIndexIO,
			fmt.Errorf("replace corpus: %w", err))
	}
	if len(embeddedIDs) > 0 {
		if err := m.store.MarkEmbedded(ctx, embeddedIDs); err != nil {
			return pdferrors.Wrap(pdferrors.ErrCodeIndexIO,
				fmt.Errorf("mark embedded: %w", err))
		}
	}

	states := []struct{ key, value string }{
		{store.StateKeyGeneration, strconv.Itoa(gen.Seq)},
		{store.StateKeyIndexedAt, gen.BuiltAt.Format(time.RFC3339)},
		{store.StateKeyEmbedModel, m.embedder.ModelName()},
		{store.StateKeyEmbedDimensions, strconv.Itoa(gen.Vector.Dimensions())},
		{store.StateKeyLexicalBackend, m.cfg.Lexical.Backend},
		{store.StateKeyFingerprint, fingerprintDocs(docs)},
	}
	for _, s := range states {
		if err := m.store.SetState(ctx, s.key, s.value); err != nil {
			return pdferrors.Wrap(pdferrors.ErrCodeIndexIO,
				fmt.Errorf("set state %s: %w", s.key, err))
		}
	}

	if err := m.persistIndexFiles(gen); err != nil {
		m.logger.Warn("index_persist_failed", slog.String("error", err.Error()))
	}
	return nil
}

// persistIndexFiles writes the index artifacts and removes the other
// backend's leftovers so detection stays unambiguous.
func (m *Manager) persistIndexFiles(gen *Generation) error {
	backend := m.cfg.Lexical.Backend
	gobPath := store.GetLexicalIndexPath(m.cfg.Corpus.IndexDir, string(store.LexicalBackendMemory))
	blevePath := store.GetLexicalIndexPath(m.cfg.Corpus.IndexDir, string(store.LexicalBackendBleve))

	switch backend {
	case string(store.LexicalBackendBleve):
		// The new index's open handle survives the rename; only its
		// path changes.
		if err := os.RemoveAll(blevePath); err != nil {
			return fmt.Errorf("clear previous lexical index: %w", err)
		}
		if err := os.Rename(m.lexicalStagePath()+".bleve", blevePath); err != nil {
			return fmt.Errorf("install lexical index: %w", err)
		}
		_ = os.Remove(gobPath)
	default:
		if err := gen.Lexical.Save(gobPath); err != nil {
			return fmt.Errorf("save lexical index: %w", err)
		}
		_ = os.RemoveAll(blevePath)
	}

	if gen.ChunksEmbedded > 0 {
		if err := gen.Vector.Save(m.vectorPath()); err != nil {
			return fmt.Errorf("save vector index: %w", err)
		}
	} else {
		_ = os.Remove(m.vectorPath())
		_ = os.Remove(m.vectorPath() + ".meta")
	}
	return nil
}

// hashFile returns the hex SHA-256 of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// contentHash keys the corpus-wide dedupe set and the embedding cache.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// fingerprintDocs condenses the built corpus's (name, sha256) pairs,
// in discovery order, into one fingerprint.
func fingerprintDocs(docs []store.DocumentInfo) string {
	h := sha256.New()
	for _, d := range docs {
		writeFingerprintPair(h, d.Name, d.SHA256)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sourceFingerprint computes the fingerprint of the documents
// directory as it is right now, without parsing anything.
func (m *Manager) sourceFingerprint(ctx context.Context) (string, error) {
	candidates, err := Discover(m.cfg.Corpus.DocumentsDir)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		sha, err := hashFile(cand.Path)
		if err != nil {
			// Matches the empty SHA a skipped unreadable file gets at
			// build time.
			sha = ""
		}
		writeFingerprintPair(h, cand.Name, sha)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeFingerprintPair(h io.Writer, name, sha string) {
	_, _ = io.WriteString(h, name)
	_, _ = h.Write([]byte{0})
	_, _ = io.WriteString(h, sha)
	_, _ = h.Write([]byte{'\n'})
}
