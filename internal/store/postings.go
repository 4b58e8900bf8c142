package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryLexicalIndex is the default lexical backend: an in-memory
// postings index scoring with the standard BM25 formula. Results are
// exact and reproducible, which the fallback-only retrieval mode and
// the ranking tests rely on. The whole index rebuilds with each corpus
// generation, so there is no delete path.
type MemoryLexicalIndex struct {
	mu     sync.RWMutex
	config LexicalConfig

	docIDs   []string // insertion order, used for tie-breaking
	docLens  []int
	totalLen int
	postings map[string][]posting

	closed bool
}

// posting records one document containing a term.
type posting struct {
	Doc int32 // index into docIDs
	TF  int32 // occurrences of the term in the document
}

// memoryIndexSnapshot is the gob persistence form of the index.
type memoryIndexSnapshot struct {
	Config   LexicalConfig
	DocIDs   []string
	DocLens  []int
	TotalLen int
	Postings map[string][]posting
}

// NewMemoryLexicalIndex creates an empty postings index.
func NewMemoryLexicalIndex(config LexicalConfig) *MemoryLexicalIndex {
	if config.K1 <= 0 {
		config.K1 = DefaultLexicalConfig().K1
	}
	if config.B < 0 || config.B > 1 {
		config.B = DefaultLexicalConfig().B
	}
	return &MemoryLexicalIndex{
		config:   config,
		postings: make(map[string][]posting),
	}
}

// Index adds documents. Documents are assumed new; the corpus manager
// rebuilds the index from scratch rather than updating in place.
func (m *MemoryLexicalIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		tokens := Tokenize(doc.Content)
		docIdx := int32(len(m.docIDs))
		m.docIDs = append(m.docIDs, doc.ID)
		m.docLens = append(m.docLens, len(tokens))
		m.totalLen += len(tokens)

		counts := make(map[string]int32, len(tokens))
		for _, t := range tokens {
			counts[t]++
		}
		for term, tf := range counts {
			m.postings[term] = append(m.postings[term], posting{Doc: docIdx, TF: tf})
		}
	}

	return nil
}

// Search scores every document sharing at least one term with the
// query:
//
//	score = Σ_t IDF(t) · tf·(k1+1) / (tf + k1·(1 − b + b·len/avgLen))
//	IDF(t) = ln(1 + (N − df + 0.5)/(df + 0.5))
//
// The sum runs over query tokens, so a term repeated in the query
// contributes once per occurrence. Ties are broken by insertion order.
func (m *MemoryLexicalIndex) Search(_ context.Context, query string, limit int) ([]*LexicalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if limit <= 0 {
		return []*LexicalResult{}, nil
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 || len(m.docIDs) == 0 {
		return []*LexicalResult{}, nil
	}

	n := float64(len(m.docIDs))
	avgLen := float64(m.totalLen) / n

	scores := make(map[int32]float64)
	matched := make(map[int32]map[string]struct{})

	for _, term := range tokens {
		plist := m.postings[term]
		if len(plist) == 0 {
			continue
		}

		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range plist {
			tf := float64(p.TF)
			norm := 1 - m.config.B + m.config.B*float64(m.docLens[p.Doc])/avgLen
			scores[p.Doc] += idf * tf * (m.config.K1 + 1) / (tf + m.config.K1*norm)

			terms := matched[p.Doc]
			if terms == nil {
				terms = make(map[string]struct{})
				matched[p.Doc] = terms
			}
			terms[term] = struct{}{}
		}
	}

	if len(scores) == 0 {
		return []*LexicalResult{}, nil
	}

	order := make([]int32, 0, len(scores))
	for doc := range scores {
		order = append(order, doc)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		return a < b
	})

	if len(order) > limit {
		order = order[:limit]
	}

	results := make([]*LexicalResult, 0, len(order))
	for _, doc := range order {
		terms := make([]string, 0, len(matched[doc]))
		for t := range matched[doc] {
			terms = append(terms, t)
		}
		sort.Strings(terms)

		results = append(results, &LexicalResult{
			ID:           m.docIDs[doc],
			Score:        scores[doc],
			MatchedTerms: terms,
		})
	}

	return results, nil
}

// Stats returns index statistics.
func (m *MemoryLexicalIndex) Stats() *LexicalStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || len(m.docIDs) == 0 {
		return &LexicalStats{}
	}

	return &LexicalStats{
		DocumentCount: len(m.docIDs),
		TermCount:     len(m.postings),
		AvgDocLength:  float64(m.totalLen) / float64(len(m.docIDs)),
	}
}

// Save writes the index to disk atomically (temp file + rename).
func (m *MemoryLexicalIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	snapshot := memoryIndexSnapshot{
		Config:   m.config,
		DocIDs:   m.docIDs,
		DocLens:  m.docLens,
		TotalLen: m.totalLen,
		Postings: m.postings,
	}
	if err := gob.NewEncoder(file).Encode(snapshot); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load replaces the index contents from disk.
func (m *MemoryLexicalIndex) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snapshot memoryIndexSnapshot
	if err := gob.NewDecoder(file).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}

	m.config = snapshot.Config
	m.docIDs = snapshot.DocIDs
	m.docLens = snapshot.DocLens
	m.totalLen = snapshot.TotalLen
	m.postings = snapshot.Postings
	if m.postings == nil {
		m.postings = make(map[string][]posting)
	}

	return nil
}

// Close releases the index. Further calls error.
func (m *MemoryLexicalIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.postings = nil
	m.docIDs = nil
	m.docLens = nil
	return nil
}

// DebugScore breaks a single document's score into per-term parts.
// Kept exported for the query CLI's --explain flag.
func (m *MemoryLexicalIndex) DebugScore(query, docID string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docIdx := int32(-1)
	for i, id := range m.docIDs {
		if id == docID {
			docIdx = int32(i)
			break
		}
	}
	if docIdx < 0 {
		return nil
	}

	n := float64(len(m.docIDs))
	avgLen := float64(m.totalLen) / n
	parts := make(map[string]float64)

	for _, term := range UniqueTerms(Tokenize(query)) {
		for _, p := range m.postings[term] {
			if p.Doc != docIdx {
				continue
			}
			df := float64(len(m.postings[term]))
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			tf := float64(p.TF)
			norm := 1 - m.config.B + m.config.B*float64(m.docLens[p.Doc])/avgLen
			parts[term] = idf * tf * (m.config.K1 + 1) / (tf + m.config.K1*norm)
		}
	}
	return parts
}

var _ LexicalIndex = (*MemoryLexicalIndex)(nil)
