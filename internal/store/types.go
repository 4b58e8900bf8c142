// Package store provides the persistence layer: the lexical (BM25)
// index, the vector (HNSW) index, and chunk metadata in SQLite.
package store

import (
	"context"
	"fmt"
	"time"
)

// State keys for the chunk store's key-value table.
const (
	// StateKeyEmbedModel stores the embedding model the index was built with
	StateKeyEmbedModel = "embedding_model"
	// StateKeyEmbedDimensions stores the embedding dimension of the vector index
	StateKeyEmbedDimensions = "embedding_dimensions"
	// StateKeyGeneration stores the corpus generation counter
	StateKeyGeneration = "generation"
	// StateKeyIndexedAt stores the RFC3339 time of the last successful build
	StateKeyIndexedAt = "indexed_at"
	// StateKeyLexicalBackend stores which lexical backend built the index
	StateKeyLexicalBackend = "lexical_backend"
	// StateKeyFingerprint stores a hash over the source files the index
	// was built from, so startup can tell whether the corpus changed
	StateKeyFingerprint = "corpus_fingerprint"
)

// Document is a unit of text handed to the lexical index. The ID is the
// chunk ID, so lexical hits join back to chunk metadata directly.
type Document struct {
	ID      string
	Content string
}

// DocumentStatus records how ingestion handled a source file.
type DocumentStatus string

const (
	// DocumentStatusIndexed means the file was parsed and chunked.
	DocumentStatusIndexed DocumentStatus = "indexed"

	// DocumentStatusSkipped means the file was seen but not indexed;
	// Reason says why (parse failure, duplicate content, no text).
	DocumentStatusSkipped DocumentStatus = "skipped"
)

// DocumentInfo is the per-file accounting row kept by the chunk store.
type DocumentInfo struct {
	Name       string
	SHA256     string
	Pages      int
	Chunks     int
	SizeBytes  int64
	ModifiedAt time.Time
	IndexedAt  time.Time
	Status     DocumentStatus
	Reason     string
}

// LexicalResult is a single keyword search hit.
type LexicalResult struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// LexicalStats describes the state of a lexical index.
type LexicalStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// LexicalIndex provides keyword search scored by BM25.
type LexicalIndex interface {
	// Index adds documents to the index
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, best first. Only
	// documents containing at least one query term appear.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// Stats returns index statistics
	Stats() *LexicalStats

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// LexicalConfig holds BM25 scoring parameters.
type LexicalConfig struct {
	// K1 is the term frequency saturation parameter (default: 1.2)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64
}

// DefaultLexicalConfig returns the standard BM25 parameters.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{K1: 1.2, B: 0.75}
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Cosine distance, 0 (identical) to 2 (opposite)
	Score    float32 // Similarity 1 - distance/2, in [0, 1]
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Dimensions is the vector dimension; 0 adopts the first added vector
	Dimensions int

	// M is the HNSW max connections per layer (default: 16)
	M int

	// EfSearch is the HNSW query-time search width (default: 64)
	EfSearch int

	// Model names the embedding model the vectors came from. Persisted
	// so a reload can tell when the corpus must be re-embedded.
	Model string
}

// DefaultVectorConfig returns sensible defaults for the vector index.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// VectorIndex provides approximate nearest-neighbor search.
type VectorIndex interface {
	// Add inserts vectors with their IDs
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Contains checks if an ID exists
	Contains(id string) bool

	// Count returns the number of vectors
	Count() int

	// Dimensions returns the vector dimension, or 0 while empty
	Dimensions() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates a vector did not match the index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
