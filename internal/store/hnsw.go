package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWVectorIndex implements VectorIndex using the coder/hnsw pure Go
// HNSW graph, keyed directly by chunk ID. Vectors are normalized to
// unit length on insert so cosine distance stays in [0, 2] and the
// similarity score 1 - d/2 stays in [0, 1].
type HNSWVectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[string]
	config VectorConfig
	ids    map[string]struct{}
	closed bool
}

// VectorMeta is the sidecar persisted next to the graph file. It holds
// what the graph export alone cannot answer: which model produced the
// vectors, their dimensionality, and which chunk IDs are present.
type VectorMeta struct {
	Config VectorConfig
	IDs    []string
}

// NewHNSWVectorIndex creates an empty vector index. Zero config fields
// fall back to the defaults from DefaultVectorConfig.
func NewHNSWVectorIndex(config VectorConfig) (*HNSWVectorIndex, error) {
	if config.M == 0 {
		config.M = 16
	}
	if config.EfSearch == 0 {
		config.EfSearch = 64
	}
	if config.Dimensions < 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", config.Dimensions)
	}

	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance
	graph.M = config.M
	graph.EfSearch = config.EfSearch
	graph.Ml = 0.25

	return &HNSWVectorIndex{
		graph:  graph,
		config: config,
		ids:    make(map[string]struct{}),
	}, nil
}

// Add inserts vectors keyed by chunk ID. The first insert fixes the
// index dimensionality when the config left it at zero; every later
// vector must match it.
func (s *HNSWVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	if s.config.Dimensions == 0 {
		s.config.Dimensions = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{
				Expected: s.config.Dimensions,
				Got:      len(v),
			}
		}
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(id, vec))
		s.ids[id] = struct{}{}
	}

	return nil
}

// Search returns the k nearest chunks to query by cosine distance.
func (s *HNSWVectorIndex) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := s.graph.Search(normalized, k)

	// Search returns nodes without distances, so recompute them.
	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ID:       node.Key,
			Distance: distance,
			Score:    1.0 - distance/2.0,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results, nil
}

// Contains reports whether a chunk ID has a vector in the index.
func (s *HNSWVectorIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Count returns the number of indexed vectors.
func (s *HNSWVectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.ids)
}

// Dimensions returns the fixed dimensionality, 0 before the first Add.
func (s *HNSWVectorIndex) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// Save writes the graph to path and the meta sidecar to path+".meta",
// each via temp file and rename.
func (s *HNSWVectorIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
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
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	if err := s.saveMeta(path + ".meta"); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func (s *HNSWVectorIndex) saveMeta(path string) error {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	meta := VectorMeta{Config: s.config, IDs: ids}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and meta sidecar written by Save.
func (s *HNSWVectorIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	meta, err := ReadVectorMeta(path)
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}
	if meta == nil {
		return fmt.Errorf("load metadata: %s.meta does not exist", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.config = meta.Config
	s.ids = make(map[string]struct{}, len(meta.IDs))
	for _, id := range meta.IDs {
		s.ids[id] = struct{}{}
	}
	return nil
}

// Close releases the graph. Further calls fail.
func (s *HNSWVectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	s.ids = nil
	return nil
}

// ReadVectorMeta reads the sidecar for the vector index at vectorPath
// without loading the graph. Returns nil with no error when the
// sidecar does not exist, meaning a fresh start.
func ReadVectorMeta(vectorPath string) (*VectorMeta, error) {
	metaPath := vectorPath
	if filepath.Ext(metaPath) != ".meta" {
		metaPath += ".meta"
	}

	file, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open vector metadata: %w", err)
	}
	defer file.Close()

	var meta VectorMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode vector metadata: %w", err)
	}
	return &meta, nil
}

var _ VectorIndex = (*HNSWVectorIndex)(nil)

// normalizeInPlace scales v to unit length. Zero vectors are left as
// they are.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
