package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// LexicalBackend selects the lexical index implementation.
type LexicalBackend string

const (
	// LexicalBackendMemory scores with the exact BM25 formula over an
	// in-memory postings list, persisted as a gob snapshot (default).
	LexicalBackendMemory LexicalBackend = "memory"

	// LexicalBackendBleve stores postings on disk via Bleve v2. Scores
	// follow Bleve's BM25 variant. Single process only (BoltDB lock).
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndexWithBackend creates a LexicalIndex using the given
// backend. basePath is the index path without extension; the extension
// is added per backend (.gob for memory, .bleve for Bleve). An empty
// basePath keeps everything in memory.
func NewLexicalIndexWithBackend(basePath string, config LexicalConfig, backend string) (LexicalIndex, error) {
	switch backend {
	case string(LexicalBackendMemory), "":
		return NewMemoryLexicalIndex(config), nil

	case string(LexicalBackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveLexicalIndex(path)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: memory, bleve)", backend)
	}
}

// DetectLexicalBackend reports which backend an existing index at
// basePath uses, or "" when none exists.
func DetectLexicalBackend(basePath string) LexicalBackend {
	if fileExists(basePath + ".gob") {
		return LexicalBackendMemory
	}
	if dirExists(basePath + ".bleve") {
		return LexicalBackendBleve
	}
	return ""
}

// GetLexicalIndexPath returns the on-disk path of the lexical index
// inside dataDir for the given backend.
func GetLexicalIndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "lexical")
	switch backend {
	case string(LexicalBackendBleve):
		return basePath + ".bleve"
	default:
		return basePath + ".gob"
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
