package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pdfmcp/pdfmcp/internal/pdf"
)

// Chunk size defaults, tuned for retrieval over prose documents
const (
	DefaultMaxChars     = 800 // Maximum characters (runes) per chunk
	DefaultOverlapChars = 120 // Characters repeated from the previous chunk
)

// Chunk is a retrievable unit of document text.
type Chunk struct {
	ID       string // Stable content-derived identifier
	Document string // Source file name, e.g. "guide.pdf"
	Page     int    // 1-indexed page the text came from
	Ordinal  int    // Position within the document's chunk sequence
	Content  string // Normalized text
}

// Chunker splits page-tagged document text into chunks.
type Chunker interface {
	Chunk(document string, pages []pdf.Page) []Chunk
}

// generateChunkID derives a stable ID from the chunk's identity and content.
// Identical rebuilds of the same document produce identical IDs.
func generateChunkID(document string, page, ordinal int, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]

	input := fmt.Sprintf("%s:%d:%d:%s", document, page, ordinal, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
