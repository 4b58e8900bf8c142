// Package search provides hybrid retrieval over a chunked corpus:
// lexical (BM25) and semantic (vector) searches run in parallel and
// their scores are merged by weighted min-max fusion.
package search

import (
	"github.com/pdfmcp/pdfmcp/internal/chunk"
)

// Result is one retrieved chunk with its fused score and the
// per-source evidence behind it.
type Result struct {
	Chunk chunk.Chunk

	// Score is the fused score in [0, 1].
	Score float64

	// LexScore is the raw BM25 score; LexRank its 1-indexed position
	// in the lexical candidate list, 0 when the chunk was not a
	// lexical candidate.
	LexScore float64
	LexRank  int

	// SemScore is the cosine similarity in [0, 1]; SemRank mirrors
	// LexRank for the semantic candidate list.
	SemScore float64
	SemRank  int

	// MatchedTerms are the query terms the lexical index matched.
	MatchedTerms []string
}
