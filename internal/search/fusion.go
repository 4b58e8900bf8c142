package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/pdfmcp/pdfmcp/internal/store"
)

// Weights splits the fused score between the two sources.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// DefaultWeights gives both sources equal say.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.5, Semantic: 0.5}
}

// Validate rejects weights outside [0, 1] or not summing to 1.
func (w Weights) Validate() error {
	if w.Lexical < 0 || w.Lexical > 1 || w.Semantic < 0 || w.Semantic > 1 {
		return fmt.Errorf("fusion weights must be in [0, 1]: lexical=%v semantic=%v", w.Lexical, w.Semantic)
	}
	if math.Abs(w.Lexical+w.Semantic-1) > 1e-9 {
		return fmt.Errorf("fusion weights must sum to 1: lexical=%v semantic=%v", w.Lexical, w.Semantic)
	}
	return nil
}

// FusedResult is one chunk's combined score before enrichment.
type FusedResult struct {
	ChunkID      string
	Score        float64
	LexScore     float64
	LexRank      int
	SemScore     float64
	SemRank      int
	MatchedTerms []string
}

// Fuser merges lexical and semantic candidate lists.
//
// Each source's scores are min-max normalized to [0, 1] independently
// (a single candidate, or candidates all scoring the same, normalize
// to 1.0), then combined as w_lex·normLex + w_sem·normSem. A chunk
// absent from one source receives zero from it. Order: fused score
// descending, ties by the better best-rank across sources, then by
// chunk ordinal, then by chunk ID.
type Fuser struct {
	weights Weights
}

// NewFuser validates the weights and returns a Fuser.
func NewFuser(weights Weights) (*Fuser, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Fuser{weights: weights}, nil
}

// Fuse combines the two candidate lists. ordinalOf resolves a chunk ID
// to its position in the document chunk sequence for tie-breaking;
// unknown IDs should report a large ordinal.
func (f *Fuser) Fuse(
	lex []*store.LexicalResult,
	sem []*store.VectorResult,
	ordinalOf func(string) int,
) []*FusedResult {
	if len(lex) == 0 && len(sem) == 0 {
		return []*FusedResult{}
	}
	if ordinalOf == nil {
		ordinalOf = func(string) int { return 0 }
	}

	fused := make(map[string]*FusedResult, len(lex)+len(sem))
	get := func(id string) *FusedResult {
		if r, ok := fused[id]; ok {
			return r
		}
		r := &FusedResult{ChunkID: id}
		fused[id] = r
		return r
	}

	lexScores := make([]float64, len(lex))
	for i, r := range lex {
		lexScores[i] = r.Score
	}
	for i, norm := range minMaxNormalize(lexScores) {
		r := get(lex[i].ID)
		r.LexScore = lex[i].Score
		r.LexRank = i + 1
		r.MatchedTerms = lex[i].MatchedTerms
		r.Score += f.weights.Lexical * norm
	}

	semScores := make([]float64, len(sem))
	for i, r := range sem {
		semScores[i] = float64(r.Score)
	}
	for i, norm := range minMaxNormalize(semScores) {
		r := get(sem[i].ID)
		r.SemScore = float64(sem[i].Score)
		r.SemRank = i + 1
		r.Score += f.weights.Semantic * norm
	}

	results := make([]*FusedResult, 0, len(fused))
	for _, r := range fused {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ar, br := bestRank(a), bestRank(b); ar != br {
			return ar < br
		}
		if ao, bo := ordinalOf(a.ChunkID), ordinalOf(b.ChunkID); ao != bo {
			return ao < bo
		}
		return a.ChunkID < b.ChunkID
	})

	return results
}

// bestRank returns the better (lower) of the chunk's two source ranks.
func bestRank(r *FusedResult) int {
	switch {
	case r.LexRank > 0 && r.SemRank > 0:
		if r.LexRank < r.SemRank {
			return r.LexRank
		}
		return r.SemRank
	case r.LexRank > 0:
		return r.LexRank
	default:
		return r.SemRank
	}
}

// minMaxNormalize maps scores to [0, 1]. Degenerate sets, one score or
// all scores equal, map to 1.0 so a lone candidate keeps full weight.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	norms := make([]float64, len(scores))
	if maxScore == minScore {
		for i := range norms {
			norms[i] = 1.0
		}
		return norms
	}

	span := maxScore - minScore
	for i, s := range scores {
		norms[i] = (s - minScore) / span
	}
	return norms
}
