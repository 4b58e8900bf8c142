package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfmcp/pdfmcp/internal/store"
)

func lexResult(id string, score float64) *store.LexicalResult {
	return &store.LexicalResult{ID: id, Score: score}
}

func vecResult(id string, score float32) *store.VectorResult {
	return &store.VectorResult{ID: id, Score: score}
}

func ordinals(m map[string]int) func(string) int {
	return func(id string) int { return m[id] }
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr string
	}{
		{name: "defaults", weights: DefaultWeights()},
		{name: "skewed", weights: Weights{Lexical: 0.7, Semantic: 0.3}},
		{name: "all lexical", weights: Weights{Lexical: 1, Semantic: 0}},
		{name: "sum above one", weights: Weights{Lexical: 0.6, Semantic: 0.6}, wantErr: "sum to 1"},
		{name: "sum below one", weights: Weights{Lexical: 0.2, Semantic: 0.2}, wantErr: "sum to 1"},
		{name: "negative", weights: Weights{Lexical: -0.1, Semantic: 1.1}, wantErr: "in [0, 1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewFuser_RejectsInvalidWeights(t *testing.T) {
	_, err := NewFuser(Weights{Lexical: 0.9, Semantic: 0.9})
	assert.Error(t, err)
}

func TestMinMaxNormalize(t *testing.T) {
	assert.Nil(t, minMaxNormalize(nil))
	assert.Equal(t, []float64{1.0}, minMaxNormalize([]float64{7.3}))
	assert.Equal(t, []float64{1, 1, 1}, minMaxNormalize([]float64{2, 2, 2}))
	assert.Equal(t, []float64{0.5, 1, 0}, minMaxNormalize([]float64{2, 3, 1}))
}

func TestFuser_Fuse_EqualWeightMidpoint(t *testing.T) {
	// Given: A tops lexical, B bottoms lexical but tops semantic
	fuser, err := NewFuser(DefaultWeights())
	require.NoError(t, err)

	lex := []*store.LexicalResult{lexResult("A", 2.0), lexResult("B", 1.0)}
	sem := []*store.VectorResult{vecResult("B", 0.9), vecResult("C", 0.5)}

	// When: fusing with ordinals breaking the A/B tie toward A
	results := fuser.Fuse(lex, sem, ordinals(map[string]int{"A": 0, "B": 1, "C": 2}))

	// Then: A and B tie at 0.5 (each tops one source), C trails at 0
	require.Len(t, results, 3)

	assert.Equal(t, "A", results[0].ChunkID)
	assert.InDelta(t, 0.5, results[0].Score, 1e-12)
	assert.Equal(t, 1, results[0].LexRank)
	assert.Equal(t, 0, results[0].SemRank)

	assert.Equal(t, "B", results[1].ChunkID)
	assert.InDelta(t, 0.5, results[1].Score, 1e-12)
	assert.Equal(t, 2, results[1].LexRank)
	assert.Equal(t, 1, results[1].SemRank)

	assert.Equal(t, "C", results[2].ChunkID)
	assert.InDelta(t, 0.0, results[2].Score, 1e-12)
}

func TestFuser_Fuse_BothSourcesBeatOne(t *testing.T) {
	fuser, err := NewFuser(DefaultWeights())
	require.NoError(t, err)

	// lex norms: A=1, B=0.5, C=0; sem norms: B=1, D=0.875, E=0
	lex := []*store.LexicalResult{
		lexResult("A", 3), lexResult("B", 2), lexResult("C", 1),
	}
	sem := []*store.VectorResult{
		vecResult("B", 0.9), vecResult("D", 0.8), vecResult("E", 0.1),
	}

	results := fuser.Fuse(lex, sem, ordinals(map[string]int{
		"A": 0, "B": 1, "C": 2, "D": 3, "E": 4,
	}))
	require.Len(t, results, 5)

	// B appears in both sources and wins
	assert.Equal(t, "B", results[0].ChunkID)
	assert.InDelta(t, 0.75, results[0].Score, 1e-12)

	assert.Equal(t, "A", results[1].ChunkID)
	assert.InDelta(t, 0.5, results[1].Score, 1e-12)

	assert.Equal(t, "D", results[2].ChunkID)
	assert.InDelta(t, 0.4375, results[2].Score, 1e-12)

	// C and E both score 0 with best rank 3; ordinal puts C first
	assert.Equal(t, "C", results[3].ChunkID)
	assert.Equal(t, "E", results[4].ChunkID)
}

func TestFuser_Fuse_SingleCandidateNormalizesToFullWeight(t *testing.T) {
	fuser, err := NewFuser(DefaultWeights())
	require.NoError(t, err)

	results := fuser.Fuse([]*store.LexicalResult{lexResult("A", 0.03)}, nil, nil)

	require.Len(t, results, 1)
	assert.InDelta(t, 0.5, results[0].Score, 1e-12)
	assert.Equal(t, 0.03, results[0].LexScore)
	assert.Equal(t, 1, results[0].LexRank)
	assert.Equal(t, 0, results[0].SemRank)
}

func TestFuser_Fuse_UniformScoresNormalizeToOne(t *testing.T) {
	fuser, err := NewFuser(DefaultWeights())
	require.NoError(t, err)

	lex := []*store.LexicalResult{
		lexResult("A", 2), lexResult("B", 2), lexResult("C", 2),
	}

	results := fuser.Fuse(lex, nil, nil)
	require.Len(t, results, 3)

	// All tie at half weight; list rank breaks the ties.
	for i, want := range []string{"A", "B", "C"} {
		assert.Equal(t, want, results[i].ChunkID)
		assert.InDelta(t, 0.5, results[i].Score, 1e-12)
	}
}

func TestFuser_Fuse_MatchedTermsCarried(t *testing.T) {
	fuser, err := NewFuser(DefaultWeights())
	require.NoError(t, err)

	lex := []*store.LexicalResult{
		{ID: "A", Score: 1, MatchedTerms: []string{"cat", "mat"}},
	}

	results := fuser.Fuse(lex, nil, nil)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"cat", "mat"}, results[0].MatchedTerms)
}

func TestFuser_Fuse_SkewedWeights(t *testing.T) {
	fuser, err := NewFuser(Weights{Lexical: 1, Semantic: 0})
	require.NoError(t, err)

	lex := []*store.LexicalResult{lexResult("A", 5), lexResult("B", 1)}
	sem := []*store.VectorResult{vecResult("C", 0.99)}

	results := fuser.Fuse(lex, sem, ordinals(map[string]int{"A": 0, "B": 1, "C": 2}))
	require.Len(t, results, 3)

	// The semantic-only chunk gets nothing under zero semantic weight.
	// B and C tie at zero; C topped its source, so best-rank puts it first.
	assert.Equal(t, "A", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-12)
	assert.Equal(t, "C", results[1].ChunkID)
	assert.InDelta(t, 0.0, results[1].Score, 1e-12)
	assert.Equal(t, "B", results[2].ChunkID)
	assert.InDelta(t, 0.0, results[2].Score, 1e-12)
}

func TestFuser_Fuse_Empty(t *testing.T) {
	fuser, err := NewFuser(DefaultWeights())
	require.NoError(t, err)

	results := fuser.Fuse(nil, nil, nil)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestBestRank(t *testing.T) {
	assert.Equal(t, 2, bestRank(&FusedResult{LexRank: 2, SemRank: 5}))
	assert.Equal(t, 1, bestRank(&FusedResult{LexRank: 4, SemRank: 1}))
	assert.Equal(t, 3, bestRank(&FusedResult{LexRank: 3}))
	assert.Equal(t, 7, bestRank(&FusedResult{SemRank: 7}))
}
