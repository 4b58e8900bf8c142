package embed

import (
	"context"
	"fmt"
	"sync/atomic"
)

// countingEmbedder is a deterministic fake that records how many texts
// reached it, for cache behavior tests.
type countingEmbedder struct {
	embedCalls int32
	textsSeen  int32
	dims       int
	failing    bool
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{dims: dims}
}

func (f *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.embedCalls, 1)
	atomic.AddInt32(&f.textsSeen, int32(len(texts)))

	if f.failing {
		return nil, fmt.Errorf("backend down")
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, f.dims)
		for j, r := range text {
			v[j%f.dims] += float32(r)
		}
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

func (f *countingEmbedder) Dimensions() int                  { return f.dims }
func (f *countingEmbedder) ModelName() string                { return "counting-fake" }
func (f *countingEmbedder) Available(_ context.Context) bool { return true }
func (f *countingEmbedder) Close() error                     { return nil }

var _ Embedder = (*countingEmbedder)(nil)
