package corpus

import (
	"errors"
	"time"

	"github.com/pdfmcp/pdfmcp/internal/search"
	"github.com/pdfmcp/pdfmcp/internal/store"
)

// Generation is one published build of the corpus. It is immutable
// once installed; queries hold it for the duration of a single call
// and a rebuild installs a fresh one instead of mutating it.
type Generation struct {
	Seq     int
	BuiltAt time.Time

	Lexical store.LexicalIndex
	Vector  store.VectorIndex
	Engine  *search.Engine

	Documents      int // indexed source files
	Skipped        int // discovered but not indexed
	Chunks         int
	ChunksEmbedded int
}

// Close releases both indexes.
func (g *Generation) Close() error {
	if g == nil {
		return nil
	}
	var errLex, errVec error
	if g.Lexical != nil {
		errLex = g.Lexical.Close()
	}
	if g.Vector != nil {
		errVec = g.Vector.Close()
	}
	return errors.Join(errLex, errVec)
}
