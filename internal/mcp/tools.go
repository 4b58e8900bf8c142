package mcp

import (
	"time"

	"github.com/pdfmcp/pdfmcp/internal/corpus"
)

// QueryDocumentsInput defines the input schema for the query_documents tool.
type QueryDocumentsInput struct {
	Query     string `json:"query" jsonschema:"the search query to run against the PDF corpus"`
	MaxChunks int    `json:"max_chunks,omitempty" jsonschema:"maximum chunks to return, default 5, capped at 20"`
}

// AskDocumentsInput defines the input schema for the ask_documents tool.
type AskDocumentsInput struct {
	Query     string `json:"query" jsonschema:"the question to answer from the PDF corpus"`
	MaxChunks int    `json:"max_chunks,omitempty" jsonschema:"context chunks to retrieve, default 5, capped at 20"`
}

// CorpusStatusInput defines the input schema for the corpus_status tool (no parameters).
type CorpusStatusInput struct{}

// ReloadCorpusInput defines the input schema for the reload_corpus tool (no parameters).
type ReloadCorpusInput struct{}

// CorpusStatusOutput defines the output schema for the corpus_status tool.
type CorpusStatusOutput struct {
	State            string `json:"state" jsonschema:"corpus lifecycle state: empty, loading, ready, or reloading"`
	Generation       int    `json:"generation" jsonschema:"sequence number of the published index generation"`
	Documents        int    `json:"documents" jsonschema:"documents indexed in the current generation"`
	SkippedDocuments int    `json:"skipped_documents" jsonschema:"documents discovered but not indexed"`
	Chunks           int    `json:"chunks" jsonschema:"chunks in the current generation"`
	EmbeddedChunks   int    `json:"embedded_chunks" jsonschema:"chunks carrying a semantic vector"`
	EmbeddingModel   string `json:"embedding_model,omitempty"`
	LexicalBackend   string `json:"lexical_backend,omitempty"`
	BuiltAt          string `json:"built_at,omitempty" jsonschema:"RFC3339 time the generation was published"`
	LastError        string `json:"last_error,omitempty"`
}

func toStatusOutput(st corpus.Status) CorpusStatusOutput {
	out := CorpusStatusOutput{
		State:            string(st.State),
		Generation:       st.Generation,
		Documents:        st.Documents,
		SkippedDocuments: st.Skipped,
		Chunks:           st.Chunks,
		EmbeddedChunks:   st.ChunksEmbedded,
		EmbeddingModel:   st.EmbeddingModel,
		LexicalBackend:   st.LexicalBackend,
		LastError:        st.LastError,
	}
	if !st.BuiltAt.IsZero() {
		out.BuiltAt = st.BuiltAt.Format(time.RFC3339)
	}
	return out
}
