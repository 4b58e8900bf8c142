package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfmcp/pdfmcp/internal/chunk"
	"github.com/pdfmcp/pdfmcp/internal/config"
	"github.com/pdfmcp/pdfmcp/internal/search"
)

func result(doc string, page int, content string) search.Result {
	return search.Result{
		Chunk: chunk.Chunk{Document: doc, Page: page, Content: content},
		Score: 0.5,
	}
}

func TestBuildContext(t *testing.T) {
	results := []search.Result{
		result("guide.pdf", 3, "alpha text"),
		result("notes.pdf", 1, "beta text"),
	}

	want := "[Source 1: guide.pdf (page 3)]\nalpha text\n\n" +
		"[Source 2: notes.pdf (page 1)]\nbeta text"
	assert.Equal(t, want, BuildContext(results))
}

func TestBuildContext_Empty(t *testing.T) {
	assert.Empty(t, BuildContext(nil))
}

func TestExtractSources_DedupesByDocumentAndPage(t *testing.T) {
	// Given: two chunks from the same page and one from another
	results := []search.Result{
		result("guide.pdf", 3, "first chunk on page three"),
		result("guide.pdf", 3, "second chunk on page three"),
		result("guide.pdf", 4, "page four"),
	}

	// When: extracting citations
	sources := ExtractSources(results)

	// Then: one citation per page, best-ranked chunk's text kept
	require.Len(t, sources, 2)
	assert.Equal(t, "guide.pdf", sources[0].DocumentName)
	assert.Equal(t, 3, sources[0].PageNumber)
	assert.Equal(t, "first chunk on page three", sources[0].ChunkText)
	assert.Equal(t, 4, sources[1].PageNumber)
}

func TestExtractSources_TruncatesPreview(t *testing.T) {
	long := strings.Repeat("a", MaxSourcePreview+50)
	sources := ExtractSources([]search.Result{result("a.pdf", 1, long)})

	require.Len(t, sources, 1)
	assert.Len(t, sources[0].ChunkText, MaxSourcePreview+3)
	assert.True(t, strings.HasSuffix(sources[0].ChunkText, "..."))

	exact := strings.Repeat("b", MaxSourcePreview)
	sources = ExtractSources([]search.Result{result("a.pdf", 1, exact)})
	assert.Equal(t, exact, sources[0].ChunkText)
}

func TestTruncate_NeverSplitsRune(t *testing.T) {
	// Cut position lands on a rune boundary: the rune before it stays
	text := strings.Repeat("a", MaxSourcePreview-2) + "éé"
	got := truncate(text, MaxSourcePreview)
	assert.True(t, strings.HasSuffix(got, "é..."))
	assert.Len(t, got, MaxSourcePreview+3)

	// Cut position lands inside a rune: the partial rune is dropped
	text = strings.Repeat("a", MaxSourcePreview-1) + "éé"
	got = truncate(text, MaxSourcePreview)
	assert.True(t, strings.HasSuffix(got, "a..."))
	assert.Len(t, got, MaxSourcePreview+2)
}

func TestUserPrompt(t *testing.T) {
	got := userPrompt("where is the cat", "[Source 1: a.pdf (page 1)]\nthe cat sat")

	assert.True(t, strings.HasPrefix(got, "Context from documents:\n"))
	assert.Contains(t, got, "Question: where is the cat")
	assert.True(t, strings.HasSuffix(got, "Answer:"))
}

func TestNew_Providers(t *testing.T) {
	gen, err := New(config.AnswerConfig{Provider: "openai"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, gen)

	gen, err = New(config.AnswerConfig{Provider: "local", BaseURL: "http://localhost:9999/v1"})
	require.NoError(t, err)
	assert.IsType(t, &LocalGenerator{}, gen)

	_, err = New(config.AnswerConfig{Provider: "anthropic"})
	assert.ErrorContains(t, err, "unknown answer provider")
}

func TestLocalGenerator_Generate(t *testing.T) {
	// Given: a fake OpenAI-compatible chat endpoint
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Temperature float64 `json:"temperature"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "chat.completion",
			"choices": [
				{"index": 0, "message": {"role": "assistant", "content": "  On the mat. "}, "finish_reason": "stop"}
			]
		}`))
	}))
	defer srv.Close()

	gen, err := NewLocalGenerator(LocalConfig{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	// When: generating
	answer, err := gen.Generate(context.Background(),
		"where is the cat", "[Source 1: a.pdf (page 1)]\nthe cat sat on the mat")

	// Then: the trimmed completion comes back and the request carried
	// both prompts
	require.NoError(t, err)
	assert.Equal(t, "On the mat.", answer)

	assert.Equal(t, "test-model", gotBody.Model)
	assert.InDelta(t, DefaultTemperature, gotBody.Temperature, 1e-9)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Contains(t, gotBody.Messages[0].Content, "ONLY the information")
	assert.Equal(t, "user", gotBody.Messages[1].Role)
	assert.Contains(t, gotBody.Messages[1].Content, "where is the cat")
}

func TestLocalGenerator_EndpointDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no model loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen, err := NewLocalGenerator(LocalConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "q", "c")
	assert.ErrorContains(t, err, "local chat completion")
}
