package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pdfmcp/pdfmcp/internal/search"
)

// systemPrompt pins the generator to the retrieved context.
const systemPrompt = `You are a helpful assistant that answers questions based on the provided document context.

Instructions:
- Answer the question using ONLY the information from the provided context
- If the context doesn't contain enough information, say so clearly
- Be concise and accurate
- Cite specific sources when possible
- Do not make up information not present in the context`

// MaxSourcePreview bounds the chunk text echoed back in source
// citations.
const MaxSourcePreview = 200

// Source is one citation in an answer response.
type Source struct {
	DocumentName string `json:"document_name"`
	PageNumber   int    `json:"page_number"`
	ChunkText    string `json:"chunk_text"`
}

// BuildContext formats retrieved chunks into the numbered context block
// the prompts reference.
func BuildContext(results []search.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source %d: %s (page %d)]\n%s",
			i+1, r.Chunk.Document, r.Chunk.Page, r.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

type sourceKey struct {
	document string
	page     int
}

// ExtractSources builds the citation list for an answer: one entry per
// (document, page) in rank order, previews truncated.
func ExtractSources(results []search.Result) []Source {
	seen := make(map[sourceKey]bool, len(results))
	sources := make([]Source, 0, len(results))

	for _, r := range results {
		key := sourceKey{document: r.Chunk.Document, page: r.Chunk.Page}
		if seen[key] {
			continue
		}
		seen[key] = true

		sources = append(sources, Source{
			DocumentName: r.Chunk.Document,
			PageNumber:   r.Chunk.Page,
			ChunkText:    truncate(r.Chunk.Content, MaxSourcePreview),
		})
	}
	return sources
}

func userPrompt(query, contextBlock string) string {
	return fmt.Sprintf("Context from documents:\n%s\n\nQuestion: %s\n\nAnswer:", contextBlock, query)
}

// truncate cuts text to at most limit bytes without splitting a rune.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + "..."
}
