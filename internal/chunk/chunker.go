package chunk

import (
	"unicode"

	"github.com/pdfmcp/pdfmcp/internal/pdf"
)

// PageChunkerOptions configures the page chunker behavior
type PageChunkerOptions struct {
	MaxChars     int // Maximum runes per chunk (default: DefaultMaxChars)
	OverlapChars int // Runes carried over from the previous chunk (default: DefaultOverlapChars)
}

// PageChunker splits page text into fixed-size windows with overlap.
// Windows never cross a page boundary, so every chunk carries exactly
// one page attribution.
type PageChunker struct {
	options PageChunkerOptions
}

// NewPageChunker creates a page chunker with default options
func NewPageChunker() *PageChunker {
	return NewPageChunkerWithOptions(PageChunkerOptions{})
}

// NewPageChunkerWithOptions creates a page chunker with custom options
func NewPageChunkerWithOptions(opts PageChunkerOptions) *PageChunker {
	if opts.MaxChars == 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.OverlapChars == 0 {
		opts.OverlapChars = DefaultOverlapChars
	}
	return &PageChunker{options: opts}
}

// Chunk splits every page of a document into overlapping windows.
// Ordinals run 0..n-1 across the whole document in page order.
func (c *PageChunker) Chunk(document string, pages []pdf.Page) []Chunk {
	var chunks []Chunk
	ordinal := 0

	for _, page := range pages {
		for _, content := range c.splitPage(page.Text) {
			chunks = append(chunks, Chunk{
				ID:       generateChunkID(document, page.Number, ordinal, content),
				Document: document,
				Page:     page.Number,
				Ordinal:  ordinal,
				Content:  content,
			})
			ordinal++
		}
	}

	return chunks
}

// splitPage windows one page's text. Each window after the first starts
// OverlapChars runes before the previous window's end, so concatenating
// the windows with the overlap stripped reproduces the page exactly.
func (c *PageChunker) splitPage(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.options.MaxChars {
		return []string{text}
	}

	var windows []string
	start := 0
	for {
		end := start + c.options.MaxChars
		if end >= len(runes) {
			windows = append(windows, string(runes[start:]))
			return windows
		}

		if cut := c.boundaryCut(runes[start:end]); cut > 0 {
			end = start + cut
		}
		windows = append(windows, string(runes[start:end]))
		start = end - c.options.OverlapChars
	}
}

// boundaryCut finds a whitespace position near the end of a full window
// so chunks break between words. Returns 0 when no acceptable position
// exists and the window must be cut mid-word.
func (c *PageChunker) boundaryCut(window []rune) int {
	// Scanning too far back would make the window degenerate; a quarter
	// of the budget covers any realistic word length.
	limit := len(window) - c.options.MaxChars/4
	if floor := c.options.OverlapChars + 1; limit < floor {
		limit = floor
	}

	for i := len(window) - 1; i >= limit; i-- {
		if unicode.IsSpace(window[i]) {
			// Cut after the space so the next window starts inside the
			// overlap, not on the boundary character itself.
			return i + 1
		}
	}
	return 0
}

var _ Chunker = (*PageChunker)(nil)
