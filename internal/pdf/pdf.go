// Package pdf extracts page-tagged text from PDF documents.
//
// The extraction library is treated as a black box: it either yields text
// for a page or it doesn't. Malformed files surface as errors the caller
// can treat as a skipped document, never as a crash.
package pdf

import (
	"context"
	"fmt"
	"os"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
)

// DefaultMaxFileSize caps how large a document may be before it is
// refused. Pathological PDFs can balloon memory during extraction.
const DefaultMaxFileSize = 100 * 1024 * 1024

// Page is one page of extracted, whitespace-normalized text.
// Pages with no extractable text are omitted, so Number is not
// necessarily contiguous.
type Page struct {
	Number int
	Text   string
}

// Parser turns a document on disk into page-tagged text.
type Parser interface {
	Parse(ctx context.Context, path string) ([]Page, error)
}

// FileParser reads PDFs from the filesystem.
type FileParser struct {
	maxFileSize int64
}

// FileParserOption configures a FileParser.
type FileParserOption func(*FileParser)

// WithMaxFileSize overrides the document size cap in bytes.
func WithMaxFileSize(n int64) FileParserOption {
	return func(p *FileParser) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// NewFileParser creates a parser with default limits.
func NewFileParser(opts ...FileParserOption) *FileParser {
	p := &FileParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the text of every page carrying any.
// Returns an empty slice (not an error) for a well-formed document with
// no extractable text; the caller decides whether that is a skip.
func (p *FileParser) Parse(ctx context.Context, path string) (pages []Page, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("%s is %d bytes, over the %d byte limit", path, info.Size(), p.maxFileSize)
	}

	// The extraction library panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse %s: %v", path, r)
		}
	}()

	f, reader, err := ledongthuc.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages = make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// One unreadable page does not fail the document.
			continue
		}

		text = NormalizeText(text)
		if text == "" {
			continue
		}

		pages = append(pages, Page{Number: i, Text: text})
	}

	return pages, nil
}

// NormalizeText collapses runs of whitespace and drops blank lines,
// so chunk sizes reflect content rather than layout artifacts.
func NormalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

var _ Parser = (*FileParser)(nil)
