package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Candidate is a discovered source document, not yet ingested.
type Candidate struct {
	Name       string // base name, e.g. "guide.pdf"
	Path       string // full path under the documents directory
	SizeBytes  int64
	ModifiedAt time.Time
}

// Discover lists the PDF documents directly under dir, sorted by name.
// Subdirectories are not descended into; hidden files are skipped.
func Discover(dir string) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents directory: %w", err)
	}

	var candidates []Candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Vanished between ReadDir and Stat.
			continue
		}

		candidates = append(candidates, Candidate{
			Name:       name,
			Path:       filepath.Join(dir, name),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	return candidates, nil
}
