// Package extract turns corpus files into records. A record is the unit that
// becomes one indexed document: a line of a text file, a paragraph of a DOCX,
// a page of a PDF, a row of a spreadsheet.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// ErrUnsupported is returned for file extensions with no registered reader.
var ErrUnsupported = errors.New("unsupported file type")

type readerFunc func(content []byte) ([]string, error)

var readers = map[string]readerFunc{
	".txt":  plainRecords,
	".md":   plainRecords,
	".csv":  plainRecords,
	".pdf":  pdfRecords,
	".docx": docxRecords,
	".xlsx": sheetRecords,
}

// Extractor reads records from files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extensions returns the supported extensions, with leading dot, sorted.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(readers))
	for ext := range readers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether path has a supported extension.
func (e *Extractor) Supports(path string) bool {
	_, ok := readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract reads the file at path and returns its non-empty records with
// whitespace collapsed.
func (e *Extractor) Extract(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes reads records from content. ext includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]string, error) {
	read, ok := readers[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	raw, err := read(content)
	if err != nil {
		return nil, err
	}
	records := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = collapse(r); r != "" {
			records = append(records, r)
		}
	}
	return records, nil
}

// collapse trims s and folds every whitespace run into one space.
func collapse(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return b.String()
}
