// Package indexer feeds corpus documents into the engine so the spelling
// classifier has term statistics to read.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotoba/internal/extract"
	"github.com/hyperjump/kotoba/internal/fileid"
	"github.com/hyperjump/kotoba/internal/metrics"
	"github.com/hyperjump/kotoba/internal/models"
	"go.uber.org/zap"
)

// ErrEmptyDocument is returned for a document with no title or content.
var ErrEmptyDocument = errors.New("document has no text")

// Sink stores documents. *engine.Engine implements it.
type Sink interface {
	IndexDocument(ctx context.Context, index string, doc models.Document) error
	DeleteDocument(ctx context.Context, index, id string) error
}

// fileState remembers what was indexed for a file so unchanged files are
// skipped and stale records are removed when a file shrinks.
type fileState struct {
	modTime time.Time
	size    int64
	records int
}

// Indexer writes documents and file records into one index.
type Indexer struct {
	sink       Sink
	index      string
	extractor  *extract.Extractor
	extensions []string
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	files map[string]fileState
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithMetrics counts indexed documents.
func WithMetrics(m *metrics.Metrics) Option {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithExtensions limits IndexFile and IndexDirectory to the given extensions.
// An empty list accepts everything the extractor supports.
func WithExtensions(extensions []string) Option {
	return func(idx *Indexer) { idx.extensions = extensions }
}

// New creates an indexer writing into index. A nil extractor gets the default one.
func New(sink Sink, index string, extractor *extract.Extractor, opts ...Option) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		sink:      sink,
		index:     index,
		extractor: extractor,
		logger:    zap.NewNop(),
		files:     make(map[string]fileState),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Index returns the index this indexer writes into.
func (idx *Indexer) Index() string {
	return idx.index
}

// IndexDocument stores input and returns its id, generating one when empty.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (string, error) {
	doc := models.Document{
		ID:        input.ID,
		Title:     Preprocess(input.Title),
		Content:   Preprocess(input.Content),
		Reference: strings.TrimSpace(input.Reference),
	}
	if doc.SearchText() == "" {
		return "", ErrEmptyDocument
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if err := idx.sink.IndexDocument(ctx, idx.index, doc); err != nil {
		return "", fmt.Errorf("failed to index document: %w", err)
	}
	idx.metrics.DocIndexed()
	return doc.ID, nil
}

// DeleteDocument removes the document with id.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	idx.logger.Debug("indexer deleting document", zap.String("index", idx.index), zap.String("id", id))
	if err := idx.sink.DeleteDocument(ctx, idx.index, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// IndexFile extracts the records of the file at path and indexes each one as
// a document with id fileid.RecordID(path, n). A file whose size and mtime are
// unchanged since the last call is skipped. Returns the number of records
// indexed.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	if !idx.allowed(absPath) {
		return 0, fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	prev, seen := idx.files[absPath]
	if seen && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return 0, nil
	}

	records, err := idx.extractor.Extract(absPath)
	if err != nil {
		return 0, fmt.Errorf("extract content: %w", err)
	}
	for i, text := range records {
		doc := models.Document{ID: fileid.RecordID(absPath, i), Content: text}
		if err := idx.sink.IndexDocument(ctx, idx.index, doc); err != nil {
			return i, fmt.Errorf("failed to index record %d of %s: %w", i, absPath, err)
		}
		idx.metrics.DocIndexed()
	}
	for i := len(records); i < prev.records; i++ {
		if err := idx.sink.DeleteDocument(ctx, idx.index, fileid.RecordID(absPath, i)); err != nil {
			return len(records), fmt.Errorf("failed to delete stale record %d of %s: %w", i, absPath, err)
		}
	}
	idx.files[absPath] = fileState{modTime: info.ModTime(), size: info.Size(), records: len(records)}
	idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.Int("records", len(records)))
	return len(records), nil
}

// RemoveFile deletes every record indexed for the file at path.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	state, ok := idx.files[absPath]
	if !ok {
		return nil
	}
	for i := 0; i < state.records; i++ {
		if err := idx.sink.DeleteDocument(ctx, idx.index, fileid.RecordID(absPath, i)); err != nil {
			return fmt.Errorf("failed to delete record %d of %s: %w", i, absPath, err)
		}
	}
	delete(idx.files, absPath)
	idx.logger.Debug("indexer file removed", zap.String("path", absPath), zap.Int("records", state.records))
	return nil
}

// IndexDirectory walks dir recursively and indexes each allowed regular file.
// Returns the number of files indexed and the first error encountered.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !idx.allowed(path) {
			return nil
		}
		// Resolve symlinks so only regular files are indexed
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, indexErr := idx.IndexFile(ctx, path); indexErr != nil {
			return indexErr
		}
		n++
		return nil
	})
	return n, err
}

func (idx *Indexer) allowed(path string) bool {
	if !idx.extractor.Supports(path) {
		return false
	}
	if len(idx.extensions) == 0 {
		return true
	}
	return extensionAllowed(filepath.Ext(path), idx.extensions)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
