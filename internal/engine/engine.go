// Package engine is the bleve-backed search engine behind the rewriter and the
// spelling classifier. It serves text analysis, index statistics and term
// vectors over sharded indices.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/lexicon"
)

var (
	// ErrIndexNotFound is returned for an unknown index or alias.
	ErrIndexNotFound = errors.New("index not found")
	// ErrAnalyzerNotFound is returned for an unknown analyzer name.
	ErrAnalyzerNotFound = errors.New("analyzer not found")
	// ErrFieldNotFound is returned when a term vector request names an unknown field.
	ErrFieldNotFound = errors.New("field not found")
)

// Options configures an Engine.
type Options struct {
	// Path is the directory holding index data. Empty keeps every shard in memory.
	Path string
	// Indices maps index names to their shard count.
	Indices map[string]int
	// Aliases maps alias names to index names.
	Aliases map[string]string
}

// Engine owns the shards of every configured index.
type Engine struct {
	mu      sync.RWMutex
	mapping *mapping.IndexMappingImpl
	indices map[string]*shardedIndex
	aliases map[string]string
	rules   lexicon.Store
	logger  *zap.Logger
}

type shardedIndex struct {
	name   string
	shards []bleve.Index
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New opens or creates every index in opts. rules backs the synonym and
// expansion analyzers.
func New(opts Options, rules lexicon.Store, options ...Option) (*Engine, error) {
	im, err := newIndexMapping()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		mapping: im,
		indices: make(map[string]*shardedIndex),
		aliases: make(map[string]string),
		rules:   rules,
		logger:  zap.NewNop(),
	}
	for _, o := range options {
		o(e)
	}

	names := make([]string, 0, len(opts.Indices))
	for name := range opts.Indices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		idx, err := e.openIndex(opts.Path, name, opts.Indices[name])
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.indices[name] = idx
	}
	for alias, target := range opts.Aliases {
		if _, ok := e.indices[target]; !ok {
			_ = e.Close()
			return nil, fmt.Errorf("alias %s: %w: %s", alias, ErrIndexNotFound, target)
		}
		e.aliases[alias] = target
	}
	return e, nil
}

func (e *Engine) openIndex(root, name string, shards int) (*shardedIndex, error) {
	if shards < 1 {
		shards = 1
	}
	idx := &shardedIndex{name: name, shards: make([]bleve.Index, 0, shards)}
	for i := 0; i < shards; i++ {
		shard, err := e.openShard(root, name, i)
		if err != nil {
			idx.close()
			return nil, fmt.Errorf("index %s shard %d: %w", name, i, err)
		}
		idx.shards = append(idx.shards, shard)
	}
	e.logger.Debug("opened index", zap.String("index", name), zap.Int("shards", shards))
	return idx, nil
}

// openShard opens an existing shard directory or creates a new one.
// Changing the mapping requires removing the index directory.
func (e *Engine) openShard(root, name string, i int) (bleve.Index, error) {
	if root == "" {
		return bleve.NewMemOnly(e.mapping)
	}
	path := filepath.Join(root, name, fmt.Sprintf("shard-%d", i))
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return index, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, e.mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, nil
}

func (s *shardedIndex) close() error {
	var first error
	for _, shard := range s.shards {
		if err := shard.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Resolve returns the index name behind name, which may be an alias.
func (e *Engine) Resolve(name string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, err := e.lookup(name)
	if err != nil {
		return "", err
	}
	return idx.name, nil
}

func (e *Engine) lookup(name string) (*shardedIndex, error) {
	if target, ok := e.aliases[name]; ok {
		name = target
	}
	idx, ok := e.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	return idx, nil
}

// Indices returns the configured index names, sorted.
func (e *Engine) Indices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indices))
	for name := range e.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every shard.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for name, idx := range e.indices {
		if err := idx.close(); err != nil && first == nil {
			first = err
		}
		delete(e.indices, name)
	}
	return first
}
