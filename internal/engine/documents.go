package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotoba/internal/models"
)

// ErrEmptyID is returned when a document has no id.
var ErrEmptyID = errors.New("document id is empty")

// IndexDocument adds or replaces doc in index. The document lands on the shard
// its id hashes to.
func (e *Engine) IndexDocument(ctx context.Context, index string, doc models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.ID == "" {
		return ErrEmptyID
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, err := e.lookup(index)
	if err != nil {
		return err
	}

	text := doc.SearchText()
	body := map[string]interface{}{
		"spelling":   text,
		"search":     text,
		"edge_ngram": text,
	}
	if doc.Reference != "" {
		body["reference"] = doc.Reference
	}
	shard := idx.shards[shardFor(doc.ID, len(idx.shards))]
	if err := shard.Index(doc.ID, body); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument removes the document with id from index.
func (e *Engine) DeleteDocument(ctx context.Context, index, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return ErrEmptyID
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, err := e.lookup(index)
	if err != nil {
		return err
	}
	shard := idx.shards[shardFor(id, len(idx.shards))]
	if err := shard.Delete(id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}
