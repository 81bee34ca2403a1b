package engine

import (
	"context"
	"fmt"
	"sort"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/models"
)

// IndexStats sums document counts over the shards of index.
// Shards that fail to report are left out of SuccessfulShards.
func (e *Engine) IndexStats(ctx context.Context, index string) (models.IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return models.IndexStats{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, err := e.lookup(index)
	if err != nil {
		return models.IndexStats{}, err
	}

	var stats models.IndexStats
	var lastErr error
	for i, shard := range idx.shards {
		n, err := shard.DocCount()
		if err != nil {
			e.logger.Warn("shard doc count failed",
				zap.String("index", idx.name), zap.Int("shard", i), zap.Error(err))
			lastErr = err
			continue
		}
		stats.TotalDocs += int64(n)
		stats.SuccessfulShards++
	}
	if stats.SuccessfulShards == 0 && lastErr != nil {
		return models.IndexStats{}, fmt.Errorf("index %s stats: %w", idx.name, lastErr)
	}
	return stats, nil
}

// MultiTermVectors analyzes the artificial document in req with each field's
// search analyzer and reports per-token statistics from the shard that
// req.Routing maps to.
func (e *Engine) MultiTermVectors(ctx context.Context, req models.TermVectorsRequest) (*models.TermVectorsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, err := e.lookup(req.Index)
	if err != nil {
		return nil, err
	}
	shard := idx.shards[shardFor(req.Routing, len(idx.shards))]

	resp := &models.TermVectorsResponse{
		Index:  idx.name,
		Fields: make(map[string][]models.TermStats, len(req.Fields)),
	}
	for _, field := range req.Fields {
		def, ok := fieldDefs[field]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, field)
		}
		text, ok := req.Doc[def.source]
		if !ok {
			text = req.Doc[field]
		}
		tokens, err := e.analyzeText(def.searchAnalyzer, text)
		if err != nil {
			return nil, err
		}
		if !splitsOnWhitespace(def.searchAnalyzer) {
			alignToWords(tokens, text)
		}

		freq := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freq[t.Text]++
		}
		dfs := make(map[string]int64, len(freq))

		stats := make([]models.TermStats, 0, len(tokens))
		for _, t := range tokens {
			ts := models.TermStats{
				Term:          t.Text,
				Position:      t.Position,
				StartOffset:   t.StartOffset,
				EndOffset:     t.EndOffset,
				TermFreq:      freq[t.Text],
				TotalTermFreq: -1,
			}
			if req.TermStatistics {
				df, seen := dfs[t.Text]
				if !seen {
					df, err = docFreq(shard, field, t.Text)
					if err != nil {
						return nil, fmt.Errorf("term %q in %s: %w", t.Text, field, err)
					}
					dfs[t.Text] = df
				}
				ts.DocFreq = df
			}
			stats = append(stats, ts)
		}
		resp.Fields[field] = stats
	}
	return resp, nil
}

// alignToWords rewrites token positions as the index of the whitespace-separated
// word of text each token starts in, so "t-shirt" yields t and shirt at one position.
func alignToWords(tokens []models.Token, text string) {
	var starts []int
	prevSpace := true
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && prevSpace {
			starts = append(starts, i)
		}
		prevSpace = space
	}
	for i := range tokens {
		off := tokens[i].StartOffset
		w := sort.Search(len(starts), func(k int) bool { return starts[k] > off }) - 1
		if w < 0 {
			w = 0
		}
		tokens[i].Position = w
	}
}

// docFreq returns the number of documents in shard whose field holds term.
func docFreq(shard bleve.Index, field, term string) (int64, error) {
	dict, err := shard.FieldDictPrefix(field, []byte(term))
	if err != nil {
		return 0, fmt.Errorf("field dictionary: %w", err)
	}
	defer dict.Close()

	// the exact term sorts first among the terms sharing its prefix
	entry, err := dict.Next()
	if err != nil {
		return 0, err
	}
	if entry == nil || entry.Term != term {
		return 0, nil
	}
	return int64(entry.Count), nil
}
