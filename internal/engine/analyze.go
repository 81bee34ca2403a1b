package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"

	"github.com/hyperjump/kotoba/internal/lexicon"
	"github.com/hyperjump/kotoba/internal/models"
)

// Analyze runs text through the named analyzer of index.
// The synonym and expansion analyzers resolve the whole normalized text against
// the rule store and emit one token per rule member, anchored at position 0 and
// spanning every input word.
func (e *Engine) Analyze(ctx context.Context, index, analyzer, text string) ([]models.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := e.Resolve(index)
	if err != nil {
		return nil, err
	}
	switch analyzer {
	case AnalyzerSynonym, AnalyzerExpansion:
		return e.ruleTokens(ctx, name, analyzer, text)
	}
	if _, ok := analysisChains[analyzer]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrAnalyzerNotFound, analyzer)
	}
	return e.analyzeText(analyzer, text)
}

func (e *Engine) analyzeText(analyzer, text string) ([]models.Token, error) {
	stream, err := e.mapping.AnalyzeText(bleveName(analyzer), []byte(text))
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", analyzer, err)
	}

	// shingles carry the position of their first word; recover it from offsets
	starts := make(map[int]int, len(stream))
	for _, t := range stream {
		if t.Type == analysis.Shingle {
			continue
		}
		if _, ok := starts[t.Start]; !ok {
			starts[t.Start] = t.Position
		}
	}

	out := make([]models.Token, 0, len(stream))
	for _, t := range stream {
		tok := models.Token{
			Text:           string(t.Term),
			StartOffset:    t.Start,
			EndOffset:      t.End,
			Position:       t.Position - 1,
			PositionLength: 1,
		}
		if t.Type == analysis.Shingle {
			if pos, ok := starts[t.Start]; ok {
				tok.Position = pos - 1
			}
			tok.PositionLength = strings.Count(tok.Text, " ") + 1
		}
		if tok.Position < 0 {
			tok.Position = 0
		}
		out = append(out, tok)
	}
	return out, nil
}

func (e *Engine) ruleTokens(ctx context.Context, index, analyzer, text string) ([]models.Token, error) {
	if e.rules == nil {
		return nil, nil
	}
	lookup, err := e.analyzeText(AnalyzerLookup, text)
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(lookup))
	for _, t := range lookup {
		parts = append(parts, t.Text)
	}
	phrase := lexicon.Normalize(strings.Join(parts, " "))
	if phrase == "" {
		return nil, nil
	}

	var members []string
	if analyzer == AnalyzerSynonym {
		members, err = e.rules.SynonymGroup(ctx, index, phrase)
	} else {
		members, err = e.rules.Expansions(ctx, index, phrase)
	}
	if err != nil {
		return nil, fmt.Errorf("%s lookup: %w", analyzer, err)
	}

	span := len(strings.Fields(phrase))
	out := make([]models.Token, 0, len(members))
	for _, m := range members {
		out = append(out, models.Token{
			Text:           m,
			StartOffset:    0,
			EndOffset:      len(text),
			Position:       0,
			PositionLength: span,
		})
	}
	return out, nil
}
