package thesaurus

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/models"
)

// step is one candidate produced from a base text.
type step struct {
	text  string
	rule  models.RuleType
	group string
}

// span is a run of words looked up as one dictionary unit.
type span struct {
	start, length int
}

// expand produces the one-step rewrites of text and the base they were built
// from, which differs from text when stemming. ok is false when any engine call
// failed; the steps gathered before and after the failure are still returned.
func (r *Rewriter) expand(ctx context.Context, index, text string, cfg models.RewriteConfig) (steps []step, base string, ok bool) {
	ok = true
	words, wordsOK := r.words(ctx, index, text, cfg.Stemming)
	if !wordsOK {
		ok = false
	}
	if len(words) == 0 {
		return nil, "", ok
	}
	base = strings.Join(words, " ")

	units, unitsOK := r.units(ctx, index, words)
	if !unitsOK {
		ok = false
	}

	for _, u := range units {
		phrase := strings.Join(words[u.start:u.start+u.length], " ")
		if cfg.SynonymEnabled {
			tokens, err := r.analyzer.Analyze(ctx, index, r.names.Synonym, phrase)
			if err != nil {
				ok = false
				r.gatewayFailed(r.names.Synonym, phrase, err)
			} else {
				group := groupKey(tokens)
				steps = appendSteps(steps, words, u, base, tokens, models.Synonym, group)
			}
		}
		if cfg.ExpansionEnabled {
			tokens, err := r.analyzer.Analyze(ctx, index, r.names.Expansion, phrase)
			if err != nil {
				ok = false
				r.gatewayFailed(r.names.Expansion, phrase, err)
			} else {
				steps = appendSteps(steps, words, u, base, tokens, models.Expansion, "")
			}
		}
	}
	return steps, base, ok
}

// words splits text into lookup words, through the clean analyzer when stemming.
func (r *Rewriter) words(ctx context.Context, index, text string, stemming bool) ([]string, bool) {
	if !stemming {
		return strings.Fields(text), true
	}
	tokens, err := r.analyzer.Analyze(ctx, index, r.names.Clean, text)
	if err != nil {
		r.gatewayFailed(r.names.Clean, text, err)
		return strings.Fields(text), false
	}
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		words = append(words, t.Text)
	}
	return words, true
}

// units lists the word runs to look up: the whole text, then for multi-word
// text every shingle the engine reports.
func (r *Rewriter) units(ctx context.Context, index string, words []string) ([]span, bool) {
	units := []span{{start: 0, length: len(words)}}
	if len(words) == 1 {
		return units, true
	}

	text := strings.Join(words, " ")
	tokens, err := r.analyzer.Analyze(ctx, index, r.names.Shingles, text)
	if err != nil {
		r.gatewayFailed(r.names.Shingles, text, err)
		return units, false
	}
	seen := map[span]bool{units[0]: true}
	for _, t := range tokens {
		s := span{start: t.Position, length: t.Span()}
		if s.start < 0 || s.start+s.length > len(words) || seen[s] {
			continue
		}
		seen[s] = true
		units = append(units, s)
	}
	return units, true
}

// appendSteps turns analyzer tokens into candidate texts by replacing the
// words they cover.
func appendSteps(steps []step, words []string, u span, base string, tokens []models.Token, rule models.RuleType, group string) []step {
	for _, t := range tokens {
		start := u.start + t.Position
		end := start + t.Span()
		if limit := u.start + u.length; end > limit {
			end = limit
		}
		if start < u.start || start >= end {
			continue
		}
		replacement := strings.Fields(t.Text)
		if len(replacement) == 0 {
			continue
		}
		out := make([]string, 0, len(words)-(end-start)+len(replacement))
		out = append(out, words[:start]...)
		out = append(out, replacement...)
		out = append(out, words[end:]...)
		candidate := strings.Join(out, " ")
		if candidate == base {
			continue
		}
		steps = append(steps, step{text: candidate, rule: rule, group: group})
	}
	return steps
}

// groupKey identifies a synonym group by its sorted members.
func groupKey(tokens []models.Token) string {
	if len(tokens) == 0 {
		return ""
	}
	members := make([]string, 0, len(tokens))
	for _, t := range tokens {
		members = append(members, t.Text)
	}
	sort.Strings(members)
	return strings.Join(members, "|")
}

func (r *Rewriter) gatewayFailed(analyzer, text string, err error) {
	r.metrics.GatewayError("analyze")
	r.logger.Warn("analyzer call failed",
		zap.String("analyzer", analyzer),
		zap.String("text", text),
		zap.Error(err))
}
