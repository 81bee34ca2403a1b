// Package lexicon holds the synonym groups and expansion rules that the
// engine's synonym and expansion analyzers resolve against.
package lexicon

import (
	"context"
	"strings"
)

// Store resolves a normalized phrase to its rules for one index.
type Store interface {
	// SynonymGroup returns every member of the group holding phrase, phrase included.
	// It returns nil when phrase belongs to no group.
	SynonymGroup(ctx context.Context, index, phrase string) ([]string, error)
	// Expansions returns the extra alternatives phrase maps to.
	Expansions(ctx context.Context, index, phrase string) ([]string, error)
	// ReplaceIndex swaps all rules of index for rules.
	ReplaceIndex(ctx context.Context, index string, rules *Rules) error
	Close() error
}

// Rules is the rule table of one index.
type Rules struct {
	Synonyms   [][]string
	Expansions map[string][]string
}

// NewRules returns an empty rule table.
func NewRules() *Rules {
	return &Rules{Expansions: make(map[string][]string)}
}

// Normalize lowercases phrase and collapses runs of whitespace.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// AddSynonymGroup adds a group of interchangeable phrases. Groups sharing a
// member are merged, so membership stays transitive.
func (r *Rules) AddSynonymGroup(phrases ...string) {
	merged := make([]string, 0, len(phrases))
	seen := make(map[string]bool)
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			merged = append(merged, p)
		}
	}

	incoming := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := Normalize(p); n != "" {
			incoming = append(incoming, n)
		}
	}
	if len(incoming) < 2 {
		return
	}
	wanted := make(map[string]bool, len(incoming))
	for _, p := range incoming {
		wanted[p] = true
	}

	kept := r.Synonyms[:0]
	for _, group := range r.Synonyms {
		overlaps := false
		for _, member := range group {
			if wanted[member] {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, group)
			continue
		}
		for _, member := range group {
			add(member)
		}
	}
	for _, p := range incoming {
		add(p)
	}
	r.Synonyms = append(kept, merged)
}

// AddExpansion maps source to extra targets. Targets equal to source are dropped.
func (r *Rules) AddExpansion(source string, targets ...string) {
	src := Normalize(source)
	if src == "" {
		return
	}
	if r.Expansions == nil {
		r.Expansions = make(map[string][]string)
	}
	existing := r.Expansions[src]
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range targets {
		n := Normalize(t)
		if n == "" || n == src || seen[n] {
			continue
		}
		seen[n] = true
		existing = append(existing, n)
	}
	if len(existing) > 0 {
		r.Expansions[src] = existing
	}
}

// Group returns the synonym group holding phrase, or nil.
func (r *Rules) Group(phrase string) []string {
	p := Normalize(phrase)
	for _, group := range r.Synonyms {
		for _, member := range group {
			if member == p {
				return group
			}
		}
	}
	return nil
}

// Targets returns the expansion targets of phrase.
func (r *Rules) Targets(phrase string) []string {
	return r.Expansions[Normalize(phrase)]
}
