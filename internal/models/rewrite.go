package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a request carries no query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// RuleType tells which dictionary produced a rewrite step.
type RuleType int

const (
	// Synonym rules are symmetric: every member of a group replaces every other.
	Synonym RuleType = iota
	// Expansion rules are directed: a source phrase gains extra alternatives.
	Expansion
)

func (r RuleType) String() string {
	switch r {
	case Synonym:
		return "synonym"
	case Expansion:
		return "expansion"
	default:
		return "unknown"
	}
}

// CycleDecay selects how a synonym step is weighted when it re-enters a group
// already used on the same rewrite path.
type CycleDecay string

const (
	// DecayMultiplicative divides by the synonym divider like any other step.
	DecayMultiplicative CycleDecay = "multiplicative"
	// DecayLinear divides the parent weight by the rewrite level instead.
	DecayLinear CycleDecay = "linear"
)

// RewriteConfig controls which dictionaries are used and how weights decay.
type RewriteConfig struct {
	SynonymEnabled         bool       `yaml:"synonym_enabled" json:"synonym_enabled"`
	SynonymWeightDivider   float64    `yaml:"synonym_weight_divider" json:"synonym_weight_divider"`
	ExpansionEnabled       bool       `yaml:"expansion_enabled" json:"expansion_enabled"`
	ExpansionWeightDivider float64    `yaml:"expansion_weight_divider" json:"expansion_weight_divider"`
	MaxRewriteLevels       int        `yaml:"max_rewrite_levels" json:"max_rewrite_levels"`
	Stemming               bool       `yaml:"stemming" json:"stemming"`
	SynonymCycleDecay      CycleDecay `yaml:"synonym_cycle_decay,omitempty" json:"synonym_cycle_decay,omitempty"`
}

// Active reports whether the config can produce any rewrite at all.
func (c RewriteConfig) Active() bool {
	return (c.SynonymEnabled || c.ExpansionEnabled) && c.MaxRewriteLevels > 0
}

// Divider returns the weight divider for the given rule type.
func (c RewriteConfig) Divider(t RuleType) float64 {
	if t == Expansion {
		return c.ExpansionWeightDivider
	}
	return c.SynonymWeightDivider
}

// CachePolicy tells the rewriter whether it may read and store cache entries.
type CachePolicy string

const (
	CacheReadWrite CachePolicy = "read_write"
	CacheReadOnly  CachePolicy = "read_only"
	CacheBypass    CachePolicy = "bypass"
)

// CanRead reports whether cached entries may be served.
func (p CachePolicy) CanRead() bool {
	return p != CacheBypass
}

// CanStore reports whether a computed result may be written back.
func (p CachePolicy) CanStore() bool {
	return p == "" || p == CacheReadWrite
}

// RewriteRequest asks for alternate phrasings of Query.
type RewriteRequest struct {
	IndexAlias  string        `json:"index"`
	Container   string        `json:"container"`
	Query       string        `json:"query"`
	Config      RewriteConfig `json:"config"`
	CachePolicy CachePolicy   `json:"cache_policy,omitempty"`
}

// Validate trims the query and rejects empty ones.
func (r *RewriteRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return ErrEmptyQuery
	}
	if r.CachePolicy == "" {
		r.CachePolicy = CacheReadWrite
	}
	return nil
}

// RewriteResponse maps each alternate text to its weight in (0, 1].
type RewriteResponse struct {
	Query    string             `json:"query"`
	Rewrites map[string]float64 `json:"rewrites"`
}
