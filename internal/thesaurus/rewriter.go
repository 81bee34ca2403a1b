// Package thesaurus expands a query into weighted alternate phrasings using the
// synonym and expansion dictionaries behind the engine's analyzers.
package thesaurus

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/cache"
	"github.com/hyperjump/kotoba/internal/metrics"
	"github.com/hyperjump/kotoba/internal/models"
)

// Analyzer runs text through a named analyzer of an index.
type Analyzer interface {
	Analyze(ctx context.Context, index, analyzer, text string) ([]models.Token, error)
}

// AnalyzerNames names the analyzers the rewriter asks for.
type AnalyzerNames struct {
	Clean     string
	Shingles  string
	Synonym   string
	Expansion string
}

// DefaultAnalyzerNames returns the analyzer names registered by the engine.
func DefaultAnalyzerNames() AnalyzerNames {
	return AnalyzerNames{
		Clean:     "clean",
		Shingles:  "shingles",
		Synonym:   "synonym",
		Expansion: "expansion",
	}
}

// Rewriter produces weighted alternate texts for a query and caches them.
type Rewriter struct {
	analyzer Analyzer
	cache    cache.Cache
	names    AnalyzerNames
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Rewriter) {
		r.metrics = m
	}
}

// WithAnalyzerNames overrides the analyzer names.
func WithAnalyzerNames(n AnalyzerNames) Option {
	return func(r *Rewriter) {
		r.names = n
	}
}

// New returns a Rewriter. A nil cache disables caching.
func New(analyzer Analyzer, c cache.Cache, opts ...Option) *Rewriter {
	r := &Rewriter{
		analyzer: analyzer,
		cache:    c,
		names:    DefaultAnalyzerNames(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite returns the alternate texts of req.Query mapped to weights in (0, 1].
// The original query is never part of the result. Engine and cache failures
// are logged and never returned; the only error is ErrEmptyQuery.
func (r *Rewriter) Rewrite(ctx context.Context, req models.RewriteRequest) (map[string]float64, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.Config.Active() {
		return map[string]float64{}, nil
	}

	key := cache.Key(req.IndexAlias, req.Container, req.Query)
	if r.cache != nil && req.CachePolicy.CanRead() {
		value, ok, err := r.cache.Load(ctx, key)
		switch {
		case err != nil:
			r.metrics.CacheError("load")
			r.logger.Warn("rewrite cache load failed", zap.String("key", key), zap.Error(err))
		case ok:
			r.metrics.CacheHit()
			return value, nil
		}
		r.metrics.CacheMiss()
	}

	result, degraded := r.compute(ctx, req.IndexAlias, req.Query, req.Config)
	r.metrics.ObserveRewrites(len(result))

	if r.cache != nil && req.CachePolicy.CanStore() {
		if degraded {
			r.logger.Debug("not caching partial rewrite", zap.String("key", key))
		} else {
			tags := []string{cache.IndexTag(req.IndexAlias), cache.ContainerTag(req.Container)}
			if err := r.cache.Save(ctx, key, result, tags); err != nil {
				r.metrics.CacheError("save")
				r.logger.Warn("rewrite cache save failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return result, nil
}

type node struct {
	text   string
	weight float64
	level  int
	groups []string
}

// compute walks the rewrite graph breadth first. The first path to reach a
// text fixes its weight and only that path expands it further. degraded
// reports whether any engine call failed along the way.
func (r *Rewriter) compute(ctx context.Context, index, query string, cfg models.RewriteConfig) (map[string]float64, bool) {
	result := make(map[string]float64)
	seen := map[string]bool{query: true, normalize(query): true}
	degraded := false

	queue := []node{{text: query, weight: 1}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.level >= cfg.MaxRewriteLevels {
			continue
		}

		steps, base, ok := r.expand(ctx, index, n.text, cfg)
		if !ok {
			degraded = true
		}
		if n.level == 0 && base != "" {
			// the stemmed query is still the query
			seen[base] = true
			seen[normalize(base)] = true
		}
		childLevel := n.level + 1
		for _, s := range steps {
			if seen[s.text] || seen[normalize(s.text)] {
				continue
			}
			weight := n.weight / cfg.Divider(s.rule)
			groups := n.groups
			if s.rule == models.Synonym && s.group != "" {
				if cfg.SynonymCycleDecay == models.DecayLinear && containsGroup(n.groups, s.group) {
					weight = n.weight / float64(childLevel)
				}
				groups = appendGroup(n.groups, s.group)
			}
			seen[s.text] = true
			seen[normalize(s.text)] = true
			result[s.text] = weight
			queue = append(queue, node{text: s.text, weight: weight, level: childLevel, groups: groups})
		}
	}
	return result, degraded
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func containsGroup(groups []string, g string) bool {
	for _, x := range groups {
		if x == g {
			return true
		}
	}
	return false
}

func appendGroup(groups []string, g string) []string {
	if containsGroup(groups, g) {
		return groups
	}
	out := make([]string, len(groups), len(groups)+1)
	copy(out, groups)
	return append(out, g)
}
