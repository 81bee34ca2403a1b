// Package spelling classifies how aggressively a query should be fuzzed, from
// the document frequencies of its words across several analyzed fields.
package spelling

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/metrics"
	"github.com/hyperjump/kotoba/internal/models"
)

// TermStatistics is the engine surface the classifier reads.
type TermStatistics interface {
	IndexStats(ctx context.Context, index string) (models.IndexStats, error)
	MultiTermVectors(ctx context.Context, req models.TermVectorsRequest) (*models.TermVectorsResponse, error)
}

// FieldAnalyzers names the analyzer suffixes of the field variants.
type FieldAnalyzers struct {
	Whitespace string
	Reference  string
	EdgeNgram  string
}

// DefaultFieldAnalyzers returns the suffixes used by the engine's mapping.
func DefaultFieldAnalyzers() FieldAnalyzers {
	return FieldAnalyzers{
		Whitespace: "whitespace",
		Reference:  "reference",
		EdgeNgram:  "edge_ngram",
	}
}

// Classifier turns term statistics into a SpellingVerdict.
type Classifier struct {
	stats     TermStatistics
	analyzers FieldAnalyzers
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Classifier) {
		c.metrics = m
	}
}

// WithFieldAnalyzers overrides the field suffixes. Empty names keep the default.
func WithFieldAnalyzers(a FieldAnalyzers) Option {
	return func(c *Classifier) {
		if a.Whitespace != "" {
			c.analyzers.Whitespace = a.Whitespace
		}
		if a.Reference != "" {
			c.analyzers.Reference = a.Reference
		}
		if a.EdgeNgram != "" {
			c.analyzers.EdgeNgram = a.EdgeNgram
		}
	}
}

// NewClassifier returns a Classifier reading from stats.
func NewClassifier(stats TermStatistics, opts ...Option) *Classifier {
	c := &Classifier{
		stats:     stats,
		analyzers: DefaultFieldAnalyzers(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the verdict for req. Any engine failure yields Exact, the
// option that alters the query least.
func (c *Classifier) Classify(ctx context.Context, req models.SpellingRequest) models.SpellingVerdict {
	if err := req.Validate(); err != nil {
		return c.record(models.Exact)
	}

	stats, err := c.stats.IndexStats(ctx, req.Index)
	if err != nil {
		c.metrics.GatewayError("index_stats")
		c.logger.Warn("index stats failed", zap.String("index", req.Index), zap.Error(err))
		return c.record(models.Exact)
	}

	core, extra := c.fields(req)
	all := append(append([]string(nil), core...), extra...)
	routing := req.Routing
	if routing == "" {
		routing = req.Query
	}
	doc := make(map[string]string, len(all))
	for _, f := range all {
		doc[sourceOf(f)] = req.Query
	}

	resp, err := c.stats.MultiTermVectors(ctx, models.TermVectorsRequest{
		Index:          req.Index,
		Routing:        routing,
		Fields:         all,
		TermStatistics: true,
		Doc:            doc,
	})
	if err != nil {
		c.metrics.GatewayError("term_vectors")
		c.logger.Warn("term vectors failed", zap.String("index", req.Index), zap.Error(err))
		return c.record(models.Exact)
	}

	j := judge{
		resp:      resp,
		divider:   stats.DocsPerShard(),
		cutoff:    req.CutoffFrequency,
		allTokens: req.UsingAllTokens,
	}
	positions := len(strings.Fields(req.Query))
	states := make([]positionState, positions)
	for pos := 0; pos < positions; pos++ {
		states[pos] = j.position(pos, core, extra)
	}
	verdict := verdictFor(states)
	c.logger.Debug("spelling verdict",
		zap.String("index", req.Index),
		zap.String("query", req.Query),
		zap.String("verdict", string(verdict)))
	return c.record(verdict)
}

func (c *Classifier) record(v models.SpellingVerdict) models.SpellingVerdict {
	c.metrics.Verdict(string(v))
	return v
}

// fields returns the core field variants and the optional extra ones.
func (c *Classifier) fields(req models.SpellingRequest) (core, extra []string) {
	core = []string{
		"spelling",
		"spelling." + c.analyzers.Whitespace,
		"search." + c.analyzers.Whitespace,
	}
	if req.UsingReference {
		extra = append(extra, "reference."+c.analyzers.Reference)
	}
	if req.UsingEdgeNgram {
		extra = append(extra, "edge_ngram."+c.analyzers.EdgeNgram)
	}
	return core, extra
}

// sourceOf returns the document path a field variant is analyzed from.
func sourceOf(field string) string {
	if i := strings.IndexByte(field, '.'); i >= 0 {
		return field[:i]
	}
	return field
}
