package models

import "strings"

// DefaultCutoffFrequency is the document-frequency ratio above which a term is
// treated as too common to signal an exact match.
const DefaultCutoffFrequency = 0.15

// SpellingVerdict says how aggressively a query should be fuzzed.
type SpellingVerdict string

const (
	Exact         SpellingVerdict = "exact"
	MostExact     SpellingVerdict = "most_exact"
	MostFuzzy     SpellingVerdict = "most_fuzzy"
	Fuzzy         SpellingVerdict = "fuzzy"
	PureStopwords SpellingVerdict = "pure_stopwords"
)

// SpellingRequest is the input of the spelling classifier.
type SpellingRequest struct {
	Index           string  `json:"index"`
	Query           string  `json:"query"`
	CutoffFrequency float64 `json:"cutoff_frequency,omitempty"`
	UsingReference  bool    `json:"using_reference,omitempty"`
	UsingEdgeNgram  bool    `json:"using_edge_ngram,omitempty"`
	UsingAllTokens  bool    `json:"using_all_tokens,omitempty"`
	Routing         string  `json:"routing,omitempty"`
}

// Validate trims the query, rejects empty ones, and applies the default cutoff.
func (r *SpellingRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return ErrEmptyQuery
	}
	if r.CutoffFrequency <= 0 {
		r.CutoffFrequency = DefaultCutoffFrequency
	}
	return nil
}

// SpellingResponse carries the verdict for one query.
type SpellingResponse struct {
	Query   string          `json:"query"`
	Verdict SpellingVerdict `json:"verdict"`
}

// IndexStats holds the counters needed to turn document frequencies into ratios.
type IndexStats struct {
	TotalDocs        int64 `json:"total_docs"`
	SuccessfulShards int   `json:"successful_shards"`
}

// DocsPerShard is the divider for shard-local document frequencies.
// It never returns less than 1.
func (s IndexStats) DocsPerShard() float64 {
	shards := s.SuccessfulShards
	if shards < 1 {
		shards = 1
	}
	d := float64(s.TotalDocs) / float64(shards)
	if d < 1 {
		return 1
	}
	return d
}

// TermVectorsRequest asks for per-field statistics of an artificial document.
type TermVectorsRequest struct {
	Index          string            `json:"index"`
	Routing        string            `json:"routing,omitempty"`
	Fields         []string          `json:"fields"`
	TermStatistics bool              `json:"term_statistics"`
	Doc            map[string]string `json:"doc"`
}

// TermStats describes one token of an analyzed field. Position is the index of
// the whitespace-separated word the token comes from, whatever the field's
// tokenizer. TotalTermFreq is -1 when the engine does not track it.
type TermStats struct {
	Term          string `json:"term"`
	Position      int    `json:"position"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	TermFreq      int    `json:"term_freq"`
	DocFreq       int64  `json:"doc_freq"`
	TotalTermFreq int64  `json:"ttf"`
}

// TermVectorsResponse lists tokens per field in analysis order.
type TermVectorsResponse struct {
	Index  string                 `json:"index"`
	Fields map[string][]TermStats `json:"term_vectors"`
}

// AtPosition returns the tokens of field at position, in analysis order.
func (r *TermVectorsResponse) AtPosition(field string, position int) []TermStats {
	var out []TermStats
	for _, ts := range r.Fields[field] {
		if ts.Position == position {
			out = append(out, ts)
		}
	}
	return out
}
