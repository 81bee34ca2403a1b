package engine

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/char/regexp"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/token/shingle"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Analyzer names accepted by Analyze.
const (
	AnalyzerClean      = "clean"
	AnalyzerShingles   = "shingles"
	AnalyzerLookup     = "lookup"
	AnalyzerSpelling   = "spelling"
	AnalyzerWhitespace = "whitespace"
	AnalyzerReference  = "reference"
	AnalyzerEdgeNgram  = "edge_ngram"
	AnalyzerSynonym    = "synonym"
	AnalyzerExpansion  = "expansion"
)

// Field names available to term vector requests.
const (
	FieldSpelling           = "spelling"
	FieldSpellingWhitespace = "spelling.whitespace"
	FieldSearchWhitespace   = "search.whitespace"
	FieldReference          = "reference.reference"
	FieldEdgeNgram          = "edge_ngram.edge_ngram"
)

const (
	shingleFilter   = "kotoba_shingle"
	edgeNgramFilter = "kotoba_edge_ngram"
	referenceStrip  = "kotoba_reference_strip"
	maxShingleSize  = 3
	maxEdgeNgram    = 20
)

// bleveName maps a public analyzer name to the name registered on the mapping.
func bleveName(analyzer string) string {
	return "kotoba_" + analyzer
}

type fieldDef struct {
	source         string
	indexAnalyzer  string
	searchAnalyzer string
}

var fieldDefs = map[string]fieldDef{
	FieldSpelling:           {source: "spelling", indexAnalyzer: AnalyzerSpelling, searchAnalyzer: AnalyzerSpelling},
	FieldSpellingWhitespace: {source: "spelling", indexAnalyzer: AnalyzerWhitespace, searchAnalyzer: AnalyzerWhitespace},
	FieldSearchWhitespace:   {source: "search", indexAnalyzer: AnalyzerWhitespace, searchAnalyzer: AnalyzerWhitespace},
	FieldReference:          {source: "reference", indexAnalyzer: AnalyzerReference, searchAnalyzer: AnalyzerReference},
	FieldEdgeNgram:          {source: "edge_ngram", indexAnalyzer: AnalyzerEdgeNgram, searchAnalyzer: AnalyzerWhitespace},
}

// HasField reports whether field can be named in a term vector request.
func HasField(field string) bool {
	_, ok := fieldDefs[field]
	return ok
}

// splitsOnWhitespace reports whether analyzer positions already count
// whitespace-separated words. Chains with char filters keep their own
// positions since their offsets no longer point into the original text.
func splitsOnWhitespace(analyzer string) bool {
	chain := analysisChains[analyzer]
	return chain.tokenizer == whitespace.Name || len(chain.charFilters) > 0
}

// analysisChains lists the bleve-backed analyzers as tokenizer, char filters and token filters.
var analysisChains = map[string]struct {
	tokenizer    string
	charFilters  []string
	tokenFilters []string
}{
	AnalyzerClean:      {tokenizer: unicode.Name, tokenFilters: []string{lowercase.Name, porter.Name}},
	AnalyzerShingles:   {tokenizer: whitespace.Name, tokenFilters: []string{lowercase.Name, shingleFilter}},
	AnalyzerLookup:     {tokenizer: single.Name, tokenFilters: []string{lowercase.Name}},
	AnalyzerSpelling:   {tokenizer: unicode.Name, tokenFilters: []string{lowercase.Name, porter.Name}},
	AnalyzerWhitespace: {tokenizer: whitespace.Name, tokenFilters: []string{lowercase.Name}},
	AnalyzerReference:  {tokenizer: whitespace.Name, charFilters: []string{referenceStrip}, tokenFilters: []string{lowercase.Name}},
	AnalyzerEdgeNgram:  {tokenizer: whitespace.Name, tokenFilters: []string{lowercase.Name, edgeNgramFilter}},
}

// newIndexMapping builds the mapping shared by every shard: custom analyzers and
// one document type whose fields feed the spelling classifier.
func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomTokenFilter(shingleFilter, map[string]interface{}{
		"type":            shingle.Name,
		"min":             2.0,
		"max":             float64(maxShingleSize),
		"output_original": true,
		"separator":       " ",
		"filler":          "",
	}); err != nil {
		return nil, fmt.Errorf("failed to register shingle filter: %w", err)
	}
	if err := im.AddCustomTokenFilter(edgeNgramFilter, map[string]interface{}{
		"type": edgengram.Name,
		"back": false,
		"min":  1.0,
		"max":  float64(maxEdgeNgram),
	}); err != nil {
		return nil, fmt.Errorf("failed to register edge ngram filter: %w", err)
	}
	if err := im.AddCustomCharFilter(referenceStrip, map[string]interface{}{
		"type":    regexp.Name,
		"regexp":  `[-_./]`,
		"replace": "",
	}); err != nil {
		return nil, fmt.Errorf("failed to register reference char filter: %w", err)
	}

	for name, chain := range analysisChains {
		cfg := map[string]interface{}{
			"type":          custom.Name,
			"tokenizer":     chain.tokenizer,
			"token_filters": chain.tokenFilters,
		}
		if len(chain.charFilters) > 0 {
			cfg["char_filters"] = chain.charFilters
		}
		if err := im.AddCustomAnalyzer(bleveName(name), cfg); err != nil {
			return nil, fmt.Errorf("failed to register analyzer %s: %w", name, err)
		}
	}

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false
	bySource := make(map[string][]*mapping.FieldMapping)
	for field, def := range fieldDefs {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = bleveName(def.indexAnalyzer)
		fm.Store = false
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		fm.DocValues = false
		if field != def.source {
			fm.Name = field
		}
		bySource[def.source] = append(bySource[def.source], fm)
	}
	for source, fms := range bySource {
		docMapping.AddFieldMappingsAt(source, fms...)
	}

	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = bleveName(AnalyzerWhitespace)
	return im, nil
}
