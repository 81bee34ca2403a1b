// Package cli formats kotoba results for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/kotoba/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Weighted is one rewrite with its weight.
type Weighted struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// Ranked orders rewrites by descending weight, then text.
func Ranked(rewrites map[string]float64) []Weighted {
	out := make([]Weighted, 0, len(rewrites))
	for text, weight := range rewrites {
		out = append(out, Weighted{Text: text, Weight: weight})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// WriteRewrites writes resp to w in the given format.
func WriteRewrites(w io.Writer, resp *models.RewriteResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	ranked := Ranked(resp.Rewrites)
	if len(ranked) == 0 {
		fmt.Fprintf(w, "No rewrites for %q\n", resp.Query)
		return nil
	}
	fmt.Fprintf(w, "%d rewrites for %q\n\n", len(ranked), resp.Query)
	for _, r := range ranked {
		fmt.Fprintf(w, "  %-10.6g %s\n", r.Weight, r.Text)
	}
	return nil
}

// WriteVerdict writes resp to w in the given format.
func WriteVerdict(w io.Writer, resp *models.SpellingResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s: %s\n", resp.Query, resp.Verdict)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
