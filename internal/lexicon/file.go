package lexicon

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type fileIndexRules struct {
	Synonyms   [][]string          `yaml:"synonyms"`
	Expansions map[string][]string `yaml:"expansions"`
}

type fileFormat struct {
	Indices map[string]fileIndexRules `yaml:"indices"`
}

// Parse decodes a YAML rules document into per-index rule tables.
func Parse(data []byte) (map[string]*Rules, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	out := make(map[string]*Rules, len(f.Indices))
	for name, ir := range f.Indices {
		if name == "" {
			return nil, fmt.Errorf("rules: empty index name")
		}
		r := NewRules()
		for _, group := range ir.Synonyms {
			r.AddSynonymGroup(group...)
		}
		sources := make([]string, 0, len(ir.Expansions))
		for src := range ir.Expansions {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		for _, src := range sources {
			r.AddExpansion(src, ir.Expansions[src]...)
		}
		out[name] = r
	}
	return out, nil
}

// LoadFile reads and parses a YAML rules file.
func LoadFile(path string) (map[string]*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Import replaces the rules of every index named in rules.
// It returns the imported index names in sorted order.
func Import(ctx context.Context, store Store, rules map[string]*Rules) ([]string, error) {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := store.ReplaceIndex(ctx, name, rules[name]); err != nil {
			return nil, fmt.Errorf("import %s: %w", name, err)
		}
	}
	return names, nil
}
