package lexicon

import (
	"context"
	"sync"
)

type compiledRules struct {
	groups     map[string][]string
	expansions map[string][]string
}

func compile(rules *Rules) *compiledRules {
	c := &compiledRules{
		groups:     make(map[string][]string),
		expansions: make(map[string][]string),
	}
	if rules == nil {
		return c
	}
	for _, group := range rules.Synonyms {
		members := append([]string(nil), group...)
		for _, m := range members {
			c.groups[m] = members
		}
	}
	for src, targets := range rules.Expansions {
		c.expansions[src] = append([]string(nil), targets...)
	}
	return c
}

// MemoryStore keeps rules in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	indices map[string]*compiledRules
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indices: make(map[string]*compiledRules)}
}

// SynonymGroup implements Store.
func (s *MemoryStore) SynonymGroup(ctx context.Context, index, phrase string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.indices[index]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), c.groups[Normalize(phrase)]...), nil
}

// Expansions implements Store.
func (s *MemoryStore) Expansions(ctx context.Context, index, phrase string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.indices[index]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), c.expansions[Normalize(phrase)]...), nil
}

// ReplaceIndex implements Store.
func (s *MemoryStore) ReplaceIndex(ctx context.Context, index string, rules *Rules) error {
	c := compile(rules)
	s.mu.Lock()
	s.indices[index] = c
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
