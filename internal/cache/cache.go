// Package cache stores rewrite results keyed by index alias, container and
// query, with tag-based bulk invalidation.
package cache

import (
	"context"
	"strings"
)

// Cache is the rewrite result store. Concurrent Saves of one key race; the
// last writer wins.
type Cache interface {
	// Load returns the stored mapping for key. A miss returns ok=false and no error.
	Load(ctx context.Context, key string) (value map[string]float64, ok bool, err error)
	// Save replaces the value of key and attaches it to tags.
	Save(ctx context.Context, key string, value map[string]float64, tags []string) error
	// InvalidateTag drops every entry attached to tag and returns how many were dropped.
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

const keySeparator = "|"

// Key builds the composite key alias|container|query.
func Key(alias, container, query string) string {
	return strings.Join([]string{alias, container, query}, keySeparator)
}

// IndexTag is the tag shared by every entry of an index alias.
func IndexTag(alias string) string {
	return "index:" + alias
}

// ContainerTag is the tag shared by every entry of a container.
func ContainerTag(container string) string {
	return "container:" + container
}

func copyValue(v map[string]float64) map[string]float64 {
	if v == nil {
		return nil
	}
	out := make(map[string]float64, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}
