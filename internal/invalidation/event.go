// Package invalidation propagates rewrite cache invalidations between nodes
// over a Kafka topic.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/kotoba/internal/cache"
	"github.com/hyperjump/kotoba/internal/metrics"
)

// ErrNoTarget is returned for an event naming neither an index nor a container.
var ErrNoTarget = errors.New("invalidation event names no index or container")

// Event asks every node to drop the cache entries of an index alias, a
// container, or both.
type Event struct {
	ID        string    `json:"id"`
	Index     string    `json:"index,omitempty"`
	Container string    `json:"container,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// NewEvent returns an event with a fresh id and timestamp.
func NewEvent(index, container, reason string) Event {
	return Event{
		ID:        uuid.New().String(),
		Index:     index,
		Container: container,
		Reason:    reason,
		At:        time.Now().UTC(),
	}
}

// Validate rejects events without a target.
func (e Event) Validate() error {
	if e.Index == "" && e.Container == "" {
		return ErrNoTarget
	}
	return nil
}

// Decode parses a JSON event.
func Decode(value []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return Event{}, fmt.Errorf("decoding invalidation event: %w", err)
	}
	return e, e.Validate()
}

// Apply drops the cache entries the event targets and returns how many were dropped.
func Apply(ctx context.Context, c cache.Cache, e Event, m *metrics.Metrics) (int, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	total := 0
	if e.Index != "" {
		n, err := c.InvalidateTag(ctx, cache.IndexTag(e.Index))
		if err != nil {
			return total, fmt.Errorf("invalidate index %s: %w", e.Index, err)
		}
		m.Invalidated("index", n)
		total += n
	}
	if e.Container != "" {
		n, err := c.InvalidateTag(ctx, cache.ContainerTag(e.Container))
		if err != nil {
			return total, fmt.Errorf("invalidate container %s: %w", e.Container, err)
		}
		m.Invalidated("container", n)
		total += n
	}
	return total, nil
}
