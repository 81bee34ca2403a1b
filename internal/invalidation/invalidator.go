package invalidation

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/cache"
	"github.com/hyperjump/kotoba/internal/metrics"
)

// EventPublisher sends events to other nodes. *Publisher implements it.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// Result reports what an invalidation did.
type Result struct {
	Removed   int  `json:"removed"`
	Published bool `json:"published"`
}

// Invalidator drops cache entries on this node and, when a publisher is set,
// announces the same invalidation to the other nodes.
type Invalidator struct {
	cache     cache.Cache
	publisher EventPublisher
	names     func(index string) []string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewInvalidator creates an Invalidator. names expands an index or alias into
// every name its cache entries may be tagged with; nil uses the name as given.
// publisher may be nil for a single node.
func NewInvalidator(c cache.Cache, publisher EventPublisher, names func(string) []string, logger *zap.Logger, m *metrics.Metrics) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if names == nil {
		names = func(index string) []string { return []string{index} }
	}
	return &Invalidator{cache: c, publisher: publisher, names: names, logger: logger, metrics: m}
}

// Invalidate drops the entries of index (with all its names), of container,
// or both. A publish failure is logged and leaves Published false; only local
// failures are returned.
func (inv *Invalidator) Invalidate(ctx context.Context, index, container, reason string) (Result, error) {
	events := inv.events(index, container, reason)
	if len(events) == 0 {
		return Result{}, ErrNoTarget
	}

	var res Result
	for _, e := range events {
		n, err := Apply(ctx, inv.cache, e, inv.metrics)
		res.Removed += n
		if err != nil {
			return res, err
		}
	}
	if inv.publisher == nil {
		return res, nil
	}
	res.Published = true
	for _, e := range events {
		if err := inv.publisher.Publish(ctx, e); err != nil {
			inv.logger.Warn("failed to publish invalidation", zap.String("index", e.Index),
				zap.String("container", e.Container), zap.Error(err))
			res.Published = false
		}
	}
	return res, nil
}

func (inv *Invalidator) events(index, container, reason string) []Event {
	if index == "" {
		if container == "" {
			return nil
		}
		return []Event{NewEvent("", container, reason)}
	}
	var events []Event
	for i, name := range inv.names(index) {
		c := ""
		if i == 0 {
			c = container
		}
		events = append(events, NewEvent(name, c, reason))
	}
	return events
}
