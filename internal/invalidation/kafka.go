package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/cache"
	"github.com/hyperjump/kotoba/internal/metrics"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes invalidation events to the topic.
type Publisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewPublisher creates a Publisher for topic.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Publisher{writer: w, logger: logger.With(zap.String("topic", topic))}
}

// Publish writes e synchronously. Events are keyed by index so one index's
// invalidations stay ordered.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding invalidation event: %w", err)
	}
	msg := kafka.Message{Key: []byte(e.Index), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing invalidation event: %w", err)
	}
	p.logger.Debug("invalidation published",
		zap.String("id", e.ID),
		zap.String("index", e.Index),
		zap.String("container", e.Container))
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Consumer applies invalidation events from the topic to a local cache.
type Consumer struct {
	reader  messageReader
	cache   cache.Cache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewConsumer creates a Consumer in groupID for topic. Each node needs its own
// group so that every node sees every event.
func NewConsumer(brokers []string, topic, groupID string, c cache.Cache, logger *zap.Logger, m *metrics.Metrics) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{
		reader:  r,
		cache:   c,
		logger:  logger.With(zap.String("topic", topic)),
		metrics: m,
	}
}

// Run consumes until ctx is cancelled. Malformed events are logged and committed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("invalidation consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("invalidation consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", zap.Error(err))
			continue
		}
		if err := c.Handle(ctx, msg.Value); err != nil {
			c.logger.Warn("failed to apply invalidation",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Handle decodes and applies one message value.
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	e, err := Decode(value)
	if err != nil {
		return err
	}
	n, err := Apply(ctx, c.cache, e, c.metrics)
	if err != nil {
		return err
	}
	c.logger.Info("cache invalidated",
		zap.String("id", e.ID),
		zap.String("index", e.Index),
		zap.String("container", e.Container),
		zap.String("reason", e.Reason),
		zap.Int("dropped", n))
	return nil
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
