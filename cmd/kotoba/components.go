package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/cache"
	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/engine"
	"github.com/hyperjump/kotoba/internal/extract"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/invalidation"
	"github.com/hyperjump/kotoba/internal/lexicon"
	"github.com/hyperjump/kotoba/internal/metrics"
	"github.com/hyperjump/kotoba/internal/spelling"
	"github.com/hyperjump/kotoba/internal/thesaurus"
)

// Components holds the initialized application components.
type Components struct {
	Config      *config.Config
	Rules       lexicon.Store
	Engine      *engine.Engine
	Cache       cache.Cache
	Metrics     *metrics.Metrics
	Registry    *prometheus.Registry
	Rewriter    *thesaurus.Rewriter
	Classifier  *spelling.Classifier
	Invalidator *invalidation.Invalidator
	Extractor   *extract.Extractor

	logger    *zap.Logger
	redis     *redis.Client
	publisher *invalidation.Publisher
}

// Close releases resources held by components.
func (c *Components) Close() {
	if c.publisher != nil {
		_ = c.publisher.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Rules != nil {
		_ = c.Rules.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg, Extractor: extract.NewExtractor(), logger: logger}

	rules, err := lexicon.NewSQLStore(cfg.Storage.RulesDriver, cfg.Storage.RulesDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rule store: %w", err)
	}
	c.Rules = rules

	indices := make(map[string]int, len(cfg.Indices))
	for name, ic := range cfg.Indices {
		indices[name] = ic.Shards
	}
	eng, err := engine.New(engine.Options{
		Path:    cfg.Storage.IndexPath,
		Indices: indices,
		Aliases: cfg.Aliases,
	}, rules, engine.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	c.Engine = eng

	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		c.redis = client
		c.Cache = cache.NewRedis(client, cfg.Cache.TTL)
	default:
		c.Cache = cache.NewMemory(cfg.Cache.Size, cfg.Cache.TTL)
	}
	logger.Info("rewrite cache initialized", zap.String("backend", cfg.Cache.Backend))

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	c.Rewriter = thesaurus.New(eng, c.Cache, thesaurus.WithLogger(logger), thesaurus.WithMetrics(c.Metrics))
	c.Classifier = spelling.NewClassifier(eng,
		spelling.WithLogger(logger),
		spelling.WithMetrics(c.Metrics),
		spelling.WithFieldAnalyzers(spelling.FieldAnalyzers{
			Whitespace: cfg.Spelling.WhitespaceAnalyzer,
			Reference:  cfg.Spelling.ReferenceAnalyzer,
			EdgeNgram:  cfg.Spelling.EdgeNgramAnalyzer,
		}),
	)

	var publisher invalidation.EventPublisher
	if cfg.Kafka.Enabled {
		c.publisher = invalidation.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		publisher = c.publisher
	}
	c.Invalidator = invalidation.NewInvalidator(c.Cache, publisher, cfg.NamesFor, logger, c.Metrics)
	return c, nil
}

// Indexer returns an indexer writing into index with the configured extensions.
func (c *Components) Indexer(index string) *indexer.Indexer {
	return indexer.New(c.Engine, index, c.Extractor,
		indexer.WithLogger(c.logger),
		indexer.WithMetrics(c.Metrics),
		indexer.WithExtensions(c.Config.Ingest.Extensions),
	)
}

// ImportRules loads the rule file at path into the rule store and drops the
// cached rewrites of every index it touched.
func (c *Components) ImportRules(ctx context.Context, path string) ([]string, error) {
	rules, err := lexicon.LoadFile(path)
	if err != nil {
		return nil, err
	}
	names, err := lexicon.Import(ctx, c.Rules, rules)
	if err != nil {
		return names, err
	}
	for _, index := range names {
		res, err := c.Invalidator.Invalidate(ctx, index, "", "rules imported")
		if err != nil {
			c.logger.Warn("failed to invalidate after rule import", zap.String("index", index), zap.Error(err))
			continue
		}
		c.logger.Info("rules imported", zap.String("index", index), zap.Int("cache_removed", res.Removed))
	}
	return names, nil
}

// consumerGroup gives each node its own consumer group so every node sees
// every invalidation event.
func consumerGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "-" + host
}
