package config

import (
	"time"

	"github.com/hyperjump/kotoba/internal/models"
)

// DefaultRewriteConfig is the profile installed when no container is configured.
func DefaultRewriteConfig() models.RewriteConfig {
	return models.RewriteConfig{
		SynonymEnabled:         true,
		SynonymWeightDivider:   10,
		ExpansionEnabled:       true,
		ExpansionWeightDivider: 10,
		MaxRewriteLevels:       2,
		SynonymCycleDecay:      models.DecayMultiplicative,
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/kotoba/data/indices"
	}
	if cfg.Storage.RulesDriver == "" {
		cfg.Storage.RulesDriver = "sqlite3"
	}
	if cfg.Storage.RulesDSN == "" && cfg.Storage.RulesDriver == "sqlite3" {
		cfg.Storage.RulesDSN = "/usr/local/var/kotoba/data/db/rules.db"
	}
	if len(cfg.Indices) == 0 {
		cfg.Indices = map[string]IndexConfig{"default": {Shards: 1}}
	}
	for name, ic := range cfg.Indices {
		if ic.Shards <= 0 {
			ic.Shards = 1
			cfg.Indices[name] = ic
		}
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 10000
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = "localhost:6379"
	}
	if cfg.Cache.Redis.PoolSize == 0 {
		cfg.Cache.Redis.PoolSize = 10
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "kotoba.cache-invalidate"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "kotoba"
	}
	if len(cfg.Containers) == 0 {
		cfg.Containers = map[string]models.RewriteConfig{DefaultContainer: DefaultRewriteConfig()}
	}
	for name, rc := range cfg.Containers {
		// Zero dividers mean "unset"; explicit values at or below 1 are left for Validate.
		if rc.SynonymWeightDivider == 0 {
			rc.SynonymWeightDivider = 10
		}
		if rc.ExpansionWeightDivider == 0 {
			rc.ExpansionWeightDivider = 10
		}
		if rc.SynonymCycleDecay == "" {
			rc.SynonymCycleDecay = models.DecayMultiplicative
		}
		cfg.Containers[name] = rc
	}
	if cfg.Spelling.CutoffFrequency == 0 {
		cfg.Spelling.CutoffFrequency = models.DefaultCutoffFrequency
	}
	if cfg.Spelling.WhitespaceAnalyzer == "" {
		cfg.Spelling.WhitespaceAnalyzer = "whitespace"
	}
	if cfg.Spelling.ReferenceAnalyzer == "" {
		cfg.Spelling.ReferenceAnalyzer = "reference"
	}
	if cfg.Spelling.EdgeNgramAnalyzer == "" {
		cfg.Spelling.EdgeNgramAnalyzer = "edge_ngram"
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".csv", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Ingest.Index == "" {
		cfg.Ingest.Index = "default"
	}
}
