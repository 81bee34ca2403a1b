// Package config provides configuration loading and structs for the kotoba server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/kotoba/internal/engine"
	"github.com/hyperjump/kotoba/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultContainer is the rewrite profile used when a request names none.
const DefaultContainer = "default"

var (
	// ErrInvalidDivider is returned when a weight divider is not greater than 1.
	ErrInvalidDivider = errors.New("weight divider must be greater than 1")
	// ErrInvalidConfig is returned for any other rejected setting.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool                            `yaml:"debug"`
	Server     ServerConfig                    `yaml:"server"`
	Storage    StorageConfig                   `yaml:"storage"`
	Indices    map[string]IndexConfig          `yaml:"indices"`
	Aliases    map[string]string               `yaml:"aliases"`
	Cache      CacheConfig                     `yaml:"cache"`
	Kafka      KafkaConfig                     `yaml:"kafka"`
	Rules      RulesConfig                     `yaml:"rules"`
	Containers map[string]models.RewriteConfig `yaml:"containers"`
	Spelling   SpellingConfig                  `yaml:"spelling"`
	Ingest     IngestConfig                    `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the bleve shards and the rule database.
// An empty IndexPath keeps every shard in memory.
type StorageConfig struct {
	IndexPath   string `yaml:"index_path"`
	RulesDriver string `yaml:"rules_database_driver"`
	RulesDSN    string `yaml:"rules_database_dsn"`
}

// IndexConfig describes one engine index.
type IndexConfig struct {
	Shards int `yaml:"shards"`
}

// CacheConfig selects and sizes the rewrite cache.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// KafkaConfig holds the cache invalidation topic settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// RulesConfig points at the YAML rule file loaded into the rule store.
type RulesConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

// SpellingConfig holds the classifier defaults and the analyzer suffixes that
// name its field variants.
type SpellingConfig struct {
	CutoffFrequency    float64 `yaml:"cutoff_frequency"`
	WhitespaceAnalyzer string  `yaml:"whitespace_analyzer"`
	ReferenceAnalyzer  string  `yaml:"reference_analyzer"`
	EdgeNgramAnalyzer  string  `yaml:"edge_ngram_analyzer"`
}

// Fields lists the term vector fields the analyzer suffixes select.
func (s SpellingConfig) Fields() []string {
	return []string{
		"spelling." + s.WhitespaceAnalyzer,
		"search." + s.WhitespaceAnalyzer,
		"reference." + s.ReferenceAnalyzer,
		"edge_ngram." + s.EdgeNgramAnalyzer,
	}
}

// IngestConfig holds corpus ingestion settings. Files under Directories are
// split into records and indexed into Index.
type IngestConfig struct {
	Index       string   `yaml:"index"`
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Watch       bool     `yaml:"watch"`
}

// Container returns the rewrite profile for name; empty name means DefaultContainer.
func (c *Config) Container(name string) (models.RewriteConfig, bool) {
	if name == "" {
		name = DefaultContainer
	}
	rc, ok := c.Containers[name]
	return rc, ok
}

// ResolveIndex maps an alias to its index name. Unknown names are returned as-is.
func (c *Config) ResolveIndex(name string) string {
	if target, ok := c.Aliases[name]; ok {
		return target
	}
	return name
}

// NamesFor returns every name that refers to the same index as name: the
// index itself and all aliases pointing at it, sorted. Cache entries are
// tagged with whatever name the caller used, so invalidation must cover all.
func (c *Config) NamesFor(name string) []string {
	if name == "" {
		return nil
	}
	target := c.ResolveIndex(name)
	names := []string{target}
	for alias, t := range c.Aliases {
		if t == target && alias != target {
			names = append(names, alias)
		}
	}
	sort.Strings(names)
	return names
}

// Load reads and parses the config file at path, expands paths, applies defaults,
// and validates the result.
// Returns an error if the file cannot be read, parsed, or holds rejected settings.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	if cfg.Storage.RulesDriver == "sqlite3" {
		cfg.Storage.RulesDSN = expandPath(cfg.Storage.RulesDSN, configDir)
	}
	cfg.Rules.File = expandPath(cfg.Rules.File, configDir)
	for i, dir := range cfg.Ingest.Directories {
		cfg.Ingest.Directories[i] = expandPath(dir, configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings that would only fail later, at rewrite or classify time.
func Validate(cfg *Config) error {
	for name, rc := range cfg.Containers {
		if rc.SynonymWeightDivider <= 1 {
			return fmt.Errorf("container %q synonym_weight_divider %v: %w", name, rc.SynonymWeightDivider, ErrInvalidDivider)
		}
		if rc.ExpansionWeightDivider <= 1 {
			return fmt.Errorf("container %q expansion_weight_divider %v: %w", name, rc.ExpansionWeightDivider, ErrInvalidDivider)
		}
		if rc.MaxRewriteLevels < 0 {
			return fmt.Errorf("container %q max_rewrite_levels %d: %w", name, rc.MaxRewriteLevels, ErrInvalidConfig)
		}
		switch rc.SynonymCycleDecay {
		case "", models.DecayMultiplicative, models.DecayLinear:
		default:
			return fmt.Errorf("container %q synonym_cycle_decay %q: %w", name, rc.SynonymCycleDecay, ErrInvalidConfig)
		}
	}
	if c := cfg.Spelling.CutoffFrequency; c <= 0 || c > 1 {
		return fmt.Errorf("spelling cutoff_frequency %v must be in (0, 1]: %w", c, ErrInvalidConfig)
	}
	for _, field := range cfg.Spelling.Fields() {
		if !engine.HasField(field) {
			return fmt.Errorf("spelling field %q is not indexed: %w", field, ErrInvalidConfig)
		}
	}
	for alias, target := range cfg.Aliases {
		if _, ok := cfg.Indices[target]; !ok {
			return fmt.Errorf("alias %q points at unknown index %q: %w", alias, target, ErrInvalidConfig)
		}
	}
	if _, ok := cfg.Indices[cfg.ResolveIndex(cfg.Ingest.Index)]; !ok && len(cfg.Ingest.Directories) > 0 {
		return fmt.Errorf("ingest index %q is not configured: %w", cfg.Ingest.Index, ErrInvalidConfig)
	}
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache backend %q: %w", cfg.Cache.Backend, ErrInvalidConfig)
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without brokers: %w", ErrInvalidConfig)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
