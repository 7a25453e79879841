// Package config loads the indexing pipeline's configuration surface from
// a YAML file with environment-variable overrides, routed through viper
// so every knob also binds to a `VECINDEX_*` environment variable.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/antflydb/vecindex/batch"
	"github.com/antflydb/vecindex/collection"
	"github.com/antflydb/vecindex/logging"
	"github.com/antflydb/vecindex/truncate"
)

// Config binds every knob of the pipeline's configuration surface.
type Config struct {
	OutRoot string `yaml:"out_root" mapstructure:"out_root"`

	BatchSizeDocs   int `yaml:"batch_size_docs" mapstructure:"batch_size_docs"`
	BatchSizeTokens int `yaml:"batch_size_tokens" mapstructure:"batch_size_tokens"`
	APITokenLimit   int `yaml:"api_token_limit" mapstructure:"api_token_limit"`

	TruncationStrategy string `yaml:"truncation_strategy" mapstructure:"truncation_strategy"`

	ParallelPartitions int `yaml:"parallel_partitions" mapstructure:"parallel_partitions"`

	// UpsertRatePerSec caps upsert calls per second across all partition
	// workers; 0 disables the cap.
	UpsertRatePerSec float64 `yaml:"upsert_rate_per_sec" mapstructure:"upsert_rate_per_sec"`

	CollectionStrategy string `yaml:"collection_strategy" mapstructure:"collection_strategy"`
	CollectionBase     string `yaml:"collection_base" mapstructure:"collection_base"`

	Resume      bool `yaml:"resume" mapstructure:"resume"`
	DeleteStale bool `yaml:"delete_stale" mapstructure:"delete_stale"`
	SampleMode  bool `yaml:"sample_mode" mapstructure:"sample_mode"`

	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	VectorStore VectorStoreConfig `yaml:"vector_store" mapstructure:"vector_store"`
}

// LoggingConfig maps directly onto logging.Config.
type LoggingConfig struct {
	Style string `yaml:"style" mapstructure:"style"`
	Level string `yaml:"level" mapstructure:"level"`
}

// VectorStoreConfig configures the HTTP-based vector-store client.
type VectorStoreConfig struct {
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec" mapstructure:"timeout_sec"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("batch_size_docs", 128)
	tokenMargin := 0.95
	v.SetDefault("batch_size_tokens", int(float64(8192)*tokenMargin)) // 5% below the per-request ceiling, mirroring the document truncation margin
	v.SetDefault("api_token_limit", 8192)
	v.SetDefault("truncation_strategy", string(truncate.StrategyAuto))
	v.SetDefault("parallel_partitions", 1)
	v.SetDefault("upsert_rate_per_sec", 0.0)
	v.SetDefault("collection_strategy", string(collection.Single))
	v.SetDefault("resume", false)
	v.SetDefault("delete_stale", false)
	v.SetDefault("sample_mode", false)
	v.SetDefault("logging.style", string(logging.StyleTerminal))
	v.SetDefault("logging.level", string(logging.LevelInfo))
	v.SetDefault("vector_store.timeout_sec", 60)
}

// Load reads a YAML config file at path (if non-empty), applies defaults,
// and overlays `VECINDEX_*` environment variables — e.g.
// VECINDEX_PARALLEL_PARTITIONS=4 overrides parallel_partitions. An empty
// path loads only defaults and environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VECINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.SampleMode {
		// Deterministic sampling requires a single sequential worker.
		cfg.ParallelPartitions = 1
	}
	return &cfg, nil
}

// Strategy parses CollectionStrategy into its typed enum, defaulting to
// Single on empty/unknown values (collection.New already does this, so
// this is a thin convenience wrapper for config call sites).
func (c *Config) Strategy() collection.Strategy {
	return collection.New(collection.Strategy(c.CollectionStrategy)).Strategy()
}

// TruncStrategy parses TruncationStrategy into its typed enum, defaulting
// to auto-selection on an empty/unknown value.
func (c *Config) TruncStrategy() truncate.Strategy {
	switch s := truncate.Strategy(c.TruncationStrategy); s {
	case truncate.StrategyEnd, truncate.StrategyStart, truncate.StrategyMiddleOut, truncate.StrategySentences, truncate.StrategyAuto:
		return s
	default:
		return truncate.StrategyAuto
	}
}

// BatchConfig projects the relevant knobs onto batch.Config.
func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		MaxBatchDocs:   c.BatchSizeDocs,
		MaxBatchTokens: c.BatchSizeTokens,
	}
}

// LogConfig projects LoggingConfig onto logging.Config.
func (c *Config) LogConfig() *logging.Config {
	return &logging.Config{
		Style: logging.Style(c.Logging.Style),
		Level: logging.Level(c.Logging.Level),
	}
}
