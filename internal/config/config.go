package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Correlate CorrelateConfig `yaml:"correlate" mapstructure:"correlate"`
	Actors    ActorsConfig    `yaml:"actors" mapstructure:"actors"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DedupConfig configures the deduplication gate.
type DedupConfig struct {
	WindowHours        int     `yaml:"window_hours" mapstructure:"window_hours"`
	TitleThreshold     float64 `yaml:"title_threshold" mapstructure:"title_threshold"`
	ContentThreshold   float64 `yaml:"content_threshold" mapstructure:"content_threshold"`
	MaxComparisonChars int     `yaml:"max_comparison_chars" mapstructure:"max_comparison_chars"`
	MaxCandidates      int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// Window returns the dedup lookback window as a duration.
func (c DedupConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// ExtractConfig configures the extraction orchestrator.
type ExtractConfig struct {
	ModelTimeoutSecs int `yaml:"model_timeout_secs" mapstructure:"model_timeout_secs"`
	MaxEvidenceChars int `yaml:"max_evidence_chars" mapstructure:"max_evidence_chars"`
	MaxContentChars  int `yaml:"max_content_chars" mapstructure:"max_content_chars"`
}

// ModelTimeout returns the model-assisted extraction timeout.
func (c ExtractConfig) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSecs) * time.Second
}

// CorrelateConfig configures the correlation engine.
type CorrelateConfig struct {
	ClusterThreshold int `yaml:"cluster_threshold" mapstructure:"cluster_threshold"`
	CacheTTLHours    int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// ActorsConfig configures the threat actor registry.
type ActorsConfig struct {
	EnrichIntervalHours int    `yaml:"enrich_interval_hours" mapstructure:"enrich_interval_hours"`
	AliasTablePath      string `yaml:"alias_table_path" mapstructure:"alias_table_path"`
	ModelLookup         bool   `yaml:"model_lookup" mapstructure:"model_lookup"`
}

// EnrichInterval returns the enrichment cycle period.
func (c ActorsConfig) EnrichInterval() time.Duration {
	return time.Duration(c.EnrichIntervalHours) * time.Hour
}

// AnthropicConfig holds Anthropic API settings for model-assisted extraction.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// BatchConfig configures batch ingestion.
type BatchConfig struct {
	MaxConcurrentDocs int `yaml:"max_concurrent_docs" mapstructure:"max_concurrent_docs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTELPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "intelpipe.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_docs", 8)
	v.SetDefault("dedup.window_hours", 24)
	v.SetDefault("dedup.title_threshold", 0.80)
	v.SetDefault("dedup.content_threshold", 0.80)
	v.SetDefault("dedup.max_comparison_chars", 200000)
	v.SetDefault("dedup.max_candidates", 200)
	v.SetDefault("extract.model_timeout_secs", 60)
	v.SetDefault("extract.max_evidence_chars", 300)
	v.SetDefault("extract.max_content_chars", 50000)
	v.SetDefault("correlate.cluster_threshold", 3)
	v.SetDefault("correlate.cache_ttl_hours", 4)
	v.SetDefault("actors.enrich_interval_hours", 4)
	v.SetDefault("actors.model_lookup", false)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_sec", 2.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
