// Package config provides configuration loading and validation for the
// indexing engine: pipeline behaviour, per-index enable flags, ShadowFS
// limits, and logging, assembled from defaults, a YAML file, and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers   = errors.New("max workers must be positive")
	ErrInvalidBatchSize = errors.New("batch size must be positive")
	ErrInvalidTTL       = errors.New("transaction ttl must be positive")
	ErrInvalidSize      = errors.New("invalid size value")
)

// Default configuration values.
const (
	defaultMaxWorkers      = 8
	defaultChunkBatchSize  = 200
	defaultVectorBatchSize = 64
	defaultTxnTTL          = 30 * time.Minute
	defaultMaxFileSize     = "1MB"
	defaultImpactDepth     = 3
)

// Config holds all configuration for the indexing engine.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Indexes  IndexConfig    `mapstructure:"indexes"`
	ShadowFS ShadowFSConfig `mapstructure:"shadowfs"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PipelineConfig holds stage behaviour options.
type PipelineConfig struct {
	Parallel        bool `mapstructure:"parallel"`
	MaxWorkers      int  `mapstructure:"max_workers"`
	SkipParseErrors bool `mapstructure:"skip_parse_errors"`
	ContinueOnError bool `mapstructure:"continue_on_error"`

	ChunkBatchSize  int `mapstructure:"chunk_batch_size"`
	VectorBatchSize int `mapstructure:"vector_batch_size"`

	EnableGitHistory          bool `mapstructure:"enable_git_history"`
	EnablePartialChunkUpdates bool `mapstructure:"enable_partial_chunk_updates"`
	EnableLSP                 bool `mapstructure:"enable_lsp"`
	EnableRealtimeAnalysis    bool `mapstructure:"enable_realtime_analysis"`

	ImpactDepth int `mapstructure:"impact_depth"`

	// Extensions and IgnoreGlobs feed the discovery filter.
	Extensions  []string `mapstructure:"extensions"`
	IgnoreGlobs []string `mapstructure:"ignore_globs"`
}

// IndexConfig holds per-adapter enable flags.
type IndexConfig struct {
	EnableLexical bool `mapstructure:"enable_lexical_index"`
	EnableVector  bool `mapstructure:"enable_vector_index"`
	EnableSymbol  bool `mapstructure:"enable_symbol_index"`
	EnableFuzzy   bool `mapstructure:"enable_fuzzy_index"`
	EnableDomain  bool `mapstructure:"enable_domain_index"`
}

// ShadowFSConfig holds overlay filesystem limits.
type ShadowFSConfig struct {
	MaxFileSize            string        `mapstructure:"max_file_size"`
	MaterializeUseSymlinks bool          `mapstructure:"materialize_use_symlinks"`
	TxnTTL                 time.Duration `mapstructure:"txn_ttl"`
	PoolCapacity           int           `mapstructure:"pool_capacity"`
}

// MaxFileSizeBytes parses the human-readable size limit.
func (c ShadowFSConfig) MaxFileSizeBytes() (int64, error) {
	if c.MaxFileSize == "" {
		return 0, nil
	}

	size, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, c.MaxFileSize)
	}

	return int64(size), nil
}

// LoggingConfig holds logging options.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given file (searched in standard
// locations when empty) and the INDEXENGINE_* environment.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("indexengine")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
	}

	viperCfg.SetEnvPrefix("INDEXENGINE")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viperCfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config

	if err := viperCfg.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.parallel", true)
	v.SetDefault("pipeline.max_workers", defaultMaxWorkers)
	v.SetDefault("pipeline.skip_parse_errors", true)
	v.SetDefault("pipeline.continue_on_error", false)
	v.SetDefault("pipeline.chunk_batch_size", defaultChunkBatchSize)
	v.SetDefault("pipeline.vector_batch_size", defaultVectorBatchSize)
	v.SetDefault("pipeline.enable_git_history", false)
	v.SetDefault("pipeline.enable_partial_chunk_updates", false)
	v.SetDefault("pipeline.enable_lsp", false)
	v.SetDefault("pipeline.enable_realtime_analysis", false)
	v.SetDefault("pipeline.impact_depth", defaultImpactDepth)
	v.SetDefault("pipeline.extensions", []string{".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".kt", ".go", ".md"})

	v.SetDefault("indexes.enable_lexical_index", true)
	v.SetDefault("indexes.enable_vector_index", true)
	v.SetDefault("indexes.enable_symbol_index", true)
	v.SetDefault("indexes.enable_fuzzy_index", true)
	v.SetDefault("indexes.enable_domain_index", true)

	v.SetDefault("shadowfs.max_file_size", defaultMaxFileSize)
	v.SetDefault("shadowfs.materialize_use_symlinks", true)
	v.SetDefault("shadowfs.txn_ttl", defaultTxnTTL)
	v.SetDefault("shadowfs.pool_capacity", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	if cfg.Pipeline.MaxWorkers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Pipeline.MaxWorkers)
	}

	if cfg.Pipeline.ChunkBatchSize <= 0 || cfg.Pipeline.VectorBatchSize <= 0 {
		return fmt.Errorf("%w: chunk=%d vector=%d", ErrInvalidBatchSize,
			cfg.Pipeline.ChunkBatchSize, cfg.Pipeline.VectorBatchSize)
	}

	if cfg.ShadowFS.TxnTTL <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTTL, cfg.ShadowFS.TxnTTL)
	}

	if _, err := cfg.ShadowFS.MaxFileSizeBytes(); err != nil {
		return err
	}

	return nil
}
