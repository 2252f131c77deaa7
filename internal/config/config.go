package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Unify     UnifyConfig     `yaml:"unify" mapstructure:"unify"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the unification oracle.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// UnifyConfig tunes the batched normalization of raw offers. Defaults
// reflect the external API quota.
type UnifyConfig struct {
	BatchSize     int `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency   int `yaml:"concurrency" mapstructure:"concurrency"`
	CooldownSecs  int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// IngestConfig tunes the per-product ingestion fan-out.
type IngestConfig struct {
	MaxConcurrentProducts int `yaml:"max_concurrent_products" mapstructure:"max_concurrent_products"`
}

// ScheduleConfig configures the periodic ingestion loop.
type ScheduleConfig struct {
	IntervalMins int    `yaml:"interval_mins" mapstructure:"interval_mins"`
	SpoolDir     string `yaml:"spool_dir" mapstructure:"spool_dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("PROMOMANIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.requests_per_sec", 2)
	v.SetDefault("anthropic.burst", 4)
	v.SetDefault("unify.batch_size", 20)
	v.SetDefault("unify.concurrency", 4)
	v.SetDefault("unify.cooldown_secs", 15)
	v.SetDefault("unify.retry_attempts", 3)
	v.SetDefault("ingest.max_concurrent_products", 8)
	v.SetDefault("schedule.interval_mins", 360)
	v.SetDefault("schedule.spool_dir", "/var/spool/promomania")

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
