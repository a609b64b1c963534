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
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Gate      GateConfig      `yaml:"gate" mapstructure:"gate"`
	NLP       NLPConfig       `yaml:"nlp" mapstructure:"nlp"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Conflict  ConflictConfig  `yaml:"conflict" mapstructure:"conflict"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// QueueConfig configures the extraction job queue coordinator.
type QueueConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxConcurrency   int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	MinTextLength    int `yaml:"min_text_length" mapstructure:"min_text_length"`
	StaleAfterSecs   int `yaml:"stale_after_secs" mapstructure:"stale_after_secs"`
}

// PollInterval returns the poll interval as a duration.
func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalSecs) * time.Second
}

// GateConfig holds the confidence-gate thresholds. Boundaries are inclusive
// on the lower bound of each band.
type GateConfig struct {
	AutoApprove float64 `yaml:"auto_approve" mapstructure:"auto_approve"`
	Review      float64 `yaml:"review" mapstructure:"review"`
}

// NLPConfig configures the preprocessing helper service and its lifecycle.
type NLPConfig struct {
	BaseURL            string   `yaml:"base_url" mapstructure:"base_url"`
	AutoStart          bool     `yaml:"auto_start" mapstructure:"auto_start"`
	Command            string   `yaml:"command" mapstructure:"command"`
	Args               []string `yaml:"args" mapstructure:"args"`
	StartupTimeoutSecs int      `yaml:"startup_timeout_secs" mapstructure:"startup_timeout_secs"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	MaxSentences       int      `yaml:"max_sentences" mapstructure:"max_sentences"`
}

// StartupTimeout returns the helper spawn deadline as a duration.
func (n NLPConfig) StartupTimeout() time.Duration {
	return time.Duration(n.StartupTimeoutSecs) * time.Second
}

// RequestTimeout returns the per-call deadline as a duration.
func (n NLPConfig) RequestTimeout() time.Duration {
	return time.Duration(n.RequestTimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings for extraction and
// conflict judgment.
type AnthropicConfig struct {
	Key              string  `yaml:"key" mapstructure:"key"`
	ExtractModel     string  `yaml:"extract_model" mapstructure:"extract_model"`
	ResolveModel     string  `yaml:"resolve_model" mapstructure:"resolve_model"`
	MaxTokens        int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMin   float64 `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	CircuitThreshold int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
}

// Timeout returns the provider call deadline as a duration.
func (a AnthropicConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// ConflictConfig configures conflict detection and resolution.
type ConflictConfig struct {
	AutoResolveMin  float64 `yaml:"auto_resolve_min" mapstructure:"auto_resolve_min"`
	ModelEscalation float64 `yaml:"model_escalation" mapstructure:"model_escalation"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CHRONICLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "chronicle.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("queue.poll_interval_secs", 5)
	v.SetDefault("queue.max_concurrency", 2)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.min_text_length", 50)
	v.SetDefault("queue.stale_after_secs", 600)
	v.SetDefault("gate.auto_approve", 0.85)
	v.SetDefault("gate.review", 0.5)
	v.SetDefault("nlp.base_url", "http://127.0.0.1:8100")
	v.SetDefault("nlp.auto_start", false)
	v.SetDefault("nlp.startup_timeout_secs", 60)
	v.SetDefault("nlp.request_timeout_secs", 30)
	v.SetDefault("nlp.max_sentences", 100)
	v.SetDefault("anthropic.extract_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.resolve_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("anthropic.requests_per_min", 50)
	v.SetDefault("anthropic.circuit_threshold", 5)
	v.SetDefault("conflict.auto_resolve_min", 0.8)
	v.SetDefault("conflict.model_escalation", 0.7)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
