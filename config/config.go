// Package config loads telcowatch configuration from a YAML file with
// environment variable overrides (TELCOWATCH_*). A single Config value is
// handed to the orchestrator at construction time; nothing reads viper at
// call sites.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telcowatch/telcowatch/core"
)

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Models    ModelsConfig    `mapstructure:"models" yaml:"models"`
	Synthesis SynthesisConfig `mapstructure:"synthesis" yaml:"synthesis"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Chat      ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Streams   []StreamConfig  `mapstructure:"streams" yaml:"streams"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or text
}

// SearchConfig describes the news search provider.
type SearchConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WindowDays int           `mapstructure:"window_days" yaml:"window_days"`
	MaxResults int           `mapstructure:"max_results" yaml:"max_results"`
}

// ModelConfig describes a single LLM backend.
type ModelConfig struct {
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ModelsConfig holds the two interchangeable backends: a low-latency fast
// model for filtering/extraction and a high-capability deep model for
// synthesis and cross-domain reasoning.
type ModelsConfig struct {
	Fast ModelConfig `mapstructure:"fast" yaml:"fast"`
	Deep ModelConfig `mapstructure:"deep" yaml:"deep"`
}

// SynthesisConfig describes the answer-synthesis provider used by the
// enrichment stage (an OpenAI-compatible endpoint).
type SynthesisConfig struct {
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RetryConfig parametrizes the shared retry policy.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay" yaml:"rate_limit_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Jitter         float64       `mapstructure:"jitter" yaml:"jitter"`
}

// PipelineConfig bounds pipeline execution.
type PipelineConfig struct {
	// MaxConcurrentCandidates bounds candidate-level verification and
	// ingestion parallelism within a stream.
	MaxConcurrentCandidates int `mapstructure:"max_concurrent_candidates" yaml:"max_concurrent_candidates"`
	// MinContentLength rejects boilerplate-only pages at ingestion.
	MinContentLength int `mapstructure:"min_content_length" yaml:"min_content_length"`
	// MaxContentLength truncates fetched page text before model calls.
	MaxContentLength int           `mapstructure:"max_content_length" yaml:"max_content_length"`
	StageTimeout     time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	Retry            RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// ChatConfig drives the chat supervisor's fast/deep routing.
type ChatConfig struct {
	// DeepLengthThreshold routes messages at or above this rune count to
	// the high-capability backend.
	DeepLengthThreshold int `mapstructure:"deep_length_threshold" yaml:"deep_length_threshold"`
	// StrategicKeywords route to the high-capability backend on match.
	StrategicKeywords []string `mapstructure:"strategic_keywords" yaml:"strategic_keywords"`
}

// StorageConfig locates the report database and artifact directory.
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	ArtifactsDir string `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
}

// StreamConfig defines one topic stream: its ordered query set and the
// source allow-list applied at search time.
type StreamConfig struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	Queries   []string `mapstructure:"queries" yaml:"queries"`
	Allowlist []string `mapstructure:"allowlist" yaml:"allowlist"`
}

// StreamByName returns the configuration for the named stream.
func (c Config) StreamByName(s core.Stream) (StreamConfig, error) {
	for _, sc := range c.Streams {
		if sc.Name == string(s) {
			return sc, nil
		}
	}
	return StreamConfig{}, fmt.Errorf("stream %q not configured", s)
}

// Load reads configuration from cfgFile (or telcowatch.yaml in the working
// directory when empty), applies TELCOWATCH_* environment overrides, and
// fills defaults for anything unset.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("telcowatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("TELCOWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults + env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Streams) == 0 {
		cfg.Streams = DefaultStreams()
	}
	return cfg, nil
}

// DefaultStreams returns the built-in stream definitions for the Polish
// telecom market.
func DefaultStreams() []StreamConfig {
	return []StreamConfig{
		{
			Name: string(core.StreamLegal),
			Queries: []string{
				"Poland telecommunications law regulation UKE UOKiK",
				"Polska telekomunikacja prawo regulacje",
			},
			Allowlist: []string{"uke.gov.pl", "uokik.gov.pl", "telko.in", "telepolis.pl"},
		},
		{
			Name: string(core.StreamPolitical),
			Queries: []string{
				"Poland telecom policy government strategy",
				"Polska telekomunikacja polityka cyfryzacja",
			},
			Allowlist: []string{"gov.pl", "telko.in", "cyfrowa.rp.pl"},
		},
		{
			Name: string(core.StreamFinancial),
			Queries: []string{
				"Poland telecom market financial results Play Orange T-Mobile Plus",
				"Polska telekomunikacja wyniki finansowe",
			},
			Allowlist: []string{"bankier.pl", "parkiet.com", "telko.in"},
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("search.base_url", "https://google.serper.dev")
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.window_days", 7)
	v.SetDefault("search.max_results", 20)
	v.SetDefault("models.fast.model", "gpt-4o-mini")
	v.SetDefault("models.fast.temperature", 0.3)
	v.SetDefault("models.fast.max_tokens", 2048)
	v.SetDefault("models.deep.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("models.deep.temperature", 0.7)
	v.SetDefault("models.deep.max_tokens", 4096)
	v.SetDefault("synthesis.base_url", "https://api.perplexity.ai")
	v.SetDefault("synthesis.model", "sonar")
	v.SetDefault("synthesis.timeout", 60*time.Second)
	v.SetDefault("pipeline.max_concurrent_candidates", 5)
	v.SetDefault("pipeline.min_content_length", 200)
	v.SetDefault("pipeline.max_content_length", 8000)
	v.SetDefault("pipeline.stage_timeout", 2*time.Minute)
	v.SetDefault("pipeline.retry.max_attempts", 3)
	v.SetDefault("pipeline.retry.base_delay", 2*time.Second)
	v.SetDefault("pipeline.retry.rate_limit_delay", 30*time.Second)
	v.SetDefault("pipeline.retry.max_delay", 2*time.Minute)
	v.SetDefault("pipeline.retry.jitter", 0.2)
	v.SetDefault("chat.deep_length_threshold", 280)
	v.SetDefault("chat.strategic_keywords", []string{
		"strategy", "strategic", "regulation", "compliance", "merger",
		"acquisition", "investment", "spectrum", "competitive", "forecast",
	})
	v.SetDefault("storage.database_path", "telcowatch.db")
	v.SetDefault("storage.artifacts_dir", "artifacts")
}
