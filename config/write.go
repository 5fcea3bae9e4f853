package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the full default configuration, the same values Load fills
// in when nothing is set.
func Default() Config {
	return Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Search: SearchConfig{
			BaseURL:    "https://google.serper.dev",
			Timeout:    30 * time.Second,
			WindowDays: 7,
			MaxResults: 20,
		},
		Models: ModelsConfig{
			Fast: ModelConfig{Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 2048},
			Deep: ModelConfig{Model: "claude-3-5-sonnet-20241022", Temperature: 0.7, MaxTokens: 4096},
		},
		Synthesis: SynthesisConfig{
			BaseURL: "https://api.perplexity.ai",
			Model:   "sonar",
			Timeout: 60 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentCandidates: 5,
			MinContentLength:        200,
			MaxContentLength:        8000,
			StageTimeout:            2 * time.Minute,
			Retry: RetryConfig{
				MaxAttempts:    3,
				BaseDelay:      2 * time.Second,
				RateLimitDelay: 30 * time.Second,
				MaxDelay:       2 * time.Minute,
				Jitter:         0.2,
			},
		},
		Chat: ChatConfig{
			DeepLengthThreshold: 280,
			StrategicKeywords: []string{
				"strategy", "strategic", "regulation", "compliance", "merger",
				"acquisition", "investment", "spectrum", "competitive", "forecast",
			},
		},
		Storage: StorageConfig{DatabasePath: "telcowatch.db", ArtifactsDir: "artifacts"},
		Streams: DefaultStreams(),
	}
}

// Marshal renders a Config as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
