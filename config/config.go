// Package config loads letsim settings from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration shared by the IDE and the relay.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Relay  RelayConfig  `yaml:"relay"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
}

// ClientConfig holds settings for the IDE process.
type ClientConfig struct {
	// Provider selects the chat backend: "relay" (OpenAI-compatible SSE via
	// letsim-relay or any compatible endpoint) or "gemini".
	Provider       string        `yaml:"provider"`
	RelayURL       string        `yaml:"relay_url"`
	GeminiAPIKey   string        `yaml:"gemini_api_key"`
	GeminiModel    string        `yaml:"gemini_model"`
	Model          string        `yaml:"model"`
	SystemPrompt   string        `yaml:"system_prompt"`
	ToolPolicy     string        `yaml:"tool_policy"`
	MaxToolRounds  int           `yaml:"max_tool_rounds"`
	ProjectDir     string        `yaml:"project_dir"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// RelayConfig holds settings for letsim-relay.
type RelayConfig struct {
	Addr          string          `yaml:"addr"`
	StaticDir     string          `yaml:"static_dir"`
	OpenRouterURL string          `yaml:"openrouter_url"`
	OpenRouterKey string          `yaml:"openrouter_api_key"`
	PoeURL        string          `yaml:"poe_url"`
	PoeKey        string          `yaml:"poe_api_key"`
	Referer       string          `yaml:"referer"`
	Title         string          `yaml:"title"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Breaker       BreakerConfig   `yaml:"circuit_breaker"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// BreakerConfig configures the per-upstream circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config matching the stock local setup: the relay on
// port 8000 serving the current directory.
func Defaults() *Config {
	return &Config{
		Client: ClientConfig{
			Provider:       "relay",
			RelayURL:       "http://localhost:8000",
			GeminiModel:    "gemini-2.5-flash",
			ToolPolicy:     "any",
			MaxToolRounds:  3,
			ProjectDir:     "project",
			CommandTimeout: 2 * time.Minute,
		},
		Relay: RelayConfig{
			Addr:          ":8000",
			StaticDir:     ".",
			OpenRouterURL: "https://openrouter.ai/api/v1/chat/completions",
			PoeURL:        "https://api.poe.com/v1/chat/completions",
			Referer:       "http://localhost:8000",
			Title:         "letsim",
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     2,
				Burst:   10,
			},
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file over Defaults, applies env var overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps environment variables onto cfg. Provider API keys
// use their conventional names; everything else is prefixed LETSIM_.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Relay.OpenRouterKey = v
	}
	if v := os.Getenv("POE_API_KEY"); v != "" {
		cfg.Relay.PoeKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Client.GeminiAPIKey = v
	}
	if v := os.Getenv("LETSIM_PROVIDER"); v != "" {
		cfg.Client.Provider = v
	}
	if v := os.Getenv("LETSIM_RELAY_URL"); v != "" {
		cfg.Client.RelayURL = v
	}
	if v := os.Getenv("LETSIM_MODEL"); v != "" {
		cfg.Client.Model = v
	}
	if v := os.Getenv("LETSIM_PROJECT_DIR"); v != "" {
		cfg.Client.ProjectDir = v
	}
	if v := os.Getenv("LETSIM_TOOL_POLICY"); v != "" {
		cfg.Client.ToolPolicy = v
	}
	if v := os.Getenv("LETSIM_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Client.MaxToolRounds = n
		}
	}
	if v := os.Getenv("LETSIM_RELAY_ADDR"); v != "" {
		cfg.Relay.Addr = v
	}
	if v := os.Getenv("LETSIM_STATIC_DIR"); v != "" {
		cfg.Relay.StaticDir = v
	}
	if v := os.Getenv("LETSIM_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LETSIM_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("LETSIM_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("LETSIM_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}
