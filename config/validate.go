package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bunnhack/letsim"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateClient(cfg, ve)
	validateRelay(cfg, ve)
	validateLogger(cfg, ve)
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateClient(cfg *Config, ve *ValidationError) {
	c := cfg.Client
	switch c.Provider {
	case "relay":
		if !validURL(c.RelayURL) {
			ve.Add("client.relay_url %q is not an absolute http(s) URL", c.RelayURL)
		}
	case "gemini":
	default:
		ve.Add("client.provider must be \"relay\" or \"gemini\", got %q", c.Provider)
	}
	if _, ok := letsim.ParseToolPolicy(c.ToolPolicy); !ok {
		ve.Add("client.tool_policy must be \"any\" or \"exclusive\", got %q", c.ToolPolicy)
	}
	if c.MaxToolRounds < 0 {
		ve.Add("client.max_tool_rounds must be >= 0")
	}
	if c.ProjectDir == "" {
		ve.Add("client.project_dir is required")
	}
	if c.CommandTimeout <= 0 {
		ve.Add("client.command_timeout must be > 0")
	}
}

func validateRelay(cfg *Config, ve *ValidationError) {
	r := cfg.Relay
	if r.Addr == "" {
		ve.Add("relay.addr is required")
	}
	if !validURL(r.OpenRouterURL) {
		ve.Add("relay.openrouter_url %q is not an absolute http(s) URL", r.OpenRouterURL)
	}
	if !validURL(r.PoeURL) {
		ve.Add("relay.poe_url %q is not an absolute http(s) URL", r.PoeURL)
	}
	if r.RateLimit.Enabled && (r.RateLimit.RPS <= 0 || r.RateLimit.Burst <= 0) {
		ve.Add("relay.rate_limit rps and burst must be > 0 when enabled")
	}
	if r.Breaker.Enabled && r.Breaker.MaxFailures == 0 {
		ve.Add("relay.circuit_breaker.max_failures must be > 0 when enabled")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format must be \"text\" or \"json\", got %q", cfg.Logger.Format)
	}
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
