package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/config"
	"github.com/bunnhack/letsim/gemini"
	"github.com/bunnhack/letsim/openai"
)

// resolveProvider constructs the chat provider selected by cfg. Env vars
// have already been folded into cfg by config.Load.
func resolveProvider(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger) (letsim.Provider, error) {
	switch cfg.Provider {
	case "relay", "":
		return openai.New(
			openai.WithBaseURL(cfg.RelayURL),
			openai.WithLogger(logger),
		), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY not set (use -api-key flag or environment variable)")
		}
		var opts []gemini.Option
		if cfg.GeminiModel != "" {
			opts = append(opts, gemini.WithModel(cfg.GeminiModel))
		}
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider %q: must be \"relay\" or \"gemini\"", cfg.Provider)
	}
}
