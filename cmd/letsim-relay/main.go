// Command letsim-relay proxies chat completion requests to OpenRouter or Poe
// and serves the IDE's static files.
//
// Usage:
//
//	letsim-relay [flags]
//
// Flags:
//
//	-config string  Path to YAML config file (default: letsim.yaml)
//	-addr string    Listen address (overrides relay.addr)
//	-static string  Directory served for non-API paths (overrides relay.static_dir)
//
// Upstream keys are read from OPENROUTER_API_KEY and POE_API_KEY.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bunnhack/letsim/config"
	"github.com/bunnhack/letsim/logger"
	"github.com/bunnhack/letsim/relay"
	"github.com/bunnhack/letsim/tracer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "letsim-relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "letsim.yaml", "Path to YAML config file")
		addr       = flag.String("addr", "", "Listen address")
		staticDir  = flag.String("static", "", "Directory served for non-API paths")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Relay.Addr = *addr
	}
	if *staticDir != "" {
		cfg.Relay.StaticDir = *staticDir
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closeLog()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	if cfg.Relay.OpenRouterKey == "" {
		log.Warn("OPENROUTER_API_KEY not set, OpenRouter requests will fail")
	}
	if cfg.Relay.PoeKey == "" {
		log.Warn("POE_API_KEY not set, Poe requests will fail")
	}

	srv := &http.Server{
		Addr:              cfg.Relay.Addr,
		Handler:           relay.New(cfg.Relay, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay listening", "addr", cfg.Relay.Addr, "static", cfg.Relay.StaticDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
