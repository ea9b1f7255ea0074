// Command letsim is a terminal mini-IDE: chat with a model that writes
// project files, run the project with npm and preview it.
//
// Usage:
//
//	letsim [flags]
//
// Flags:
//
//	-config string         Path to YAML config file (default: letsim.yaml)
//	-provider string       Provider: relay, gemini
//	-relay-url string      Base URL of letsim-relay
//	-model string          Model ID to start with
//	-project string        Project directory
//	-system-prompt string  Path to system prompt file (default: .letsim/prompt.md)
//	-api-key string        Gemini API key (overrides GEMINI_API_KEY)
//	-preview-addr string   Serve the preview on this address (e.g. :8001)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/agent"
	bt "github.com/bunnhack/letsim/bubbletea"
	"github.com/bunnhack/letsim/config"
	"github.com/bunnhack/letsim/exec"
	"github.com/bunnhack/letsim/logger"
	"github.com/bunnhack/letsim/memory"
	"github.com/bunnhack/letsim/preview"
	"github.com/bunnhack/letsim/tracer"
	"github.com/bunnhack/letsim/workspace"
)

const (
	defaultConfigPath = "letsim.yaml"
	defaultPromptPath = ".letsim/prompt.md"
	previewFile       = ".letsim/preview.html"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "letsim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", defaultConfigPath, "Path to YAML config file")
		providerFlag = flag.String("provider", "", "Provider: relay, gemini")
		relayURL     = flag.String("relay-url", "", "Base URL of letsim-relay")
		model        = flag.String("model", "", "Model ID to start with")
		projectDir   = flag.String("project", "", "Project directory")
		promptPath   = flag.String("system-prompt", defaultPromptPath, "Path to system prompt file")
		apiKey       = flag.String("api-key", "", "Gemini API key (overrides GEMINI_API_KEY)")
		previewAddr  = flag.String("preview-addr", "", "Serve the preview on this address (e.g. :8001)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg.Client, *providerFlag, *relayURL, *model, *projectDir, *apiKey)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// Terminal output belongs to the TUI.
	cfg.Logger.Output = tuiLogOutput(cfg.Logger.Output)
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

	provider, err := resolveProvider(ctx, cfg.Client, log)
	if err != nil {
		return err
	}
	policy, _ := letsim.ParseToolPolicy(cfg.Client.ToolPolicy)

	systemPrompt, err := loadSystemPrompt(*promptPath, cfg.Client.SystemPrompt)
	if err != nil {
		return err
	}
	session := letsim.NewSession(systemPrompt, nil)
	if cfg.Client.Model != "" {
		session.SetModel(cfg.Client.Model)
	}

	store := memory.New()
	ws := workspace.New(cfg.Client.ProjectDir, workspace.WithLogger(log))
	if info, err := os.Stat(ws.Dir); err == nil && info.IsDir() {
		paths, err := ws.Pull(store)
		if err != nil {
			return err
		}
		log.Info("loaded project", "dir", ws.Dir, "files", len(paths))
	}

	runner := exec.NewRunner(ws.Dir, log)
	runner.Timeout = cfg.Client.CommandTimeout
	bg := exec.NewBackground(runner)
	defer bg.StopAll()

	executor := exec.NewExecutor(ws.Runner(store, runner))
	loop := agent.New(provider, executor, store,
		agent.WithTools(executor.Tools()...),
		agent.WithToolPolicy(policy),
		agent.WithMaxToolRounds(cfg.Client.MaxToolRounds),
		agent.WithLogger(log),
	)

	agentFn := func(ctx context.Context, s *letsim.Session, onEvent func(letsim.Event)) error {
		return loop.Run(ctx, s, agent.WithEventHandler(onEvent))
	}
	projectFn := func(ctx context.Context, onOutput func(string)) error {
		if err := ws.Prepare(ctx, store, runner, onOutput); err != nil {
			return err
		}
		st, err := ws.StartDevServer(bg, onOutput)
		if err != nil {
			return err
		}
		log.Info("dev server started", "pid", st.PID)
		return nil
	}

	previewFn := writePreview(store, filepath.Join(ws.Dir, previewFile))
	if *previewAddr != "" {
		url, stopPreview, err := servePreview(*previewAddr, store, log)
		if err != nil {
			return err
		}
		defer stopPreview()
		previewFn = func() (string, error) {
			if _, ok := preview.Build(store); !ok {
				return "", errors.New("preview: project has no HTML entry file")
			}
			return url, nil
		}
	}

	tuiModel := bt.New(agentFn, session, letsim.DefaultTheme(),
		bt.WithStore(store),
		bt.WithProjectFunc(projectFn),
		bt.WithPreviewFunc(previewFn),
	)
	if err := bt.Run(ctx, tuiModel); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}

	if err := ws.Sync(store); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Project saved to %s\n", ws.Dir)
	return nil
}

// applyFlags overrides config values with explicitly set flags.
func applyFlags(c *config.ClientConfig, provider, relayURL, model, projectDir, apiKey string) {
	if provider != "" {
		c.Provider = provider
	}
	if relayURL != "" {
		c.RelayURL = relayURL
	}
	if model != "" {
		c.Model = model
	}
	if projectDir != "" {
		c.ProjectDir = projectDir
	}
	if apiKey != "" {
		c.GeminiAPIKey = apiKey
	}
}

func tuiLogOutput(output string) string {
	switch output {
	case "", "stderr", "stdout":
		return filepath.Join(os.TempDir(), "letsim.log")
	default:
		return output
	}
}

// loadSystemPrompt reads the prompt file. A missing default file falls back
// to the configured prompt, then to letsim.DefaultSystemPrompt.
func loadSystemPrompt(path, configured string) (string, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return string(data), nil
	case errors.Is(err, os.ErrNotExist) && path == defaultPromptPath:
	default:
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	if configured != "" {
		return configured, nil
	}
	return letsim.DefaultSystemPrompt, nil
}

// writePreview returns a PreviewFunc that writes the inlined preview
// document to path.
func writePreview(store letsim.ProjectStore, path string) bt.PreviewFunc {
	return func() (string, error) {
		doc, ok := preview.Build(store)
		if !ok {
			return "", errors.New("preview: project has no HTML entry file")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("preview: %w", err)
		}
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			return "", fmt.Errorf("preview: %w", err)
		}
		return path, nil
	}
}

// servePreview serves preview.Handler on addr until the returned stop func
// is called.
func servePreview(addr string, store letsim.ProjectStore, log *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("preview: %w", err)
	}
	srv := &http.Server{
		Handler:           preview.Handler(store),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("preview server failed", "error", err)
		}
	}()
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return "http://localhost:" + port + "/", stop, nil
}
