// Package agent orchestrates the conversation loop between a Provider, a
// ToolExecutor and the project store.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/codegen"
	"github.com/bunnhack/letsim/tracer"
)

// DefaultMaxToolRounds is the default number of follow-up model calls made
// after tool results within one Run.
const DefaultMaxToolRounds = 3

// Loop orchestrates the conversation between a Provider and a ToolExecutor
// and applies generated files to a ProjectStore.
type Loop struct {
	provider      letsim.Provider
	executor      letsim.ToolExecutor
	store         letsim.ProjectStore
	tools         []letsim.Tool
	policy        letsim.ToolPolicy
	maxToolRounds int
	logger        *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithTools sets the tool definitions sent with every request.
func WithTools(tools ...letsim.Tool) Option {
	return func(l *Loop) {
		l.tools = tools
	}
}

// WithToolPolicy sets how turns that carry both text and tool calls are
// classified.
func WithToolPolicy(p letsim.ToolPolicy) Option {
	return func(l *Loop) {
		l.policy = p
	}
}

// WithMaxToolRounds bounds follow-up model calls after tool execution.
// Zero executes one round of tools and stops.
func WithMaxToolRounds(n int) Option {
	return func(l *Loop) {
		if n >= 0 {
			l.maxToolRounds = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a Loop. executor may be nil when no tools are offered; store
// may be nil when generated files should not be applied.
func New(provider letsim.Provider, executor letsim.ToolExecutor, store letsim.ProjectStore, opts ...Option) *Loop {
	l := &Loop{
		provider:      provider,
		executor:      executor,
		store:         store,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunOption configures a single Run invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent func(letsim.Event)
}

// WithEventHandler sets a callback that receives each streaming event, tool
// output and tool result during the run. If nil or not set, events are
// silently discarded.
func WithEventHandler(h func(letsim.Event)) RunOption {
	return func(c *runConfig) {
		c.onEvent = h
	}
}

func (c *runConfig) emit(evt letsim.Event) {
	if c.onEvent != nil {
		c.onEvent(evt)
	}
}

// Run sends the session's messages to the provider, streams the response,
// applies any file blocks to the store and executes tool calls, repeating
// while the model requests tools and the follow-up budget allows. Every
// message produced is appended to session.
func (l *Loop) Run(ctx context.Context, session *letsim.Session, opts ...RunOption) error {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	for round := 0; ; round++ {
		cont, err := l.turn(ctx, session, round, &cfg)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		if round >= l.maxToolRounds {
			l.logger.Info("tool round limit reached", "max_tool_rounds", l.maxToolRounds)
			return nil
		}
	}
}

// turn executes one model call. It returns true when tool calls were
// executed and a follow-up call should be made.
func (l *Loop) turn(ctx context.Context, session *letsim.Session, round int, cfg *runConfig) (cont bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	model := session.Model()
	ctx, span := tracer.StartSpan(ctx, "agent.turn")
	span.SetAttributes(tracer.StringAttr("model", model.ID), tracer.IntAttr("round", round))
	defer func() {
		if err != nil {
			tracer.RecordError(span, err)
		} else {
			tracer.SetOK(span)
		}
		span.End()
	}()

	req := letsim.Request{
		Model:    model.ID,
		Messages: session.Messages(),
		Tools:    l.tools,
	}
	if len(l.tools) > 0 {
		req.ToolChoice = "auto"
	}

	stream, err := l.provider.Stream(ctx, req)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	var streamErr error
	for {
		evt, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		cfg.emit(evt)
	}

	msg, msgErr := stream.Message()
	if msgErr != nil {
		if streamErr != nil {
			return false, streamErr
		}
		return false, msgErr
	}
	if streamErr != nil {
		// Keep what arrived, but never leave tool calls without results.
		msg.ToolCalls = nil
		session.Append(msg)
		return false, streamErr
	}

	result := stream.Result(l.policy)
	execute := result.Kind == letsim.ResultToolCall
	if execute {
		msg.ToolCalls = l.sanitizeCalls(result.ToolCalls)
	} else {
		if result.HadToolCalls {
			l.logger.Info("tool calls ignored by policy", "policy", l.policy.String(), "count", len(result.ToolCalls))
		}
		msg.ToolCalls = nil
	}
	session.Append(msg)

	l.applyFiles(msg.Content, cfg)

	if !execute {
		return false, nil
	}
	for _, call := range msg.ToolCalls {
		tm, err := l.runTool(ctx, call, cfg)
		if err != nil {
			return false, err
		}
		session.Append(tm)
	}
	return true, nil
}

// sanitizeCalls replaces arguments that are not valid JSON with "{}".
func (l *Loop) sanitizeCalls(calls []letsim.ToolCall) []letsim.ToolCall {
	out := make([]letsim.ToolCall, len(calls))
	for i, c := range calls {
		if !json.Valid([]byte(c.Arguments)) {
			if c.Arguments != "" {
				l.logger.Warn("tool arguments are not valid JSON", "tool", c.Name, "id", c.ID, "arguments", c.Arguments)
			}
			c.Arguments = "{}"
		}
		out[i] = c
	}
	return out
}

func (l *Loop) applyFiles(text string, cfg *runConfig) {
	if l.store == nil || text == "" {
		return
	}
	blocks := codegen.Extract(text)
	if len(blocks) == 0 {
		return
	}
	paths, err := codegen.Apply(l.store, blocks)
	if err != nil {
		l.logger.Warn("some file blocks were not applied", "error", err)
	}
	if len(paths) > 0 {
		l.logger.Info("files applied", "paths", paths)
		cfg.emit(letsim.EventFilesApplied{Paths: paths})
	}
}

// runTool executes one call. Executor failures become error results; only
// cancellation aborts the run.
func (l *Loop) runTool(ctx context.Context, call letsim.ToolCall, cfg *runConfig) (letsim.ToolMessage, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.tool")
	span.SetAttributes(tracer.StringAttr("tool", call.Name), tracer.StringAttr("call_id", call.ID))
	defer span.End()

	var (
		result  *letsim.ToolResult
		execErr error
	)
	if l.executor == nil {
		execErr = fmt.Errorf("%w: %s", letsim.ErrToolNotFound, call.Name)
	} else {
		result, execErr = l.executor.Execute(ctx, call, json.RawMessage(call.Arguments), cfg.onEvent)
	}
	if execErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(execErr, ctxErr) {
			tracer.RecordError(span, execErr)
			return letsim.ToolMessage{}, execErr
		}
		l.logger.Warn("tool execution failed", "tool", call.Name, "error", execErr)
		result = &letsim.ToolResult{Content: execErr.Error(), IsError: true}
	}
	if result == nil {
		result = &letsim.ToolResult{}
	}
	if result.IsError {
		tracer.RecordError(span, errors.New(result.Content))
	} else {
		tracer.SetOK(span)
	}

	cfg.emit(letsim.EventToolResult{ID: call.ID, Name: call.Name, Content: result.Content, IsError: result.IsError})
	return letsim.ToolMessage{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    result.Content,
		IsError:    result.IsError,
		Timestamp:  time.Now(),
	}, nil
}
