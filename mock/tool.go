package mock

import (
	"context"
	"encoding/json"

	"github.com/bunnhack/letsim"
)

// Interface compliance checks.
var (
	_ letsim.ToolExecutor  = (*ToolExecutor)(nil)
	_ letsim.CommandRunner = (*CommandRunner)(nil)
)

// ToolExecutor is a test double for letsim.ToolExecutor.
// Set ExecuteFn before calling Execute.
type ToolExecutor struct {
	ExecuteFn func(ctx context.Context, call letsim.ToolCall, args json.RawMessage, onEvent func(letsim.Event)) (*letsim.ToolResult, error)
}

// Execute delegates to ExecuteFn.
func (e *ToolExecutor) Execute(ctx context.Context, call letsim.ToolCall, args json.RawMessage, onEvent func(letsim.Event)) (*letsim.ToolResult, error) {
	return e.ExecuteFn(ctx, call, args, onEvent)
}

// CommandRunner is a test double for letsim.CommandRunner.
// Set RunFn before calling Run.
type CommandRunner struct {
	RunFn func(ctx context.Context, command string, onOutput func(chunk string)) (letsim.CommandResult, error)
}

// Run delegates to RunFn.
func (r *CommandRunner) Run(ctx context.Context, command string, onOutput func(chunk string)) (letsim.CommandResult, error) {
	return r.RunFn(ctx, command, onOutput)
}
