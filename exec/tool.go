package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bunnhack/letsim"
)

// RunCommandName is the name of the command tool exposed to the model.
const RunCommandName = "run_command"

type runCommandArgs struct {
	Command string `json:"command"`
}

// RunCommandTool returns the run_command tool definition.
func RunCommandTool() letsim.Tool {
	return letsim.Tool{
		Name: RunCommandName,
		Description: fmt.Sprintf(
			"Run a shell command in the project directory (for example npm install). "+
				"Returns the exit code and the last %d lines or %dKB of combined output.",
			DefaultMaxLines, DefaultMaxBytes/1024,
		),
		Parameters: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
	}
}

// Compile-time interface check.
var _ letsim.ToolExecutor = (*Executor)(nil)

// Executor dispatches tool calls to a [letsim.CommandRunner].
type Executor struct {
	runner letsim.CommandRunner
}

// NewExecutor creates an Executor backed by runner.
func NewExecutor(runner letsim.CommandRunner) *Executor {
	return &Executor{runner: runner}
}

// Tools returns the tool definitions the executor serves.
func (e *Executor) Tools() []letsim.Tool {
	return []letsim.Tool{RunCommandTool()}
}

// Execute runs one tool call. Unknown tools, bad arguments, commands that
// fail to start and non-zero exits are all reported as IsError results so
// the model sees them on its next turn. Output chunks are forwarded to
// onEvent as [letsim.EventCommandOutput].
func (e *Executor) Execute(ctx context.Context, call letsim.ToolCall, args json.RawMessage, onEvent func(letsim.Event)) (*letsim.ToolResult, error) {
	if call.Name != RunCommandName {
		return domainError(fmt.Sprintf("unknown tool: %s", call.Name)), nil
	}
	var a runCommandArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return domainError(fmt.Sprintf("invalid arguments: %s", err)), nil
		}
	}
	if strings.TrimSpace(a.Command) == "" {
		return domainError("command is required"), nil
	}

	var onOutput func(string)
	if onEvent != nil {
		onOutput = func(chunk string) {
			onEvent(letsim.EventCommandOutput{ID: call.ID, Chunk: chunk})
		}
	}
	res, err := e.runner.Run(ctx, a.Command, onOutput)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return domainError(err.Error()), nil
	}
	return &letsim.ToolResult{Content: FormatResult(res), IsError: !res.Succeeded()}, nil
}

// FormatResult renders a command result as tool message content.
func FormatResult(res letsim.CommandResult) string {
	var b strings.Builder
	if res.Output != "" {
		b.WriteString(res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			b.WriteByte('\n')
		}
	}
	if res.ExitCode == nil {
		b.WriteString("exit code: none")
	} else {
		fmt.Fprintf(&b, "exit code: %d", *res.ExitCode)
	}
	return b.String()
}
