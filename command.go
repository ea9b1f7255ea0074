package letsim

import "context"

// CommandResult is the outcome of one shell command. ExitCode is nil when the
// process did not exit on its own (killed on timeout or cancellation).
type CommandResult struct {
	ExitCode *int
	Output   string
}

// Succeeded reports whether the command exited with status zero.
func (r CommandResult) Succeeded() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}

// CommandRunner executes shell command lines. onOutput, when non-nil, is
// called with output chunks as they arrive; the full output is still
// returned in CommandResult.
type CommandRunner interface {
	Run(ctx context.Context, command string, onOutput func(chunk string)) (CommandResult, error)
}
