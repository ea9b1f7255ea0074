// Package exec runs shell commands in the project working directory.
//
// [Runner] implements [letsim.CommandRunner] on top of bash, [Executor]
// exposes it to the model as the run_command tool, and [Background] keeps
// long-running processes such as the dev server alive across turns.
// Output is sanitized of terminal escapes and tail-truncated before it is
// returned.
package exec

import "github.com/bunnhack/letsim"

func domainError(msg string) *letsim.ToolResult {
	return &letsim.ToolResult{Content: msg, IsError: true}
}
