package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	osexec "os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/bunnhack/letsim"
)

// DefaultTimeout bounds a single foreground command.
const DefaultTimeout = 2 * time.Minute

const rollingBufSize = 2 * DefaultMaxBytes

// Interface compliance check.
var _ letsim.CommandRunner = (*Runner)(nil)

// Runner executes command lines with bash -c inside Dir. The zero value runs
// in the current directory with DefaultTimeout.
type Runner struct {
	Dir     string
	Timeout time.Duration
	// Env is appended to the parent environment.
	Env    []string
	Logger *slog.Logger
}

// NewRunner creates a Runner for dir.
func NewRunner(dir string, logger *slog.Logger) *Runner {
	return &Runner{Dir: dir, Logger: logger}
}

// Run executes command and waits for it. Output chunks are passed to
// onOutput as they arrive. A non-zero exit is reported through ExitCode, not
// as an error; ExitCode is nil when the command was killed on timeout or
// cancellation. An error is returned only when the command cannot start.
func (r *Runner) Run(ctx context.Context, command string, onOutput func(chunk string)) (letsim.CommandResult, error) {
	if strings.TrimSpace(command) == "" {
		return letsim.CommandResult{}, fmt.Errorf("exec: empty command: %w", letsim.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	out := NewOutputCollector(int64(DefaultMaxBytes), rollingBufSize)
	if onOutput != nil {
		out.OnWrite(func(p []byte) { onOutput(Sanitize(string(p))) })
	}
	defer out.Close()

	cmd := r.command(ctx, command)
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return letsim.CommandResult{}, fmt.Errorf("exec: start %q: %w", command, err)
	}
	waitErr := cmd.Wait()

	var res letsim.CommandResult
	var exitErr *osexec.ExitError
	switch {
	case waitErr == nil:
		code := 0
		res.ExitCode = &code
	case errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0:
		code := exitErr.ExitCode()
		res.ExitCode = &code
	case ctx.Err() != nil:
		// Killed: ExitCode stays nil.
	default:
		code := -1
		res.ExitCode = &code
	}

	text, tr := processOutput(out)
	var b strings.Builder
	b.WriteString(text)
	if res.ExitCode == nil {
		if b.Len() > 0 && !strings.HasSuffix(text, "\n") {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "command did not finish: %s", ctx.Err())
	}
	appendOffloadNotice(&b, tr, out)
	res.Output = b.String()

	r.logger().Debug("command finished",
		"command", command,
		"exit_code", exitCodeAttr(res.ExitCode),
		"duration", time.Since(start),
		"bytes", out.TotalBytes(),
	)
	return res, nil
}

// command builds a bash process bound to ctx. Cancellation kills the whole
// process group so children spawned by the command die with it.
func (r *Runner) command(ctx context.Context, command string) *osexec.Cmd {
	cmd := osexec.CommandContext(ctx, "bash", "-c", command)
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
	r.prepare(cmd)
	return cmd
}

// prepare puts cmd in its own process group and applies Dir and Env.
func (r *Runner) prepare(cmd *osexec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
}

func (r *Runner) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func exitCodeAttr(code *int) any {
	if code == nil {
		return "none"
	}
	return *code
}

// processOutput sanitizes and tail-truncates collected output. The line
// total comes from the collector because the rolling buffer may have
// dropped the head of the output.
func processOutput(c *OutputCollector) (string, TruncateResult) {
	raw := string(c.Bytes())
	tr := TruncateTail(Sanitize(raw), DefaultMaxLines, DefaultMaxBytes)
	total := c.TotalNewlines()
	if raw != "" && !strings.HasSuffix(raw, "\n") {
		total++
	}
	tr.TotalLines = total
	return tr.Content, tr
}

func appendOffloadNotice(b *strings.Builder, tr TruncateResult, c *OutputCollector) {
	path, err := c.FilePath(), c.Err()
	switch {
	case path != "" && err == nil:
		fmt.Fprintf(b, "\n[showing last %d of %d lines, full output: %s]", tr.OutputLines, tr.TotalLines, path)
	case path != "":
		fmt.Fprintf(b, "\n[showing last %d of %d lines, full output may be incomplete: %s (%s)]", tr.OutputLines, tr.TotalLines, path, err)
	case tr.Truncated:
		fmt.Fprintf(b, "\n[showing last %d of %d lines]", tr.OutputLines, tr.TotalLines)
	}
}
