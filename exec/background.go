package exec

import (
	"errors"
	"fmt"
	osexec "os/exec"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned by Start when a process with the same name is alive.
var ErrAlreadyRunning = errors.New("process already running")

// ErrNoProcess is returned for names the registry does not know.
var ErrNoProcess = errors.New("no such background process")

// ProcessStatus is a snapshot of a background process.
type ProcessStatus struct {
	Name     string
	Command  string
	PID      int
	Running  bool
	ExitCode *int
	Output   string
}

type process struct {
	command string
	cmd     *osexec.Cmd
	out     *OutputCollector
	done    chan struct{}

	mu       sync.Mutex
	exitCode *int
}

func (p *process) wait() {
	err := p.cmd.Wait()
	p.out.Close()

	code := 0
	var exitErr *osexec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
	default:
		code = -1
	}
	p.mu.Lock()
	p.exitCode = &code
	p.mu.Unlock()
	close(p.done)
}

func (p *process) status(name string) ProcessStatus {
	p.mu.Lock()
	code := p.exitCode
	p.mu.Unlock()
	text, _ := processOutput(p.out)
	return ProcessStatus{
		Name:     name,
		Command:  p.command,
		PID:      p.cmd.Process.Pid,
		Running:  code == nil,
		ExitCode: code,
		Output:   text,
	}
}

// Background tracks named long-running processes such as the dev server.
// Processes outlive the turn that started them and are stopped explicitly.
type Background struct {
	runner *Runner

	mu    sync.Mutex
	procs map[string]*process
}

// NewBackground creates a registry that starts processes the way runner
// would.
func NewBackground(runner *Runner) *Background {
	return &Background{runner: runner, procs: make(map[string]*process)}
}

// Start launches command under name. Output chunks go to onOutput when it is
// non-nil. Starting a name whose previous process has exited replaces it.
func (b *Background) Start(name, command string, onOutput func(chunk string)) (ProcessStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.procs[name]; ok {
		select {
		case <-old.done:
			old.out.Remove()
		default:
			return old.status(name), fmt.Errorf("exec: %s: %w", name, ErrAlreadyRunning)
		}
	}

	out := NewOutputCollector(int64(DefaultMaxBytes), rollingBufSize)
	if onOutput != nil {
		out.OnWrite(func(p []byte) { onOutput(Sanitize(string(p))) })
	}
	cmd := osexec.Command("bash", "-c", command)
	b.runner.prepare(cmd)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		out.Close()
		return ProcessStatus{}, fmt.Errorf("exec: start %s: %w", name, err)
	}

	p := &process{command: command, cmd: cmd, out: out, done: make(chan struct{})}
	b.procs[name] = p
	go p.wait()

	b.runner.logger().Info("background process started", "name", name, "pid", cmd.Process.Pid, "command", command)
	return p.status(name), nil
}

// Status returns a snapshot of the named process.
func (b *Background) Status(name string) (ProcessStatus, bool) {
	b.mu.Lock()
	p, ok := b.procs[name]
	b.mu.Unlock()
	if !ok {
		return ProcessStatus{}, false
	}
	return p.status(name), true
}

// Names returns the registered process names in lexical order.
func (b *Background) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.procs))
	for n := range b.procs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Done returns a channel closed when the named process exits, or nil if the
// name is unknown.
func (b *Background) Done(name string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.procs[name]; ok {
		return p.done
	}
	return nil
}

// Stop kills the named process group, waits up to five seconds for it to
// exit and removes it from the registry.
func (b *Background) Stop(name string) (ProcessStatus, error) {
	b.mu.Lock()
	p, ok := b.procs[name]
	if ok {
		delete(b.procs, name)
	}
	b.mu.Unlock()
	if !ok {
		return ProcessStatus{}, fmt.Errorf("exec: %s: %w", name, ErrNoProcess)
	}

	select {
	case <-p.done:
	default:
		_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
		select {
		case <-p.done:
		case <-time.After(5 * time.Second):
			return p.status(name), fmt.Errorf("exec: %s did not exit after kill", name)
		}
	}
	st := p.status(name)
	p.out.Remove()
	b.runner.logger().Info("background process stopped", "name", name, "exit_code", exitCodeAttr(st.ExitCode))
	return st, nil
}

// StopAll stops every registered process.
func (b *Background) StopAll() {
	for _, name := range b.Names() {
		_, _ = b.Stop(name)
	}
}
