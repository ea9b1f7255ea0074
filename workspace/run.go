package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/exec"
)

// ErrInstallFailed is returned by Prepare when npm install does not exit 0.
var ErrInstallFailed = errors.New("npm install failed")

// DevServerName is the background process name of the dev server.
const DevServerName = "dev"

// Prepare syncs store to disk and runs npm install when node_modules is
// missing. Install output goes to onOutput.
func (w *Workspace) Prepare(ctx context.Context, store letsim.ProjectStore, runner letsim.CommandRunner, onOutput func(chunk string)) error {
	if err := w.Sync(store); err != nil {
		return err
	}
	if w.HasNodeModules() {
		return nil
	}
	w.logger.Info("installing dependencies", "dir", w.Dir)
	res, err := runner.Run(ctx, "npm install", onOutput)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if !res.Succeeded() {
		return fmt.Errorf("workspace: %w", ErrInstallFailed)
	}
	return nil
}

// StartDevServer (re)starts `npm run dev` under DevServerName, stopping any
// previous instance first.
func (w *Workspace) StartDevServer(bg *exec.Background, onOutput func(chunk string)) (exec.ProcessStatus, error) {
	if _, ok := bg.Status(DevServerName); ok {
		if _, err := bg.Stop(DevServerName); err != nil {
			return exec.ProcessStatus{}, fmt.Errorf("workspace: stop dev server: %w", err)
		}
	}
	st, err := bg.Start(DevServerName, "npm run dev", onOutput)
	if err != nil {
		return st, fmt.Errorf("workspace: %w", err)
	}
	return st, nil
}

// Runner wraps runner so every command runs against the current store
// contents: the store is synced to disk first.
func (w *Workspace) Runner(store letsim.ProjectStore, runner letsim.CommandRunner) letsim.CommandRunner {
	return &syncRunner{ws: w, store: store, runner: runner}
}

type syncRunner struct {
	ws     *Workspace
	store  letsim.ProjectStore
	runner letsim.CommandRunner
}

func (r *syncRunner) Run(ctx context.Context, command string, onOutput func(chunk string)) (letsim.CommandResult, error) {
	if err := r.ws.Sync(r.store); err != nil {
		return letsim.CommandResult{}, err
	}
	return r.runner.Run(ctx, command, onOutput)
}
