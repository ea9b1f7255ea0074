package exec_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bunnhack/letsim"
	letsimexec "github.com/bunnhack/letsim/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	t.Run("combines stdout and stderr", func(t *testing.T) {
		t.Parallel()
		r := letsimexec.NewRunner(t.TempDir(), nil)
		res, err := r.Run(context.Background(), "echo out && echo err >&2", nil)
		require.NoError(t, err)
		require.NotNil(t, res.ExitCode)
		assert.Equal(t, 0, *res.ExitCode)
		assert.True(t, res.Succeeded())
		assert.Contains(t, res.Output, "out\n")
		assert.Contains(t, res.Output, "err\n")
	})

	t.Run("runs in Dir", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644))
		res, err := letsimexec.NewRunner(dir, nil).Run(context.Background(), "ls", nil)
		require.NoError(t, err)
		assert.Contains(t, res.Output, "marker.txt")
	})

	t.Run("reports non-zero exit", func(t *testing.T) {
		t.Parallel()
		res, err := letsimexec.NewRunner("", nil).Run(context.Background(), "echo nope; exit 3", nil)
		require.NoError(t, err)
		require.NotNil(t, res.ExitCode)
		assert.Equal(t, 3, *res.ExitCode)
		assert.False(t, res.Succeeded())
	})

	t.Run("streams output chunks", func(t *testing.T) {
		t.Parallel()
		var mu sync.Mutex
		var chunks []string
		res, err := letsimexec.NewRunner("", nil).Run(context.Background(), `printf 'one\n'; sleep 0.05; printf '\033[1mtwo\033[0m\n'`, func(c string) {
			mu.Lock()
			defer mu.Unlock()
			chunks = append(chunks, c)
		})
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\n", res.Output)
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "one\ntwo\n", strings.Join(chunks, ""))
	})

	t.Run("timeout leaves exit code nil", func(t *testing.T) {
		t.Parallel()
		r := &letsimexec.Runner{Timeout: 200 * time.Millisecond}
		start := time.Now()
		res, err := r.Run(context.Background(), "echo started; sleep 30", nil)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.Nil(t, res.ExitCode)
		assert.False(t, res.Succeeded())
		assert.Contains(t, res.Output, "started")
		assert.Contains(t, res.Output, "command did not finish")
	})

	t.Run("cancellation leaves exit code nil", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(100*time.Millisecond, cancel)
		res, err := letsimexec.NewRunner("", nil).Run(ctx, "sleep 30", nil)
		require.NoError(t, err)
		assert.Nil(t, res.ExitCode)
	})

	t.Run("empty command is a validation error", func(t *testing.T) {
		t.Parallel()
		_, err := letsimexec.NewRunner("", nil).Run(context.Background(), "  ", nil)
		assert.True(t, errors.Is(err, letsim.ErrValidation))
	})

	t.Run("missing directory fails to start", func(t *testing.T) {
		t.Parallel()
		_, err := letsimexec.NewRunner(filepath.Join(t.TempDir(), "gone"), nil).Run(context.Background(), "true", nil)
		assert.Error(t, err)
	})

	t.Run("env is passed through", func(t *testing.T) {
		t.Parallel()
		r := &letsimexec.Runner{Env: []string{"LETSIM_PROBE=42"}}
		res, err := r.Run(context.Background(), "echo $LETSIM_PROBE", nil)
		require.NoError(t, err)
		assert.Equal(t, "42\n", res.Output)
	})
}
