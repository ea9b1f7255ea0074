package exec_test

import (
	"errors"
	"testing"
	"time"

	letsimexec "github.com/bunnhack/letsim/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestBackground(t *testing.T) {
	t.Parallel()

	t.Run("start status stop", func(t *testing.T) {
		t.Parallel()
		bg := letsimexec.NewBackground(letsimexec.NewRunner(t.TempDir(), nil))
		t.Cleanup(bg.StopAll)

		st, err := bg.Start("dev", "echo listening; sleep 30", nil)
		require.NoError(t, err)
		assert.True(t, st.Running)
		assert.Greater(t, st.PID, 0)

		require.Eventually(t, func() bool {
			s, _ := bg.Status("dev")
			return s.Output == "listening\n"
		}, 5*time.Second, 10*time.Millisecond)

		_, err = bg.Start("dev", "true", nil)
		assert.True(t, errors.Is(err, letsimexec.ErrAlreadyRunning))

		st, err = bg.Stop("dev")
		require.NoError(t, err)
		assert.False(t, st.Running)
		require.NotNil(t, st.ExitCode)

		_, ok := bg.Status("dev")
		assert.False(t, ok)
	})

	t.Run("records exit code of finished process", func(t *testing.T) {
		t.Parallel()
		bg := letsimexec.NewBackground(letsimexec.NewRunner("", nil))
		_, err := bg.Start("job", "exit 4", nil)
		require.NoError(t, err)
		waitDone(t, bg.Done("job"))

		st, ok := bg.Status("job")
		require.True(t, ok)
		assert.False(t, st.Running)
		require.NotNil(t, st.ExitCode)
		assert.Equal(t, 4, *st.ExitCode)

		// A finished name can be reused.
		_, err = bg.Start("job", "true", nil)
		require.NoError(t, err)
		waitDone(t, bg.Done("job"))
	})

	t.Run("forwards output", func(t *testing.T) {
		t.Parallel()
		bg := letsimexec.NewBackground(letsimexec.NewRunner("", nil))
		got := make(chan string, 8)
		_, err := bg.Start("echo", "echo ready", func(c string) { got <- c })
		require.NoError(t, err)
		waitDone(t, bg.Done("echo"))
		assert.Equal(t, "ready\n", <-got)
	})

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()
		bg := letsimexec.NewBackground(letsimexec.NewRunner("", nil))
		_, err := bg.Stop("nope")
		assert.True(t, errors.Is(err, letsimexec.ErrNoProcess))
		assert.Nil(t, bg.Done("nope"))
		assert.Empty(t, bg.Names())
	})
}
