package memory_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/bunnhack/letsim/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGet(t *testing.T) {
	t.Parallel()

	s := memory.New()
	require.NoError(t, s.Set("index.html", "<p>1</p>"))
	require.NoError(t, s.Set("index.html", "<p>2</p>"))

	got, ok := s.Get("index.html")
	assert.True(t, ok)
	assert.Equal(t, "<p>2</p>", got)
	assert.True(t, s.Has("index.html"))
	assert.Equal(t, 1, s.Len())

	_, ok = s.Get("missing.js")
	assert.False(t, ok)
}

func TestStore_EmptyContentIsStillAFile(t *testing.T) {
	t.Parallel()

	s := memory.New()
	require.NoError(t, s.Set(".gitkeep", ""))
	assert.True(t, s.Has(".gitkeep"))
}

func TestStore_PathsSorted(t *testing.T) {
	t.Parallel()

	s := memory.New()
	for _, p := range []string{"style.css", "index.html", "src/main.js", "main.js"} {
		require.NoError(t, s.Set(p, p))
	}
	assert.Equal(t, []string{"index.html", "main.js", "src/main.js", "style.css"}, s.Paths())
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	s := memory.New()
	require.NoError(t, s.Set("a", "1"))
	s.Delete("a")
	s.Delete("never-there")
	assert.False(t, s.Has("a"))
	assert.Empty(t, s.Paths())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := memory.New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Set(fmt.Sprintf("f%d-%d", i, j), "x")
				_ = s.Paths()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 400, s.Len())
}
