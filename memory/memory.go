// Package memory implements [letsim.ProjectStore] in process memory.
package memory

import (
	"sort"
	"sync"

	"github.com/bunnhack/letsim"
)

// Interface compliance check.
var _ letsim.ProjectStore = (*Store)(nil)

// Store is a mutex-guarded path to content map. The TUI reads it while a
// turn writes to it.
type Store struct {
	mu    sync.RWMutex
	files map[string]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{files: make(map[string]string)}
}

// Set stores content at path, replacing any previous value.
func (s *Store) Set(path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
	return nil
}

// Get returns the content at path.
func (s *Store) Get(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.files[path]
	return c, ok
}

// Has reports whether path exists.
func (s *Store) Has(path string) bool {
	_, ok := s.Get(path)
	return ok
}

// Paths returns every stored path in lexical order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Delete removes path. Deleting a missing path is a no-op.
func (s *Store) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

// Len returns the number of stored files.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
