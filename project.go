package letsim

// FileBlock is one path-tagged file extracted from assistant output.
type FileBlock struct {
	Path    string
	Content string
}

// ProjectStore maps project paths to file contents. Writes fully replace the
// previous value.
type ProjectStore interface {
	Set(path, content string) error
	Get(path string) (string, bool)
	Has(path string) bool
	// Paths returns all stored paths in lexical order.
	Paths() []string
	Delete(path string)
}
