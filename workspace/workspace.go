// Package workspace mirrors the in-memory project onto a real directory so it
// can be installed and served with node tooling.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/codegen"
)

// IgnorePatterns lists project-relative globs Pull never loads.
var IgnorePatterns = []string{"node_modules/**", ".git/**", ".letsim/**", "dist/**"}

// MaxPullSize is the largest file Pull loads into the store.
const MaxPullSize = 1 << 20

// Workspace is a project directory on disk.
type Workspace struct {
	Dir    string
	logger *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) {
		w.logger = l
	}
}

// New returns a Workspace rooted at dir.
func New(dir string, opts ...Option) *Workspace {
	w := &Workspace{Dir: dir, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SafeJoin maps a project path to a filesystem path under root. Paths that
// would escape root are rejected with letsim.ErrInvalidPath.
func SafeJoin(root, p string) (string, error) {
	clean, err := codegen.CleanPath(p)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", letsim.ErrInvalidPath, p, root)
	}
	return full, nil
}

const scaffoldIndex = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>letsim app</title>
    <link rel="stylesheet" href="/style.css">
  </head>
  <body>
    <h1>Hello from letsim</h1>
    <p>Ask the assistant for changes and press Ctrl+R to run.</p>
    <script type="module" src="/main.js"></script>
  </body>
</html>`

const scaffoldMain = `document.body.insertAdjacentHTML('beforeend', '<p>JS loaded at ' + new Date().toLocaleTimeString() + '</p>');`

const scaffoldStyle = `body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif;padding:24px}`

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private"`
	Type            string            `json:"type"`
	Scripts         packageScripts    `json:"scripts"`
	DevDependencies map[string]string `json:"devDependencies"`
}

type packageScripts struct {
	Dev     string `json:"dev"`
	Build   string `json:"build"`
	Preview string `json:"preview"`
}

// DefaultPackageJSON returns the package.json written when the project has
// none: a vite app with dev, build and preview scripts.
func DefaultPackageJSON() []byte {
	pkg := packageJSON{
		Name:    "letsim-project",
		Version: "0.0.0",
		Private: true,
		Type:    "module",
		Scripts: packageScripts{
			Dev:     "vite --port 5173 --host",
			Build:   "vite build",
			Preview: "vite preview --host",
		},
		DevDependencies: map[string]string{"vite": "^5.4.0"},
	}
	data, _ := json.MarshalIndent(pkg, "", "  ")
	return data
}

// Sync writes every store file into the directory. A project without
// index.html first gets a minimal index.html, main.js and style.css, and a
// default package.json is added when none exists after the write.
func (w *Workspace) Sync(store letsim.ProjectStore) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	if !store.Has("index.html") {
		w.logger.Info("scaffolding project", "dir", w.Dir)
		scaffold := map[string]string{
			"index.html": scaffoldIndex,
			"main.js":    scaffoldMain,
			"style.css":  scaffoldStyle,
		}
		for p, content := range scaffold {
			if err := w.write(p, content); err != nil {
				return err
			}
		}
	}

	for _, p := range store.Paths() {
		content, _ := store.Get(p)
		if err := w.write(p, content); err != nil {
			return err
		}
	}

	pkg := filepath.Join(w.Dir, "package.json")
	if _, err := os.Stat(pkg); errors.Is(err, iofs.ErrNotExist) {
		if err := os.WriteFile(pkg, DefaultPackageJSON(), 0o644); err != nil {
			return fmt.Errorf("workspace: write package.json: %w", err)
		}
	}
	w.logger.Debug("workspace synced", "dir", w.Dir, "files", len(store.Paths()))
	return nil
}

func (w *Workspace) write(p, content string) error {
	full, err := SafeJoin(w.Dir, p)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	return nil
}

// Pull loads text files from the directory into store, skipping
// IgnorePatterns, binary files and files larger than MaxPullSize. It returns
// the loaded paths in walk order.
func (w *Workspace) Pull(store letsim.ProjectStore) ([]string, error) {
	var loaded []string
	err := filepath.WalkDir(w.Dir, func(full string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.Dir, full)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || info.Size() > MaxPullSize {
			return nil
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return err
		}
		if !isText(data) {
			return nil
		}
		if err := store.Set(rel, string(data)); err != nil {
			return err
		}
		loaded = append(loaded, rel)
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("workspace: pull: %w", err)
	}
	return loaded, nil
}

// HasNodeModules reports whether dependencies have been installed.
func (w *Workspace) HasNodeModules() bool {
	info, err := os.Stat(filepath.Join(w.Dir, "node_modules"))
	return err == nil && info.IsDir()
}

func ignored(rel string) bool {
	for _, pattern := range IgnorePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func isText(data []byte) bool {
	return utf8.Valid(data) && !strings.ContainsRune(string(data), 0)
}
