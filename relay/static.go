package relay

import (
	iofs "io/fs"
	"net/http"
	"path"
)

// noListFS hides directories that have no index.html so http.FileServer
// never renders a listing.
type noListFS struct {
	fs http.FileSystem
}

func (n noListFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		index, err := n.fs.Open(path.Join(name, "index.html"))
		if err != nil {
			f.Close()
			return nil, iofs.ErrNotExist
		}
		index.Close()
	}
	return f, nil
}

func staticHandler(dir string) http.Handler {
	if dir == "" {
		dir = "."
	}
	files := http.FileServer(noListFS{fs: http.Dir(dir)})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD, OPTIONS")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		files.ServeHTTP(w, r)
	})
}
