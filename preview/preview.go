// Package preview turns the project store into a single self-contained HTML
// document by inlining local stylesheets and scripts.
package preview

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/bunnhack/letsim"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Entry returns the preview entry point: index.html when present, else the
// first .html path in lexical order.
func Entry(store letsim.ProjectStore) (string, bool) {
	if store.Has("index.html") {
		return "index.html", true
	}
	for _, p := range store.Paths() {
		if strings.HasSuffix(strings.ToLower(p), ".html") {
			return p, true
		}
	}
	return "", false
}

// Build renders the entry document with every <link rel="stylesheet"> and
// <script src> that points at a project file replaced by an inline element.
// References to files the store does not have are left untouched. If the
// document cannot be parsed the raw entry HTML is returned.
func Build(store letsim.ProjectStore) (string, bool) {
	entry, ok := Entry(store)
	if !ok {
		return "", false
	}
	raw, _ := store.Get(entry)
	if raw == "" {
		return "", false
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw, true
	}

	var links, scripts []*html.Node
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.DataAtom {
		case atom.Link:
			if isStylesheet(n) && attr(n, "href") != "" {
				links = append(links, n)
			}
		case atom.Script:
			if attr(n, "src") != "" {
				scripts = append(scripts, n)
			}
		}
	}

	for _, n := range links {
		p := ResolvePath(attr(n, "href"))
		css, ok := store.Get(p)
		if p == "" || !ok {
			continue
		}
		replace(n, element(atom.Style, nil, css))
	}
	for _, n := range scripts {
		p := ResolvePath(attr(n, "src"))
		js, ok := store.Get(p)
		if p == "" || !ok {
			continue
		}
		var attrs []html.Attribute
		if t := attr(n, "type"); t != "" {
			attrs = append(attrs, html.Attribute{Key: "type", Val: t})
		}
		replace(n, element(atom.Script, attrs, js))
	}

	root := documentElement(doc)
	if root == nil {
		return raw, true
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n")
	if err := html.Render(&b, root); err != nil {
		return raw, true
	}
	return b.String(), true
}

// ResolvePath maps an href or src to a project path: query and fragment are
// dropped, as is a leading "./" or "/". Absolute URLs resolve to "".
func ResolvePath(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if strings.Contains(ref, "://") || strings.HasPrefix(ref, "//") {
		return ""
	}
	ref = strings.TrimPrefix(ref, "./")
	ref = strings.TrimPrefix(ref, "/")
	return ref
}

// Handler serves the built preview at "/" and raw project files at their
// paths.
func Handler(store letsim.ProjectStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		if r.URL.Path == "/" {
			doc, ok := Build(store)
			if !ok {
				http.Error(w, "no HTML entry point in project", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(doc))
			return
		}
		p := ResolvePath(r.URL.Path)
		content, ok := store.Get(p)
		if !ok {
			http.NotFound(w, r)
			return
		}
		ctype := mime.TypeByExtension(path.Ext(p))
		if ctype == "" {
			ctype = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", ctype)
		_, _ = w.Write([]byte(content))
	})
}

func isStylesheet(n *html.Node) bool {
	for _, v := range strings.Fields(attr(n, "rel")) {
		if strings.EqualFold(v, "stylesheet") {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func element(a atom.Atom, attrs []html.Attribute, text string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

func replace(old, n *html.Node) {
	old.Parent.InsertBefore(n, old)
	old.Parent.RemoveChild(old)
}

func documentElement(doc *html.Node) *html.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Html {
			return c
		}
	}
	return nil
}
