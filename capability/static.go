package capability

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nsa-yoda/ReplyXL/route"
)

// Static serves files below a single root directory. The file is named by
// the first group the route captured.
type Static struct {
	root string
}

// NewStatic fails unless root is an existing directory, so a bad mount is
// reported at startup rather than as 404s later.
func NewStatic(root string) (*Static, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("static root %q: %w", root, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("static root %q: %w", root, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("static root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static root %q is not a directory", root)
	}

	return &Static{root: resolved}, nil
}

// FileParam names the pattern group holding the path below the root,
// e.g. /v1/static/(?P<file>.*).
const FileParam = "file"

func (s *Static) Root() string { return s.root }

func (s *Static) Serve(w http.ResponseWriter, r *http.Request, p route.Params) error {
	name, ok := s.resolve(p.Get(FileParam))
	if !ok {
		writeNotFound(w)
		return nil
	}

	f, err := os.Open(name)
	if err != nil {
		writeNotFound(w)
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		writeNotFound(w)
		return nil
	}

	if ctype := mime.TypeByExtension(filepath.Ext(name)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return nil
}

// resolve maps a request sub-path to a file under root. Anything that
// names a parent directory or lands outside root after symlinks is refused.
func (s *Static) resolve(sub string) (string, bool) {
	if sub == "" || strings.ContainsRune(sub, 0) {
		return "", false
	}

	for _, segment := range strings.FieldsFunc(sub, isSeparator) {
		if segment == ".." {
			return "", false
		}
	}

	cleaned := path.Clean("/" + strings.ReplaceAll(sub, `\`, "/"))
	full := filepath.Join(s.root, filepath.FromSlash(cleaned))

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", false
	}

	if !within(s.root, resolved) {
		return "", false
	}
	return resolved, true
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func within(root, name string) bool {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
