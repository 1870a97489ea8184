package preprocessor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ---------------- Hooks ----------------

// Resolver maps an #include spelling to a full path; "" means not found.
// global is set for the <...> form.
type Resolver interface {
	ResolveFullPath(path string, global bool) string
}

type ResolverFunc func(path string, global bool) string

func (f ResolverFunc) ResolveFullPath(path string, global bool) string { return f(path, global) }

// IncluderResolver is a Resolver that also knows which file contains the
// #include. includer is that file's full path.
type IncluderResolver interface {
	Resolver
	ResolveFrom(includer, path string, global bool) string
}

// IdentityResolver resolves every path to itself.
var IdentityResolver = ResolverFunc(func(path string, _ bool) string { return path })

// Loader supplies the content of a resolved file.
type Loader interface {
	LoadFile(fullPath string) (*FileSource, error)
}

type LoaderFunc func(fullPath string) (*FileSource, error)

func (f LoaderFunc) LoadFile(fullPath string) (*FileSource, error) { return f(fullPath) }

// DiskLoader reads files from disk. A UTF-8 or UTF-16 byte order mark selects
// the decoding; without one the file is read as UTF-8.
type DiskLoader struct{}

func (DiskLoader) LoadFile(fullPath string) (*FileSource, error) {
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", fullPath)
	}
	text, _, err := transform.Bytes(xunicode.BOMOverride(xunicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", fullPath)
	}
	return NewFileSource(fullPath, string(text)), nil
}

// MapLoader serves files from memory, keyed by full path.
type MapLoader map[string]string

func (m MapLoader) LoadFile(fullPath string) (*FileSource, error) {
	text, ok := m[fullPath]
	if !ok {
		return nil, errors.Wrap(os.ErrNotExist, fullPath)
	}
	return NewFileSource(fullPath, text), nil
}

// ---------------- Search paths ----------------

// SearchPathResolver looks a quoted include up next to the including file, then
// in QuoteDirs. Both forms are then looked up in Dirs. Absolute paths are taken
// as they are. Hits are cached.
type SearchPathResolver struct {
	QuoteDirs []string
	Dirs      []string
	Log       *logrus.Entry

	cache *lru.Cache[string, string]
}

const resolveCacheSize = 512

func NewSearchPathResolver(quoteDirs, dirs []string) *SearchPathResolver {
	cache, err := lru.New[string, string](resolveCacheSize)
	if err != nil {
		panic(err)
	}
	return &SearchPathResolver{
		QuoteDirs: quoteDirs,
		Dirs:      dirs,
		Log:       logrus.NewEntry(logrus.StandardLogger()),
		cache:     cache,
	}
}

func (r *SearchPathResolver) ResolveFullPath(path string, global bool) string {
	return r.ResolveFrom("", path, global)
}

func (r *SearchPathResolver) ResolveFrom(includer, path string, global bool) string {
	var local string
	if !global && includer != "" && !isPseudoPath(includer) {
		local = filepath.Dir(includer)
	}
	key := strconv.FormatBool(global) + ":" + local + ":" + path
	if full, ok := r.cache.Get(key); ok {
		return full
	}

	var full string
	if filepath.IsAbs(path) {
		if fileExists(path) {
			full = filepath.Clean(path)
		}
	} else {
		dirs := r.Dirs
		if !global {
			dirs = append(append([]string(nil), r.QuoteDirs...), r.Dirs...)
			if local != "" {
				dirs = append([]string{local}, dirs...)
			}
		}
		for _, dir := range dirs {
			if cand := filepath.Join(dir, path); fileExists(cand) {
				full = filepath.Clean(cand)
				break
			}
		}
	}

	fields := logrus.Fields{"path": path, "global": global, "from": includer}
	if full == "" {
		r.Log.WithFields(fields).Debug("include not found")
		return ""
	}
	r.Log.WithFields(fields).WithField("fullpath", full).Debug("include resolved")
	r.cache.Add(key, full)
	return full
}

// isPseudoPath reports names like <root_file> that have no directory.
func isPseudoPath(p string) bool { return strings.HasPrefix(p, "<") }

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// ---------------- #include ----------------

// handleInclude processes the operands of an #include in toks[from:to].
func (p *Preprocessor) handleInclude(inc *IncludedFile, toks Slice, from, to int) error {
	site := toks.Get(from - 1)
	expanded, err := p.expandAll(toks.Sub(from, to))
	if err != nil {
		return err
	}
	line := expanded.trimBlank()
	if line.Empty() {
		return newTokenError(site, "empty #include path")
	}

	var path string
	global := false
	first := line.Get(0)
	switch {
	case first.Kind == KindString:
		if line.Len() > 1 {
			return newTokenError(line.Get(1), "unexpected token after #include path")
		}
		text := first.Text()
		path = text[1 : len(text)-1]
	case first.Text() == "<":
		last := line.Get(-1)
		if line.Len() < 2 || last.Text() != ">" {
			return newTokenError(last, "expected '>' at the end of #include path")
		}
		path = line.Sub(1, -1).Text()
		global = true
	default:
		return newTokenError(first, "expected '<' or '\"' at the start of #include path")
	}
	if path == "" {
		return newTokenError(first, "empty #include path")
	}

	var full string
	if r, ok := p.Resolver.(IncluderResolver); ok {
		full = r.ResolveFrom(inc.File.FullPath, path, global)
	} else {
		full = p.Resolver.ResolveFullPath(path, global)
	}
	if full == "" {
		if global {
			return newTokenError(first, "failed to resolve fullpath for #include <%s>", path)
		}
		return newTokenError(first, "failed to resolve fullpath for #include \"%s\"", path)
	}

	f, ok := p.files[full]
	if !ok {
		if f, err = p.Loader.LoadFile(full); err != nil {
			e := newTokenError(first, "failed to find #include file with fullpath '%s'", full)
			e.Err = err
			return e
		}
		p.files[full] = f
	}

	for cur := inc; cur != nil; cur = cur.Parent {
		if cur.File == f {
			p.Log.WithField("file", full).Trace("include cycle skipped")
			return nil
		}
	}
	return p.preprocessFile(f, inc, site)
}
