package preprocessor

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// ---------------- Macros ----------------

type Macro struct {
	Name       *Token
	Params     []*Token // the last one may be ...
	ObjectLike bool
	Body       Slice

	// DefSite holds the #define line at [DefStart,DefEnd) of DefSite.Tokens.
	DefSite          *IncludedFile
	DefStart, DefEnd int
}

func (m *Macro) String() string { return m.Name.Text() }

func (m *Macro) Variadic() bool {
	return len(m.Params) > 0 && m.Params[len(m.Params)-1].Kind == KindDotDotDot
}

// paramIndex finds the formal parameter spelled name. __VA_ARGS__ names the
// trailing ... only.
func (m *Macro) paramIndex(name string) int {
	if m.ObjectLike {
		return -1
	}
	for i, p := range m.Params {
		if p.Kind == KindDotDotDot {
			if name == "__VA_ARGS__" {
				return i
			}
			continue
		}
		if p.Text() == name {
			return i
		}
	}
	return -1
}

// Definition is the #define line as it appears in its file.
func (m *Macro) Definition() Slice {
	return m.DefSite.Tokens.Sub(m.DefStart, m.DefEnd)
}

// MacroExpansion records one use of a macro together with every
// intermediate stage of its replacement list.
type MacroExpansion struct {
	Macro  *Macro
	Parent *MacroExpansion
	Name   *Token
	Args   []Slice

	// Replaced covers the call-site tokens the expansion consumed, including
	// tokens swallowed from the trailing context while rescanning.
	Replaced Slice
	Hideset  *Hideset

	BeforeStringize Slice
	AfterStringize  Slice
	AfterConcat     Slice
	AfterPrescan    Slice
	AfterRescan     Slice

	depth int
}

// Stage is one named intermediate replacement list.
type Stage struct {
	Name   string
	Tokens Slice
}

// Stages lists the replacement stages in pipeline order.
func (e *MacroExpansion) Stages() []Stage {
	return []Stage{
		{"before stringize", e.BeforeStringize},
		{"after stringize", e.AfterStringize},
		{"after concat", e.AfterConcat},
		{"after prescan", e.AfterPrescan},
		{"after rescan", e.AfterRescan},
	}
}

// IncludedFile is one walk over a file, chained to the file that included
// it.
type IncludedFile struct {
	Parent *IncludedFile
	File   *FileSource
	Tokens Slice
	Site   *Token // the include keyword, nil for top-level files
}

// Depth is the number of files above inc.
func (inc *IncludedFile) Depth() int {
	d := 0
	for p := inc.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// ---------------- #define ----------------

// parseDefine reads a #define whose name is expected at or after cursor and
// returns the index just past the directive line.
func (p *Preprocessor) parseDefine(inc *IncludedFile, toks Slice, hashIdx, cursor int) (int, error) {
	i := skipSpaces(toks, cursor)
	name := toks.Get(i)
	if !name.Kind.isIdent() {
		return 0, newTokenError(name, "expected an identifier after #define")
	}
	m := &Macro{Name: name, ObjectLike: true, DefSite: inc, DefStart: hashIdx}
	i++

	if t := toks.Get(i); t.Kind == KindPunct && t.Text() == "(" {
		m.ObjectLike = false
		var err error
		if i, err = parseParams(m, toks, i+1); err != nil {
			return 0, err
		}
	}

	end := lineEnd(toks, i)
	body := toks.Sub(i, end).trimBlank()
	b := newLeafBuilder(SourceMacroDef, body.Len())
	for k := 0; k < body.Len(); k++ {
		t := p.arena.derive(body.Get(k), nil)
		if t.Kind == KindIdent {
			t.Kind = KindPrescanIdent
		}
		b.Add(t)
	}
	set := b.Seal()
	set.macro = m
	m.Body = set.All()
	m.DefEnd = end

	if !m.ObjectLike {
		if err := validateStringize(m); err != nil {
			return 0, err
		}
	}

	p.macros[name.Text()] = m
	p.Log.WithFields(logrus.Fields{
		"macro":  name.Text(),
		"params": len(m.Params),
		"object": m.ObjectLike,
	}).Trace("define")
	return skipLineBreak(toks, end), nil
}

// parseParams reads a formal parameter list starting after its '(' and
// returns the index after the closing ')'.
func parseParams(m *Macro, toks Slice, i int) (int, error) {
	seen := map[string]bool{}
	i = skipSpaces(toks, i)
	if t := toks.Get(i); t.Kind == KindPunct && t.Text() == ")" {
		return i + 1, nil
	}
	for {
		i = skipSpaces(toks, i)
		t := toks.Get(i)
		if m.Variadic() {
			if t.Kind == KindDotDotDot {
				return 0, newTokenError(t, "duplicate macro argument")
			}
			return 0, newTokenError(t, "unexpected macro argument after '...'")
		}
		switch {
		case t.Kind == KindDotDotDot:
		case t.Kind.isIdent():
			if seen[t.Text()] {
				return 0, newTokenError(t, "duplicate macro argument")
			}
			seen[t.Text()] = true
		default:
			return 0, newTokenError(t, "expected an identifier as a macro argument")
		}
		m.Params = append(m.Params, t)

		i = skipSpaces(toks, i+1)
		sep := toks.Get(i)
		switch {
		case sep.Kind == KindPunct && sep.Text() == ",":
			i++
		case sep.Kind == KindPunct && sep.Text() == ")":
			return i + 1, nil
		default:
			return 0, newTokenError(sep, "expected ',' after macro argument")
		}
	}
}

// validateStringize checks that every # in a function-like body names a
// parameter.
func validateStringize(m *Macro) error {
	body := m.Body
	for k := 0; k < body.Len(); k++ {
		if body.Kind(k) != KindHash {
			continue
		}
		j := skipSpaces(body, k+1)
		arg := body.Get(j)
		if arg == nil || !arg.Kind.isIdent() {
			return newTokenError(body.Get(k), "expected macro argument after # in a macro")
		}
		if m.paramIndex(arg.Text()) < 0 {
			return newTokenError(arg, "macro argument is not found for stringizing")
		}
	}
	return nil
}

// Define installs NAME or NAME(params) with the given replacement, as if
// "#define name value" had been read from a <command_line> file.
func (p *Preprocessor) Define(name, value string) error {
	src := "#define " + name + " " + value + "\n"
	return p.PreprocessFile(NewFileSource("<command_line>", src))
}

// DefineFromFlag accepts the -D syntax NAME or NAME=VALUE; a bare NAME is
// defined to 1.
func (p *Preprocessor) DefineFromFlag(s string) error {
	name, value := ParseDefine(s)
	return p.Define(name, value)
}

func ParseDefine(s string) (name, value string) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, "1"
}

// Undefine removes a macro; unknown names are ignored.
func (p *Preprocessor) Undefine(name string) {
	delete(p.macros, name)
}

func (p *Preprocessor) Macro(name string) (*Macro, bool) {
	m, ok := p.macros[name]
	return m, ok
}

// ---------------- Line helpers ----------------

func skipSpaces(toks Slice, i int) int {
	for toks.Kind(i) == KindSpace {
		i++
	}
	return i
}

func skipBlanks(toks Slice, i int) int {
	for toks.Kind(i).isBlank() {
		i++
	}
	return i
}

// lineEnd returns the index of the line break or EOF ending the line at i.
func lineEnd(toks Slice, i int) int {
	for {
		switch toks.Kind(i) {
		case KindLineBreak, KindEOF:
			return i
		}
		i++
	}
}

func skipLineBreak(toks Slice, i int) int {
	if toks.Kind(i) == KindLineBreak {
		return i + 1
	}
	return i
}
