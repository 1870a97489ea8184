package preprocessor

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
)

// ---------------- Colors ----------------

// Color is an ANSI color number; foreground is 30+c, background 40+c.
type Color uint8

const (
	Black Color = iota
	Red
	Green
	Yellow
	Blue
	Magenta
	Cyan
	White
)

func (c Color) fg() string { return "\x1b[0;" + strconv.Itoa(30+int(c)) + "m" }

func (c Color) bg() string { return "\x1b[0;" + strconv.Itoa(40+int(c)) + "m" }

const resetSGR = "\x1b[0m"

// ---------------- Rendering ----------------

type RenderOptions struct {
	Color   bool
	Context int // lines of context around a highlight; 0 means 3
}

const (
	defaultContext = 3
	maxSiteDepth   = 8
	tabWidth       = 4
)

// RenderError writes a human readable report of err. Preprocessing errors
// get source excerpts; anything else is printed as is.
func RenderError(w io.Writer, err error, opts RenderOptions) error {
	if opts.Context <= 0 {
		opts.Context = defaultContext
	}
	r := &renderer{opts: opts}

	var de *DetailedError
	var fe *FileError
	switch {
	case errors.As(err, &de):
		r.detailedError(de)
	case errors.As(err, &fe):
		r.fileError(fe)
	default:
		fmt.Fprintf(&r.b, "Error: %v\n", err)
	}
	_, werr := io.WriteString(w, r.b.String())
	return werr
}

type renderer struct {
	opts RenderOptions
	b    strings.Builder
}

func (r *renderer) printf(indent int, format string, args ...any) {
	r.b.WriteString(strings.Repeat("  ", indent))
	fmt.Fprintf(&r.b, format, args...)
	r.b.WriteByte('\n')
}

func (r *renderer) detailedError(e *DetailedError) {
	r.printf(0, "Error: %s", e.Msg)
	for _, n := range e.Nodes {
		if n.Printer != nil {
			r.printer(n.Printer, 0)
		} else {
			r.printf(0, "%s", n.Text)
		}
	}
}

func (r *renderer) fileError(e *FileError) {
	r.printf(0, "Error: %s", e.Msg)
	f, start, end := e.Location()
	if f == nil {
		if e.Token != nil {
			r.printf(1, "at %s", e.Token)
		}
		return
	}
	line, col := f.LineCol(start)
	r.printf(0, "File: %s:%d:%d", f.FullPath, line, col)
	if e.Token != nil {
		r.includeTrace(e.Token.includedFile(), 1)
	}
	r.excerpt(f, start, end, Red, 0)
	if e.Token != nil && e.Token.Source() != SourceIncludedFile && e.Token.Source() != SourceFile {
		r.site(e.Token, 1)
	}
	if e.Err != nil {
		r.printf(0, "Cause: %v", e.Err)
	}
}

// includeTrace prints the files that included inc, innermost first.
func (r *renderer) includeTrace(inc *IncludedFile, indent int) {
	for ; inc != nil && inc.Site != nil; inc = inc.Parent {
		f, start, _ := tokenLocation(inc.Site)
		if f == nil {
			continue
		}
		line, _ := f.LineCol(start)
		r.printf(indent, "Included from: %s:%d", f.FullPath, line)
	}
}

// excerpt prints the original text around [start,end) with the range
// highlighted and a line number gutter.
func (r *renderer) excerpt(f *FileSource, start, end int, c Color, indent int) {
	src := f.Original
	lineStart := func(pos int) int { return strings.LastIndexByte(src[:pos], '\n') + 1 }
	lineStop := func(pos int) int {
		if k := strings.IndexByte(src[pos:], '\n'); k >= 0 {
			return pos + k
		}
		return len(src)
	}

	from := lineStart(start)
	for n := 0; n < r.opts.Context && from > 0; n++ {
		from = lineStart(from - 1)
	}
	to := lineStop(max(end, start))
	for n := 0; n < r.opts.Context && to < len(src); n++ {
		to = lineStop(to + 1)
	}

	line, _ := f.LineCol(from)
	em := r.newEmitter(indent, line)
	hl := &style{on: true, color: c}
	em.put(src[from:start], nil, nil)
	if start == end {
		em.put(" ", hl, nil)
	}
	em.put(src[start:end], hl, nil)
	em.put(src[end:to], nil, nil)
	em.flush()
}

// ---------------- Detailed printer ----------------

type zone struct {
	from, to int // token range in the printer's slice
	number   int
	key      any
}

// zoneKey groups tokens that came out of the same expansion step; plain file
// tokens have no key.
func zoneKey(t *Token) any {
	if t.set == nil {
		return nil
	}
	switch t.set.source {
	case SourceFile, SourceIncludedFile, SourceNone:
		return nil
	case SourceMacroDef:
		return t.set.macro
	}
	if t.set.exp != nil {
		return t.set.exp
	}
	return t.set
}

func (r *renderer) printer(dp *DetailedPrinter, depth int) {
	toks := dp.Tokens
	if toks.Len() == 0 {
		return
	}
	spans := append([]Span(nil), dp.Spans...)
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End-spans[i].Start > spans[j].End-spans[j].Start
	})

	lo, hi := 0, toks.Len()
	if len(spans) > 0 {
		lo, hi = spans[0].Start, spans[0].End
		for _, s := range spans {
			hi = max(hi, s.End)
		}
		lo = contextBefore(toks, lo, r.opts.Context)
		hi = contextAfter(toks, hi, r.opts.Context)
	}
	for hi > lo && toks.Kind(hi-1) == KindEOF {
		hi--
	}

	var zones []*zone
	zoneOf := make([]*zone, hi-lo)
	for i := lo; i < hi; i++ {
		key := zoneKey(toks.Get(i))
		if key == nil {
			continue
		}
		if n := len(zones); n > 0 && zones[n-1].key == key && zones[n-1].to == i {
			zones[n-1].to = i + 1
		} else {
			zones = append(zones, &zone{from: i, to: i + 1, number: len(zones) + 1, key: key})
		}
		zoneOf[i-lo] = zones[len(zones)-1]
	}

	gutter := 0
	if !dp.ExpandSite || len(zones) == 0 {
		if first := toks.Get(lo); first != nil && zoneKey(first) == nil && first.fileToken() != nil {
			ft := first.fileToken()
			s, _ := ft.set.file.Region(ft.index)
			gutter, _ = ft.set.file.LineCol(ft.set.file.OriginalOffset(s))
		}
	}
	em := r.newEmitter(depth, gutter)

	var prev *Token
	var marker *zoneMarker
	var markerZone *zone
	for i := lo; i < hi; i++ {
		t := toks.Get(i)
		var hl *style
		for _, s := range spans {
			if s.Start == s.End && s.Start == i {
				em.put(" ", &style{on: true, color: s.Color}, nil)
			}
			if s.Start <= i && i < s.End {
				hl = &style{on: true, color: s.Color}
			}
		}
		if z := zoneOf[i-lo]; z != nil {
			if z != markerZone {
				marker, markerZone = newZoneMarker(z.number), z
			}
		} else {
			marker, markerZone = nil, nil
		}

		ft := t.fileToken()
		if ft == nil || zoneKey(t) != nil {
			em.put(t.Text(), hl, marker)
			prev = nil
			continue
		}
		f := ft.set.file
		s, e := f.Region(ft.index)
		ogStart, ogEnd := f.OriginalRange(s, e)
		if prev != nil && prev.set == ft.set && prev.index+1 == ft.index {
			ps, pe := f.Region(prev.index)
			_, prevEnd := f.OriginalRange(ps, pe)
			if prevEnd < ogStart {
				em.put(f.Original[prevEnd:ogStart], nil, nil)
			}
		}
		text := f.Original[ogStart:ogEnd]
		if t.Kind == KindLineBreak {
			text = "\n"
		}
		em.put(text, hl, marker)
		prev = ft
	}
	for _, s := range spans {
		if s.Start == s.End && s.Start == hi {
			em.put(" ", &style{on: true, color: s.Color}, nil)
		}
	}
	em.flush()

	if !dp.ExpandSite {
		return
	}
	for _, z := range zones {
		r.printf(depth, "Site %d:", z.number)
		r.site(toks.Get(z.from), depth+1)
	}
}

// contextBefore walks back from i over n earlier lines.
func contextBefore(toks Slice, i, n int) int {
	breaks := 0
	for k := i - 1; k >= 0; k-- {
		if toks.Kind(k) == KindLineBreak {
			breaks++
			if breaks > n {
				return k + 1
			}
		}
	}
	return 0
}

// contextAfter walks forward from i to the end of the n-th following line.
func contextAfter(toks Slice, i, n int) int {
	breaks := 0
	for k := i; k < toks.Len(); k++ {
		if toks.Kind(k) == KindLineBreak {
			breaks++
			if breaks > n {
				return k + 1
			}
		}
	}
	return toks.Len()
}

// ---------------- Sites ----------------

// site explains where t came from.
func (r *renderer) site(t *Token, depth int) {
	if depth > maxSiteDepth {
		r.printf(depth, "...")
		return
	}
	switch src := t.Source(); src {
	case SourceFile:
		r.printf(depth, "In file: %s", t.set.file.FullPath)
		r.printer(&DetailedPrinter{Tokens: t.set.All(), Spans: []Span{{Start: t.index, End: t.index + 1, Color: Cyan}}}, depth)

	case SourceIncludedFile:
		inc := t.set.included
		r.printf(depth, "In file: %s", inc.File.FullPath)
		r.includeTrace(inc, depth)
		r.printer(&DetailedPrinter{Tokens: inc.Tokens, Spans: []Span{{Start: t.index, End: t.index + 1, Color: Cyan}}}, depth)

	case SourceMacroDef:
		m := t.set.macro
		r.printf(depth, "In the definition of macro '%s':", m)
		r.definition(m, depth)

	case SourceDefined:
		r.printf(depth, "Result of 'defined':")
		r.site(t.parent, depth+1)

	case SourceMacro, SourceStringize, SourceConcat, SourceConcatResidue, SourcePrescan:
		exp := t.set.exp
		m := exp.Macro
		switch src {
		case SourceStringize:
			r.printf(depth, "Stringized in macro '%s'", m)
		case SourceConcat:
			c := t.set.concat
			r.printf(depth, "Pasted in macro '%s' from '%s' ## '%s'", m, tokenText(c.Lhs), tokenText(c.Rhs))
		case SourceConcatResidue:
			r.printf(depth, "Argument residue of ## in macro '%s'", m)
		case SourcePrescan:
			r.printf(depth, "Pre-expanded argument of macro '%s'", m)
		default:
			r.printf(depth, "Expanded from macro '%s'", m)
		}
		r.printf(depth, "Defined in:")
		r.definition(m, depth+1)
		for _, st := range exp.Stages() {
			r.printf(depth+1, "%-18s%s", st.Name+":", oneLine(st.Tokens))
		}
		r.printf(depth, "Called at:")
		r.callSite(exp.Replaced, depth+1)

	default:
		r.printf(depth, "%s", t)
	}
}

func tokenText(t *Token) string {
	if t == nil {
		return ""
	}
	return t.Text()
}

func (r *renderer) definition(m *Macro, depth int) {
	r.includeTrace(m.DefSite, depth)
	r.printer(&DetailedPrinter{
		Tokens: m.DefSite.Tokens,
		Spans:  []Span{{Start: m.DefStart, End: m.DefEnd, Color: Cyan}},
	}, depth)
}

// callSite shows replaced tokens in their file when they all sit in one
// included file, otherwise follows the first one further up.
func (r *renderer) callSite(replaced Slice, depth int) {
	first, last := replaced.Get(0), replaced.Get(-1)
	if first == nil {
		return
	}
	if first.Source() == SourceIncludedFile && last.set == first.set {
		inc := first.set.included
		r.printf(depth, "In file: %s", inc.File.FullPath)
		r.includeTrace(inc, depth)
		r.printer(&DetailedPrinter{
			Tokens: inc.Tokens,
			Spans:  []Span{{Start: first.index, End: last.index + 1, Color: Cyan}},
		}, depth)
		return
	}
	r.site(first, depth+1)
}

// oneLine flattens toks with line breaks shown as spaces.
func oneLine(toks Slice) string {
	return strings.ReplaceAll(toks.Text(), "\n", " ")
}

// ---------------- Emitter ----------------

type style struct {
	on    bool
	color Color
}

type zoneMarker struct {
	digits string
	pos    int
}

func newZoneMarker(n int) *zoneMarker { return &zoneMarker{digits: strconv.Itoa(n)} }

func (z *zoneMarker) next() rune {
	if z.pos < len(z.digits) {
		z.pos++
		return rune(z.digits[z.pos-1])
	}
	return '~'
}

// emitter writes text line by line, keeping a shadow line of zone markers in
// step with the display columns of the text.
type emitter struct {
	r       *renderer
	indent  string
	lineNo  int // 0 disables the gutter
	text    strings.Builder
	shadow  []rune
	marked  bool
	dirty   bool
	col     int
	current string
}

func (r *renderer) newEmitter(indent, lineNo int) *emitter {
	return &emitter{r: r, indent: strings.Repeat("  ", indent), lineNo: lineNo}
}

func (em *emitter) sgr(code string) {
	if !em.r.opts.Color || code == em.current {
		return
	}
	if em.current != "" {
		em.text.WriteString(resetSGR)
	}
	if code != "" {
		em.text.WriteString(code)
	}
	em.current = code
}

func (em *emitter) put(text string, hl *style, zm *zoneMarker) {
	for _, c := range text {
		switch {
		case c == '\r':
			continue
		case c == '\n':
			if hl != nil {
				em.sgr(hl.color.bg())
				em.text.WriteByte(' ')
			}
			em.endLine(true)
			continue
		}

		em.dirty = true
		width := runewidth.RuneWidth(c)
		glyph := string(c)
		if c == '\t' {
			width = tabWidth - em.col%tabWidth
			glyph = strings.Repeat(" ", width)
		}
		switch {
		case hl == nil:
			em.sgr("")
		case unicode.IsSpace(c):
			em.sgr(hl.color.bg())
		default:
			em.sgr(hl.color.fg())
		}
		em.text.WriteString(glyph)
		for k := 0; k < width; k++ {
			if zm != nil {
				em.shadow = append(em.shadow, zm.next())
				em.marked = true
			} else {
				em.shadow = append(em.shadow, ' ')
			}
		}
		em.col += width
	}
}

// flush ends the current line. Empty lines are kept only when a line break
// asked for them.
func (em *emitter) flush() { em.endLine(false) }

func (em *emitter) endLine(force bool) {
	em.sgr("")
	if !force && !em.dirty {
		return
	}
	b := &em.r.b
	gutter := ""
	if em.lineNo > 0 {
		gutter = fmt.Sprintf("%5d | ", em.lineNo)
		em.lineNo++
	}
	b.WriteString(em.indent + gutter + em.text.String() + "\n")
	if em.marked {
		pad := strings.Repeat(" ", len(gutter))
		b.WriteString(em.indent + pad + strings.TrimRight(string(em.shadow), " ") + "\n")
	}
	em.text.Reset()
	em.shadow = em.shadow[:0]
	em.marked, em.dirty = false, false
	em.col = 0
}
