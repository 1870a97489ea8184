package preprocessor

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// ---------------- Expander ----------------

// spanColors cycles through highlight colors for multi-span diagnostics.
var spanColors = []Color{Red, Green, Yellow, Blue, Magenta, Cyan}

// tryExpand expands the macro named by toks[cursor]. It returns a nil
// expansion when the token is not an expandable macro use; otherwise the
// returned index is just past everything the expansion consumed.
func (p *Preprocessor) tryExpand(toks Slice, cursor int) (*MacroExpansion, int, error) {
	name := toks.Get(cursor)
	if name == nil || !name.Kind.isIdent() {
		return nil, cursor, nil
	}
	m, ok := p.macros[name.Text()]
	if !ok || name.Poisoned() {
		return nil, cursor, nil
	}
	if name.hs.Contains(m.Name.Text()) {
		name.flags |= FlagPoisoned
		return nil, cursor, nil
	}

	exp := &MacroExpansion{Macro: m, Parent: p.exp, Name: name}
	if p.exp != nil {
		exp.depth = p.exp.depth + 1
	}
	end := cursor + 1
	hs := name.hs
	if !m.ObjectLike {
		open := skipBlanks(toks, cursor+1)
		if t := toks.Get(open); t == nil || t.Kind != KindPunct || t.Text() != "(" {
			return nil, cursor, nil
		}
		closing, err := p.parseArgs(exp, toks, open)
		if err != nil {
			return nil, cursor, err
		}
		end = closing + 1
		hs = hs.Intersect(toks.Get(closing).hs)
	}
	if p.MaxExpansionDepth > 0 && exp.depth >= p.MaxExpansionDepth {
		return nil, cursor, newTokenError(name, "macro expansion nested too deeply")
	}
	exp.Hideset = hs.With(m.Name.Text())
	exp.Replaced = toks.Sub(cursor, end)

	p.exp = exp
	defer func() { p.exp = exp.Parent }()

	if err := p.substitute(exp); err != nil {
		return nil, cursor, err
	}

	// Rescan the body together with what follows the call, so a call can
	// take its arguments from the trailing context.
	body := exp.AfterPrescan
	joined := newParentBuilder(SourceNone)
	joined.Add(body)
	joined.Add(toks.From(end))
	rescanned, next, err := p.expandRange(joined.Seal(), 0, body.Len())
	if err != nil {
		return nil, cursor, err
	}
	exp.AfterRescan = rescanned
	if next > body.Len() {
		end += next - body.Len()
		exp.Replaced = toks.Sub(cursor, end)
	}

	p.Log.WithFields(logrus.Fields{
		"macro":    m.Name.Text(),
		"depth":    exp.depth,
		"consumed": end - cursor,
	}).Trace("expand")
	return exp, end, nil
}

// expandRange expands macros in toks[from:to]. A call starting inside the
// range may run past to; the returned index is where scanning stopped.
func (p *Preprocessor) expandRange(toks Slice, from, to int) (Slice, int, error) {
	out := newParentBuilder(SourceNone)
	c := from
	for c < to {
		t := toks.Get(c)
		if t.Kind.isIdent() {
			sub, next, err := p.tryExpand(toks, c)
			if err != nil {
				return Slice{}, c, err
			}
			if sub != nil {
				out.Add(sub.AfterRescan)
				c = next
				continue
			}
		}
		out.AddToken(t)
		c++
	}
	return out.Seal(), c, nil
}

// expandAll expands a slice in isolation.
func (p *Preprocessor) expandAll(toks Slice) (Slice, error) {
	out, _, err := p.expandRange(toks, 0, toks.Len())
	return out, err
}

// ---------------- Arguments ----------------

// parseArgs collects the actual arguments of the call whose '(' is at open
// and returns the index of the matching ')'.
func (p *Preprocessor) parseArgs(exp *MacroExpansion, toks Slice, open int) (int, error) {
	m := exp.Macro
	var args []Slice
	level, argStart := 0, open+1
	closing := -1
	for i := open + 1; closing < 0; i++ {
		t := toks.Get(i)
		if t == nil || t.Kind == KindEOF {
			return 0, newTokenError(toks.Get(open), "unexpected EOF while parsing macro arguments")
		}
		if t.Kind != KindPunct {
			continue
		}
		switch t.Text() {
		case "(":
			level++
		case ")":
			if level == 0 {
				args = append(args, toks.Sub(argStart, i).trimBlank())
				closing = i
			}
			level--
		case ",":
			if level == 0 {
				args = append(args, toks.Sub(argStart, i).trimBlank())
				argStart = i + 1
			}
		}
	}

	n := len(m.Params)
	if n == 0 && len(args) == 1 && args[0].Empty() {
		args = nil
	}
	var msg string
	switch {
	case m.Variadic() && len(args) < n-1:
		msg = "expected at least %d argument(s) for macro '%s'"
		n--
	case !m.Variadic() && len(args) > n:
		msg = "expected %d argument(s) at most for macro '%s'"
	case !m.Variadic() && len(args) < n:
		msg = "expected %d argument(s) for macro '%s'"
	}
	if msg != "" {
		call := toks.Sub(0, closing+1)
		spans := []Span{{Start: open, End: closing + 1, Color: Red}}
		for k, a := range args {
			from := a.Start - toks.Start
			spans = append(spans, Span{Start: from, End: from + a.Len(), Color: spanColors[(k+1)%len(spanColors)]})
		}
		return 0, newDetailedError(msg, n, m.Name.Text()).
			printer(call, true, spans...).
			text("macro defined here:").
			printer(m.DefSite.Tokens, false, Span{Start: m.DefStart, End: m.DefEnd, Color: Cyan})
	}

	if m.Variadic() {
		fixed := n - 1
		va := Slice{Set: toks.Set, Start: toks.Start + closing, End: toks.Start + closing}
		if len(args) > fixed {
			va = Slice{Set: toks.Set, Start: args[fixed].Start, End: args[len(args)-1].End}
		}
		args = append(args[:fixed:fixed], va)
	}
	exp.Args = args
	return closing, nil
}

// ---------------- Substitution ----------------

// substitute runs body instantiation, stringize, concat and prescan.
func (p *Preprocessor) substitute(exp *MacroExpansion) error {
	m := exp.Macro

	b := newLeafBuilder(SourceMacro, m.Body.Len())
	for i := 0; i < m.Body.Len(); i++ {
		b.Add(p.arena.derive(m.Body.Get(i), exp.Hideset))
	}
	set := b.Seal()
	set.exp, set.macro = exp, m
	exp.BeforeStringize = set.All()

	exp.AfterStringize = exp.BeforeStringize
	if !m.ObjectLike {
		exp.AfterStringize = p.stringizeStage(exp)
	}

	var err error
	if exp.AfterConcat, err = p.concatStage(exp); err != nil {
		return err
	}

	exp.AfterPrescan = exp.AfterConcat
	if !m.ObjectLike {
		if exp.AfterPrescan, err = p.prescanStage(exp); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preprocessor) stringizeStage(exp *MacroExpansion) Slice {
	src := exp.BeforeStringize
	out := newParentBuilder(SourceNone)
	for i := 0; i < src.Len(); i++ {
		t := src.Get(i)
		if t.Kind != KindHash {
			out.AddToken(t)
			continue
		}
		j := skipSpaces(src, i+1)
		arg := exp.Args[exp.Macro.paramIndex(src.Get(j).Text())]
		b := newLeafBuilder(SourceStringize, 1)
		b.Add(p.arena.synth(KindString, stringize(arg), t, exp.Hideset))
		set := b.Seal()
		set.exp = exp
		out.Add(set.All())
		i = j
	}
	return out.Seal()
}

// stringize spells arg as a string literal. Whitespace runs collapse to one
// space; quotes and backslashes inside string literals are escaped.
func stringize(arg Slice) string {
	var b strings.Builder
	b.WriteByte('"')
	space := false
	for i := 0; i < arg.Len(); i++ {
		t := arg.Get(i)
		if t.Kind.isBlank() {
			space = true
			continue
		}
		if space && b.Len() > 1 {
			b.WriteByte(' ')
		}
		space = false
		text := t.Text()
		if t.Kind == KindString {
			text = strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
		}
		b.WriteString(text)
	}
	b.WriteByte('"')
	return b.String()
}

// pasteItem is a token waiting to be emitted by the concat stage. Residue
// tokens come from arguments and still need copies in the expansion.
type pasteItem struct {
	tok     *Token
	residue bool
}

func (p *Preprocessor) concatStage(exp *MacroExpansion) (Slice, error) {
	stage := exp.AfterStringize
	src := stage.Tokens()
	out := newParentBuilder(SourceNone)
	nextSolid := func(i int) int {
		for i < len(src) && src[i].Kind.isBlank() {
			i++
		}
		return i
	}

	for i := 0; i < len(src); {
		t := src[i]
		if t.Kind == KindConcat {
			return Slice{}, newTokenError(t, "missing left argument for ## operator")
		}
		j := nextSolid(i + 1)
		if t.Kind.isBlank() || j >= len(src) || src[j].Kind != KindConcat {
			out.AddToken(t)
			i++
			continue
		}

		pending := p.operand(exp, t)
		for j < len(src) && src[j].Kind == KindConcat {
			k := nextSolid(j + 1)
			if k >= len(src) || src[k].Kind == KindConcat {
				return Slice{}, newTokenError(src[j], "missing right argument for ## operator")
			}
			var err error
			if pending, err = p.paste(exp, stage, j, pending, p.operand(exp, src[k])); err != nil {
				return Slice{}, err
			}
			i = k + 1
			j = nextSolid(i)
		}
		p.emitPasted(exp, out, pending)
	}
	return out.Seal(), nil
}

// operand resolves one side of ## to the raw argument tokens when it names a
// parameter.
func (p *Preprocessor) operand(exp *MacroExpansion, t *Token) []pasteItem {
	if t.Kind == KindPrescanIdent {
		if idx := exp.Macro.paramIndex(t.Text()); idx >= 0 {
			arg := exp.Args[idx]
			items := make([]pasteItem, 0, arg.Len())
			for k := 0; k < arg.Len(); k++ {
				items = append(items, pasteItem{tok: arg.Get(k), residue: true})
			}
			return items
		}
	}
	return []pasteItem{{tok: t}}
}

// paste joins the last pending token with the first rhs token and re-lexes
// the result, which must be exactly one token.
func (p *Preprocessor) paste(exp *MacroExpansion, stage Slice, opIdx int, pending, rhs []pasteItem) ([]pasteItem, error) {
	var lhs, first *Token
	if n := len(pending); n > 0 {
		lhs = pending[n-1].tok
		pending = pending[:n-1]
	}
	if len(rhs) > 0 {
		first = rhs[0].tok
		rhs = rhs[1:]
	}
	if lhs == nil && first == nil {
		return pending, nil
	}

	var text string
	anchor := first
	if lhs != nil {
		text, anchor = lhs.Text(), lhs
	}
	if first != nil {
		text += first.Text()
	}
	kind, ok := lexSingle(text)
	if !ok {
		return nil, newDetailedError("concatenated string '%s' doesn't form a valid token", text).
			printer(stage, true, Span{Start: opIdx, End: opIdx + 1, Color: Red})
	}

	b := newLeafBuilder(SourceConcat, 1)
	b.Add(p.arena.synth(kind, text, anchor, exp.Hideset))
	set := b.Seal()
	set.exp = exp
	set.concat = &ConcatRecord{Lhs: lhs, Rhs: first, Op: stage.Get(opIdx)}

	pending = append(pending, pasteItem{tok: set.tokens[0]})
	return append(pending, rhs...), nil
}

func (p *Preprocessor) emitPasted(exp *MacroExpansion, out *ParentBuilder, items []pasteItem) {
	for i := 0; i < len(items); {
		if !items[i].residue {
			out.AddToken(items[i].tok)
			i++
			continue
		}
		b := newLeafBuilder(SourceConcatResidue, len(items)-i)
		for ; i < len(items) && items[i].residue; i++ {
			b.Add(p.copyInto(items[i].tok, exp))
		}
		set := b.Seal()
		set.exp = exp
		out.Add(set.All())
	}
}

// copyInto derives t for use inside exp's replacement list. The copy is an
// ordinary identifier, never a parameter reference.
func (p *Preprocessor) copyInto(t *Token, exp *MacroExpansion) *Token {
	c := p.arena.derive(t, t.hs.Union(exp.Hideset))
	if c.Kind == KindPrescanIdent {
		c.Kind = KindIdent
	}
	return c
}

// prescanStage substitutes every remaining parameter with its argument,
// macro-expanded on its own.
func (p *Preprocessor) prescanStage(exp *MacroExpansion) (Slice, error) {
	src := exp.AfterConcat
	out := newParentBuilder(SourceNone)
	for i := 0; i < src.Len(); i++ {
		t := src.Get(i)
		idx := -1
		if t.Kind == KindPrescanIdent {
			idx = exp.Macro.paramIndex(t.Text())
		}
		if idx < 0 {
			out.AddToken(t)
			continue
		}
		expanded, err := p.expandAll(exp.Args[idx])
		if err != nil {
			return Slice{}, err
		}
		b := newLeafBuilder(SourcePrescan, expanded.Len())
		for k := 0; k < expanded.Len(); k++ {
			b.Add(p.copyInto(expanded.Get(k), exp))
		}
		set := b.Seal()
		set.exp = exp
		out.Add(set.All())
	}
	return out.Seal(), nil
}
