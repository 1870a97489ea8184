package preprocessor

import (
	"strconv"
	"strings"
)

// ---------------- #if expressions ----------------

type binaryOp struct {
	prec int
	eval func(a, b int64) (int64, bool)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

var binaryOps = map[string]binaryOp{
	"||": {13, nil},
	"&&": {14, nil},
	"|":  {15, func(a, b int64) (int64, bool) { return a | b, true }},
	"^":  {16, func(a, b int64) (int64, bool) { return a ^ b, true }},
	"&":  {17, func(a, b int64) (int64, bool) { return a & b, true }},
	"==": {18, func(a, b int64) (int64, bool) { return b2i(a == b), true }},
	"!=": {18, func(a, b int64) (int64, bool) { return b2i(a != b), true }},
	"<":  {19, func(a, b int64) (int64, bool) { return b2i(a < b), true }},
	">":  {19, func(a, b int64) (int64, bool) { return b2i(a > b), true }},
	"<=": {19, func(a, b int64) (int64, bool) { return b2i(a <= b), true }},
	">=": {19, func(a, b int64) (int64, bool) { return b2i(a >= b), true }},
	"<<": {20, func(a, b int64) (int64, bool) { return a << uint64(b&63), true }},
	">>": {20, func(a, b int64) (int64, bool) { return a >> uint64(b&63), true }},
	"+":  {21, func(a, b int64) (int64, bool) { return a + b, true }},
	"-":  {21, func(a, b int64) (int64, bool) { return a - b, true }},
	"*":  {22, func(a, b int64) (int64, bool) { return a * b, true }},
	"/": {22, func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}},
	"%": {22, func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a % b, true
	}},
}

const (
	ternaryPrec = 12
	unaryPrec   = 30
)

// exprParser is a precedence climber over the non-blank tokens of a
// directive line. Operators spelled with two characters arrive as two
// adjacent punctuation tokens and are fused here.
type exprParser struct {
	toks []*Token
	pos  int
	eol  *Token
}

func newExprParser(line Slice, eol *Token) *exprParser {
	ep := &exprParser{eol: eol}
	for i := 0; i < line.Len(); i++ {
		if t := line.Get(i); !t.Kind.isBlank() {
			ep.toks = append(ep.toks, t)
		}
	}
	return ep
}

func (ep *exprParser) peek() *Token {
	if ep.pos < len(ep.toks) {
		return ep.toks[ep.pos]
	}
	return nil
}

// peekOp returns the operator at the cursor and how many tokens spell it.
func (ep *exprParser) peekOp() (string, int) {
	t := ep.peek()
	if t == nil || (t.Kind != KindPunct && t.Kind != KindOther) {
		return "", 0
	}
	op := t.Text()
	if ep.pos+1 < len(ep.toks) {
		next := ep.toks[ep.pos+1]
		if adjacent(t, next) {
			switch two := op + next.Text(); two {
			case "&&", "||", "<<", ">>", "<=", ">=", "!=":
				return two, 2
			}
		}
	}
	return op, 1
}

// adjacent reports whether b directly follows a in the same leaf set.
func adjacent(a, b *Token) bool {
	return a.set != nil && a.set == b.set && a.index+1 == b.index
}

func (ep *exprParser) errAt(format string, args ...any) error {
	t := ep.peek()
	if t == nil {
		t = ep.eol
	}
	return newTokenError(t, format, args...)
}

func (ep *exprParser) parse() (int64, error) {
	if len(ep.toks) == 0 {
		return 0, ep.errAt("expected preprocessor expression")
	}
	v, err := ep.expr(0, true)
	if err != nil {
		return 0, err
	}
	if ep.peek() != nil {
		return 0, ep.errAt("unexpected token in preprocessor expression")
	}
	return v, nil
}

// expr parses operators binding tighter than minPrec. When live is false the
// value is discarded, so division by zero is not an error there.
func (ep *exprParser) expr(minPrec int, live bool) (int64, error) {
	lhs, err := ep.unary(live)
	if err != nil {
		return 0, err
	}
	for {
		op, n := ep.peekOp()
		if op == "?" && ternaryPrec >= minPrec {
			ep.pos++
			a, err := ep.expr(0, live && lhs != 0)
			if err != nil {
				return 0, err
			}
			if op, _ := ep.peekOp(); op != ":" {
				return 0, ep.errAt("expected ':' in preprocessor expression")
			}
			ep.pos++
			b, err := ep.expr(ternaryPrec, live && lhs == 0)
			if err != nil {
				return 0, err
			}
			if lhs != 0 {
				lhs = a
			} else {
				lhs = b
			}
			continue
		}
		bop, ok := binaryOps[op]
		if !ok || bop.prec < minPrec {
			return lhs, nil
		}
		opTok := ep.peek()
		ep.pos += n

		switch op {
		case "&&":
			rhs, err := ep.expr(bop.prec+1, live && lhs != 0)
			if err != nil {
				return 0, err
			}
			lhs = b2i(lhs != 0 && rhs != 0)
		case "||":
			rhs, err := ep.expr(bop.prec+1, live && lhs == 0)
			if err != nil {
				return 0, err
			}
			lhs = b2i(lhs != 0 || rhs != 0)
		default:
			rhs, err := ep.expr(bop.prec+1, live)
			if err != nil {
				return 0, err
			}
			v, ok := bop.eval(lhs, rhs)
			if !ok && live {
				return 0, newTokenError(opTok, "division by zero in preprocessor expression")
			}
			lhs = v
		}
	}
}

func (ep *exprParser) unary(live bool) (int64, error) {
	t := ep.peek()
	if t == nil {
		return 0, ep.errAt("expected preprocessor expression")
	}
	if t.Kind == KindPunct || t.Kind == KindOther {
		switch t.Text() {
		case "(":
			ep.pos++
			v, err := ep.expr(0, live)
			if err != nil {
				return 0, err
			}
			if c := ep.peek(); c == nil || c.Text() != ")" {
				return 0, ep.errAt("expected ')' in preprocessor expression")
			}
			ep.pos++
			return v, nil
		case "+", "-", "!", "~":
			ep.pos++
			v, err := ep.expr(unaryPrec, live)
			if err != nil {
				return 0, err
			}
			switch t.Text() {
			case "-":
				v = -v
			case "!":
				v = b2i(v == 0)
			case "~":
				v = ^v
			}
			return v, nil
		}
	}
	ep.pos++
	switch {
	case t.Kind == KindNumber:
		v, ok := parsePPInt(t.Text())
		if !ok {
			return 0, newTokenError(t, "failed to parse integer '%s' in preprocessor expression", t.Text())
		}
		return v, nil
	case t.Kind.isIdent():
		// Identifiers left after macro expansion evaluate to 0.
		return 0, nil
	}
	ep.pos--
	return 0, ep.errAt("expected preprocessor expression")
}

// parsePPInt accepts decimal, octal, hex and binary literals with optional
// u/l suffixes.
func parsePPInt(s string) (int64, bool) {
	s = strings.TrimRight(strings.ToLower(s), "ul")
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "0b"):
		s, base = s[2:], 2
	case len(s) > 1 && s[0] == '0':
		s, base = s[1:], 8
	}
	u, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, false
	}
	return int64(u), true
}

// ---------------- Condition lines ----------------

// evalCondition evaluates the #if/#elif expression in toks[from:to].
// defined NAME and defined(NAME) are resolved before macro expansion.
func (p *Preprocessor) evalCondition(toks Slice, from, to int) (bool, error) {
	line := newParentBuilder(SourceNone)
	for i := from; i < to; i++ {
		t := toks.Get(i)
		if !t.Kind.isIdent() || t.Text() != "defined" {
			line.AddToken(t)
			continue
		}
		j := skipSpaces(toks, i+1)
		paren := toks.Kind(j) == KindPunct && toks.Get(j).Text() == "("
		if paren {
			j = skipSpaces(toks, j+1)
		}
		name := toks.Get(j)
		if j >= to || !name.Kind.isIdent() {
			return false, newTokenError(t, "expected an identifier after 'defined'")
		}
		if paren {
			j = skipSpaces(toks, j+1)
			if j >= to || toks.Get(j).Text() != ")" {
				return false, newTokenError(name, "expected ')' after 'defined'")
			}
		}
		_, ok := p.macros[name.Text()]
		b := newLeafBuilder(SourceDefined, 1)
		b.Add(p.arena.synth(KindNumber, strconv.FormatInt(b2i(ok), 10), t, nil))
		line.Add(b.Seal().All())
		i = j
	}

	expanded, err := p.expandAll(line.Seal())
	if err != nil {
		return false, err
	}
	v, err := newExprParser(expanded, toks.Get(to)).parse()
	return v != 0, err
}
