package preprocessor

import (
	"github.com/sirupsen/logrus"
)

// ---------------- Directives ----------------

// handleDirective processes the directive whose # is at toks[hashIdx] and
// returns the index at which scanning resumes. #include leaves its line break
// in the stream; every other directive consumes it.
func (p *Preprocessor) handleDirective(inc *IncludedFile, toks Slice, hashIdx int) (int, error) {
	hash := toks.Get(hashIdx)
	live := p.ifs.Active()
	if !atLineStart(toks, hashIdx) {
		if !live {
			return hashIdx + 1, nil
		}
		return 0, newTokenError(hash, "only spaces are allowed on the same line before a preprocessor directive")
	}

	i := skipSpaces(toks, hashIdx+1)
	name := toks.Get(i)
	switch {
	case name.Kind == KindLineBreak || name.Kind == KindEOF:
		return skipLineBreak(toks, i), nil
	case !name.Kind.isIdent():
		if !live {
			return skipLineBreak(toks, lineEnd(toks, i)), nil
		}
		return 0, newTokenError(name, "unexpected token after #")
	}

	end := lineEnd(toks, i)
	next := skipLineBreak(toks, end)
	directive := name.Text()

	switch directive {
	case "if":
		taken := false
		if live {
			var err error
			if taken, err = p.evalCondition(toks, i+1, end); err != nil {
				return 0, err
			}
		}
		p.ifs.Push(taken, hash)
		p.traceCond(directive, taken)
		return next, nil

	case "ifdef", "ifndef":
		j := skipSpaces(toks, i+1)
		taken := false
		if live {
			arg := toks.Get(j)
			if j >= end || !arg.Kind.isIdent() {
				return 0, newTokenError(name, "expected an identifier after #%s", directive)
			}
			_, defined := p.macros[arg.Text()]
			taken = defined == (directive == "ifdef")
		}
		p.ifs.Push(taken, hash)
		p.traceCond(directive, taken)
		return next, nil

	case "elif":
		err := p.ifs.Elif(hash, func() (bool, error) {
			return p.evalCondition(toks, i+1, end)
		})
		return next, err

	case "else":
		return next, p.ifs.Else(hash)

	case "endif":
		if err := p.ifs.Pop(hash); err != nil {
			return 0, err
		}
		p.traceCond(directive, p.ifs.Active())
		return next, nil
	}

	if !live {
		return next, nil
	}

	switch directive {
	case "define":
		return p.parseDefine(inc, toks, hashIdx, i+1)

	case "undef":
		j := skipSpaces(toks, i+1)
		arg := toks.Get(j)
		if j >= end || !arg.Kind.isIdent() {
			return 0, newTokenError(name, "expected an identifier after #undef")
		}
		p.Undefine(arg.Text())
		return next, nil

	case "include":
		if err := p.handleInclude(inc, toks, i+1, end); err != nil {
			return 0, err
		}
		return end, nil

	case "error":
		msg := toks.Sub(i+1, end).trimBlank()
		text := msg.Text()
		if msg.Empty() {
			text = "#error"
		}
		from := msg.Start - toks.Start
		return 0, newDetailedError("%s", text).
			printer(toks, true, Span{Start: from, End: from + msg.Len(), Color: Red})
	}

	return 0, newTokenError(name, "unknown preprocessor directive '%s'", directive)
}

func (p *Preprocessor) traceCond(directive string, active bool) {
	p.Log.WithFields(logrus.Fields{
		"directive": directive,
		"depth":     p.ifs.Depth(),
		"active":    active,
	}).Trace("conditional")
}

// atLineStart reports whether only spaces precede toks[i] on its line.
func atLineStart(toks Slice, i int) bool {
	for k := i - 1; k >= 0; k-- {
		switch toks.Kind(k) {
		case KindSpace:
		case KindLineBreak:
			return true
		default:
			return false
		}
	}
	return true
}

// ---------------- Conditionals ----------------

// condStack tracks nested #if groups. A frame's branch is live when its
// current block is the taken one and every enclosing frame is live too.
type condStack struct {
	stack []condFrame
}

type condFrame struct {
	parentActive bool
	current      int
	taken        int // -1 until a branch is taken
	sawElse      bool
	open         *Token
}

func (c *condStack) Depth() int { return len(c.stack) }

func (c *condStack) Active() bool {
	if len(c.stack) == 0 {
		return true
	}
	top := c.stack[len(c.stack)-1]
	return top.parentActive && top.current == top.taken
}

func (c *condStack) top() *condFrame { return &c.stack[len(c.stack)-1] }

// Push opens a group. Groups inside a dead region never take a branch.
func (c *condStack) Push(cond bool, open *Token) {
	f := condFrame{parentActive: c.Active(), taken: -1, open: open}
	if f.parentActive && cond {
		f.taken = 0
	}
	c.stack = append(c.stack, f)
}

// Elif moves to the next branch; cond is only evaluated when no branch has
// been taken yet and the group is reachable.
func (c *condStack) Elif(tok *Token, cond func() (bool, error)) error {
	if len(c.stack) == 0 {
		return newTokenError(tok, "#elif without #if")
	}
	top := c.top()
	if top.sawElse {
		return newTokenError(tok, "#elif after #else")
	}
	top.current++
	if !top.parentActive || top.taken >= 0 {
		return nil
	}
	ok, err := cond()
	if err != nil {
		return err
	}
	if ok {
		top.taken = top.current
	}
	return nil
}

func (c *condStack) Else(tok *Token) error {
	if len(c.stack) == 0 {
		return newTokenError(tok, "#else without #if")
	}
	top := c.top()
	if top.sawElse {
		return newTokenError(tok, "#else after #else")
	}
	top.sawElse = true
	top.current++
	if top.parentActive && top.taken < 0 {
		top.taken = top.current
	}
	return nil
}

func (c *condStack) Pop(tok *Token) error {
	if len(c.stack) == 0 {
		return newTokenError(tok, "#endif without #if")
	}
	c.stack = c.stack[:len(c.stack)-1]
	return nil
}

// Unclosed returns the # of the innermost open group.
func (c *condStack) Unclosed() *Token {
	if len(c.stack) == 0 {
		return nil
	}
	return c.top().open
}
