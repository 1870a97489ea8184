package preprocessor

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------- Lexer ----------------

const punctChars = ",;/.-=()?!:+*<>[]&{}|^%~"

// lexToken scans one token of src starting at i and returns its kind and end
// offset. It always makes progress on non-empty input.
func lexToken(src string, i int) (TokenKind, int) {
	if n := lexLangToken(src, i); n > 0 {
		return langKind(src[i:], n), i + n
	}
	if n := lineBreakLen(src, i); n > 0 {
		return KindLineBreak, i + n
	}
	r, size := utf8.DecodeRuneInString(src[i:])
	if unicode.IsSpace(r) {
		return KindSpace, i + size
	}
	return KindOther, i + size
}

// lexLangToken returns the length of the hash, punctuation, number, string or
// identifier starting at i, or 0.
func lexLangToken(src string, i int) int {
	rest := src[i:]
	switch {
	case rest == "":
		return 0
	case strings.HasPrefix(rest, "##"):
		return 2
	case rest[0] == '#':
		return 1
	case strings.HasPrefix(rest, "..."):
		return 3
	}
	if n := scanNumber(rest); n > 0 {
		return n
	}
	if strings.HasPrefix(rest, "==") {
		return 2
	}
	if strings.IndexByte(punctChars, rest[0]) >= 0 {
		return 1
	}
	if n := scanString(rest); n > 0 {
		return n
	}
	return scanIdent(rest)
}

func langKind(tok string, n int) TokenKind {
	switch c := tok[0]; {
	case n == 2 && tok[:2] == "##":
		return KindConcat
	case c == '#':
		return KindHash
	case n == 3 && tok[:3] == "...":
		return KindDotDotDot
	case c == '"':
		return KindString
	case isDigit(c) || (c == '.' && n > 1):
		return KindNumber
	case isIdentStart(c):
		return KindIdent
	}
	return KindPunct
}

// scanNumber accepts a preprocessing number: an optional leading dot, a digit,
// then identifier characters, dots and signed exponents.
func scanNumber(s string) int {
	i := 0
	if i < len(s) && s[i] == '.' {
		i++
	}
	if i >= len(s) || !isDigit(s[i]) {
		return 0
	}
	for i < len(s) {
		c := s[i]
		switch {
		case i+1 < len(s) && strings.IndexByte("eEpP", c) >= 0 && (s[i+1] == '+' || s[i+1] == '-'):
			i += 2
		case isIdentPart(c) || c == '.':
			i++
		default:
			return i
		}
	}
	return i
}

// scanString accepts a double-quoted literal; unterminated literals are not
// strings.
func scanString(s string) int {
	if s[0] != '"' {
		return 0
	}
	for i := 1; i < len(s); i++ {
		switch {
		case s[i] == '\\':
			i++
		case s[i] == '"':
			return i + 1
		case lineBreakLen(s, i) > 0:
			return 0
		}
	}
	return 0
}

func scanIdent(s string) int {
	if !isIdentStart(s[0]) {
		return 0
	}
	i := 1
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return i
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

// lexSingle reports whether text spells exactly one language token.
func lexSingle(text string) (TokenKind, bool) {
	if text == "" {
		return KindNone, true
	}
	n := lexLangToken(text, 0)
	if n != len(text) {
		return KindNone, false
	}
	return langKind(text, n), true
}

// ---------------- Tokenizer ----------------

// Tokenize normalizes and lexes f once; later calls return the same set.
func (p *Preprocessor) Tokenize(f *FileSource) (Slice, error) {
	if f.tokens != nil {
		return f.tokens.All(), nil
	}
	if !f.normalized {
		clean, splice, comment, err := Normalize(f.Original)
		if err != nil {
			if ne, ok := err.(*normalizeError); ok {
				return Slice{}, newRangeError(f, ne.offset, ne.offset+2, "unclosed block comment")
			}
			return Slice{}, err
		}
		f.Text, f.SpliceMap, f.CommentMap, f.normalized = clean, splice, comment, true
	}

	src := f.Text
	b := newLeafBuilder(SourceFile, len(src)/3+2)
	f.regions = f.regions[:0]
	add := func(kind TokenKind, start, end int) *Token {
		t := p.arena.newToken(kind)
		b.Add(t)
		f.regions = append(f.regions, region{start, end})
		return t
	}
	for i := 0; i < len(src); {
		kind, end := lexToken(src, i)
		add(kind, i, end)
		i = end
	}
	if n := b.Len(); n == 0 || b.tokens[n-1].Kind != KindLineBreak {
		t := add(KindLineBreak, len(src), len(src))
		t.flags |= FlagMissingTrailingLineBreak
	}
	add(KindEOF, len(src), len(src))

	f.tokens = b.Seal()
	f.tokens.file = f
	p.Log.WithField("file", f.FullPath).WithField("tokens", f.tokens.Len()).Trace("tokenized")
	return f.tokens.All(), nil
}
