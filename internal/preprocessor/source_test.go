package preprocessor

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		clean string
	}{
		{"plain", "a b\n", "a b\n"},
		{"splice", "a\\\nb", "ab"},
		{"splice crlf", "a\\\r\nb", "ab"},
		{"splice with blanks", "a\\ \t\nb", "ab"},
		{"backslash at end", "a\\", "a"},
		{"lone backslash", "a\\b", "a\\b"},
		{"line comment", "a // c\nb", "a \nb"},
		{"block comment", "a/* c */b", "ab"},
		{"nested block comment", "a/* /* */ */b", "ab"},
		{"spliced comment", "a/\\\n* c *\\\n/b", "ab"},
		{"quoted", `"/*" '//' x`, `"/*" '//' x`},
		{"escaped quote", `"\"/*" x`, `"\"/*" x`},
		{"apostrophe in prose", "it's // c\nx", "it's \nx"},
		{"unclosed quote", "a \" b /* c */ d\n\"", "a \" b  d\n\""},
		{"quote closed on next line", "'a\n// c\n'", "'a\n\n'"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clean, _, _, err := Normalize(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.clean, clean); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeMappings(t *testing.T) {
	clean, splice, comment, err := Normalize("a\\\nb/*c*/d")
	require.NoError(t, err)
	require.Equal(t, "abd", clean)

	assert.Equal(t, []Mapping{{Start: 0, RealStart: 0, Length: 1}, {Start: 1, RealStart: 3, Length: 7}}, splice)
	assert.Equal(t, []Mapping{{Start: 0, RealStart: 0, Length: 2}, {Start: 2, RealStart: 7, Length: 1}}, comment)

	f := &FileSource{SpliceMap: splice, CommentMap: comment}
	for clean, og := range []int{0, 3, 9} {
		assert.Equal(t, og, f.OriginalOffset(clean), "offset %d", clean)
	}
	// Text removed right after a range stays out of it.
	start, end := f.OriginalRange(0, 2)
	assert.Equal(t, 0, start)
	assert.Equal(t, 4, end)
}

func TestMapIndex(t *testing.T) {
	m := []Mapping{{Start: 0, RealStart: 0, Length: 2}, {Start: 2, RealStart: 5, Length: 3}}
	for _, tt := range []struct{ in, out int }{
		{0, 0},
		{1, 1},
		{2, 5},
		{4, 7},
		{5, 8},
		{9, 8},
	} {
		assert.Equal(t, tt.out, MapIndex(m, tt.in), "MapIndex(%d)", tt.in)
	}
	assert.Equal(t, 7, MapIndex(nil, 7))
}

func TestUnclosedComment(t *testing.T) {
	_, _, _, err := Normalize("x\\\n/* open")
	var ne *normalizeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, 3, ne.offset)

	p := NewPreprocessor()
	_, err = p.Tokenize(NewFileSource("a.c", "int a;\n  /* /* */"))
	require.Error(t, err)
	assert.Equal(t, "a.c:2:3: unclosed block comment", err.Error())
}

func TestLineCol(t *testing.T) {
	f := NewFileSource("f", "ab\ncd\n")
	for _, tt := range []struct{ off, line, col int }{
		{0, 1, 1},
		{1, 1, 2},
		{3, 2, 1},
		{4, 2, 2},
		{6, 3, 1},
		{99, 3, 1},
	} {
		line, col := f.LineCol(tt.off)
		assert.Equal(t, []int{tt.line, tt.col}, []int{line, col}, "offset %d", tt.off)
	}
}

func lexDump(t *testing.T, src string) []string {
	t.Helper()
	p := NewPreprocessor()
	toks, err := p.Tokenize(NewFileSource("lex", src))
	require.NoError(t, err)
	var out []string
	for _, tok := range toks.Tokens() {
		out = append(out, fmt.Sprintf("%s:%s", tok.Kind, tok.Text()))
	}
	return out
}

func TestLex(t *testing.T) {
	for _, tt := range []struct {
		name   string
		input  string
		output []string
	}{
		{
			"empty",
			"",
			[]string{"line-break:\n", "eof:"},
		},
		{
			"punctuation",
			"a+=b==c;",
			[]string{"ident:a", "punct:+", "punct:=", "ident:b", "punct:==", "ident:c", "punct:;", "line-break:\n", "eof:"},
		},
		{
			"numbers",
			"1.5e+3 .5 0x1Fu 1..2",
			[]string{"number:1.5e+3", "space: ", "number:.5", "space: ", "number:0x1Fu", "space: ", "number:1..2", "line-break:\n", "eof:"},
		},
		{
			"strings",
			`"s\"x" "a`,
			[]string{`string:"s\"x"`, "space: ", `other:"`, "ident:a", "line-break:\n", "eof:"},
		},
		{
			"hashes",
			"# ## ... .",
			[]string{"hash:#", "space: ", "concat:##", "space: ", "dot-dot-dot:...", "space: ", "punct:.", "line-break:\n", "eof:"},
		},
		{
			"other runes",
			"é @\t`",
			[]string{"other:é", "space: ", "other:@", "space:\t", "other:`", "line-break:\n", "eof:"},
		},
		{
			"line breaks",
			"a\r\nb\rc\n",
			[]string{"ident:a", "line-break:\n", "ident:b", "line-break:\n", "ident:c", "line-break:\n", "eof:"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.output, lexDump(t, tt.input)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTokenizeIsIdempotent(t *testing.T) {
	p := NewPreprocessor()
	f := NewFileSource("f", "a b")
	first, err := p.Tokenize(f)
	require.NoError(t, err)
	second, err := p.Tokenize(f)
	require.NoError(t, err)
	assert.Same(t, first.Set, second.Set)
	assert.Same(t, f.Tokens(), first.Set)
	assert.Same(t, f, first.Set.File())

	lb := first.Get(-2)
	assert.Equal(t, KindLineBreak, lb.Kind)
	assert.NotZero(t, lb.Flags()&FlagMissingTrailingLineBreak)
	start, end := f.Region(lb.Index())
	assert.Equal(t, []int{3, 3}, []int{start, end})
}

func TestLexSingle(t *testing.T) {
	for _, tt := range []struct {
		text string
		kind TokenKind
		ok   bool
	}{
		{"", KindNone, true},
		{"ab", KindIdent, true},
		{"12", KindNumber, true},
		{"2VA_ARGS", KindNumber, true},
		{"##", KindConcat, true},
		{"==", KindPunct, true},
		{`"x"`, KindString, true},
		{"+=", KindNone, false},
		{`1"2"`, KindNone, false},
		{"a b", KindNone, false},
	} {
		kind, ok := lexSingle(tt.text)
		assert.Equal(t, tt.ok, ok, "lexSingle(%q)", tt.text)
		if ok {
			assert.Equal(t, tt.kind, kind, "lexSingle(%q)", tt.text)
		}
	}
}
