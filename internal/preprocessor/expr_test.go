package preprocessor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIfExpressions(t *testing.T) {
	for _, tt := range []struct {
		expr  string
		taken bool
	}{
		{"1", true},
		{"0", false},
		{"1 + 2 * 3 == 7", true},
		{"(1 + 2) * 3 == 9", true},
		{"1 << 4 == 16", true},
		{"256 >> 4 != 16", false},
		{"-1 < 0", true},
		{"~0 == -1", true},
		{"!0 && !!1", true},
		{"5 % 3 == 2", true},
		{"10 / 3 == 3", true},
		{"0 || 0", false},
		{"6 & 3 ^ 1 | 8", true},
		{"7 >= 7 && 3 <= 2", false},
		{"1 ? 2 : 0", true},
		{"0 ? 1 : 0", false},
		{"1 > 2 ? 0 : 1", true},
		{"0 ? 0 : 1 ? 2 : 0", true},
		{"0x10 == 16", true},
		{"010 == 8", true},
		{"0b11 == 3", true},
		{"1UL == 1", true},
		{"UNDEFINED", false},
		{"UNDEFINED + 1", true},
		{"defined(X)", false},
		{"defined X", false},
		{"!defined X", true},
		{"defined ( SET )", true},
		{"SET == 2", true},
		{"TWICE(SET) == 4", true},
		{"0 && 1 / 0", false},
		{"1 || 1 / 0", true},
		{"0 ? 1 / 0 : 1", true},
	} {
		t.Run(tt.expr, func(t *testing.T) {
			src := lines(
				"#define SET 2",
				"#define TWICE(x) ((x) * 2)",
				"#if "+tt.expr,
				"yes",
				"#else",
				"no",
				"#endif",
			)
			_, out, err := PreprocessToString(src)
			if err != nil {
				t.Fatalf("preprocess error: %v", err)
			}
			want := "no\n"
			if tt.taken {
				want = "yes\n"
			}
			assert.Equal(t, want, out)
		})
	}
}

func TestBadIfExpressions(t *testing.T) {
	for _, tt := range []struct {
		expr string
		err  string
	}{
		{"", "expected preprocessor expression"},
		{"1 +", "expected preprocessor expression"},
		{"(1", "expected ')' in preprocessor expression"},
		{"1 ? 2", "expected ':' in preprocessor expression"},
		{"1 2", "unexpected token in preprocessor expression"},
		{"1 / 0", "division by zero in preprocessor expression"},
		{"1 % 0", "division by zero in preprocessor expression"},
		{"08", "failed to parse integer '08' in preprocessor expression"},
		{"1.5", "failed to parse integer '1.5' in preprocessor expression"},
		{"defined", "expected an identifier after 'defined'"},
		{"defined(X", "expected ')' after 'defined'"},
		{"\"s\"", "expected preprocessor expression"},
	} {
		t.Run(tt.err, func(t *testing.T) {
			_, _, err := PreprocessToString("#if " + tt.expr + "\n#endif\n")
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.err)
			}
		})
	}
}

func TestParsePPInt(t *testing.T) {
	for _, tt := range []struct {
		in  string
		out int64
		ok  bool
	}{
		{"0", 0, true},
		{"10", 10, true},
		{"0x1F", 31, true},
		{"0X1f", 31, true},
		{"017", 15, true},
		{"0b101", 5, true},
		{"42u", 42, true},
		{"1UL", 1, true},
		{"18446744073709551615", -1, true},
		{"0x", 0, false},
		{"09", 0, false},
		{"1e3", 0, false},
	} {
		v, ok := parsePPInt(tt.in)
		assert.Equal(t, tt.ok, ok, "parsePPInt(%q)", tt.in)
		if ok {
			assert.Equal(t, tt.out, v, "parsePPInt(%q)", tt.in)
		}
	}
}
