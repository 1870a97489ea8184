/*
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cprep

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwessels/cprep/internal/preprocessor"
)

func TestParseConfig(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
		want Config
	}{
		{
			"empty",
			"",
			DefaultConfig(),
		},
		{
			"full",
			`
include_dirs: [/usr/include, inc]
quote_dirs: [.]
defines: [DEBUG, "LEVEL=3"]
max_expansion_depth: 16
color: never
log_level: trace
`,
			Config{
				IncludeDirs:       []string{"/usr/include", "inc"},
				QuoteDirs:         []string{"."},
				Defines:           []string{"DEBUG", "LEVEL=3"},
				MaxExpansionDepth: 16,
				Color:             ColorNever,
				LogLevel:          "trace",
			},
		},
		{
			"partial keeps defaults",
			"defines: [A]\n",
			Config{
				Defines:           []string{"A"},
				MaxExpansionDepth: preprocessor.DefaultMaxExpansionDepth,
				Color:             ColorAuto,
				LogLevel:          "warning",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseConfig([]byte(tc.yaml))
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBadConfig(t *testing.T) {
	for _, tc := range []struct {
		yaml string
		err  string
	}{
		{"colour: never\n", "field colour not found"},
		{"color: sometimes\n", `invalid color mode "sometimes"`},
		{"log_level: loud\n", "invalid log level"},
		{"max_expansion_depth: -1\n", "must not be negative"},
		{"defines: 3\n", "decoding yaml"},
	} {
		_, err := ParseConfig([]byte(tc.yaml))
		if assert.Error(t, err, tc.yaml) {
			assert.Contains(t, err.Error(), tc.err)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("color: always\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ColorAlways, cfg.Color)

	_, err = LoadConfig(path + ".missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewWithDefines(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defines = []string{"A=1", "F(x)=x+A", "FLAG"}
	var logs bytes.Buffer
	p, err := NewWithLog(cfg, &logs)
	require.NoError(t, err)

	require.NoError(t, p.PreprocessFile(preprocessor.NewFileSource(preprocessor.RootFileName, "F(2) FLAG")))
	assert.Equal(t, "2+1 1\n", p.Text())
	assert.Empty(t, logs.String())

	cfg.Defines = []string{"B(=1"}
	_, err = New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predefining B(=1")
}

func TestTraceLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "trace"
	var logs bytes.Buffer
	p, err := NewWithLog(cfg, &logs)
	require.NoError(t, err)

	require.NoError(t, p.PreprocessFile(preprocessor.NewFileSource("t.c", "#define M 1\nM\n")))
	out := logs.String()
	assert.Contains(t, out, "msg=tokenized")
	assert.Contains(t, out, "msg=define")
	assert.Contains(t, out, "macro=M")
	assert.Contains(t, out, "msg=expand")
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) string {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	write("sys/limits.h", "#define LIMIT 64\n")
	write("src/local.h", "#define LOCAL LIMIT * 2\n")
	main := write("src/main.c", strings.Join([]string{
		"#include <limits.h>",
		"#include \"local.h\"",
		"#if LOCAL > 100",
		"int big[LOCAL];",
		"#endif",
		"",
	}, "\n"))

	cfg := DefaultConfig()
	cfg.IncludeDirs = []string{filepath.Join(dir, "sys")}
	p, out, err := File(cfg, main)
	require.NoError(t, err)
	assert.Equal(t, "\n\nint big[64 * 2];\n", out)

	st := SessionStats(p, out)
	assert.Equal(t, 3, st.Files)
	assert.Equal(t, len(out), st.OutputBytes)
	assert.Greater(t, st.Tokens, 0)
	assert.Greater(t, st.InputBytes, 0)

	_, _, err = File(cfg, filepath.Join(dir, "nope.c"))
	require.Error(t, err)
}

func TestFileNestedIncludes(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"main.c":  "#include \"sub/a.h\"\nA + B\n",
		"sub/a.h": "#define A 1\n#include \"b.h\"\n",
		"sub/b.h": "#define B 2\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	_, out, err := File(DefaultConfig(), filepath.Join(dir, "main.c"))
	require.NoError(t, err)
	assert.Equal(t, "\n1 + 2\n", out)
}
