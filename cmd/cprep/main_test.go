package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run(append([]string{"cprep"}, args...))
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPreprocessToStdout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inc/v.h", "#define V 7\n")
	src := writeFile(t, dir, "main.c", "#include <v.h>\nint v = V + N;\n")

	stdout, stderr, err := runApp(t, "-I", filepath.Join(dir, "inc"), "-D", "N=2", src)
	require.NoError(t, err)
	assert.Equal(t, "\nint v = 7 + 2;\n", stdout)
	assert.Empty(t, stderr)
}

func TestOutputFileAndStats(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "a.c", "#define X 1\nX\n")
	out := filepath.Join(dir, "a.i")

	stdout, stderr, err := runApp(t, "--stats", "-o", out, src)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "1 files, ")
	assert.Contains(t, stderr, " B written\n")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(got))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "cprep.yaml", "defines: [\"GREETING=hello\"]\ncolor: never\n")
	src := writeFile(t, dir, "a.c", "GREETING WHO\n")

	stdout, _, err := runApp(t, "--config", cfg, "-D", "WHO=world", src)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", stdout)
}

func TestDiagnostics(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "bad.c", "int a;\n#error stop here\n")

	stdout, stderr, err := runApp(t, "--color", "never", src)
	assert.Equal(t, errReported, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error: stop here\n")
	assert.Contains(t, stderr, "    2 | #error stop here\n")
	assert.NotContains(t, stderr, "\x1b[")

	_, stderr, err = runApp(t, "--color", "always", src)
	assert.Equal(t, errReported, err)
	assert.Contains(t, stderr, "\x1b[")
}

func TestUsageErrors(t *testing.T) {
	_, _, err := runApp(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one input file")

	src := writeFile(t, t.TempDir(), "a.c", "")
	_, _, err = runApp(t, "--color", "purple", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid color mode")
}
