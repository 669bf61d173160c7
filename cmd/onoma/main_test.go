package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parserSource = `package src

type parseInputState struct{}

func parseInput(line string) string {
	return line
}

func parseInputLine() {}
`

// execute runs the CLI in-process against an isolated state directory.
func execute(t *testing.T, stateDir string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&errOut)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{
		"--config", filepath.Join(stateDir, "missing.yaml"),
		"--state-dir", stateDir,
	}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func createFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parse.go"), []byte(parserSource), 0o644))
	return dir
}

func TestPaths_JSON(t *testing.T) {
	t.Parallel()
	state := t.TempDir()

	out, _, err := execute(t, state, "paths", "--format", "json")
	require.NoError(t, err)

	var p CLIPaths
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, filepath.Join(state, "onoma", "indexes"), p.Database)
	assert.Equal(t, filepath.Join(state, "onoma", "logs"), p.Logs)
	assert.Equal(t, filepath.Join(state, "missing.yaml"), p.Config)
}

func TestInvalidFormat(t *testing.T) {
	t.Parallel()
	_, _, err := execute(t, t.TempDir(), "paths", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestInvalidLogLevel(t *testing.T) {
	t.Parallel()
	_, _, err := execute(t, t.TempDir(), "--log-level", "loud", "index", createFixture(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestIndexThenQuery(t *testing.T) {
	t.Parallel()
	state := t.TempDir()
	dir := createFixture(t)

	_, stderr, err := execute(t, state, "index", dir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Indexed 1 root(s)")

	out, _, err := execute(t, state, "query", "parseInput", dir, "--kind", "function", "--format", "json")
	require.NoError(t, err)

	var res struct {
		Command    string      `json:"command"`
		Results    []CLISymbol `json:"results"`
		TotalCount int         `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "query", res.Command)
	require.Equal(t, 2, res.TotalCount)
	assert.Equal(t, "parseInput", res.Results[0].Name)
	assert.Equal(t, "function", res.Results[0].Kind)
	assert.Equal(t, 5, res.Results[0].StartLine)
	assert.Equal(t, "parseInputLine", res.Results[1].Name)
}

func TestQuery_TextAndLimit(t *testing.T) {
	t.Parallel()
	state := t.TempDir()
	dir := createFixture(t)

	_, _, err := execute(t, state, "index", dir)
	require.NoError(t, err)

	out, _, err := execute(t, state, "query", "parseInput", dir, "--limit", "1")
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 2, "header plus one row")
	assert.Contains(t, string(lines[0]), "SCORE")
	assert.Contains(t, string(lines[1]), "parseInput")
}

func TestQuery_InvalidKind(t *testing.T) {
	t.Parallel()
	_, _, err := execute(t, t.TempDir(), "query", "x", createFixture(t), "--kind", "Function")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid symbol kind: Function")
}

func TestRun_Script(t *testing.T) {
	t.Parallel()
	state := t.TempDir()
	dir := createFixture(t)
	scripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "main.risor"), []byte(`
root := args[0]
w := onoma.await(onoma.get_watcher([root]))
onoma.await(w.start())
stream := onoma.await(onoma.get_resolver([root]).query("parseInputState", nil))
sym := onoma.await(stream.next())
assert(sym["kind"] == "struct", 'got {sym["kind"]}')
w.stop_blocking()
`), 0o644))

	_, _, err := execute(t, state, "run", filepath.Join(scripts, "main.risor"), dir)
	require.NoError(t, err)
}

func TestRun_ScriptError(t *testing.T) {
	t.Parallel()
	scripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "bad.risor"), []byte(`onoma.log("bogus", "x")`), 0o644))

	_, _, err := execute(t, t.TempDir(), "run", filepath.Join(scripts, "bad.risor"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level: bogus")
}

func TestResolveRoots(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	got, err := resolveRoots([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, got)

	_, err = resolveRoots([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveRoots([]string{filepath.Join(dir, "nope")})
	assert.ErrorContains(t, err, "directory not found")
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"go", "python"}, splitList(" go, ,python "))
	assert.Nil(t, splitList(""))
}
