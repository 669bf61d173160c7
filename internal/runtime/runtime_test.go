package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/onoma"
	"github.com/jward/onoma/internal/config"
)

const parserSource = `package src

type parseInputState struct{}

func parseInput(line string) string {
	return line
}

func parseInputLine() {}
`

func newTestEnv(t *testing.T) *onoma.Env {
	t.Helper()
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.DebounceWindow = 20 * time.Millisecond
	env, err := onoma.NewEnv(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close(context.Background()) })
	return env
}

func newProject(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "proj", "src")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "parse.go"), []byte(parserSource), 0o644))
	return root
}

func runSource(t *testing.T, rt *Runtime, script string, globals map[string]any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return rt.RunSource(ctx, script, globals)
}

// --- onoma module tests (via RunSource) ---

func TestModule_FunctionKindScenario(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	script := `
w := onoma.await(onoma.get_watcher([root]))
assert(!w.running(), "watcher starts out created")
onoma.await(w.start())
assert(w.running(), "watcher should be running")

r := onoma.get_resolver([root])
ctx := onoma.create_context(nil, ["function"])
stream := onoma.await(r.query("parseInput", ctx))

names := []
for {
    sym := onoma.await(stream.next())
    if sym == nil {
        break
    }
    assert(sym["kind"] == "function", "only functions are returned")
    assert(sym["start_line"] >= 1, "lines are one-based")
    names.append(sym["name"])
}
assert(len(names) == 2, 'expected 2 matches, got {len(names)}')
assert(names[0] == "parseInput", 'expected parseInput first, got {names[0]}')
assert(names[1] == "parseInputLine", 'expected parseInputLine second, got {names[1]}')

assert(onoma.await(stream.next()) == nil, "end of stream repeats")
assert(onoma.await(stream.next()) == nil, "end of stream repeats")
w.stop_blocking()
assert(!w.running(), "watcher is stopped")
`
	err := runSource(t, rt, script, map[string]any{"root": newProject(t)})
	require.NoError(t, err)
}

func TestModule_ManualPolling(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	script := `
f := onoma.get_watcher([root])
w := nil
for {
    res := f.poll()
    if res["ready"] {
        w = res["value"]
        break
    }
    p := onoma.pending()
    assert(!p.ready(), "pending is not ready on its first poll")
    assert(p.ready(), "pending is ready on its second poll")
}
assert(f.ready(), "a ready future stays ready")
assert(w != nil, "watcher handle expected")
w.stop_blocking()
`
	err := runSource(t, rt, script, map[string]any{"root": newProject(t)})
	require.NoError(t, err)
}

func TestModule_IdleStopIsNoop(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	script := `
w := onoma.await(onoma.get_watcher([root]))
w.stop_blocking()
w.stop_blocking()
`
	require.NoError(t, runSource(t, rt, script, map[string]any{"root": newProject(t)}))
}

func TestModule_Log(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	require.NoError(t, runSource(t, rt, `onoma.log("warning", "disk low")`, nil))

	err := runSource(t, rt, `onoma.log("bogus", "x")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level: bogus")

	require.NoError(t, env.Sink().Flush())
	data, err := os.ReadFile(env.Sink().Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk low")
	assert.NotContains(t, string(data), `"message":"x"`)
}

func TestModule_CreateContext(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	script := `
c := onoma.create_context("/proj/src/main.go", nil)
assert(c.CurrentFile() == "/proj/src/main.go", "current file round-trips")
d := onoma.create_context(nil, nil)
assert(d.CurrentFile() == "", "no current file")
`
	require.NoError(t, runSource(t, rt, script, nil))

	err := runSource(t, rt, `onoma.create_context(nil, ["function", "bogus"])`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid symbol kind: bogus")

	err = runSource(t, rt, `onoma.create_context(nil, [1])`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a string")
}

func TestModule_StartFailureRaises(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	missing := filepath.Join(t.TempDir(), "missing")
	script := `
w := onoma.await(onoma.get_watcher([root]))
onoma.await(w.start())
`
	err := runSource(t, rt, script, map[string]any{"root": missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial indexing failed")
}

func TestModule_DatabasePath(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	script := `assert(onoma.database_path == expected, 'got {onoma.database_path}')`
	require.NoError(t, runSource(t, rt, script, map[string]any{"expected": env.DatabasePath()}))
}

func TestModule_AwaitRejectsNonFutures(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	err := runSource(t, rt, `onoma.await(42)`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "await: expected a future")
}

func TestModule_QueryWithoutContext(t *testing.T) {
	env := newTestEnv(t)
	rt := NewRuntime(env, "")

	script := `
w := onoma.await(onoma.get_watcher([root]))
onoma.await(w.start())
r := onoma.get_resolver([root])
stream := onoma.await(r.query("parseInputState", nil))
sym := onoma.await(stream.next())
assert(sym["name"] == "parseInputState", "exact match first")
assert(sym["kind"] == "struct", "kind is canonical")
stream.close()
w.stop_blocking()
`
	require.NoError(t, runSource(t, rt, script, map[string]any{"root": newProject(t)}))
}

// --- script loading tests ---

func TestLoadScript_FromFSFS(t *testing.T) {
	t.Parallel()

	content := `x := 42`
	mapFS := fstest.MapFS{
		"session/start.risor": &fstest.MapFile{Data: []byte(content)},
	}

	rt := NewRuntime(newTestEnv(t), "", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("/session/start.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestLoadScript_FallsBackToDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `z := 7`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(content), 0o644))

	rt := NewRuntime(newTestEnv(t), dir)

	got, err := rt.LoadScript("test.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRunScript_ImportsSeeOnomaModule(t *testing.T) {
	env := newTestEnv(t)
	mapFS := fstest.MapFS{
		"collect.risor": &fstest.MapFile{Data: []byte(`
func all(stream) {
    out := []
    for {
        sym := onoma.await(stream.next())
        if sym == nil {
            return out
        }
        out.append(sym)
    }
}
`)},
		"main.risor": &fstest.MapFile{Data: []byte(`
import collect

w := onoma.await(onoma.get_watcher([root]))
onoma.await(w.start())
r := onoma.get_resolver([root])
syms := collect.all(onoma.await(r.query("parse", onoma.create_context(nil, ["function"]))))
assert(len(syms) == 2, 'expected 2 functions, got {len(syms)}')
w.stop_blocking()
`)},
	}

	rt := NewRuntime(env, "", WithRuntimeFS(mapFS))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, rt.RunScript(ctx, "main.risor", map[string]any{"root": newProject(t)}))
}
