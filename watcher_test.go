package onoma

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoop struct {
	mu       sync.Mutex
	startErr error
	running  bool
	starts   int
	stops    int
}

func (f *fakeLoop) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeLoop) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeLoop) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeIndexer struct {
	fullErr error
	delay   time.Duration
	closed  int
}

func (f *fakeIndexer) RunFullIndex(context.Context) error {
	time.Sleep(f.delay)
	return f.fullErr
}
func (f *fakeIndexer) IndexPaths(context.Context, []string) error  { return nil }
func (f *fakeIndexer) RemovePaths(context.Context, []string) error { return nil }
func (f *fakeIndexer) Roots() []string                             { return []string{"/fake"} }
func (f *fakeIndexer) Close() error {
	f.closed++
	return nil
}

func writeSource(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_StartFailures(t *testing.T) {
	t.Parallel()
	loopErr := errors.New("inotify limit reached")
	indexErr := errors.New("disk full")

	tests := []struct {
		name         string
		loopErr      error
		indexErr     error
		wantIndex    bool
		wantLoop     bool
		wantRollback bool
	}{
		{name: "index fails", indexErr: indexErr, wantIndex: true, wantRollback: true},
		{name: "loop fails", loopErr: loopErr, wantLoop: true},
		{name: "both fail", loopErr: loopErr, indexErr: indexErr, wantIndex: true, wantLoop: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			loop := &fakeLoop{startErr: tt.loopErr}
			w := newWatcher(env, &fakeIndexer{fullErr: tt.indexErr}, loop)

			_, err := await(t, env, w.Start())
			require.Error(t, err)
			if tt.wantIndex {
				assert.ErrorIs(t, err, indexErr)
				assert.Contains(t, err.Error(), "initial indexing failed: disk full")
			} else {
				assert.NotContains(t, err.Error(), "initial indexing failed")
			}
			if tt.wantLoop {
				assert.ErrorIs(t, err, loopErr)
			}
			if tt.wantRollback {
				assert.Equal(t, 1, loop.stops, "started loop is rolled back")
			}
			assert.False(t, loop.Running())
			assert.False(t, w.Running())

			// The watcher is still created, so a retry is allowed.
			loop.startErr = nil
			w.ix = &fakeIndexer{}
			_, err = await(t, env, w.Start())
			require.NoError(t, err)
			assert.True(t, w.Running())
		})
	}
}

func TestWatcher_StartWaitsForBothHalves(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	loop := &fakeLoop{}
	w := newWatcher(env, &fakeIndexer{delay: 100 * time.Millisecond}, loop)

	f := w.Start()
	assert.Eventually(t, loop.Running, time.Second, 5*time.Millisecond)
	_, ready, _ := f.Poll()
	assert.False(t, ready, "loop started but the index is still running")

	_, err := await(t, env, f)
	require.NoError(t, err)
	assert.True(t, w.Running())
}

func TestWatcher_Lifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ix := &fakeIndexer{delay: 50 * time.Millisecond}
	w := newWatcher(env, ix, &fakeLoop{})

	first := w.Start()
	_, err := await(t, env, w.Start())
	assert.ErrorIs(t, err, ErrAlreadyRunning, "second start while starting")
	_, err = await(t, env, first)
	require.NoError(t, err)
	_, err = await(t, env, w.Start())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, w.StopBlocking())
	assert.False(t, w.Running())
	assert.Equal(t, 1, ix.closed)
	require.NoError(t, w.StopBlocking(), "repeated stop is a no-op")
	assert.Equal(t, 1, ix.closed)

	_, err = await(t, env, w.Start())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestWatcher_IdleStopIsNoop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	loop := &fakeLoop{}
	w := newWatcher(env, &fakeIndexer{}, loop)
	require.NoError(t, w.StopBlocking())
	assert.Zero(t, loop.stops)

	_, err := await(t, env, w.Start())
	require.NoError(t, err, "an idle stop leaves the watcher startable")
}

func TestWatcher_StopWaitsForStart(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	loop := &fakeLoop{}
	w := newWatcher(env, &fakeIndexer{delay: 50 * time.Millisecond}, loop)

	_ = w.Start()
	require.NoError(t, w.StopBlocking())
	assert.False(t, w.Running())
	assert.False(t, loop.Running())
}

func TestGetWatcher_InvalidDatabase(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	// Occupy the database directory with a regular file.
	require.NoError(t, os.MkdirAll(filepath.Dir(env.DatabasePath()), 0o755))
	require.NoError(t, os.WriteFile(env.DatabasePath(), []byte("x"), 0o644))

	_, err := await(t, env, env.GetWatcher([]string{t.TempDir()}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create indexer for: ")
}

func TestGetWatcher_IndexesAndWatches(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	root := t.TempDir()
	writeSource(t, filepath.Join(root, "a.go"), "package src\n\nfunc Alpha() {}\n")

	w, err := await(t, env, env.GetWatcher([]string{root}))
	require.NoError(t, err)
	assert.Equal(t, []string{root}, w.Roots())
	_, err = await(t, env, w.Start())
	require.NoError(t, err)

	r, err := env.GetResolver([]string{root})
	require.NoError(t, err)
	qc, err := env.CreateContext(nil, nil)
	require.NoError(t, err)

	first := drain(t, env, r, "Alpha", qc)
	require.Len(t, first, 1)
	assert.Equal(t, "Alpha", first[0].Name)

	writeSource(t, filepath.Join(root, "b.go"), "package src\n\nfunc Beta() {}\n")
	assert.Eventually(t, func() bool {
		return len(drain(t, env, r, "Beta", qc)) == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, w.StopBlocking())
	log := readLog(t, env)
	assert.Contains(t, log, "Created indexer with database path at "+env.DatabasePath())
	assert.Contains(t, log, "Created watcher for indexed directories")
	assert.Contains(t, log, "Created resolver for indexed directories")
}

func TestEnvClose_ClosesEachIndexerOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	startedIx := &fakeIndexer{}
	started := newWatcher(env, startedIx, &fakeLoop{})
	idleIx := &fakeIndexer{}
	_ = newWatcher(env, idleIx, &fakeLoop{})

	_, err := await(t, env, started.Start())
	require.NoError(t, err)

	require.NoError(t, env.Close(context.Background()))
	assert.Equal(t, 1, startedIx.closed, "closed by StopBlocking only")
	assert.Equal(t, 1, idleIx.closed, "closed by Close for a watcher that never ran")
}
