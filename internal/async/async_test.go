package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt := NewRuntime("test", opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})
	return rt
}

func pollUntilReady[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		v, ok, err := f.Poll()
		if ok {
			return v, err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("future never became ready")
	var zero T
	return zero, nil
}

func TestNewRuntime_DefaultsWorkersToCPUCount(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	assert.Greater(t, rt.Workers(), 0)
	assert.Equal(t, "test", rt.Name())
}

func TestNewRuntime_NegativeWorkersPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewRuntime("bad", WithWorkers(-1)) })
}

func TestEnterExit_DepthAccounting(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	assert.Equal(t, 0, rt.Depth())

	outer := rt.Enter()
	inner := rt.Enter()
	assert.Equal(t, 2, rt.Depth())

	inner.Exit()
	assert.Equal(t, 1, rt.Depth())
	inner.Exit() // idempotent
	assert.Equal(t, 1, rt.Depth())

	outer.Exit()
	assert.Equal(t, 0, rt.Depth())
}

func TestEnterExit_OutOfOrderStillReleases(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	a := rt.Enter()
	b := rt.Enter()
	a.Exit()
	assert.Equal(t, 1, rt.Depth())
	b.Exit()
	assert.Equal(t, 0, rt.Depth())
}

func TestSpawn_ReturnsValue(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	g := rt.Enter()
	defer g.Exit()

	f := Spawn(g, func(context.Context) (int, error) { return 42, nil })
	v, err := pollUntilReady(t, f)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	// Completed futures stay completed.
	v, ok, err := f.Poll()
	assert.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSpawn_PropagatesError(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	g := rt.Enter()
	defer g.Exit()

	boom := errors.New("boom")
	f := Spawn(g, func(context.Context) (string, error) { return "", boom })
	_, err := pollUntilReady(t, f)
	assert.ErrorIs(t, err, boom)
}

func TestSpawn_AfterExitFails(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	g := rt.Enter()
	g.Exit()

	f := Spawn(g, func(context.Context) (int, error) { return 1, nil })
	_, ok, err := f.Poll()
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrGuardExited)
}

func TestSpawn_AfterShutdownFails(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("closed")
	require.NoError(t, rt.Shutdown(context.Background()))

	g := rt.Enter()
	defer g.Exit()
	f := Spawn(g, func(context.Context) (int, error) { return 1, nil })
	_, ok, err := f.Poll()
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestSpawn_NeverBlocksAndRespectsWorkerLimit(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, WithWorkers(1))
	g := rt.Enter()
	defer g.Exit()

	release := make(chan struct{})
	var running atomic.Int32
	var peak atomic.Int32
	task := func(context.Context) (struct{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return struct{}{}, nil
	}

	start := time.Now()
	futures := []*Future[struct{}]{Spawn(g, task), Spawn(g, task), Spawn(g, task)}
	assert.Less(t, time.Since(start), time.Second, "spawn must not block")

	close(release)
	for _, f := range futures {
		_, err := pollUntilReady(t, f)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), peak.Load())
}

func TestShutdown_CancelsTasks(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("cancel")
	g := rt.Enter()
	f := Spawn(g, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	g.Exit()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Shutdown(ctx))

	_, err := f.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrShutdown), "unexpected error: %v", err)
}

func TestReadyAndFailed(t *testing.T) {
	t.Parallel()
	v, ok, err := Ready("x").Poll()
	assert.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	boom := errors.New("boom")
	_, ok, err = Failed[int](boom).Poll()
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestYield_NeedsExactlyTwoPolls(t *testing.T) {
	t.Parallel()
	f := Yield()
	_, ok, err := f.Poll()
	assert.False(t, ok)
	require.NoError(t, err)

	_, ok, err = f.Poll()
	assert.True(t, ok)
	require.NoError(t, err)

	_, ok, _ = f.Poll()
	assert.True(t, ok)
}

func TestPollAny(t *testing.T) {
	t.Parallel()
	var p Poller = Ready(7)
	v, ok, err := p.PollAny()
	assert.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, ok, err = Poller(Yield()).PollAny()
	assert.False(t, ok)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestWait_PollDrivenFuture(t *testing.T) {
	t.Parallel()
	_, err := Yield().Wait(context.Background())
	require.NoError(t, err)
}
