package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot/internal/task/engine"
	logx "signalbot/pkg/logx"
)

// inlineExec runs tasks synchronously on the timer goroutine.
type inlineExec struct {
	mu    sync.Mutex
	ran   []string
	tasks []engine.Task
	done  chan string
}

func newInlineExec() *inlineExec { return &inlineExec{done: make(chan string, 16)} }

func (e *inlineExec) Enqueue(t engine.Task) error {
	_ = t.Run(context.Background())
	e.mu.Lock()
	e.ran = append(e.ran, t.Name)
	e.tasks = append(e.tasks, t)
	e.mu.Unlock()
	e.done <- t.Name
	return nil
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case name := <-ch:
		return name
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task")
		return ""
	}
}

func TestAddOnceFires(t *testing.T) {
	t.Parallel()
	exec := newInlineExec()
	s := New(Config{Timezone: "UTC"}, exec, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_, err := s.AddOnce("a", time.Now().Add(20*time.Millisecond), 0, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "a", waitFor(t, exec.done))
	assert.Empty(t, s.Snapshot().Once)
}

func TestOnceTaskCarriesDeadline(t *testing.T) {
	t.Parallel()
	exec := newInlineExec()
	s := New(Config{}, exec, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	before := time.Now()
	_, err := s.AddOnce("signal.deliver.1", before, time.Minute, func(context.Context) error { return nil })
	require.NoError(t, err)
	waitFor(t, exec.done)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.Len(t, exec.tasks, 1)
	task := exec.tasks[0]
	assert.False(t, task.Exclusive)
	assert.Equal(t, time.Minute, task.Timeout)
	assert.False(t, task.Deadline.Before(before.Add(time.Minute)))
}

func TestAddOncePastFiresImmediately(t *testing.T) {
	t.Parallel()
	exec := newInlineExec()
	s := New(Config{}, exec, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_, err := s.AddOnce("late", time.Now().Add(-time.Hour), 0, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "late", waitFor(t, exec.done))
}

func TestRemoveCancelsOnce(t *testing.T) {
	t.Parallel()
	exec := newInlineExec()
	s := New(Config{}, exec, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_, err := s.AddOnce("x", time.Now().Add(30*time.Millisecond), 0, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, s.Remove("x"))
	assert.False(t, s.Remove("x"))

	select {
	case name := <-exec.done:
		t.Fatalf("removed timer %q fired", name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReplaceOnceRunsOnlyLatest(t *testing.T) {
	t.Parallel()
	exec := newInlineExec()
	s := New(Config{}, exec, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var mu sync.Mutex
	var got []int
	for i := 1; i <= 2; i++ {
		i := i
		_, err := s.AddOnce("job", time.Now().Add(20*time.Millisecond), 0, func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}
	waitFor(t, exec.done)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2}, got)
}

func TestOnceWaitsForStart(t *testing.T) {
	t.Parallel()
	exec := newInlineExec()
	s := New(Config{}, exec, logx.Nop())

	_, err := s.AddOnce("pending", time.Now().Add(10*time.Millisecond), 0, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.Len(t, s.Snapshot().Once, 1)

	s.Start(context.Background())
	defer s.Stop(context.Background())
	assert.Equal(t, "pending", waitFor(t, exec.done))
}

func TestAddCronValidatesAndReplaces(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "Europe/Kyiv"}, newInlineExec(), logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_, err := s.AddCron("refresh", "not a cron", 0, func(context.Context) error { return nil })
	assert.Error(t, err)

	noop := func(context.Context) error { return nil }
	_, err = s.AddCron("refresh", "0 0 * * *", time.Minute, noop)
	require.NoError(t, err)
	_, err = s.AddCron("refresh", "5 0 * * *", time.Minute, noop)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 1)
	assert.Equal(t, "Europe/Kyiv", snap.Timezone)
	next := snap.Schedules[0].Next
	require.False(t, next.IsZero())
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 5, next.Minute())
}
