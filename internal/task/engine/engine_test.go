package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot/internal/eventbus"
	logx "signalbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) (*Service, <-chan eventbus.Event) {
	t.Helper()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		unsub()
	})
	return s, events
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) Run {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e.Data.(Run)
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()
	s, events := startEngine(t, Config{Workers: 1})

	ran := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "ok", Run: func(context.Context) error {
		close(ran)
		return nil
	}}))
	<-ran
	ev := waitEvent(t, events, "task.finished")
	assert.Equal(t, "ok", ev.Name)
	assert.Equal(t, OutcomeOK, ev.Outcome)
	assert.Empty(t, ev.Error)
}

func TestTaskPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	s, events := startEngine(t, Config{Workers: 1})

	require.NoError(t, s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("bad") }}))
	ev := waitEvent(t, events, "task.failed")
	assert.Equal(t, OutcomePanic, ev.Outcome)
	assert.Contains(t, ev.Error, "panic: bad")

	// The worker survives the panic.
	done := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "after", Run: func(context.Context) error {
		close(done)
		return nil
	}}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestTimeoutAppliesToContext(t *testing.T) {
	t.Parallel()
	s, events := startEngine(t, Config{Workers: 1, DefaultTimeout: 20 * time.Millisecond})

	require.NoError(t, s.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	ev := waitEvent(t, events, "task.failed")
	assert.Contains(t, ev.Error, context.DeadlineExceeded.Error())
}

func TestExclusiveTaskSkippedWhileBusy(t *testing.T) {
	t.Parallel()
	s, events := startEngine(t, Config{Workers: 1})

	release := make(chan struct{})
	task := Task{Name: "signal.refresh", Exclusive: true, Run: func(context.Context) error {
		<-release
		return nil
	}}
	require.NoError(t, s.Enqueue(task))
	assert.ErrorIs(t, s.Enqueue(task), ErrBusy)
	close(release)
	waitEvent(t, events, "task.finished")

	// Released once the first run completes.
	require.Eventually(t, func() bool { return s.Enqueue(task) == nil }, time.Second, 10*time.Millisecond)
}

func TestExpiredTaskIsDropped(t *testing.T) {
	t.Parallel()
	s, events := startEngine(t, Config{Workers: 1})

	ran := false
	require.NoError(t, s.Enqueue(Task{Name: "signal.deliver.1", Deadline: time.Now().Add(-time.Second), Run: func(context.Context) error {
		ran = true
		return nil
	}}))
	ev := waitEvent(t, events, "task.dropped")
	assert.Equal(t, OutcomeExpired, ev.Outcome)
	assert.False(t, ran)
	assert.Equal(t, uint64(1), s.Stats().Dropped)
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, s.Enqueue(Task{Name: "busy", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Enqueue(Task{Name: "queued", Run: noop}))
	assert.ErrorIs(t, s.Enqueue(Task{Name: "extra", Run: noop}), ErrQueueFull)

	st := s.Stats()
	assert.Equal(t, 1, st.Running)
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, uint64(1), st.Dropped)
}

func TestEnqueueValidationAndStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	assert.Error(t, s.Enqueue(Task{Name: "x"}))
	assert.Error(t, s.Enqueue(Task{Run: func(context.Context) error { return nil }}))
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()
	s, events := startEngine(t, Config{Workers: 1, HistorySize: 2})
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(Task{Name: "t", Run: func(context.Context) error { return nil }}))
		waitEvent(t, events, "task.finished")
	}
	// record happens after the finished event is published.
	require.Eventually(t, func() bool { return s.Stats().Completed == 3 && len(s.Stats().Recent) == 2 }, time.Second, 10*time.Millisecond)
}
