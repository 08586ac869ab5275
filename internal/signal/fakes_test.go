package signal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signalbot/internal/market"
	"signalbot/internal/notifier/broadcast"
	"signalbot/internal/storage"
	logx "signalbot/pkg/logx"
)

type fakeTimer struct {
	at  time.Time
	job func(ctx context.Context) error
}

// fakeSched records timers; tests fire them by hand.
type fakeSched struct {
	mu    sync.Mutex
	once  map[string]fakeTimer
	crons map[string]string
}

func newFakeSched() *fakeSched {
	return &fakeSched{once: map[string]fakeTimer{}, crons: map[string]string{}}
}

func (f *fakeSched) AddOnce(name string, at time.Time, _ time.Duration, job func(ctx context.Context) error) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once[name] = fakeTimer{at: at, job: job}
	return name, nil
}

func (f *fakeSched) AddCron(name, spec string, _ time.Duration, _ func(ctx context.Context) error) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crons[name] = spec
	return name, nil
}

func (f *fakeSched) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.once[name]
	delete(f.once, name)
	if _, c := f.crons[name]; c {
		delete(f.crons, name)
		ok = true
	}
	return ok
}

// timers returns armed timer names ordered by fire time.
func (f *fakeSched) timers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.once))
	for n := range f.once {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := f.once[names[i]], f.once[names[j]]
		if a.at.Equal(b.at) {
			return names[i] < names[j]
		}
		return a.at.Before(b.at)
	})
	return names
}

func (f *fakeSched) at(name string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.once[name].at
}

func (f *fakeSched) withPrefix(prefix string) []string {
	var out []string
	for _, n := range f.timers() {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}

// take removes and returns a timer's job, the way a fired timer leaves
// the scheduler.
func (f *fakeSched) take(name string) func(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.once[name]
	if !ok {
		return nil
	}
	delete(f.once, name)
	return t.job
}

func (f *fakeSched) fire(t *testing.T, name string) {
	t.Helper()
	job := f.take(name)
	require.NotNil(t, job, "timer %s not armed", name)
	require.NoError(t, job(context.Background()))
}

type sendCall struct {
	name string
	ids  []int64
	msg  broadcast.Message
}

type fakeBroadcast struct {
	mu    sync.Mutex
	fail  map[int64]bool
	calls []sendCall
}

func (f *fakeBroadcast) Send(_ context.Context, name string, ids []int64, msg broadcast.Message) broadcast.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{name: name, ids: append([]int64(nil), ids...), msg: msg})
	out := broadcast.Outcome{ID: name}
	for _, id := range ids {
		if f.fail[id] {
			out.Failed = append(out.Failed, id)
			continue
		}
		out.Delivered++
	}
	return out
}

func (f *fakeBroadcast) byName(name string) []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sendCall
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

type fixedSource struct {
	snap *market.Snapshot
	err  error
}

func (s fixedSource) Snapshot(context.Context, string) (*market.Snapshot, error) {
	return s.snap, s.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type harness struct {
	engine *Engine
	store  *storage.Memory
	sched  *fakeSched
	bc     *fakeBroadcast
	clock  *clock
	admins []int64
	slept  []time.Duration
}

func at(h, m, s int) time.Time { return time.Date(2024, 5, 1, h, m, s, 0, time.UTC) }

type harnessOpt func(*Deps)

func newHarness(t *testing.T, now time.Time, opts ...harnessOpt) *harness {
	t.Helper()
	store := storage.NewMemory()
	require.NoError(t, store.EnsureDefaults(context.Background(), storage.StandardDefaults()))
	h := &harness{
		store:  store,
		sched:  newFakeSched(),
		bc:     &fakeBroadcast{fail: map[int64]bool{}},
		clock:  &clock{t: now},
		admins: []int64{1},
	}
	d := Deps{
		Store:     store,
		Resolver:  NewResolver(store, func() []int64 { return h.admins }, logx.Nop()),
		Broadcast: h.bc,
		Scheduler: h.sched,
		Logger:    logx.Nop(),
		Rand:      NewRand(42),
		Now:       h.clock.Now,
		Location:  time.UTC,
		Sleep: func(_ context.Context, d time.Duration) error {
			h.slept = append(h.slept, d)
			return nil
		},
	}
	for _, o := range opts {
		o(&d)
	}
	h.engine = New(d)
	return h
}

func (h *harness) approve(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, err := h.store.UpsertApplication(context.Background(), storage.Application{UserID: id, PocketID: "p", Status: storage.StatusApproved})
		require.NoError(t, err)
	}
}

func (h *harness) settings(t *testing.T, hours, rangeValue string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.SetWorkingHours(ctx, hours))
	require.NoError(t, h.store.SetSignalRange(ctx, rangeValue))
}
