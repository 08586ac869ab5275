package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"signalbot/internal/signal"
	"signalbot/internal/storage"
	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

type sent struct {
	chat int64
	text string
}

type fakeAdapter struct {
	mu    sync.Mutex
	out   []sent
	menus [][]kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendPhoto(context.Context, kit.ChatTarget, kit.Photo, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, errors.New("unused")
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{chat: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menus = append(f.menus, cmds)
	return nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.out))
	for _, s := range f.out {
		out = append(out, s.text)
	}
	return out
}

func (f *fakeAdapter) last() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type fakeEngine struct {
	mu       sync.Mutex
	status   signal.Status
	hours    string
	rng      string
	enabled  bool
	err      error
	report   signal.Report
	custom   []string
	minutes  []float64
	replans  int
	triggers int
}

func (f *fakeEngine) Status(context.Context) signal.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	st.Enabled = f.enabled
	return st
}

func (f *fakeEngine) Settings(context.Context) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hours, f.rng, nil
}

func (f *fakeEngine) SetSignalsEnabled(_ context.Context, on bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enabled == on {
		return false, nil
	}
	f.enabled = on
	return true, nil
}

func (f *fakeEngine) SetWorkingHours(_ context.Context, v string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := signal.ParseWindow(v); !ok || len(v) != len("00:00-00:00") {
		return "", signal.ErrInvalidHours
	}
	f.hours = v
	return v, nil
}

func (f *fakeEngine) SetSignalRange(_ context.Context, v string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, _, ok := signal.ParseRange(v); !ok {
		return "", signal.ErrInvalidRange
	}
	f.rng = v
	return v, nil
}

func (f *fakeEngine) Replan(context.Context) signal.DaySchedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replans++
	return signal.DaySchedule{Date: "2024-05-01", Target: 7}
}

func (f *fakeEngine) TriggerNow(context.Context) (signal.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return f.report, f.err
}

func (f *fakeEngine) SendCustom(_ context.Context, pair, direction string, minutes float64) (signal.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom = append(f.custom, pair+" "+direction)
	f.minutes = append(f.minutes, minutes)
	return f.report, f.err
}

type notice struct {
	ids  []int64
	text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notice
}

func (f *fakeNotifier) NotifyAll(_ context.Context, _ string, ids []int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notice{ids: append([]int64(nil), ids...), text: text})
	return nil
}

const adminID = 100

type fixture struct {
	store    *storage.Memory
	engine   *fakeEngine
	notifier *fakeNotifier
	adapter  *fakeAdapter
	h        *Handlers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemory()
	require.NoError(t, st.EnsureDefaults(context.Background(), storage.StandardDefaults()))
	f := &fixture{
		store:    st,
		engine:   &fakeEngine{enabled: true, hours: "09:00-12:00", rng: "6-10"},
		notifier: &fakeNotifier{},
		adapter:  &fakeAdapter{},
	}
	admins := func() []int64 { return []int64{adminID} }
	f.h = NewHandlers(f.engine, st, signal.NewResolver(st, admins, logx.Nop()), f.notifier, admins, logx.Nop())
	return f
}

// run calls a handler the way the dispatcher would, minus the worker pool.
func (f *fixture) run(t *testing.T, h HandlerFunc, from int64, args ...string) string {
	t.Helper()
	req := &Request{
		Message: &kit.Message{ChatID: from, FromID: from, FirstName: "Ann", FromUsername: "ann"},
		Chat:    kit.ChatTarget{ChatID: from},
		FromID:  from,
		Command: "test",
		Args:    args,
		Admin:   from == adminID,
		Adapter: f.adapter,
		Logger:  logx.Nop(),
	}
	require.NoError(t, h(context.Background(), req))
	return f.adapter.last()
}
