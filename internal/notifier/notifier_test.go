package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

type recorder struct {
	mu    sync.Mutex
	fails int
	sent  []kit.ChatTarget
	texts []string
}

func (r *recorder) Start(context.Context, chan<- kit.Update) error { return nil }
func (r *recorder) Stop(context.Context) error                     { return nil }
func (r *recorder) SendPhoto(context.Context, kit.ChatTarget, kit.Photo, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, errors.New("unused")
}

func (r *recorder) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return kit.MessageRef{}, errors.New("temporary")
	}
	r.sent = append(r.sent, to)
	r.texts = append(r.texts, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestNotifyAllDeliversAndDedups(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := New(Config{RatePerSec: 100, DedupWindow: time.Minute}, rec, logx.Nop(), nil)
	s.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, s.NotifyAll(ctx, "application", []int64{10, 20}, "New application from 5"))
	require.NoError(t, s.NotifyAll(ctx, "application", []int64{10, 20}, "New application from 5"))

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	assert.Equal(t, 2, rec.count())
	assert.Len(t, s.History(), 2)
}

func TestNotifyRetries(t *testing.T) {
	t.Parallel()
	rec := &recorder{fails: 1}
	s := New(Config{RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, rec, logx.Nop(), nil)
	s.Start(context.Background())
	require.NoError(t, s.Notify(context.Background(), Notification{Channel: "x", Target: kit.ChatTarget{ChatID: 1}, Text: "hello"}))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Stop(context.Background())
}

func TestNotifyAfterStop(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &recorder{}, logx.Nop(), nil)
	err := s.Notify(context.Background(), Notification{Text: "x"})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestNotifyAllJoinsErrors(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &recorder{}, logx.Nop(), nil)
	err := s.NotifyAll(context.Background(), "application", []int64{1, 2}, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Contains(t, err.Error(), "chat 2")
}

func TestDedupKeyedByChatAndText(t *testing.T) {
	t.Parallel()
	s := New(Config{DedupWindow: time.Minute, DedupMaxEntries: 2}, &recorder{}, logx.Nop(), nil)
	a := Notification{Channel: "application", Target: kit.ChatTarget{ChatID: 1}, Text: "hi"}
	b := a
	b.Target.ChatID = 2

	assert.True(t, s.firstSeen(a.key(), time.Minute, 2))
	assert.False(t, s.firstSeen(a.key(), time.Minute, 2))
	assert.True(t, s.firstSeen(b.key(), time.Minute, 2))
	c := a
	c.Text = "other"
	assert.True(t, s.firstSeen(c.key(), time.Minute, 2))
	assert.LessOrEqual(t, len(s.seen), 2)
}

func TestBackoffBounded(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt < 10; attempt++ {
		d := backoff(cfg, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}
