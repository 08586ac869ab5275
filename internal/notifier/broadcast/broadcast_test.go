package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	fail     map[int64]int // remaining failures per chat
	attempts int
	texts    []int64
	photos   []kit.Photo
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) err(chatID int64) error {
	f.attempts++
	if f.fail[chatID] > 0 {
		f.fail[chatID]--
		return errors.New("blocked by user")
	}
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(to.ChatID); err != nil {
		return kit.MessageRef{}, err
	}
	f.texts = append(f.texts, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) SendPhoto(_ context.Context, to kit.ChatTarget, p kit.Photo, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(to.ChatID); err != nil {
		return kit.MessageRef{}, err
	}
	f.photos = append(f.photos, p)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func TestSendCollectsFailures(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fail: map[int64]int{2: 5}}
	s := New(Config{RatePerSec: 1000}, ad, logx.Nop())

	out := s.Send(context.Background(), "signal", []int64{1, 2, 3}, Message{Text: "hi"})
	assert.Equal(t, 2, out.Delivered)
	assert.Equal(t, []int64{2}, out.Failed)
	assert.Equal(t, []int64{1, 3}, ad.texts)

	st, ok := s.Status(out.ID)
	require.True(t, ok)
	assert.Equal(t, 3, st.Done)
	assert.Equal(t, 1, st.Failed)
	assert.False(t, st.Running)
}

func TestSendMakesOneAttemptPerRecipient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  Message
	}{
		{"text", Message{Text: "hi"}},
		{"photo", Message{Text: "cap", PhotoPath: "/img/x.png"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ad := &fakeAdapter{fail: map[int64]int{7: 1}}
			s := New(Config{RatePerSec: 1000}, ad, logx.Nop())

			out := s.Send(context.Background(), "signal", []int64{7}, tt.msg)
			assert.Equal(t, 0, out.Delivered)
			assert.Equal(t, []int64{7}, out.Failed)
			assert.Equal(t, 1, ad.attempts)
		})
	}
}

func TestSendPhotoUsesCaption(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{RatePerSec: 1000}, ad, logx.Nop())

	out := s.Send(context.Background(), "signal", []int64{1}, Message{Text: "cap", PhotoPath: "/img/EURUSD BUY.png"})
	assert.Equal(t, 1, out.Delivered)
	require.Len(t, ad.photos, 1)
	assert.Equal(t, kit.Photo{Path: "/img/EURUSD BUY.png", Caption: "cap"}, ad.photos[0])
}

func TestSendCancelledCountsAsFailed(t *testing.T) {
	t.Parallel()
	s := New(Config{RatePerSec: 1000}, &fakeAdapter{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := s.Send(ctx, "signal", []int64{1, 2}, Message{Text: "x"})
	assert.Equal(t, 0, out.Delivered)
	assert.Equal(t, []int64{1, 2}, out.Failed)
}

func TestFormatIDs(t *testing.T) {
	t.Parallel()
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	assert.Equal(t, "1, 2, 3, 4, 5, 6, 7, 8, 9, 10", FormatIDs(ids, 10))
	assert.Equal(t, "5", FormatIDs([]int64{5}, 10))
	assert.Equal(t, "", FormatIDs(nil, 10))
}
