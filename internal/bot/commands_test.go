package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

func TestTokenize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"/start", []string{"/start"}},
		{"  /signal  EURUSD buy 2 ", []string{"/signal", "EURUSD", "buy", "2"}},
		{`/signal EURUSD buy "1 ,5"`, []string{"/signal", "EURUSD", "buy", "1 ,5"}},
		{`/apply a\ b`, []string{"/apply", "a b"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenize(tt.in), tt.in)
	}
}

func TestCommandWord(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "status", commandWord("/status@SignalBot"))
	assert.Equal(t, "send_now", commandWord("/Send_Now"))
	assert.Equal(t, "send_now", sanitizeCommand("send-now"))
	assert.Equal(t, "", sanitizeCommand("!!"))
}

func dispatch(t *testing.T, m *CommandManager) (chan<- kit.Update, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, updates)
	}()
	return updates, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("dispatcher did not stop")
		}
	}
}

func text(from int64, s string) kit.Update {
	return kit.Update{Message: &kit.Message{ChatID: from, FromID: from, Text: s}}
}

func TestDispatchRoutesAndGuardsAdmins(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, []int64{adminID})
	m.SetRegistry([]Command{
		{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
			req.Reply(ctx, "pong "+req.Arg(0))
			return nil
		}},
		{Name: "secret", Aliases: []string{"s"}, Access: AccessAdminOnly, Handle: func(ctx context.Context, req *Request) error {
			req.Reply(ctx, "ok")
			return nil
		}},
		{Name: "boom", Handle: func(context.Context, *Request) error { panic("boom") }},
	})

	updates, stop := dispatch(t, m)
	defer stop()

	steps := []struct {
		up   kit.Update
		want string
	}{
		{text(1, "/ping@bot x"), "pong x"},
		{text(1, "/secret"), textNotAdmin},
		{text(adminID, "/s"), "ok"},
		{text(1, "/nope"), textUnknown},
		{text(1, "/boom"), textUnexpected},
	}
	for i, s := range steps {
		updates <- s.up
		n := i + 1
		require.Eventually(t, func() bool { return len(ad.texts()) == n }, 2*time.Second, 5*time.Millisecond, s.up.Message.Text)
		assert.Equal(t, s.want, ad.last(), s.up.Message.Text)
	}

	// Plain text is ignored.
	updates <- text(1, "hello")
	updates <- text(1, "/help")
	require.Eventually(t, func() bool { return len(ad.texts()) == len(steps)+1 }, 2*time.Second, 5*time.Millisecond)
	help := ad.last()
	assert.Contains(t, help, "/ping")
	assert.NotContains(t, help, "/secret")
}

func TestSetAdminsAppliesLive(t *testing.T) {
	t.Parallel()
	m := NewCommandManager(logx.Nop(), &fakeAdapter{}, []int64{1})
	assert.True(t, m.IsAdmin(1))
	m.SetAdmins([]int64{3, 2})
	assert.False(t, m.IsAdmin(1))
	assert.Equal(t, []int64{2, 3}, m.Admins())
}

func TestMenuMarksAdminCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := NewCommandManager(logx.Nop(), f.adapter, nil)
	m.SetRegistry(f.h.Commands())

	menu := m.Menu()
	require.NotEmpty(t, menu)
	assert.Equal(t, "apply", menu[0].Command)
	byName := map[string]string{}
	for _, c := range menu {
		byName[c.Command] = c.Description
	}
	assert.Equal(t, "🔒 send an auto signal now", byName["send_now"])
	assert.Equal(t, "show available commands", byName["help"])
}
