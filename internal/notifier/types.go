package notifier

import (
	"fmt"
	"hash/fnv"
	"time"

	kit "signalbot/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Notification is one message for one chat. Channel groups notices for
// dedup and events, e.g. "application".
type Notification struct {
	Channel string
	Target  kit.ChatTarget
	Text    string
	Options *kit.SendOptions
}

// key identifies a notice for dedup: same channel, chat, thread and text.
func (n Notification) key() string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d:%d|%s", n.Channel, n.Target.ChatID, n.Target.ThreadID, n.Text)
	return fmt.Sprintf("%x", h.Sum64())
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Channel string    `json:"channel"`
	ChatID  int64     `json:"chat_id"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
