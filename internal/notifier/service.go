package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"signalbot/internal/eventbus"
	rtsup "signalbot/internal/runtime/supervisor"
	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const (
	sendTimeout = 10 * time.Second
	historySize = 300
)

// Service queues notices and sends them from a small supervised worker
// pool. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	queue   chan Notification
	sup     *rtsup.Supervisor
	pending sync.WaitGroup // Notify calls between the open check and the enqueue

	adapter kit.Adapter
	log     logx.Logger
	bus     eventbus.Bus

	seenMu sync.Mutex
	seen   map[string]time.Time // dedup key -> suppressed until

	histMu  sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus, seen: map[string]time.Time{}}
	s.Apply(cfg)
	return s
}

// Apply swaps pacing, retry and dedup settings. Worker and queue sizes take
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	cfg.RetryMax = max(cfg.RetryMax, 0)
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	cfg.DedupWindow = max(cfg.DedupWindow, 0)
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	return cfg
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			for n := range q {
				s.deliver(c, n)
			}
			return nil
		})
	}
}

// Stop closes intake and lets the workers drain the queue until ctx is
// done; whatever is left after that is abandoned.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	s.queue, s.sup = nil, nil
	s.mu.Unlock()
	if q == nil {
		return
	}

	s.pending.Wait()
	close(q)
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("notifier stop timed out", logx.Int("abandoned", len(q)))
		sup.Cancel()
	}
}

// Notify enqueues n. A repeat of the same notice inside the dedup window
// is dropped and reported as success.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	q := s.queue
	window, limit := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	if q == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	s.pending.Add(1)
	s.mu.Unlock()
	defer s.pending.Done()

	if window > 0 && !s.firstSeen(n.key(), window, limit) {
		s.publish("notifier.deduped", n, nil)
		return nil
	}
	select {
	case q <- n:
		s.publish("notifier.queued", n, nil)
		return nil
	default:
		s.publish("notifier.dropped", n, ErrQueueFull)
		return ErrQueueFull
	}
}

// NotifyAll queues text for every chat. Enqueue failures are joined.
func (s *Service) NotifyAll(ctx context.Context, channel string, ids []int64, text string) error {
	var errs []error
	for _, id := range ids {
		if err := s.Notify(ctx, Notification{Channel: channel, Target: kit.ChatTarget{ChatID: id}, Text: text}); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) History() []HistoryItem {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	if s.adapter == nil || n.Text == "" {
		return
	}
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	var err error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			if !sleep(ctx, backoff(cfg, attempt)) {
				return
			}
		}
		if lim.Wait(ctx) != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		_, err = s.adapter.SendText(callCtx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			s.remember(n.Text)
			s.publish("notifier.sent", n, nil)
			return
		}
		s.log.Debug("notice not sent", logx.Int64("chat_id", n.Target.ChatID), logx.Int("attempt", attempt+1), logx.Err(err))
	}
	s.log.Warn("notice dropped after retries", logx.String("channel", n.Channel), logx.Int64("chat_id", n.Target.ChatID), logx.Err(err))
	s.publish("notifier.failed", n, err)
}

func (s *Service) remember(text string) {
	s.histMu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if over := len(s.history) - historySize; over > 0 {
		s.history = s.history[over:]
	}
	s.histMu.Unlock()
}

// firstSeen records key and reports whether it was not already suppressed.
func (s *Service) firstSeen(key string, window time.Duration, limit int) bool {
	now := time.Now()
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if until, ok := s.seen[key]; ok && now.Before(until) {
		return false
	}
	if len(s.seen) >= limit {
		for k, until := range s.seen {
			if !now.Before(until) {
				delete(s.seen, k)
			}
		}
	}
	// Still full: forget an arbitrary entry.
	for k := range s.seen {
		if len(s.seen) < limit {
			break
		}
		delete(s.seen, k)
	}
	s.seen[key] = now.Add(window)
	return true
}

func (s *Service) publish(typ string, n Notification, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{Channel: n.Channel, ChatID: n.Target.ChatID, Key: n.key(), At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// backoff doubles from RetryBase per attempt, capped at RetryMaxDelay, with
// ±30% jitter.
func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + 0.6*rand.Float64()))
	return min(d, cfg.RetryMaxDelay)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
