package broadcast

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

const defaultRatePerSec = 20

var jobSeq uint64

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter:   adapter,
		log:       log,
		status:    map[string]*JobStatus{},
		statusMax: 200,
		statusTTL: 24 * time.Hour,
	}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

// Send delivers msg to every chat in ids, one after another, paced by the
// rate limiter. A failed recipient is logged and collected; it never aborts
// the batch. Cancelling ctx marks the remaining recipients as failed.
func (s *Service) Send(ctx context.Context, name string, ids []int64, msg Message) Outcome {
	now := time.Now()
	id := fmt.Sprintf("bc:%x-%x", now.UnixNano(), atomic.AddUint64(&jobSeq, 1))
	s.pruneStatus(now)
	s.statusMu.Lock()
	s.status[id] = &JobStatus{ID: id, Name: name, Total: len(ids), StartedAt: now, Running: true}
	s.statusMu.Unlock()

	out := Outcome{ID: id}
	for _, chatID := range ids {
		if err := s.sendOne(ctx, chatID, msg); err != nil {
			s.log.Warn("broadcast send failed", logx.String("job", id), logx.String("name", name), logx.Int64("chat_id", chatID), logx.Err(err))
			out.Failed = append(out.Failed, chatID)
			s.mark(id, false)
			continue
		}
		out.Delivered++
		s.mark(id, true)
	}
	s.finish(id)

	fields := []logx.Field{
		logx.String("job", id),
		logx.String("name", name),
		logx.Int("total", len(ids)),
		logx.Int("failed", len(out.Failed)),
		logx.Duration("dur", time.Since(now)),
	}
	if len(out.Failed) > 0 {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Debug("broadcast finished", fields...)
	}
	return out
}

// sendOne makes exactly one attempt. A send that timed out may still have
// reached the chat, so a failed recipient is reported, never re-sent.
func (s *Service) sendOne(ctx context.Context, chatID int64, msg Message) error {
	s.mu.Lock()
	lim, adapter := s.limiter, s.adapter
	s.mu.Unlock()

	if adapter == nil {
		return fmt.Errorf("chat %d: no transport", chatID)
	}
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("chat %d: %w", chatID, err)
	}
	to := kit.ChatTarget{ChatID: chatID}
	var err error
	if msg.PhotoPath != "" {
		_, err = adapter.SendPhoto(ctx, to, kit.Photo{Path: msg.PhotoPath, Caption: msg.Text}, msg.Options)
	} else {
		_, err = adapter.SendText(ctx, to, msg.Text, msg.Options)
	}
	if err != nil {
		return fmt.Errorf("chat %d: %w", chatID, err)
	}
	return nil
}

func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

func (s *Service) mark(id string, ok bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.Done++
		if !ok {
			st.Failed++
		}
	}
}

func (s *Service) finish(id string) {
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		st.DoneAt = time.Now()
		st.Running = false
	}
	s.statusMu.Unlock()
}

// pruneStatus drops finished entries older than statusTTL and caps the map
// at statusMax, oldest first.
func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, st := range s.status {
		if !st.Running && !st.DoneAt.IsZero() && now.Sub(st.DoneAt) > s.statusTTL {
			delete(s.status, id)
		}
	}
	if len(s.status) < s.statusMax {
		return
	}
	ids := make([]string, 0, len(s.status))
	for id, st := range s.status {
		if !st.Running {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.status[ids[i]].StartedAt.Before(s.status[ids[j]].StartedAt) })
	for _, id := range ids {
		if len(s.status) < s.statusMax {
			break
		}
		delete(s.status, id)
	}
}

// FormatIDs renders at most n ids, comma separated.
func FormatIDs(ids []int64, n int) string {
	if n > len(ids) {
		n = len(ids)
	}
	b := make([]byte, 0, n*11)
	for i, id := range ids[:n] {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = strconv.AppendInt(b, id, 10)
	}
	return string(b)
}
