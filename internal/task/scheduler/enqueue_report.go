package scheduler

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"signalbot/internal/task/engine"
	logx "signalbot/pkg/logx"
)

func (s *Service) reportEnqueueError(name string, err error) {
	if errors.Is(err, engine.ErrBusy) {
		s.log.Debug("previous run still active, trigger skipped", logx.String("schedule", name))
		return
	}
	s.enqMu.Lock()
	w, ok := s.enqWarn[name]
	if !ok {
		w = &rate.Sometimes{First: 1, Interval: 5 * time.Second}
		s.enqWarn[name] = w
	}
	s.enqMu.Unlock()
	w.Do(func() {
		s.log.Warn("fired job not enqueued", logx.String("schedule", name), logx.Err(err))
	})
}
