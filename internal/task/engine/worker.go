package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "signalbot/pkg/logx"
)

// slowTask promotes the completion log line from debug to info.
const slowTask = time.Second

func (s *Service) work(ctx context.Context, q <-chan queued) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-q:
			s.exec(ctx, it)
		}
	}
}

func (s *Service) exec(ctx context.Context, it queued) {
	defer s.release(it.task)
	r := it.run
	start := time.Now()
	r.Wait = start.Sub(r.Queued)

	if dl := it.task.Deadline; !dl.IsZero() && start.After(dl) {
		s.dropped.Add(1)
		r.Outcome = OutcomeExpired
		s.log.Warn("task expired before start", logx.String("task", r.Name), logx.Duration("wait", r.Wait), logx.Time("deadline", dl))
		s.publish("task.dropped", r)
		s.record(r)
		return
	}

	s.running.Add(1)
	panicked, err := s.call(ctx, it.task)
	s.running.Add(-1)
	r.Duration = time.Since(start)

	switch {
	case panicked:
		r.Outcome = OutcomePanic
	case err != nil:
		r.Outcome = OutcomeFailed
	default:
		r.Outcome = OutcomeOK
	}
	if err != nil {
		s.failed.Add(1)
		r.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", r.Name), logx.Err(err), logx.Duration("dur", r.Duration))
		s.publish("task.failed", r)
	} else {
		s.completed.Add(1)
		fields := []logx.Field{logx.String("task", r.Name), logx.Duration("wait", r.Wait), logx.Duration("dur", r.Duration)}
		if r.Duration >= slowTask {
			s.log.Info("task done", fields...)
		} else {
			s.log.Debug("task done", fields...)
		}
		s.publish("task.finished", r)
	}
	s.record(r)
}

func (s *Service) call(ctx context.Context, t Task) (panicked bool, err error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			panicked, err = true, fmt.Errorf("panic: %v", p)
			s.log.Error("task panicked", logx.String("task", t.Name), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
	}()
	return false, t.Run(ctx)
}
