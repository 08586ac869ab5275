package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"signalbot/internal/task/engine"
	logx "signalbot/pkg/logx"
)

// AddCron registers (or replaces, by name) a cron schedule. Overlapping
// runs of the same schedule are skipped.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.removeScheduleLocked(name)
	d := scheduleDef{
		id:      fmt.Sprintf("cron:%d", time.Now().UnixNano()),
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
	}
	s.defs = append(s.defs, d)
	if s.c == nil {
		// Registered with cron when Start runs.
		return name, nil
	}
	err := s.addCronLocked(&s.defs[len(s.defs)-1])
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return name, err
	}
	args := []logx.Field{logx.String("name", name), logx.String("id", d.id), logx.String("spec", spec), logx.Duration("timeout", d.timeout)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return name, nil
}

// AddOnce arms a one-time timer. Re-adding a name replaces the previous
// timer; a replaced or removed timer that already fired is ignored.
// Instants in the past fire immediately.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}
	if job == nil {
		return "", errors.New("job required")
	}

	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if prev, ok := s.once[name]; ok && prev.timer != nil {
		_ = prev.timer.Stop()
	}
	s.onceSeq++
	d := &onceDef{at: at, timeout: timeout, job: job, ver: s.onceSeq}
	s.once[name] = d
	if running {
		s.armLocked(name, d)
	}
	return name, nil
}

// Remove unschedules everything registered under name. It reports whether
// something was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	if d, ok := s.once[name]; ok {
		if d.timer != nil {
			_ = d.timer.Stop()
		}
		delete(s.once, name)
		removed = true
	}
	s.tmu.Unlock()

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// armLocked starts the runtime timer for d. Call with s.tmu held.
func (s *Service) armLocked(name string, d *onceDef) {
	delay := time.Until(d.at)
	if delay < 0 {
		delay = 0
	}
	ver := d.ver
	d.timer = time.AfterFunc(delay, func() { s.fireOnce(name, ver) })
}

func (s *Service) fireOnce(name string, ver uint64) {
	s.tmu.Lock()
	d, ok := s.once[name]
	if !ok || d.ver != ver {
		s.tmu.Unlock()
		return
	}
	delete(s.once, name)
	s.tmu.Unlock()

	if s.exec == nil {
		return
	}
	t := engine.Task{Name: name, Timeout: d.timeout, Run: d.job}
	if d.timeout > 0 {
		// A timer that waits in the queue longer than its own timeout is dropped.
		t.Deadline = time.Now().Add(d.timeout)
	}
	if err := s.exec.Enqueue(t); err != nil {
		s.reportEnqueueError(name, err)
	}
}

func (s *Service) rebuildOnceTimers() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for name, d := range s.once {
		if d.timer != nil {
			_ = d.timer.Stop()
		}
		s.armLocked(name, d)
	}
}

// removeScheduleLocked removes all cron defs matching name. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	job := cron.FuncJob(func() {
		if s.exec == nil {
			return
		}
		err := s.exec.Enqueue(engine.Task{
			Name:      def.name,
			Timeout:   def.timeout,
			Run:       def.job,
			Exclusive: true,
		})
		if err != nil {
			s.reportEnqueueError(def.name, err)
		}
	})
	eid, err := s.c.AddJob(d.spec, job)
	if err == nil {
		d.entryID = eid
	}
	return err
}

// previewNextRunsLocked lists upcoming run times for debug logs. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
