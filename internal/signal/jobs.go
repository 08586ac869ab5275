package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	logx "signalbot/pkg/logx"
)

// Timers arms named one-shot jobs. *scheduler.Service implements it.
type Timers interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}

const (
	warnTimeout    = time.Minute
	deliverTimeout = 15 * time.Minute

	// A delivery this far past its instant either ran or was dropped by the
	// task engine without reaching its callback.
	deadAfter = deliverTimeout + time.Minute
)

// jobPair links a warning timer to its delivery. An empty name means that
// side has fired or was cancelled.
type jobPair struct {
	warn    string
	deliver string
	at      time.Time // delivery instant
}

func (p *jobPair) live() bool { return p.warn != "" || p.deliver != "" }

// Jobs tracks the outstanding warning/delivery pairs of the current day.
type Jobs struct {
	mu     sync.Mutex
	timers Timers
	now    func() time.Time
	log    logx.Logger
	seq    uint64
	pairs  []*jobPair
}

func NewJobs(timers Timers, now func() time.Time, log logx.Logger) *Jobs {
	if log.IsZero() {
		log = logx.Nop()
	}
	if now == nil {
		now = time.Now
	}
	return &Jobs{timers: timers, now: now, log: log}
}

// Schedule arms a linked warning and delivery. Each callback unregisters
// its own timer first and is skipped when the timer was cancelled in the
// meantime.
func (j *Jobs) Schedule(warnAt, deliverAt time.Time, onWarn, onDeliver func(ctx context.Context) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.timers == nil {
		return fmt.Errorf("signal jobs: no timers")
	}
	j.seq++
	p := &jobPair{
		warn:    fmt.Sprintf("signal.warn.%d", j.seq),
		deliver: fmt.Sprintf("signal.deliver.%d", j.seq),
		at:      deliverAt,
	}
	if _, err := j.timers.AddOnce(p.warn, warnAt, warnTimeout, j.guard(p.warn, onWarn)); err != nil {
		return fmt.Errorf("arm warning: %w", err)
	}
	if _, err := j.timers.AddOnce(p.deliver, deliverAt, deliverTimeout, j.guard(p.deliver, onDeliver)); err != nil {
		j.timers.Remove(p.warn)
		return fmt.Errorf("arm delivery: %w", err)
	}
	j.pairs = append(j.pairs, p)
	return nil
}

func (j *Jobs) guard(name string, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !j.Unregister(name) {
			j.log.Debug("stale signal timer ignored", logx.String("timer", name))
			return nil
		}
		return fn(ctx)
	}
}

// CancelAll stops every outstanding timer and returns how many pairs were
// registered.
func (j *Jobs) CancelAll() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := len(j.pairs)
	for _, p := range j.pairs {
		j.stopLocked(p)
	}
	j.pairs = nil
	return n
}

// CancelOne stops the latest pair whose delivery is still ahead. Due pairs
// are left to their callbacks; exhausted and dead pairs are dropped.
func (j *Jobs) CancelOne() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	j.pruneLocked(now)
	for i := len(j.pairs) - 1; i >= 0; i-- {
		p := j.pairs[i]
		if !p.at.After(now) {
			continue
		}
		j.stopLocked(p)
		j.pairs = append(j.pairs[:i], j.pairs[i+1:]...)
		return true
	}
	return false
}

// pruneLocked drops pairs with nothing left to fire and pairs whose timer
// never reached its callback.
func (j *Jobs) pruneLocked(now time.Time) {
	kept := j.pairs[:0]
	for _, p := range j.pairs {
		switch {
		case !p.live():
		case now.Sub(p.at) > deadAfter:
			j.log.Debug("signal timer never ran", logx.String("timer", p.deliver), logx.Time("at", p.at))
			j.stopLocked(p)
		default:
			kept = append(kept, p)
		}
	}
	clear(j.pairs[len(kept):])
	j.pairs = kept
}

func (j *Jobs) stopLocked(p *jobPair) {
	if p.warn != "" {
		j.timers.Remove(p.warn)
		p.warn = ""
	}
	if p.deliver != "" {
		j.timers.Remove(p.deliver)
		p.deliver = ""
	}
}

// Unregister clears a fired timer from its pair and drops the pair once
// both sides are gone. It reports whether the timer was still registered.
func (j *Jobs) Unregister(name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, p := range j.pairs {
		switch name {
		case p.warn:
			p.warn = ""
		case p.deliver:
			p.deliver = ""
		default:
			continue
		}
		if !p.live() {
			j.pairs = append(j.pairs[:i], j.pairs[i+1:]...)
		}
		return true
	}
	return false
}

// Pending counts pairs that can still deliver.
func (j *Jobs) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pruneLocked(j.now())
	return len(j.pairs)
}
