package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signalbot/internal/eventbus"
	"signalbot/internal/market"
	"signalbot/internal/notifier/broadcast"
	"signalbot/internal/storage"
	logx "signalbot/pkg/logx"
)

// Scheduler arms the per-signal timers and the daily refresh.
// *scheduler.Service implements it.
type Scheduler interface {
	Timers
	AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error)
}

// Broadcaster sends one message to many chats. *broadcast.Service implements it.
type Broadcaster interface {
	Send(ctx context.Context, name string, ids []int64, msg broadcast.Message) broadcast.Outcome
}

type Deps struct {
	Store     storage.Store
	Resolver  *Resolver
	Market    market.Source // optional
	Broadcast Broadcaster
	Scheduler Scheduler // optional until Start
	Images    *Catalog
	Bus       eventbus.Bus
	Metrics   Metrics
	Logger    logx.Logger

	// Test hooks.
	Rand     Rand
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	Location *time.Location
}

// Engine owns the day's plan and runs every delivery path.
type Engine struct {
	// planMu serializes plan rebuilds; mu guards day.
	planMu sync.Mutex
	mu     sync.Mutex
	day    DaySchedule

	store     storage.Store
	resolver  *Resolver
	market    market.Source
	broadcast Broadcaster
	sched     Scheduler
	images    *Catalog
	bus       eventbus.Bus
	metrics   Metrics
	log       logx.Logger
	jobs      *Jobs

	rng   Rand
	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	loc   *time.Location
}

func New(d Deps) *Engine {
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "signal.engine"))
	e := &Engine{
		store:     d.Store,
		resolver:  d.Resolver,
		market:    d.Market,
		broadcast: d.Broadcast,
		sched:     d.Scheduler,
		images:    d.Images,
		bus:       d.Bus,
		metrics:   d.Metrics,
		log:       log,
		rng:       d.Rand,
		clock:     d.Now,
		sleep:     d.Sleep,
		loc:       d.Location,
	}
	if e.resolver == nil {
		e.resolver = NewResolver(d.Store, nil, log)
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.rng == nil {
		e.rng = NewRand(0)
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepCtx
	}
	if e.loc == nil {
		loc, err := time.LoadLocation(Zone)
		if err != nil {
			log.Warn("reference zone unavailable, using UTC", logx.String("zone", Zone), logx.Err(err))
			loc = time.UTC
		}
		e.loc = loc
	}
	var timers Timers
	if d.Scheduler != nil {
		timers = d.Scheduler
	}
	e.jobs = NewJobs(timers, e.clock, log)
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) now() time.Time { return e.clock().In(e.loc) }

func (e *Engine) Location() *time.Location { return e.loc }

// Day returns a copy of the current plan.
func (e *Engine) Day() DaySchedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.day
}

func (e *Engine) setDay(d DaySchedule) {
	e.mu.Lock()
	e.day = d
	e.mu.Unlock()
	e.metrics.SentToday(d.Sent)
}

// markSent counts one delivery attempt against today's quota.
func (e *Engine) markSent() DaySchedule {
	e.mu.Lock()
	e.day.Sent++
	d := e.day
	e.mu.Unlock()
	e.metrics.SentToday(d.Sent)
	return d
}

// claim takes one unit of today's quota, or reports false when none is
// left. Scheduled and manual deliveries race for the same units.
func (e *Engine) claim() (DaySchedule, bool) {
	e.mu.Lock()
	if e.day.Remaining() <= 0 {
		d := e.day
		e.mu.Unlock()
		return d, false
	}
	e.day.Sent++
	d := e.day
	e.mu.Unlock()
	e.metrics.SentToday(d.Sent)
	return d, true
}

// ensureToday rebuilds the plan when the reference date has moved on.
func (e *Engine) ensureToday(ctx context.Context) DaySchedule {
	today := dateKey(e.now())
	if d := e.Day(); d.Date == today {
		return d
	}
	e.planMu.Lock()
	defer e.planMu.Unlock()
	d := e.Day()
	if d.Date == today {
		return d
	}
	e.log.Info("day changed, rebuilding plan", logx.String("from", d.Date), logx.String("to", today))
	return e.buildLocked(ctx)
}

func (e *Engine) globalEnabled(ctx context.Context) bool {
	on, err := e.store.GlobalSignals(ctx)
	if err != nil {
		e.log.Warn("read global signals failed", logx.Err(err))
		return false
	}
	return on
}

// BuildPlanForToday cancels outstanding timers, draws today's target and
// arms a warning/delivery pair per instant. Configuration problems yield a
// zero-signal day and a log line; they never fail the caller.
func (e *Engine) BuildPlanForToday(ctx context.Context) DaySchedule {
	e.planMu.Lock()
	defer e.planMu.Unlock()
	return e.buildLocked(ctx)
}

func (e *Engine) buildLocked(ctx context.Context) DaySchedule {
	cancelled := e.jobs.CancelAll()
	now := e.now()
	day := DaySchedule{Date: dateKey(now)}
	ev := PlanEvent{Date: day.Date, Dropped: cancelled}
	done := func() DaySchedule {
		ev.Target = day.Target
		e.metrics.PlanBuilt(day.Target, len(ev.Slots))
		e.publish(EventPlanBuilt, ev)
		return day
	}

	if !e.globalEnabled(ctx) {
		e.setDay(day)
		e.log.Info("auto signals disabled, nothing planned", logx.String("date", day.Date))
		return done()
	}

	rangeValue, err := e.store.SignalRange(ctx)
	if err != nil {
		e.log.Warn("read signal range failed", logx.Err(err))
	}
	lower, upper, ok := ParseRange(rangeValue)
	if !ok {
		e.setDay(day)
		e.log.Warn("invalid signal range, nothing planned", logx.String("range", rangeValue))
		return done()
	}
	target := between(e.rng, lower, upper)

	hours, err := e.store.WorkingHours(ctx)
	if err != nil {
		e.log.Warn("read working hours failed", logx.Err(err))
	}
	window, ok := ParseWindow(hours)
	if !ok {
		e.log.Warn("invalid working hours, restoring default", logx.String("hours", hours), logx.String("default", storage.DefaultWorkingHours))
		if err := e.store.SetWorkingHours(ctx, storage.DefaultWorkingHours); err != nil {
			e.log.Warn("store default working hours failed", logx.Err(err))
		}
		window, _ = ParseWindow(storage.DefaultWorkingHours)
	}
	start, end := window.Bounds(now)
	if !end.After(start) {
		e.setDay(day)
		e.log.Warn("working window is empty, nothing planned", logx.String("hours", hours))
		return done()
	}

	day.Target = target
	e.setDay(day)
	if target <= 0 {
		return done()
	}

	earliest := start
	if soon := now.Add(Lead + time.Second); soon.After(earliest) {
		earliest = soon
	}
	latest := end
	if !latest.After(earliest) || latest.Sub(earliest) <= Lead {
		e.log.Info("no time left in today's window", logx.String("date", day.Date), logx.Int("target", target), logx.Time("earliest", earliest), logx.Time("latest", latest))
		return done()
	}

	for _, at := range drawInstants(e.rng, target, earliest, latest) {
		fresh := e.now()
		if !at.After(fresh) {
			continue
		}
		warnAt := at.Add(-Lead)
		if warnAt.Before(fresh) {
			warnAt = fresh
		}
		if err := e.jobs.Schedule(warnAt, at, e.onWarning, e.onDelivery); err != nil {
			e.log.Warn("signal not scheduled", logx.Time("at", at), logx.Err(err))
			if e.sched == nil {
				break
			}
			continue
		}
		ev.Slots = append(ev.Slots, at)
	}
	e.log.Info("daily plan built",
		logx.String("date", day.Date),
		logx.Int("target", target),
		logx.Int("scheduled", len(ev.Slots)),
		logx.Int("cancelled", cancelled),
	)
	return done()
}

func (e *Engine) onWarning(ctx context.Context) error {
	if !e.globalEnabled(ctx) {
		e.publish(EventSkipped, SkipEvent{Stage: "warning", Reason: "disabled"})
		return nil
	}
	if e.ensureToday(ctx).Remaining() <= 0 {
		e.publish(EventSkipped, SkipEvent{Stage: "warning", Reason: "quota met"})
		return nil
	}
	ids, err := e.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	out := e.warn(ctx, ids)
	e.publish(EventWarning, WarningEvent{Recipients: len(ids), Delivered: out.Delivered})
	return nil
}

func (e *Engine) warn(ctx context.Context, ids []int64) broadcast.Outcome {
	if len(ids) == 0 {
		return broadcast.Outcome{}
	}
	return e.broadcast.Send(ctx, "signal.warning", ids, broadcast.Message{Text: WarningText})
}

func (e *Engine) onDelivery(ctx context.Context) error {
	e.ensureToday(ctx)
	if _, ok := e.claim(); !ok {
		e.publish(EventSkipped, SkipEvent{Stage: "delivery", Reason: "quota met"})
		return nil
	}
	res, err := e.deliver(ctx, kindAuto, nil, true)
	if err != nil {
		return err
	}
	e.log.Info("auto signal delivered",
		logx.String("id", res.ID),
		logx.String("pair", pairOf(res.Payload)),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", len(res.Failed)),
	)
	return nil
}

// Status is a point-in-time view of the day's plan.
type Status struct {
	Date      string
	Target    int
	Sent      int
	Remaining int
	Pending   int
	Enabled   bool
}

func (s Status) Text() string {
	return fmt.Sprintf("Auto signals today: sent %d of %d. Remaining %d.", s.Sent, s.Target, s.Remaining)
}

func (e *Engine) Status(ctx context.Context) Status {
	d := e.ensureToday(ctx)
	return Status{
		Date:      d.Date,
		Target:    d.Target,
		Sent:      d.Sent,
		Remaining: d.Remaining(),
		Pending:   e.jobs.Pending(),
		Enabled:   e.globalEnabled(ctx),
	}
}
