package signal

import (
	"context"
	"time"

	logx "signalbot/pkg/logx"
)

const refreshName = "signal.refresh"

// Start registers the daily refresh and builds today's plan. The
// scheduler is expected to run in the reference zone.
func (e *Engine) Start(ctx context.Context) error {
	if e.sched != nil {
		_, err := e.sched.AddCron(refreshName, RefreshSpec, time.Minute, func(ctx context.Context) error {
			day := e.BuildPlanForToday(ctx)
			e.log.Info("daily plan refreshed", logx.String("date", day.Date), logx.Int("target", day.Target))
			return nil
		})
		if err != nil {
			return err
		}
	}
	e.BuildPlanForToday(ctx)
	return nil
}

// Stop cancels every pending timer and the daily refresh.
func (e *Engine) Stop() {
	if e.sched != nil {
		e.sched.Remove(refreshName)
	}
	if n := e.jobs.CancelAll(); n > 0 {
		e.log.Debug("pending signals cancelled", logx.Int("count", n))
	}
}
