package signal

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	logx "signalbot/pkg/logx"
)

var (
	hoursPattern = regexp.MustCompile(`^\d{2}:\d{2}-\d{2}:\d{2}$`)
	rangePattern = regexp.MustCompile(`^\d+\s*-\s*\d+$`)
)

// SetSignalsEnabled stores the global toggle and re-plans the day. It
// reports whether the value changed.
func (e *Engine) SetSignalsEnabled(ctx context.Context, on bool) (bool, error) {
	cur, err := e.store.GlobalSignals(ctx)
	if err != nil {
		return false, fmt.Errorf("read global signals: %w", err)
	}
	if cur == on {
		return false, nil
	}
	if err := e.store.SetGlobalSignals(ctx, on); err != nil {
		return false, fmt.Errorf("store global signals: %w", err)
	}
	e.log.Info("global signals changed", logx.Bool("enabled", on))
	e.BuildPlanForToday(ctx)
	return true, nil
}

// SetWorkingHours validates and stores "HH:MM-HH:MM", then re-plans.
func (e *Engine) SetWorkingHours(ctx context.Context, value string) (string, error) {
	value = strings.TrimSpace(value)
	if !hoursPattern.MatchString(value) {
		return "", ErrInvalidHours
	}
	if err := e.store.SetWorkingHours(ctx, value); err != nil {
		return "", fmt.Errorf("store working hours: %w", err)
	}
	e.log.Info("working hours changed", logx.String("hours", value))
	e.BuildPlanForToday(ctx)
	return value, nil
}

// SetSignalRange validates and stores "A-B" with spaces removed, then
// re-plans.
func (e *Engine) SetSignalRange(ctx context.Context, value string) (string, error) {
	value = strings.TrimSpace(value)
	if !rangePattern.MatchString(value) {
		return "", ErrInvalidRange
	}
	value = strings.Join(strings.Fields(value), "")
	if err := e.store.SetSignalRange(ctx, value); err != nil {
		return "", fmt.Errorf("store signal range: %w", err)
	}
	e.log.Info("signal range changed", logx.String("range", value))
	e.BuildPlanForToday(ctx)
	return value, nil
}

// Replan rebuilds today's plan from the stored settings. Signals already
// sent today are forgotten.
func (e *Engine) Replan(ctx context.Context) DaySchedule {
	return e.BuildPlanForToday(ctx)
}

// Settings returns the stored window and range for display.
func (e *Engine) Settings(ctx context.Context) (hours, rangeValue string, err error) {
	if hours, err = e.store.WorkingHours(ctx); err != nil {
		return "", "", fmt.Errorf("read working hours: %w", err)
	}
	if rangeValue, err = e.store.SignalRange(ctx); err != nil {
		return "", "", fmt.Errorf("read signal range: %w", err)
	}
	return hours, rangeValue, nil
}

// SettingsText renders the admin settings summary.
func SettingsText(hours, rangeValue string) string {
	return fmt.Sprintf("Auto-signal window (Kyiv time): %s\nSignal range: %s", hours, rangeValue)
}
