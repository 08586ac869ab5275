package signal

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"signalbot/internal/market"
	"signalbot/internal/notifier/broadcast"
	logx "signalbot/pkg/logx"
)

const failedIDsShown = 10

// Report is the admin-facing summary of a manual or custom delivery.
type Report struct {
	Result    Result
	Remaining int
	Lines     []string
}

func (r Report) Text() string { return strings.Join(r.Lines, "\n") }

// TriggerNow delivers one auto signal immediately. It takes the place of
// the latest pending timer pair so the day's total stays at its target.
func (e *Engine) TriggerNow(ctx context.Context) (Report, error) {
	if !e.globalEnabled(ctx) {
		return Report{}, ErrInactive
	}
	if e.ensureToday(ctx).Remaining() <= 0 {
		return Report{}, ErrQuotaMet
	}
	ids, err := e.resolver.Resolve(ctx)
	if err != nil {
		return Report{}, err
	}
	if len(ids) == 0 {
		return Report{}, ErrNoRecipients
	}

	e.warn(ctx, ids)
	if err := e.sleep(ctx, Lead); err != nil {
		return Report{}, err
	}

	if _, ok := e.claim(); !ok {
		return Report{}, ErrQuotaMet
	}
	if !e.jobs.CancelOne() {
		e.log.Info("manual signal without a pending slot to replace")
	}
	res, err := e.deliver(ctx, kindManual, nil, true)
	if err != nil {
		return Report{Result: res}, err
	}
	rep := Report{Result: res, Remaining: e.Day().Remaining()}
	if res.Payload != nil {
		rep.Lines = append(rep.Lines, res.Payload.Pair+" — "+res.Payload.Direction.Trend())
	}
	rep.Lines = append(rep.Lines, fmt.Sprintf("Auto signal queued. Remaining for today: %d.", rep.Remaining))
	rep.Lines = append(rep.Lines, outcomeLines(res)...)
	e.log.Info("manual signal delivered",
		logx.String("id", res.ID),
		logx.String("pair", pairOf(res.Payload)),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", len(res.Failed)),
		logx.Int("remaining", rep.Remaining),
	)
	return rep, nil
}

func outcomeLines(res Result) []string {
	var lines []string
	if res.Delivered > 0 {
		lines = append(lines, fmt.Sprintf("Signal delivered to %d users.", res.Delivered))
	}
	if res.Truncated {
		lines = append(lines, TruncationNotice)
	}
	if len(res.Failed) > 0 {
		lines = append(lines, fmt.Sprintf("Failed to deliver to %d users: %s.", len(res.Failed), broadcast.FormatIDs(res.Failed, failedIDsShown)))
	}
	return lines
}

// ParseMinutes accepts "2", "1.5" or "1,5". The value must be positive.
func ParseMinutes(s string) (float64, error) {
	s = strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(s), " ", ""), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalidMinutes
	}
	return v, nil
}

// SendCustom broadcasts an admin-chosen signal right away, without a
// warning and without touching the day's quota. Price levels come from
// market data only.
func (e *Engine) SendCustom(ctx context.Context, pair, direction string, minutes float64) (Report, error) {
	p, ok := market.Normalize(pair)
	if !ok {
		return Report{}, ErrUnknownPair
	}
	dir, ok := ParseDirection(direction)
	if !ok {
		return Report{}, ErrInvalidDirection
	}
	if minutes <= 0 {
		return Report{}, ErrInvalidMinutes
	}
	if !e.globalEnabled(ctx) {
		return Report{}, ErrSignalsDisabled
	}
	ids, err := e.resolver.Resolve(ctx)
	if err != nil {
		return Report{}, err
	}
	if len(ids) == 0 {
		return Report{}, ErrNoRecipients
	}

	res, err := e.deliver(ctx, kindCustom, &Payload{Pair: p, Direction: dir, Expiration: minutes}, false)
	if err != nil {
		return Report{Result: res}, err
	}
	rep := Report{Result: res, Remaining: e.Day().Remaining()}
	if res.Payload != nil && res.Payload.levelsMissing() {
		rep.Lines = append(rep.Lines, FallbackNotice)
	}
	if res.ImageMissing {
		rep.Lines = append(rep.Lines, ImageMissingText)
	}
	rep.Lines = append(rep.Lines, outcomeLines(res)...)
	e.log.Info("custom signal delivered",
		logx.String("id", res.ID),
		logx.String("pair", p),
		logx.String("direction", string(dir)),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", len(res.Failed)),
	)
	return rep, nil
}
