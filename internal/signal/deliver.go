package signal

import (
	"context"
	"html"
	"time"

	"github.com/google/uuid"

	"signalbot/internal/market"
	"signalbot/internal/notifier/broadcast"
	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

// Result describes one delivery. Delivered+len(Failed) equals Recipients.
type Result struct {
	ID              string
	Kind            string
	Recipients      int
	Delivered       int
	Failed          []int64
	Payload         *Payload
	Truncated       bool
	SnapshotMissing bool
	ImageMissing    bool
}

const (
	kindAuto   = "auto"
	kindManual = "manual"
	kindCustom = "custom"
)

// Deliver runs the automatic delivery pipeline. A nil payload is generated
// with synthetic levels. Every call counts one unit against today's quota,
// whatever the outcome.
func (e *Engine) Deliver(ctx context.Context, p *Payload) (Result, error) {
	return e.deliver(ctx, kindAuto, p, false)
}

// deliver runs one delivery. claimed means the caller already took the
// quota unit with claim.
func (e *Engine) deliver(ctx context.Context, kind string, p *Payload, claimed bool) (res Result, err error) {
	start := time.Now()
	res = Result{ID: uuid.NewString(), Kind: kind}
	counted := kind != kindCustom
	if counted {
		defer func() {
			d := e.Day()
			if !claimed {
				d = e.markSent()
			}
			ev := deliveryEvent(res)
			ev.Sent, ev.Target = d.Sent, d.Target
			typ := EventDelivered
			if kind == kindManual {
				typ = EventManual
			}
			e.publish(typ, ev)
			e.metrics.Delivered(kind, res.Delivered, len(res.Failed), time.Since(start))
		}()
	}

	if counted && !e.globalEnabled(ctx) {
		e.log.Info("global signals off, delivery skipped", logx.String("id", res.ID))
		return res, nil
	}

	ids, err := e.resolver.Resolve(ctx)
	if err != nil {
		return res, err
	}
	res.Recipients = len(ids)

	if p == nil {
		p = generatePayload(e.rng)
	}
	res.Payload = p
	snap := e.snapshot(ctx, p.Pair)
	if snap == nil {
		res.SnapshotMissing = true
		e.metrics.SnapshotMissing()
	}
	p.apply(snap)

	caption, truncated := Truncate(Render(p, e.rng), CaptionLimit)
	res.Truncated = truncated
	if truncated {
		e.metrics.Truncated()
		e.log.Warn("signal caption truncated", logx.String("id", res.ID), logx.String("pair", p.Pair))
	}
	msg := broadcast.Message{
		Text:    "<b>" + html.EscapeString(caption) + "</b>",
		Options: &kit.SendOptions{ParseMode: "HTML"},
	}
	if path, ok := e.images.Lookup(p.Pair, p.Direction); ok {
		msg.PhotoPath = path
	} else {
		res.ImageMissing = true
		e.log.Warn("signal image missing", logx.String("pair", p.Pair), logx.String("direction", string(p.Direction)))
	}

	if len(ids) == 0 {
		e.log.Info("no recipients for signal", logx.String("id", res.ID), logx.String("kind", kind))
		return res, nil
	}
	out := e.broadcast.Send(ctx, "signal."+kind, ids, msg)
	res.Delivered = out.Delivered
	res.Failed = out.Failed
	if !counted {
		e.publish(EventCustom, deliveryEvent(res))
		e.metrics.Delivered(kind, res.Delivered, len(res.Failed), time.Since(start))
	}
	return res, nil
}

// snapshot fetches market data; any failure is logged and reported as nil.
func (e *Engine) snapshot(ctx context.Context, pair string) *market.Snapshot {
	if e.market == nil {
		return nil
	}
	snap, err := e.market.Snapshot(ctx, pair)
	if err != nil {
		e.log.Warn("market snapshot unavailable", logx.String("pair", pair), logx.Err(err))
		return nil
	}
	if snap.Empty() {
		return nil
	}
	return snap
}

func deliveryEvent(r Result) DeliveryEvent {
	ev := DeliveryEvent{
		ID:              r.ID,
		Kind:            r.Kind,
		Recipients:      r.Recipients,
		Delivered:       r.Delivered,
		Failed:          r.Failed,
		Truncated:       r.Truncated,
		SnapshotMissing: r.SnapshotMissing,
		ImageMissing:    r.ImageMissing,
	}
	if r.Payload != nil {
		ev.Pair = r.Payload.Pair
		ev.Direction = string(r.Payload.Direction)
	}
	return ev
}

func pairOf(p *Payload) string {
	if p == nil {
		return ""
	}
	return p.Pair
}
