package signal

import (
	"time"

	"signalbot/internal/eventbus"
)

const (
	EventPlanBuilt = "plan.built"
	EventWarning   = "signal.warning"
	EventDelivered = "signal.delivered"
	EventSkipped   = "signal.skipped"
	EventManual    = "signal.manual"
	EventCustom    = "signal.custom"
)

type PlanEvent struct {
	Date    string      `json:"date"`
	Target  int         `json:"target"`
	Slots   []time.Time `json:"slots,omitempty"`
	Dropped int         `json:"cancelled"`
}

type DeliveryEvent struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	Pair            string  `json:"pair"`
	Direction       string  `json:"direction"`
	Recipients      int     `json:"recipients"`
	Delivered       int     `json:"delivered"`
	Failed          []int64 `json:"failed,omitempty"`
	Truncated       bool    `json:"truncated,omitempty"`
	SnapshotMissing bool    `json:"snapshot_missing,omitempty"`
	ImageMissing    bool    `json:"image_missing,omitempty"`
	Sent            int     `json:"sent"`
	Target          int     `json:"target"`
}

type SkipEvent struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

type WarningEvent struct {
	Recipients int `json:"recipients"`
	Delivered  int `json:"delivered"`
}

// Metrics receives engine counters. A nil Metrics in Deps disables them.
type Metrics interface {
	PlanBuilt(target, slots int)
	Delivered(kind string, delivered, failed int, dur time.Duration)
	SentToday(sent int)
	SnapshotMissing()
	Truncated()
}

type nopMetrics struct{}

func (nopMetrics) PlanBuilt(int, int) {}
func (nopMetrics) Delivered(string, int, int, time.Duration) {}
func (nopMetrics) SentToday(int) {}
func (nopMetrics) SnapshotMissing() {}
func (nopMetrics) Truncated() {}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: data})
}
