// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so tests and multiple instances never
// collide on the default one.
type Recorder struct {
	reg *prometheus.Registry

	planned     prometheus.Gauge
	slots       prometheus.Gauge
	sentToday   prometheus.Gauge
	deliveries  *prometheus.CounterVec
	recipients  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	missingData prometheus.Counter
	truncated   prometheus.Counter
	cache       *prometheus.CounterVec
	events      *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		planned: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_plan_target",
			Help: "Number of auto signals planned for today",
		}),
		slots: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_plan_slots",
			Help: "Number of delivery timers armed by the last plan build",
		}),
		sentToday: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_sent_today",
			Help: "Auto signals counted against today's quota",
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_deliveries_total",
			Help: "Signal deliveries by kind",
		}, []string{"kind"}),
		recipients: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_recipient_sends_total",
			Help: "Per-recipient send outcomes",
		}, []string{"kind", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalbot_delivery_duration_seconds",
			Help:    "Time to deliver one signal to every recipient",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		missingData: f.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_snapshot_missing_total",
			Help: "Deliveries sent without market data",
		}),
		truncated: f.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_caption_truncated_total",
			Help: "Signal captions cut to the Telegram limit",
		}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_snapshot_cache_total",
			Help: "Market snapshot cache lookups",
		}, []string{"result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_events_total",
			Help: "Events seen on the internal bus",
		}, []string{"type"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) PlanBuilt(target, slots int) {
	r.planned.Set(float64(target))
	r.slots.Set(float64(slots))
}

func (r *Recorder) Delivered(kind string, delivered, failed int, dur time.Duration) {
	r.deliveries.WithLabelValues(kind).Inc()
	r.recipients.WithLabelValues(kind, "delivered").Add(float64(delivered))
	r.recipients.WithLabelValues(kind, "failed").Add(float64(failed))
	r.duration.WithLabelValues(kind).Observe(dur.Seconds())
}

func (r *Recorder) SentToday(sent int) { r.sentToday.Set(float64(sent)) }

func (r *Recorder) SnapshotMissing() { r.missingData.Inc() }

func (r *Recorder) Truncated() { r.truncated.Inc() }

func (r *Recorder) CacheHit() { r.cache.WithLabelValues("hit").Inc() }

func (r *Recorder) CacheMiss() { r.cache.WithLabelValues("miss").Inc() }

func (r *Recorder) Event(typ string) { r.events.WithLabelValues(typ).Inc() }
