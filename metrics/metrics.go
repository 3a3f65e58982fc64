// Package metrics exposes Prometheus collectors for the sync pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deal_watcher"

// Metrics is nil-safe: every Record method on a nil *Metrics is a no-op.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	LeadsFetched      prometheus.Counter
	LeadsQualifying   prometheus.Counter
	DealsPersisted    *prometheus.CounterVec
	EnrichmentErrors  prometheus.Counter
	Watermark         prometheus.Gauge
	LastSuccessfulRun prometheus.Gauge
	Notifications     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync runs by trigger and outcome",
		}, []string{"trigger", "status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Wall time of one sync run",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LeadsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crm_leads_fetched_total",
			Help:      "Leads returned by the CRM listing",
		}),
		LeadsQualifying: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crm_leads_qualifying_total",
			Help:      "Leads matching the contract criterion",
		}),
		DealsPersisted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deals_persisted_total",
			Help:      "New deals written to the store",
		}, []string{"object_type"}),
		EnrichmentErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_errors_total",
			Help:      "Deals skipped because Profitbase lookup or mapping failed",
		}),
		Watermark: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_unix_seconds",
			Help:      "Last recorded sync watermark",
		}),
		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_run_unix_seconds",
			Help:      "Finish time of the last successful run",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and outcome",
		}, []string{"sink", "status"}),
		gatherer: reg,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRun(trigger, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(trigger, status).Inc()
	m.RunDuration.Observe(d.Seconds())
	if status == "completed" {
		m.LastSuccessfulRun.Set(float64(time.Now().Unix()))
	}
}

func (m *Metrics) RecordFetch(fetched, qualifying int) {
	if m == nil {
		return
	}
	m.LeadsFetched.Add(float64(fetched))
	m.LeadsQualifying.Add(float64(qualifying))
}

func (m *Metrics) RecordDeal(objectType string) {
	if m == nil {
		return
	}
	m.DealsPersisted.WithLabelValues(objectType).Inc()
}

func (m *Metrics) RecordEnrichmentError() {
	if m == nil {
		return
	}
	m.EnrichmentErrors.Inc()
}

func (m *Metrics) RecordWatermark(unix int64) {
	if m == nil {
		return
	}
	m.Watermark.Set(float64(unix))
}

func (m *Metrics) RecordNotification(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Notifications.WithLabelValues(sink, status).Inc()
}
