package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/pipeline"
)

// Transition results used as the "result" label.
const (
	ResultApplied    = "applied"
	ResultSuperseded = "superseded"
	ResultCanceled   = "canceled"
	ResultFailed     = "failed"
)

// Metrics exports transition and bulk-cycle counters to Prometheus.
type Metrics struct {
	transitionsTotal  *prometheus.CounterVec
	bulkRunsTotal     *prometheus.CounterVec
	sourceFailures    prometheus.Counter
	bulkRules         prometheus.Gauge
	bulkDuplicates    prometheus.Gauge
	overlayEnabled    prometheus.Gauge
	bulkDuration      prometheus.Histogram
	lastBulkSuccessTS prometheus.Gauge
}

// New registers the collectors on reg, or on the default registerer when
// reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "dnrc_transitions_total", Help: "Toggle transitions by requested state and result"},
			[]string{"state", "result"},
		),
		bulkRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "dnrc_bulk_runs_total", Help: "Bulk fetch, compile and install cycles"},
			[]string{"result"},
		),
		sourceFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "dnrc_source_fetch_failures_total", Help: "Sources that could not be fetched"},
		),
		bulkRules: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "dnrc_bulk_rules", Help: "Rules in the last installed bulk set"},
		),
		bulkDuplicates: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "dnrc_bulk_duplicates", Help: "Duplicate patterns dropped in the last compile"},
		),
		overlayEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "dnrc_overlay_enabled", Help: "1 when the overlay is enabled"},
		),
		bulkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dnrc_bulk_duration_seconds",
				Help:    "Bulk cycle duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		lastBulkSuccessTS: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "dnrc_last_bulk_success_timestamp_seconds", Help: "Unix time of the last installed bulk set"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.transitionsTotal,
		m.bulkRunsTotal,
		m.sourceFailures,
		m.bulkRules,
		m.bulkDuplicates,
		m.overlayEnabled,
		m.bulkDuration,
		m.lastBulkSuccessTS,
	)
	return m
}

// Handler serves reg, or the default gatherer when reg is nil.
func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveTransition records one Apply call.
func (m *Metrics) ObserveTransition(state domain.ToggleState, mode domain.OverlayMode, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(state.String(), result).Inc()
	if mode == domain.ModeEnabled {
		m.overlayEnabled.Set(1)
	} else {
		m.overlayEnabled.Set(0)
	}
}

// ObserveBulk records one bulk cycle.
func (m *Metrics) ObserveBulk(rep pipeline.Report) {
	if m == nil {
		return
	}
	m.sourceFailures.Add(float64(rep.FailedSources()))
	m.bulkDuration.Observe(rep.Duration.Seconds())
	if !rep.Installed {
		m.bulkRunsTotal.WithLabelValues(ResultFailed).Inc()
		return
	}
	m.bulkRunsTotal.WithLabelValues(ResultApplied).Inc()
	m.bulkRules.Set(float64(rep.Compile.Rules))
	m.bulkDuplicates.Set(float64(rep.Compile.Duplicates))
	m.lastBulkSuccessTS.Set(float64(rep.StartedAt.Add(rep.Duration).Unix()))
}
