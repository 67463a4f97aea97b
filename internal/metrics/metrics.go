// Package metrics exposes Prometheus metrics and the health endpoint of
// the indicator service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"taengine/internal/checkpoint"
)

// Metrics holds all Prometheus metrics for the indicator service.
type Metrics struct {
	BarsTotal       prometheus.Counter
	BadEntriesTotal prometheus.Counter
	ResultsTotal    *prometheus.CounterVec // labels: kind=confirmed|live
	ResultsDropped  prometheus.Counter
	IndicatorErrors prometheus.Counter
	ComputeDur      prometheus.Histogram
	SeriesTracked   prometheus.Gauge
	BarLag          prometheus.Gauge

	// Result sinks
	SinkWriteDur  *prometheus.HistogramVec // labels: sink
	SinkErrors    *prometheus.CounterVec   // labels: sink
	BufferedTotal prometheus.Gauge

	// Checkpoints
	CheckpointDur    *prometheus.HistogramVec // labels: store
	CheckpointErrors *prometheus.CounterVec   // labels: store
	LastCheckpoint   *prometheus.GaugeVec     // labels: store; unix seconds
	Restores         *prometheus.CounterVec   // labels: source=<store>|cold

	// Circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: breaker; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: breaker

	now func() time.Time
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_bars_total",
			Help: "Bars consumed",
		}),
		BadEntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_bad_entries_total",
			Help: "Stream entries skipped because they were not valid bars",
		}),
		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taengine_results_total",
			Help: "Indicator results produced",
		}, []string{"kind"}),
		ResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_results_dropped_total",
			Help: "Results dropped because the output channel was full",
		}),
		IndicatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taengine_indicator_errors_total",
			Help: "Bars on which at least one indicator failed to update",
		}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taengine_compute_duration_seconds",
			Help:    "Engine compute latency per bar",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		SeriesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taengine_series_tracked",
			Help: "Series with live indicator state",
		}),
		BarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taengine_bar_lag_seconds",
			Help: "Wall clock minus the timestamp of the last bar processed",
		}),

		SinkWriteDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taengine_sink_write_duration_seconds",
			Help:    "Result write latency per sink",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taengine_sink_errors_total",
			Help: "Failed result writes per sink",
		}, []string{"sink"}),
		BufferedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taengine_results_buffered",
			Help: "Results held locally while Redis is unavailable",
		}),

		CheckpointDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taengine_checkpoint_duration_seconds",
			Help:    "Snapshot write latency per store",
			Buckets: prometheus.DefBuckets,
		}, []string{"store"}),
		CheckpointErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taengine_checkpoint_errors_total",
			Help: "Failed snapshot writes per store",
		}, []string{"store"}),
		LastCheckpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taengine_last_checkpoint_timestamp_seconds",
			Help: "Time of the last successful snapshot write per store",
		}, []string{"store"}),
		Restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taengine_restores_total",
			Help: "Engine restores by source",
		}, []string{"source"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taengine_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taengine_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"breaker"}),

		now: time.Now,
	}

	reg.MustRegister(
		m.BarsTotal,
		m.BadEntriesTotal,
		m.ResultsTotal,
		m.ResultsDropped,
		m.IndicatorErrors,
		m.ComputeDur,
		m.SeriesTracked,
		m.BarLag,
		m.SinkWriteDur,
		m.SinkErrors,
		m.BufferedTotal,
		m.CheckpointDur,
		m.CheckpointErrors,
		m.LastCheckpoint,
		m.Restores,
		m.BreakerState,
		m.BreakerTrips,
	)
	return m
}

// ObserveBar records one processed bar.
func (m *Metrics) ObserveBar(took time.Duration, barTS time.Time, confirmed, live int, failed bool) {
	m.BarsTotal.Inc()
	m.ComputeDur.Observe(took.Seconds())
	m.ResultsTotal.WithLabelValues("confirmed").Add(float64(confirmed))
	if live > 0 {
		m.ResultsTotal.WithLabelValues("live").Add(float64(live))
	}
	if failed {
		m.IndicatorErrors.Inc()
	}
	if !barTS.IsZero() {
		m.BarLag.Set(m.now().Sub(barTS).Seconds())
	}
}

// ObserveSink records one result write.
func (m *Metrics) ObserveSink(sink string, took time.Duration, err error) {
	m.SinkWriteDur.WithLabelValues(sink).Observe(took.Seconds())
	if err != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

// BreakerChanged records a circuit breaker transition. state is 0 for
// closed, 1 for open and 2 for half-open.
func (m *Metrics) BreakerChanged(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
	if state == 1 {
		m.BreakerTrips.WithLabelValues(name).Inc()
	}
}

// CheckpointSaved implements checkpoint.Observer.
func (m *Metrics) CheckpointSaved(store string, took time.Duration, err error) {
	m.CheckpointDur.WithLabelValues(store).Observe(took.Seconds())
	if err != nil {
		m.CheckpointErrors.WithLabelValues(store).Inc()
		return
	}
	m.LastCheckpoint.WithLabelValues(store).Set(float64(m.now().Unix()))
}

// Restored implements checkpoint.Observer.
func (m *Metrics) Restored(src checkpoint.Source) {
	label := src.Store
	if src.Cold() {
		label = "cold"
	}
	m.Restores.WithLabelValues(label).Inc()
	m.SeriesTracked.Set(float64(src.Series))
}

var _ checkpoint.Observer = (*Metrics)(nil)
