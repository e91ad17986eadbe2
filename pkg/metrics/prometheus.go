package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal    *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
	rejectedBars    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	blockedPatterns prometheus.Gauge
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsedeck_signals_registered_total",
				Help: "Total number of signals registered",
			},
			[]string{"instrument", "direction"},
		),
		outcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsedeck_outcomes_total",
				Help: "Total number of terminal signal outcomes",
			},
			[]string{"instrument", "verdict"},
		),
		rejectedBars: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsedeck_rejected_bars_total",
				Help: "Total number of malformed price bars dropped",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsedeck_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		blockedPatterns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsedeck_blocked_patterns",
				Help: "Number of currently blocked patterns",
			},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsedeck_last_price",
				Help: "Last observed close price for an instrument",
			},
			[]string{"instrument"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulsedeck_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignalRegistered records a newly registered signal.
func (r *Recorder) RecordSignalRegistered(instrument, direction string) {
	r.signalsTotal.WithLabelValues(instrument, direction).Inc()
}

// RecordOutcome records a terminal outcome.
func (r *Recorder) RecordOutcome(instrument, verdict string) {
	r.outcomesTotal.WithLabelValues(instrument, verdict).Inc()
}

// RecordRejectedBar records a dropped malformed bar.
func (r *Recorder) RecordRejectedBar(reason string) {
	r.rejectedBars.WithLabelValues(reason).Inc()
}

// RecordBlockedPatterns records the current blocked-pattern count.
func (r *Recorder) RecordBlockedPatterns(n int) {
	r.blockedPatterns.Set(float64(n))
}

// RecordLastPrice records the last close price for an instrument.
func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
