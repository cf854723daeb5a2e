// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Discovery metrics
	TrendingEntriesSeen prometheus.Counter
	CandidatesScored    prometheus.Counter
	CandidatesSkipped   *prometheus.CounterVec

	// Validation metrics
	AddressesValidated prometheus.Counter
	WhaleSignals       prometheus.Counter
	DegradedSignals    *prometheus.CounterVec

	// Provider metrics
	ProviderCallLatency *prometheus.HistogramVec
	ProviderCallErrors  *prometheus.CounterVec

	// Workflow metrics
	RunsStarted     prometheus.Counter
	RunsCompleted   *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	ResumesAccepted prometheus.Counter
	ResumesRejected prometheus.Counter
	TradesExecuted  prometheus.Counter
	PendingConfirms prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_trader"
	}

	return &Metrics{
		TrendingEntriesSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "trending_entries_seen_total",
			Help:      "Total number of trending entries fetched from the market provider",
		}),
		CandidatesScored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_scored_total",
			Help:      "Total number of entries that were fully scored",
		}),
		CandidatesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_skipped_total",
			Help:      "Total number of entries skipped before scoring by reason",
		}, []string{"reason"}),

		AddressesValidated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "addresses_validated_total",
			Help:      "Total number of candidate addresses validated on-chain",
		}),
		WhaleSignals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "whale_signals_total",
			Help:      "Total number of addresses with confirmed whale activity",
		}),
		DegradedSignals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "degraded_signals_total",
			Help:      "Total number of signals defaulted after a provider failure",
		}, []string{"scan"}),

		ProviderCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "External provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "method"}),
		ProviderCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_errors_total",
			Help:      "Total number of external provider call errors",
		}, []string{"provider", "method"}),

		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "runs_started_total",
			Help:      "Total number of workflow runs started",
		}),
		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "runs_completed_total",
			Help:      "Total number of workflow runs reaching a terminal stage",
		}, []string{"stage"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "stage_duration_seconds",
			Help:      "Workflow stage execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		ResumesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "resumes_accepted_total",
			Help:      "Total number of resume payloads accepted",
		}),
		ResumesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "resumes_rejected_total",
			Help:      "Total number of resume payloads rejected as invalid",
		}),
		TradesExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "trades_executed_total",
			Help:      "Total number of trades executed through the gateway",
		}),
		PendingConfirms: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "pending_confirmations",
			Help:      "Number of runs currently suspended awaiting confirmation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordProviderCall records latency and outcome of one provider call.
func RecordProviderCall(provider, method string, seconds float64, err error) {
	DefaultMetrics.ProviderCallLatency.WithLabelValues(provider, method).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderCallErrors.WithLabelValues(provider, method).Inc()
	}
}

// RecordCandidateSkipped records an entry skipped before scoring.
func RecordCandidateSkipped(reason string) {
	DefaultMetrics.CandidatesSkipped.WithLabelValues(reason).Inc()
}

// RecordCandidateScored increments the scored-entries counter.
func RecordCandidateScored() {
	DefaultMetrics.CandidatesScored.Inc()
}

// RecordTrendingSeen adds fetched trending entries to the counter.
func RecordTrendingSeen(n int) {
	DefaultMetrics.TrendingEntriesSeen.Add(float64(n))
}

// RecordAddressValidated increments the validated-addresses counter.
func RecordAddressValidated() {
	DefaultMetrics.AddressesValidated.Inc()
}

// RecordWhaleSignal increments the whale-signal counter.
func RecordWhaleSignal() {
	DefaultMetrics.WhaleSignals.Inc()
}

// RecordDegradedSignal records a signal defaulted after a provider failure.
func RecordDegradedSignal(scan string) {
	DefaultMetrics.DegradedSignals.WithLabelValues(scan).Inc()
}

// RecordRunStarted increments the started-runs counter.
func RecordRunStarted() {
	DefaultMetrics.RunsStarted.Inc()
}

// RecordRunCompleted records a run reaching a terminal stage.
func RecordRunCompleted(stage string) {
	DefaultMetrics.RunsCompleted.WithLabelValues(stage).Inc()
}

// RecordStageDuration records one stage execution.
func RecordStageDuration(stage string, seconds float64) {
	DefaultMetrics.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordResume records the outcome of a resume attempt.
func RecordResume(accepted bool) {
	if accepted {
		DefaultMetrics.ResumesAccepted.Inc()
	} else {
		DefaultMetrics.ResumesRejected.Inc()
	}
}

// RecordTradeExecuted increments the executed-trades counter.
func RecordTradeExecuted() {
	DefaultMetrics.TradesExecuted.Inc()
}

// SetPendingConfirmations updates the pending-confirmations gauge.
func SetPendingConfirmations(n int) {
	DefaultMetrics.PendingConfirms.Set(float64(n))
}
