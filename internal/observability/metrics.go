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
	// Source metrics
	SourceCandidates    *prometheus.GaugeVec
	SourceFetchDuration *prometheus.HistogramVec
	SourceFailures      *prometheus.CounterVec
	SourceHealth        *prometheus.GaugeVec

	// Aggregation metrics
	AggregationRuns      *prometheus.CounterVec
	AggregatedCandidates prometheus.Gauge
	Validations          *prometheus.CounterVec

	// Selection metrics
	RoundsTotal       *prometheus.CounterVec
	RoundDuration     prometheus.Histogram
	EligiblePoolSize  prometheus.Gauge
	RelaxationsTotal  *prometheus.CounterVec
	DrawsPerRound     prometheus.Histogram
	ChosenWeight      prometheus.Histogram

	// Latency metrics
	RPCCallLatency  *prometheus.HistogramVec
	HTTPCallLatency *prometheus.HistogramVec
	WSMessages      prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRound prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_selector"
	}

	return &Metrics{
		// Source metrics
		SourceCandidates: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "candidates",
			Help:      "Number of candidates returned by the last fetch per source",
		}, []string{"source"}),
		SourceFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Candidate fetch duration per source in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SourceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "failures_total",
			Help:      "Total number of failed upstream calls per source and operation",
		}, []string{"source", "operation"}),
		SourceHealth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "health",
			Help:      "Source health (2=healthy, 1=degraded, 0=down)",
		}, []string{"source"}),

		// Aggregation metrics
		AggregationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "runs_total",
			Help:      "Total number of aggregation runs by outcome",
		}, []string{"outcome"}),
		AggregatedCandidates: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "candidates",
			Help:      "Number of unique candidates in the last aggregation",
		}),
		Validations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "validations_total",
			Help:      "Total number of ground-truth validations by result",
		}, []string{"result"}),

		// Selection metrics
		RoundsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "rounds_total",
			Help:      "Total number of selection rounds by status",
		}, []string{"status"}),
		RoundDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "round_duration_seconds",
			Help:      "End-to-end round duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		EligiblePoolSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "eligible_pool_size",
			Help:      "Number of eligible candidates in the last selection",
		}),
		RelaxationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "relaxations_total",
			Help:      "Total number of applied filter relaxations by rule",
		}, []string{"rule"}),
		DrawsPerRound: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "draws_per_round",
			Help:      "Number of draws needed before a candidate passed validation",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		ChosenWeight: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "chosen_weight",
			Help:      "Selection weight of the chosen candidate",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HTTPCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "http_call_latency_seconds",
			Help:      "Market index HTTP call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		WSMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_messages_total",
			Help:      "Total number of WebSocket log notifications received",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRound: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_round_timestamp",
			Help:      "Unix timestamp of last successful selection round",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSourceFetch records the result of one candidate fetch.
func RecordSourceFetch(source string, candidates int, seconds float64) {
	DefaultMetrics.SourceCandidates.WithLabelValues(source).Set(float64(candidates))
	DefaultMetrics.SourceFetchDuration.WithLabelValues(source).Observe(seconds)
}

// RecordSourceFailure increments the failure counter for a source operation.
func RecordSourceFailure(source, operation string) {
	DefaultMetrics.SourceFailures.WithLabelValues(source, operation).Inc()
}

// UpdateSourceHealth sets the health gauge of a source.
func UpdateSourceHealth(source string, gauge float64) {
	DefaultMetrics.SourceHealth.WithLabelValues(source).Set(gauge)
}

// RecordAggregation records an aggregation run.
func RecordAggregation(candidates int) {
	outcome := "ok"
	if candidates == 0 {
		outcome = "empty"
	}
	DefaultMetrics.AggregationRuns.WithLabelValues(outcome).Inc()
	DefaultMetrics.AggregatedCandidates.Set(float64(candidates))
}

// RecordValidation records a ground-truth validation result.
func RecordValidation(result string) {
	DefaultMetrics.Validations.WithLabelValues(result).Inc()
}

// RecordSelection records eligible pool size, relaxations and chosen weight of a selection.
func RecordSelection(eligible int, relaxations []string, chosenWeight float64) {
	DefaultMetrics.EligiblePoolSize.Set(float64(eligible))
	for _, rule := range relaxations {
		DefaultMetrics.RelaxationsTotal.WithLabelValues(rule).Inc()
	}
	DefaultMetrics.ChosenWeight.Observe(chosenWeight)
}

// RecordRound records a finished round.
func RecordRound(status string, draws int, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.RoundsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RoundDuration.Observe(durationSeconds)
	if status == "selected" {
		DefaultMetrics.DrawsPerRound.Observe(float64(draws))
		DefaultMetrics.LastSuccessfulRound.Set(float64(finishedUnix))
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordHTTPLatency records market index call latency.
func RecordHTTPLatency(endpoint string, seconds float64) {
	DefaultMetrics.HTTPCallLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordWSMessage increments the websocket notification counter.
func RecordWSMessage() {
	DefaultMetrics.WSMessages.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
