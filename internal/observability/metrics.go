// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imaigine-lab/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Payment metrics
	PaymentsBuilt *prometheus.CounterVec
	PaymentMist   *prometheus.CounterVec

	// Oracle metrics
	OracleLatency prometheus.Histogram
	OracleErrors  prometheus.Counter

	// Job metrics
	JobsSubmitted    *prometheus.CounterVec
	JobSubmitErrors  *prometheus.CounterVec
	JobTransitions   *prometheus.CounterVec
	JobsTracked      prometheus.Gauge
	JobTrackDuration *prometheus.HistogramVec

	// Mint and transaction metrics
	MintsBuilt      *prometheus.CounterVec
	TxExecuted      *prometheus.CounterVec
	LastMintSuccess prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "imaigine"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		PaymentsBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "transactions_built_total",
			Help:      "Total number of payment transactions built by flow",
		}, []string{"flow"}),
		PaymentMist: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "mist_total",
			Help:      "Total MIST routed by payment transactions by recipient",
		}, []string{"flow", "recipient"}),

		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fetch_latency_seconds",
			Help:      "Price feed fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OracleErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed price feed fetches",
		}),

		JobsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total number of remote jobs submitted by kind",
		}, []string{"kind"}),
		JobSubmitErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submit_errors_total",
			Help:      "Total number of failed job submissions by kind",
		}, []string{"kind"}),
		JobTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Total number of tracked job status transitions",
		}, []string{"kind", "status"}),
		JobsTracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "tracked",
			Help:      "Number of jobs currently observed by a tracker",
		}),
		JobTrackDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "track_duration_seconds",
			Help:      "Time from tracker start to terminal status",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"kind", "status"}),

		MintsBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "transactions_built_total",
			Help:      "Total number of mint transactions built by kind",
		}, []string{"kind"}),
		TxExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sui",
			Name:      "transactions_executed_total",
			Help:      "Total number of executed transactions by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		LastMintSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_mint_timestamp",
			Help:      "Unix timestamp of the last successful mint",
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sui",
			Name:      "rpc_call_latency_seconds",
			Help:      "Sui RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sui",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Sui RPC calls",
		}, []string{"method"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordPayment records a built payment transaction.
func (m *Metrics) RecordPayment(flow string, fee domain.FeeBreakdown, withBeneficiary bool) {
	m.PaymentsBuilt.WithLabelValues(flow).Inc()
	if withBeneficiary {
		m.PaymentMist.WithLabelValues(flow, "vault").Add(float64(fee.FeeAmount))
		m.PaymentMist.WithLabelValues(flow, "beneficiary").Add(float64(fee.RecipientAmount))
		return
	}
	m.PaymentMist.WithLabelValues(flow, "vault").Add(float64(fee.TotalAmount))
}

// ObserveOracle matches oracle.WithObserver.
func (m *Metrics) ObserveOracle(d time.Duration, err error) {
	m.OracleLatency.Observe(d.Seconds())
	if err != nil {
		m.OracleErrors.Inc()
	}
}

// ObserveRPC matches sui.WithObserver.
func (m *Metrics) ObserveRPC(method string, d time.Duration, err error) {
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordSubmit records a job submission attempt.
func (m *Metrics) RecordSubmit(kind domain.JobKind, err error) {
	if err != nil {
		m.JobSubmitErrors.WithLabelValues(kind.String()).Inc()
		return
	}
	m.JobsSubmitted.WithLabelValues(kind.String()).Inc()
}

// RecordTransition records an applied tracker transition.
func (m *Metrics) RecordTransition(kind domain.JobKind, status domain.JobStatus) {
	m.JobTransitions.WithLabelValues(kind.String(), status.String()).Inc()
}

// TrackStarted increments the tracked gauge and returns a func that records
// the terminal status and decrements it.
func (m *Metrics) TrackStarted(kind domain.JobKind) func(domain.JobStatus) {
	start := time.Now()
	m.JobsTracked.Inc()
	return func(status domain.JobStatus) {
		m.JobsTracked.Dec()
		m.JobTrackDuration.WithLabelValues(kind.String(), status.String()).Observe(time.Since(start).Seconds())
	}
}

// RecordTx records an executed transaction outcome.
func (m *Metrics) RecordTx(purpose string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "rejected"
	}
	m.TxExecuted.WithLabelValues(purpose, outcome).Inc()
}

// RecordMint records a built mint transaction and, when executed, its success.
func (m *Metrics) RecordMint(kind domain.JobKind, executed bool) {
	m.MintsBuilt.WithLabelValues(kind.String()).Inc()
	if executed {
		m.LastMintSuccess.SetToCurrentTime()
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
