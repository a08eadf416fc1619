package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection. Each collector owns
// its registry so that several can coexist in one process.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	dbQueryDuration         *prometheus.HistogramVec
	ledgerTransactionsTotal *prometheus.CounterVec
	ledgerTxDuration        *prometheus.HistogramVec
	ledgerRejectionsTotal   *prometheus.CounterVec
	mirrorEventsTotal       *prometheus.CounterVec
	mirrorLastBlock         *prometheus.GaugeVec
	reconciliationsTotal    *prometheus.CounterVec
	systemErrors            *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"query_type", "service"},
		),
		ledgerTransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Total number of chaincode calls",
			},
			[]string{"contract", "function", "status", "service"},
		),
		ledgerTxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_transaction_duration_seconds",
				Help:    "Duration of chaincode calls in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"contract", "function", "service"},
		),
		ledgerRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rejections_total",
				Help: "Chaincode calls rejected by the engine, by error category",
			},
			[]string{"contract", "error_type", "service"},
		),
		mirrorEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_events_total",
				Help: "Chaincode events consumed by the mirror",
			},
			[]string{"event", "result", "service"},
		),
		mirrorLastBlock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mirror_last_block",
				Help: "Block number of the last applied chaincode event",
			},
			[]string{"service"},
		),
		reconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_reconciliations_total",
				Help: "Mirror rows re-read from the ledger",
			},
			[]string{"reason", "result", "service"},
		),
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "system_errors_total",
				Help: "Total number of system errors",
			},
			[]string{"error_type", "service", "component"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dbQueryDuration,
		m.ledgerTransactionsTotal,
		m.ledgerTxDuration,
		m.ledgerRejectionsTotal,
		m.mirrorEventsTotal,
		m.mirrorLastBlock,
		m.reconciliationsTotal,
		m.systemErrors,
	)

	return m
}

// Registry exposes the underlying registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordDBQuery records database query metrics
func (m *MetricsCollector) RecordDBQuery(queryType string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(queryType, m.serviceName).Observe(duration.Seconds())
}

// RecordLedgerTransaction records a chaincode call
func (m *MetricsCollector) RecordLedgerTransaction(contract, function, status string, duration time.Duration) {
	m.ledgerTransactionsTotal.WithLabelValues(contract, function, status, m.serviceName).Inc()
	m.ledgerTxDuration.WithLabelValues(contract, function, m.serviceName).Observe(duration.Seconds())
}

// RecordLedgerRejection records a typed rejection returned by the chaincode
func (m *MetricsCollector) RecordLedgerRejection(contract, errorType string) {
	m.ledgerRejectionsTotal.WithLabelValues(contract, errorType, m.serviceName).Inc()
}

// RecordMirrorEvent records the outcome of applying a chaincode event
func (m *MetricsCollector) RecordMirrorEvent(event, result string) {
	m.mirrorEventsTotal.WithLabelValues(event, result, m.serviceName).Inc()
}

// SetMirrorBlock records the last applied block
func (m *MetricsCollector) SetMirrorBlock(block uint64) {
	m.mirrorLastBlock.WithLabelValues(m.serviceName).Set(float64(block))
}

// RecordReconciliation records a reconcile pass over one object
func (m *MetricsCollector) RecordReconciliation(reason string, success bool) {
	m.reconciliationsTotal.WithLabelValues(reason, strconv.FormatBool(success), m.serviceName).Inc()
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
