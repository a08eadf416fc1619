package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/medrex/record-provenance/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
)

// RequestLogger is the logging surface the middleware needs
type RequestLogger interface {
	HTTPRequest(ctx context.Context, method, path, clientIP string, statusCode int, duration int64)
}

// MonitoringMiddleware combines metrics, tracing, and logging
type MonitoringMiddleware struct {
	metrics *MetricsCollector
	tracing *TracingManager
	logger  RequestLogger
}

// NewMonitoringMiddleware creates a new monitoring middleware
func NewMonitoringMiddleware(metrics *MetricsCollector, tracing *TracingManager, log RequestLogger) *MonitoringMiddleware {
	if tracing == nil {
		tracing = NewNoopTracingManager()
	}
	return &MonitoringMiddleware{
		metrics: metrics,
		tracing: tracing,
		logger:  log,
	}
}

// HTTPMiddleware tags each request with an ID, traces it, counts it and logs it
func (mm *MonitoringMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	traced := mm.tracing.HTTPMiddleware(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := logger.WithRequestID(r.Context(), requestID)

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapper.Header().Set("X-Request-ID", requestID)

		traced.ServeHTTP(wrapper, r.WithContext(ctx))

		duration := time.Since(start)
		mm.metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode), duration)
		mm.logger.HTTPRequest(ctx, r.Method, r.URL.Path, r.RemoteAddr, wrapper.statusCode, duration.Milliseconds())
	})
}

// DatabaseMiddleware wraps a mirror database operation with a span and a
// latency observation
func (mm *MonitoringMiddleware) DatabaseMiddleware(operation, table string) func(context.Context, func(context.Context) error) error {
	return func(ctx context.Context, dbFunc func(context.Context) error) error {
		start := time.Now()

		ctx, span := mm.tracing.StartDatabaseSpan(ctx, operation, table)
		defer span.End()

		err := dbFunc(ctx)
		mm.metrics.RecordDBQuery(operation, time.Since(start))

		if err != nil {
			mm.tracing.RecordError(span, err)
			mm.metrics.RecordSystemError("database_error", "database")
		}
		return err
	}
}

// LedgerMiddleware wraps a chaincode call with a span and transaction metrics
func (mm *MonitoringMiddleware) LedgerMiddleware(contract, function string, submit bool) func(context.Context, func(context.Context) error) error {
	return func(ctx context.Context, ledgerFunc func(context.Context) error) error {
		start := time.Now()

		ctx, span := mm.tracing.StartLedgerSpan(ctx, contract, function, submit)
		defer span.End()

		err := ledgerFunc(ctx)

		status := "success"
		if err != nil {
			status = "failed"
		}
		mm.metrics.RecordLedgerTransaction(contract, function, status, time.Since(start))
		span.SetAttributes(attribute.String("ledger.status", status))

		if err != nil {
			mm.tracing.RecordError(span, err)
		}
		return err
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
