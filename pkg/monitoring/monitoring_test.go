package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method, path string
	status       int
	requestID    string
}

type fakeRequestLogger struct {
	requests []recordedRequest
}

func (f *fakeRequestLogger) HTTPRequest(ctx context.Context, method, path, clientIP string, statusCode int, duration int64) {
	f.requests = append(f.requests, recordedRequest{method: method, path: path, status: statusCode, requestID: logger.RequestID(ctx)})
}

func TestMetricsCollector_LedgerAndMirror(t *testing.T) {
	m := NewMetricsCollector("test-service")

	m.RecordLedgerTransaction("roles", "GrantRole", "success", 120*time.Millisecond)
	m.RecordLedgerTransaction("roles", "GrantRole", "success", 80*time.Millisecond)
	m.RecordLedgerTransaction("roles", "GrantRole", "failed", 10*time.Millisecond)
	m.RecordLedgerRejection("roles", "authorization")
	m.RecordMirrorEvent("RoleGranted", "applied")
	m.RecordReconciliation("gap", true)
	m.SetMirrorBlock(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ledgerTransactionsTotal.WithLabelValues("roles", "GrantRole", "success", "test-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerTransactionsTotal.WithLabelValues("roles", "GrantRole", "failed", "test-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerRejectionsTotal.WithLabelValues("roles", "authorization", "test-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mirrorEventsTotal.WithLabelValues("RoleGranted", "applied", "test-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliationsTotal.WithLabelValues("gap", "true", "test-service")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.mirrorLastBlock.WithLabelValues("test-service")))
}

func TestMetricsCollector_IndependentRegistries(t *testing.T) {
	a := NewMetricsCollector("a")
	b := NewMetricsCollector("b")

	a.RecordSystemError("database_error", "mirror")
	assert.Equal(t, 1, testutil.CollectAndCount(a.systemErrors))
	assert.Equal(t, 0, testutil.CollectAndCount(b.systemErrors))
}

func TestMetricsCollector_Handler(t *testing.T) {
	m := NewMetricsCollector("test-service")
	m.RecordMirrorEvent("AccessGranted", "applied")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mirror_events_total{event="AccessGranted",result="applied",service="test-service"} 1`)
}

func TestHealthManager_CheckHealth(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		hm := NewHealthManager("mirror", "1.0.0")
		hm.RegisterChecker("a", NewCustomHealthChecker(func(ctx context.Context) HealthCheck {
			return HealthCheck{Status: HealthStatusHealthy}
		}))

		report := hm.CheckHealth(context.Background())
		assert.Equal(t, HealthStatusHealthy, report.Status)
		require.Len(t, report.Checks, 1)
		assert.Equal(t, "a", report.Checks[0].Name)
	})

	t.Run("unhealthy dominates degraded", func(t *testing.T) {
		hm := NewHealthManager("mirror", "1.0.0")
		hm.RegisterChecker("slow", NewCustomHealthChecker(func(ctx context.Context) HealthCheck {
			return HealthCheck{Status: HealthStatusDegraded}
		}))
		hm.RegisterChecker("down", NewCustomHealthChecker(func(ctx context.Context) HealthCheck {
			return HealthCheck{Status: HealthStatusUnhealthy}
		}))

		report := hm.CheckHealth(context.Background())
		assert.Equal(t, HealthStatusUnhealthy, report.Status)
		assert.Equal(t, 1, report.Summary["degraded"])
		assert.Equal(t, 1, report.Summary["unhealthy"])
		assert.Equal(t, "down", report.Checks[0].Name)
	})

	t.Run("checker sees the timeout", func(t *testing.T) {
		hm := NewHealthManager("mirror", "1.0.0")
		hm.SetTimeout(10 * time.Millisecond)
		hm.RegisterChecker("blocked", NewCustomHealthChecker(func(ctx context.Context) HealthCheck {
			<-ctx.Done()
			return HealthCheck{Status: HealthStatusUnhealthy, Message: ctx.Err().Error()}
		}))

		report := hm.CheckHealth(context.Background())
		assert.Equal(t, HealthStatusUnhealthy, report.Status)
		assert.Contains(t, report.Checks[0].Message, "deadline exceeded")
	})
}

func TestHealthManager_HTTPHandler(t *testing.T) {
	hm := NewHealthManager("mirror", "1.0.0")
	hm.RegisterChecker("down", NewCustomHealthChecker(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusUnhealthy}
	}))

	rec := httptest.NewRecorder()
	hm.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "mirror", report.Service)
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
}

func TestDatabaseHealthChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	check := NewDatabaseHealthChecker(db).Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, check.Status)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	check = NewDatabaseHealthChecker(db).Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStalenessHealthChecker(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var last time.Time
	checker := NewStalenessHealthChecker("event stream", time.Minute, func() time.Time { return last })
	checker.nowFunc = func() time.Time { return now }

	assert.Equal(t, HealthStatusDegraded, checker.Check(context.Background()).Status)

	last = now.Add(-30 * time.Second)
	assert.Equal(t, HealthStatusHealthy, checker.Check(context.Background()).Status)

	last = now.Add(-5 * time.Minute)
	check := checker.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, check.Status)
	assert.True(t, strings.HasPrefix(check.Message, "event stream idle for"))
}

func TestMonitoringMiddleware_HTTP(t *testing.T) {
	metrics := NewMetricsCollector("test-service")
	log := &fakeRequestLogger{}
	mm := NewMonitoringMiddleware(metrics, NewNoopTracingManager(), log)

	handler := mm.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	require.Len(t, log.requests, 1)
	assert.Equal(t, http.StatusTeapot, log.requests[0].status)
	assert.Equal(t, "req-1", log.requests[0].requestID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/health", "418", "test-service")))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestMonitoringMiddleware_Ledger(t *testing.T) {
	metrics := NewMetricsCollector("test-service")
	mm := NewMonitoringMiddleware(metrics, NewNoopTracingManager(), &fakeRequestLogger{})

	wrap := mm.LedgerMiddleware("permissions", "GrantAccess", true)
	require.NoError(t, wrap(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Error(t, wrap(context.Background(), func(ctx context.Context) error { return errors.New("endorsement failed") }))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ledgerTransactionsTotal.WithLabelValues("permissions", "GrantAccess", "success", "test-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ledgerTransactionsTotal.WithLabelValues("permissions", "GrantAccess", "failed", "test-service")))
}

func TestMonitoringMiddleware_Database(t *testing.T) {
	metrics := NewMetricsCollector("test-service")
	mm := NewMonitoringMiddleware(metrics, NewNoopTracingManager(), &fakeRequestLogger{})

	wrap := mm.DatabaseMiddleware("upsert", "mirror_anchors")
	assert.Error(t, wrap(context.Background(), func(ctx context.Context) error { return errors.New("deadlock") }))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.systemErrors.WithLabelValues("database_error", "test-service", "database")))
}
