package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/medrex/record-provenance/pkg/config"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/monitoring"
)

const resubscribeDelay = 5 * time.Second

// Service runs the event syncer, the periodic reconcile sweep and the
// operations endpoints
type Service struct {
	cfg        *config.Config
	logger     *logger.Logger
	syncer     *Syncer
	reconciler *Reconciler
	health     *monitoring.HealthManager
	metrics    *monitoring.MetricsCollector
	middleware *monitoring.MonitoringMiddleware
	server     *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new mirror service
func NewService(cfg *config.Config, log *logger.Logger, syncer *Syncer, reconciler *Reconciler,
	health *monitoring.HealthManager, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager) *Service {
	return &Service{
		cfg:        cfg,
		logger:     log,
		syncer:     syncer,
		reconciler: reconciler,
		health:     health,
		metrics:    metrics,
		middleware: monitoring.NewMonitoringMiddleware(metrics, tracing, log),
	}
}

// Router builds the operations router
func (s *Service) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.middleware.HTTPMiddleware)

	router.Handle(s.cfg.Monitoring.HealthPath, s.health.HTTPHandler()).Methods(http.MethodGet)
	router.Handle(s.cfg.Monitoring.MetricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	if secret := s.cfg.Monitoring.OperatorTokenSecret; secret != "" {
		auth := NewTokenValidator(secret)
		router.HandleFunc("/reconcile", auth.RequireScope(reconcileScope, s.logger, s.reconcileHandler)).Methods(http.MethodPost)
	}

	return router
}

// Start launches the background loops and serves the operations endpoints
// until Stop is called
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.runSyncer(ctx)
	go s.runSweeps(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Monitoring.Host, s.cfg.Monitoring.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithComponent("mirror").WithField("addr", addr).Info("Starting mirror service")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the background loops and the HTTP server
func (s *Service) Stop(ctx context.Context) error {
	s.logger.WithComponent("mirror").Info("Stopping mirror service")
	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

func (s *Service) runSyncer(ctx context.Context) {
	defer s.wg.Done()

	for {
		err := s.syncer.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		s.metrics.RecordSystemError("event_stream", "syncer")
		s.logger.WithComponent("syncer").WithError(err).Warnf("Event stream ended, resubscribing in %s", resubscribeDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (s *Service) runSweeps(ctx context.Context) {
	defer s.wg.Done()

	interval := s.cfg.Mirror.ReconcileEvery()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.reconciler.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithComponent("reconciler").WithError(err).Warn("Periodic sweep incomplete")
			}
		}
	}
}

func (s *Service) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	fixed, err := s.reconciler.Sweep(r.Context())
	details := map[string]interface{}{"fixed": fixed}
	if err != nil {
		details["error"] = err.Error()
	}
	s.logger.Audit(r.Context(), "manual_reconcile", ReasonSweep, err == nil, details)

	if err != nil {
		writeJSON(w, http.StatusBadGateway, details)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
