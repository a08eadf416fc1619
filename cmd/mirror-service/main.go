package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medrex/record-provenance/internal/ledgerclient"
	"github.com/medrex/record-provenance/internal/mirror"
	"github.com/medrex/record-provenance/pkg/config"
	"github.com/medrex/record-provenance/pkg/database"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/monitoring"
)

const (
	serviceName    = "mirror-service"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	metrics := monitoring.NewMetricsCollector(serviceName)
	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{
		Enabled:        cfg.Monitoring.Tracing.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		JaegerEndpoint: cfg.Monitoring.Tracing.JaegerEndpoint,
		Environment:    cfg.Monitoring.Tracing.Environment,
		SamplingRate:   cfg.Monitoring.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Mirror database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.CreateSchema(context.Background()); err != nil {
		logger.Fatalf("Failed to create schema: %v", err)
	}

	checkpoint, err := mirror.OpenCheckpoint(cfg.Mirror.CheckpointPath)
	if err != nil {
		logger.Fatalf("Failed to open checkpoint: %v", err)
	}
	defer checkpoint.Close()

	// Ledger connection
	client, err := ledgerclient.Connect(&cfg.Fabric, logger, metrics, tracing)
	if err != nil {
		logger.Fatalf("Failed to connect to ledger: %v", err)
	}
	defer client.Close()

	repo := mirror.NewRepository(db, logger)
	reconciler := mirror.NewReconciler(client, repo, logger, metrics)
	syncer, err := mirror.NewSyncer(client, repo, reconciler, checkpoint, cfg.Mirror.EventFilter, logger, metrics, tracing)
	if err != nil {
		logger.Fatalf("Failed to create syncer: %v", err)
	}

	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	if interval := cfg.Mirror.ReconcileEvery(); interval > 0 {
		health.RegisterChecker("event_stream", monitoring.NewStalenessHealthChecker("event stream", 2*interval, checkpoint.LastProgress))
	}

	service := mirror.NewService(cfg, logger, syncer, reconciler, health, metrics, tracing)

	// Start service in a goroutine
	go func() {
		if err := service.Start(context.Background()); err != nil {
			logger.Fatalf("Failed to start Mirror Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Mirror Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := service.Stop(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	if err := tracing.Shutdown(ctx); err != nil {
		logger.Errorf("Error flushing traces: %v", err)
	}
	logger.Info("Mirror Service stopped")
}
