package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/betops/balancecore/internal/audit"
	"github.com/betops/balancecore/internal/balance"
	"github.com/betops/balancecore/internal/config"
	"github.com/betops/balancecore/internal/notification"
	"github.com/betops/balancecore/internal/validation"
	"github.com/betops/balancecore/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New("balancecore", cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Validator with its rolling change tracker
	tracker := validation.NewChangeTracker()
	validator, err := validation.NewValidator(tracker, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create validator", zap.Error(err))
	}

	// Audit trail
	trail, err := audit.NewTrail(zapLogger, &audit.Config{
		MaxEventsPerCustomer: cfg.Audit.MaxEventsPerCustomer,
	})
	if err != nil {
		zapLogger.Fatal("Failed to create audit trail", zap.Error(err))
	}

	// Notification engine with its template registry and channel senders
	registry := notification.NewRegistry()
	if cfg.Notification.TemplatesFile != "" {
		if err := registry.LoadFile(cfg.Notification.TemplatesFile); err != nil {
			zapLogger.Fatal("Failed to load notification templates", zap.Error(err))
		}
	}

	senders := []notification.Sender{
		notification.NewDashboardSender(500),
		notification.NewLogSender(notification.ChannelEmail, zapLogger),
		notification.NewLogSender(notification.ChannelSMS, zapLogger),
		notification.NewLogSender(notification.ChannelPush, zapLogger),
	}
	if cfg.Notification.WebhookURL != "" {
		senders = append(senders, notification.NewWebhookSender(
			cfg.Notification.WebhookURL, nil, cfg.Notification.DispatchTimeout, zapLogger))
	}

	engine, err := notification.NewEngine(registry, zapLogger, senders...)
	if err != nil {
		zapLogger.Fatal("Failed to create notification engine", zap.Error(err))
	}

	// The orchestrator is consumed in-process by upstream controllers;
	// constructing it here verifies the wiring at startup.
	if _, err := balance.NewService(zapLogger, validator, trail, engine, nil); err != nil {
		zapLogger.Fatal("Failed to create balance service", zap.Error(err))
	}

	// Schedule data lifecycle: purge audit events past retention daily
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			removed := trail.ClearOldData(cfg.Audit.RetentionDays)
			zapLogger.Info("Audit retention purge completed", zap.Int("removed", removed))
		}
	}()

	// Expose Prometheus metrics
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		zapLogger.Info("Metrics endpoint listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Metrics server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Balance integrity core started",
		zap.Int("audit_retention_days", cfg.Audit.RetentionDays),
		zap.Int("audit_max_events_per_customer", cfg.Audit.MaxEventsPerCustomer))

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down, draining notification dispatches")
	engine.Drain()
	if err := metricsServer.Close(); err != nil {
		zapLogger.Error("Failed to close metrics server", zap.Error(err))
	}
	zapLogger.Info("Shutdown complete")
}
