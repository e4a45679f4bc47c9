package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/mealprep-intake/internal/api/router"
	"github.com/wolfman30/mealprep-intake/internal/app/bootstrap"
	appconfig "github.com/wolfman30/mealprep-intake/internal/config"
	"github.com/wolfman30/mealprep-intake/internal/events"
	httpmiddleware "github.com/wolfman30/mealprep-intake/internal/http/middleware"
	"github.com/wolfman30/mealprep-intake/internal/notify"
	"github.com/wolfman30/mealprep-intake/internal/observability/metrics"
	"github.com/wolfman30/mealprep-intake/internal/observability/tracing"
	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/internal/payments"
	"github.com/wolfman30/mealprep-intake/internal/wizard"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting mealprep-intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreDriver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(tracing.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Exporter:    tracingExporter(cfg),
	}, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	a.startBackground(ctx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	a.close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func tracingExporter(cfg *appconfig.Config) string {
	if !cfg.TracingEnabled {
		return "none"
	}
	return cfg.TracingExporter
}

// app is everything main needs to serve and to shut down.
type app struct {
	handler   http.Handler
	manager   *wizard.Manager
	deliverer *events.Deliverer
	storage   *bootstrap.Storage
	redis     *redis.Client
	registry  *prometheus.Registry
	logger    *logging.Logger
	retention time.Duration
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	catalog, err := appconfig.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	storage, err := bootstrap.BuildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	awsClients, err := bootstrap.BuildAWSClients(ctx, cfg, logger)
	if err != nil {
		storage.Close()
		return nil, err
	}

	provider, err := bootstrap.BuildPaymentProvider(cfg, logger)
	if err != nil {
		storage.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	wizardMetrics := metrics.NewWizardMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	opts := orders.ServiceOptions{
		Idempotency: bootstrap.BuildIdempotencyStore(redisClient, cfg),
		Limiter:     bootstrap.BuildSubmissionLimiter(redisClient, cfg, logger),
		Archiver:    bootstrap.BuildArchiver(cfg, awsClients, logger),
		Logger:      logger,
	}
	if cfg.VerifyCaptureStatus {
		opts.Verifier = provider
	}
	service := orders.NewService(storage.Orders, catalog, provider, storage.Outbox, opts)

	gateways := bootstrap.BuildGateways(cfg, service, logger)
	var verifier wizard.StatusVerifier
	if v, ok := provider.(wizard.StatusVerifier); ok {
		verifier = v
	}
	manager := wizard.NewManager(wizard.Config{
		Store:              bootstrap.BuildSessionStore(redisClient, cfg),
		Catalog:            catalog,
		Submitter:          gateways.Submitter,
		Confirmer:          gateways.Confirmer,
		Verifier:           verifier,
		Observer:           wizardMetrics,
		Logger:             logger,
		ReceiptPath:        cfg.ReceiptPath,
		RedirectDelay:      cfg.RedirectDelay,
		MaxCaptureAttempts: cfg.MaxCaptureAttempts,
	})

	receipts := notify.NewReceiptService(
		bootstrap.BuildMailer(cfg, awsClients, logger),
		notify.ReceiptConfig{OperatorRecipients: cfg.OperatorEmails, BusinessName: cfg.BusinessName},
		storage.Processed,
		logger,
	)
	deliverer := events.NewDeliverer(storage.Pending, bootstrap.BuildOutboxHandler(cfg, awsClients, receipts), logger).
		WithInterval(cfg.OutboxPollInterval)

	var stripeWebhook *payments.StripeWebhookHandler
	if cfg.StripeWebhookSecret != "" {
		stripeWebhook = payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, service, storage.Processed, logger)
	}

	checks := map[string]router.HealthCheck{}
	if storage.Ping != nil {
		checks["database"] = storage.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(ctx, float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Orders:             orders.NewHandler(service, storage.Admin, logger),
		Wizard:             wizard.NewHandler(manager, logger),
		StripeWebhook:      stripeWebhook,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		HTTPMetrics:        httpMetrics,
		HealthChecks:       checks,
		Tracing:            cfg.TracingEnabled,
	})

	logger.Info("application wired",
		"payment_provider", payments.ProviderMode(cfg.PaymentProvider, cfg.StripeSecretKey),
		"gateway", gateways.Mode,
		"redis", redisClient != nil,
		"aws", awsClients != nil,
	)

	return &app{
		handler:   handler,
		manager:   manager,
		deliverer: deliverer,
		storage:   storage,
		redis:     redisClient,
		registry:  registry,
		logger:    logger,
		retention: cfg.ProcessedRetention,
	}, nil
}

func (a *app) startBackground(ctx context.Context) {
	go a.deliverer.Start(ctx)
	go a.manager.Start(ctx, time.Minute)
	if pruner, ok := a.storage.Processed.(events.Pruner); ok && a.retention > 0 {
		go events.RunPruner(ctx, pruner, a.retention, time.Hour, a.logger)
	}
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.storage.Close()
}
