package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/fixiepixie/internal"
	"github.com/DukeRupert/fixiepixie/internal/compose"
	"github.com/DukeRupert/fixiepixie/internal/contact"
	"github.com/DukeRupert/fixiepixie/internal/email"
	"github.com/DukeRupert/fixiepixie/internal/events"
	"github.com/DukeRupert/fixiepixie/internal/geocode"
	"github.com/DukeRupert/fixiepixie/internal/handler"
	"github.com/DukeRupert/fixiepixie/internal/metrics"
	"github.com/DukeRupert/fixiepixie/internal/middleware"
	"github.com/DukeRupert/fixiepixie/internal/photo"
	"github.com/DukeRupert/fixiepixie/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Load contact directory
	contacts, err := contact.Load(cfg.ContactsPath, logger)
	if err != nil {
		return fmt.Errorf("contact directory failed: %w", err)
	}

	// Outcome events are optional; the pipeline never waits on the broker.
	publisher := connectEvents(ctx, cfg, logger)
	defer publisher.Close()

	// Initialize pipeline components
	geocoder := geocode.NewNominatimClient(cfg.Geocoder(), logger)
	server := internal.NewServerSender(cfg, logger)
	mailbox := email.NewMailboxClient(cfg.Mailbox(), logger)

	reportService := service.NewReportService(service.ReportServiceDeps{
		Geocoder:  geocoder,
		Contacts:  contacts,
		Composer:  compose.New(cfg.AppName),
		Server:    server,
		Mailbox:   mailbox,
		Photos:    photo.NewProcessor(cfg.Photo(), logger),
		Publisher: publisher,
	}, logger)
	logger.Info("Report pipeline ready",
		"server_backend", server.Name(),
		"cities", contacts.Len(),
	)

	// Initialize middleware
	isSecure := cfg.IsProduction()
	identityMw := middleware.NewIdentityMiddleware(cfg.JWTSecret, logger)
	if !identityMw.Enabled() {
		logger.Warn("JWT_SECRET not set; every report is handled as anonymous")
	}
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)
	if !metricsAuth.Enabled() {
		logger.Warn("Metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}
	limiter := middleware.NewRateLimiter(cfg.ReportRateLimit, cfg.ReportRateWindow)
	defer limiter.Close()
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, logger)

	// Initialize handlers
	reportHandler := handler.NewReportHandler(reportService, geocoder, cfg.PhotoMaxBytes, logger)
	healthHandler := handler.NewHealthHandler(cfg.AppName, cfg.Env)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))
	mux.HandleFunc("GET /reverse", reportHandler.Reverse)
	mux.Handle("POST /api/report", rateLimitMw.Limit(http.HandlerFunc(reportHandler.Submit)))

	stack := middleware.Stack(
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		metrics.Middleware,
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
		middleware.NewCORSMiddleware(cfg.CORSOrigins).Handler,
		identityMw.WithIdentity,
	)

	// ==========================================================================
	// Start server
	// ==========================================================================

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           stack(metrics.Routes(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// In-flight submissions may still be sending mail.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// connectEvents dials the broker when AMQP_URL is set. A broker that cannot
// be reached disables events instead of failing startup.
func connectEvents(ctx context.Context, cfg *internal.Config, logger *slog.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL not set; outcome events disabled")
		return events.NoopPublisher{}
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	publisher, err := events.Connect(connectCtx, cfg.Events(), logger)
	if err != nil {
		logger.Warn("Outcome events disabled", "error", err)
		return events.NoopPublisher{}
	}
	logger.Info("Publishing outcome events", "exchange", cfg.AMQPExchange)
	return publisher
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
