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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wolfman30/whatsapp-companion/internal/api/router"
	"github.com/wolfman30/whatsapp-companion/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-companion/internal/config"
	"github.com/wolfman30/whatsapp-companion/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-companion/pkg/logging"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	if err := cfg.Validate(); err != nil {
		var cfgErr *appconfig.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Error("invalid configuration", "missing", cfgErr.Missing, "invalid", cfgErr.Invalid)
		} else {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("starting whatsapp-companion API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	metricsHandler, relayMetrics := setupMetrics()

	ctx := context.Background()
	runtime, err := bootstrap.BuildRelay(ctx, cfg, relayMetrics, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}
	defer runtime.Close()

	// Setup router
	r := router.New(&router.Config{
		Logger:         logger,
		WhatsApp:       runtime.Adapter,
		MetricsHandler: metricsHandler,
	})

	srv := newServer(cfg, r)

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		runtime.Close()
		os.Exit(1)
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		runtime.Close()
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers relay metrics on a dedicated registry alongside the
// Go runtime and process collectors.
func setupMetrics() (http.Handler, *metrics.RelayMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewRelayMetrics(reg)
}

// newServer leaves headroom in WriteTimeout for webhook requests, which are
// answered only after generation and delivery finish.
func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	writeTimeout := 15 * time.Second
	if budget := cfg.GenerationTimeout + cfg.DeliveryTimeout + 5*time.Second; budget > writeTimeout {
		writeTimeout = budget
	}
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
