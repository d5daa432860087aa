package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/rpattn/datareader/internal/config"
	"github.com/rpattn/datareader/internal/db"
	"github.com/rpattn/datareader/internal/ingestion"
	"github.com/rpattn/datareader/internal/logging"
	"github.com/rpattn/datareader/internal/middleware"
	"github.com/rpattn/datareader/internal/repository"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	// Run migrations
	if cfg.Migrate {
		if err := db.RunMigrations(cfg.Database, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Create repositories
	personRepo := repository.NewPersonRepository(conn.Pool)
	jobRepo := repository.NewProcessingJobRepository(conn.Pool)
	logRepo := repository.NewIngestionLogRepository(conn.Pool)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ingestion.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		return err
	}

	sampler, err := ingestion.NewProcessSampler()
	if err != nil {
		logger.Warn().Err(err).Msg("resource sampling disabled")
	}

	service := ingestion.NewService(
		personRepo,
		ingestion.WithLogger(logger),
		ingestion.WithMetrics(metrics),
		ingestion.WithSampler(sampler),
		ingestion.WithProcessingJobs(jobRepo),
		ingestion.WithIngestionLogs(logRepo),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithSampleEvery(cfg.Ingestion.SampleEvery),
		ingestion.WithLogsDirectory(cfg.Ingestion.LogsDir),
		ingestion.WithAllowedBaseDir(cfg.Ingestion.AllowedBaseDir),
		ingestion.WithEncoding(cfg.Ingestion.Encoding),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	apiHandler := ingestion.NewHTTPHandler(
		service,
		ingestion.WithHandlerLogger(logger),
		ingestion.WithJobHistory(jobRepo, logRepo),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", corsHandler.Handler(apiHandler))

	withRequestContext := middleware.RequestContextMiddleware(logger)
	withAccessLog := middleware.LoggingMiddleware(logger)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           withRequestContext(withAccessLog(mux)),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server exited")
	return nil
}
