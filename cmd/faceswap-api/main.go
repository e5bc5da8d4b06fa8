package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/face-swap-service/internal/api/handler"
	"github.com/cuongbtq/face-swap-service/internal/api/router"
	"github.com/cuongbtq/face-swap-service/internal/config"
	"github.com/cuongbtq/face-swap-service/internal/faceswap"
	"github.com/cuongbtq/face-swap-service/internal/ingest"
	"github.com/cuongbtq/face-swap-service/internal/metrics"
	"github.com/cuongbtq/face-swap-service/internal/storage"
	"github.com/cuongbtq/face-swap-service/internal/worker"
	"github.com/cuongbtq/face-swap-service/shared/database"
	"github.com/cuongbtq/face-swap-service/shared/logger"
	"github.com/cuongbtq/face-swap-service/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := config.ResolvePath("", "configs/faceswap-api/config.yaml")
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting face-swap API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("dispatch", cfg.Dispatch.Mode),
	)

	for _, dir := range []string{cfg.Images.InputDir, cfg.Images.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create image directory %s: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize job store
	store, dbClient, err := initStore(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}
	if dbClient != nil {
		defer dbClient.Close()
	}

	m := metrics.New()

	// Initialize dispatcher: in-process pool or RabbitMQ publisher
	var (
		dispatcher   ingest.Dispatcher
		pool         *worker.Worker
		rabbitClient *rabbitmq.Client
	)
	switch cfg.Dispatch.Mode {
	case config.DispatchRabbitMQ:
		rabbitClient, err = rabbitmq.NewClient(cfg.RabbitMQClientConfig(), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		appLogger.Info("RabbitMQ connection established")
		dispatcher = worker.NewQueuePublisher(rabbitClient, appLogger.Logger)

	default:
		composer, err := initComposer(cfg, appLogger.Logger)
		if err != nil {
			return err
		}

		pool = worker.NewWorker(&worker.Config{
			Logger:      appLogger.Logger,
			Processor:   initProcessor(cfg, store, composer, m, appLogger.Logger),
			Concurrency: cfg.Worker.Concurrency,
			QueueSize:   cfg.Worker.QueueSize,
			WorkerID:    cfg.Worker.ID,
		})
		pool.Start(ctx)
		dispatcher = pool
	}

	controller := ingest.NewController(&ingest.Config{
		Store:      store,
		Dispatcher: dispatcher,
		Downloader: ingest.NewDownloader(
			cfg.Images.InputDir,
			cfg.Images.DownloadTimeout,
			cfg.Images.MaxDownloadBytes,
			appLogger.Logger,
		),
		Metrics: m,
		Logger:  appLogger.Logger,
	})

	// Reschedule jobs left pending by failed dispatches or a previous run
	if _, err := controller.RedispatchPending(ctx); err != nil {
		appLogger.Warn("Failed to redispatch pending jobs",
			slog.String("error", err.Error()),
		)
	}

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, controller, store, m, healthCheck(dbClient, rabbitClient))

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.String("error", err.Error()),
		)
	}

	if pool != nil {
		stopWorker(pool, cfg.Worker.ShutdownTimeout, appLogger.Logger)
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initStore opens the configured job store, migrating SQL schemas on start
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, *database.Client, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		return storage.NewMemoryStore(), nil, nil
	}

	dbClient, err := database.NewClient(cfg.DatabaseClientConfig(), logger)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewSQLStore(dbClient.GetDB(), logger)
	if err := store.Migrate(ctx); err != nil {
		dbClient.Close()
		return nil, nil, err
	}

	logger.Info("Database connection established")
	return store, dbClient, nil
}

// initComposer loads the face detector cascade and builds the default composer
func initComposer(cfg *config.Config, logger *slog.Logger) (faceswap.Composer, error) {
	detector, err := faceswap.LoadPigoDetector(cfg.Composer.CascadePath, cfg.DetectorOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize face detector: %w", err)
	}

	return faceswap.NewSwapper(detector, cfg.Composer.Feather, logger), nil
}

func initProcessor(cfg *config.Config, store storage.Store, composer faceswap.Composer, m *metrics.Metrics, logger *slog.Logger) *worker.Processor {
	return worker.NewProcessor(&worker.ProcessorConfig{
		Store:         store,
		Composer:      composer,
		Metrics:       m,
		Logger:        logger,
		OutputDir:     cfg.Images.OutputDir,
		PublicBaseURL: cfg.Images.PublicBaseURL,
		JobTimeout:    cfg.Worker.JobTimeout,
	})
}

// healthCheck probes whichever backing services are in use
func healthCheck(dbClient *database.Client, rabbitClient *rabbitmq.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if dbClient != nil {
			if err := dbClient.HealthCheck(ctx); err != nil {
				return err
			}
		}
		if rabbitClient != nil && !rabbitClient.IsConnected() {
			return rabbitmq.ErrNotConnected
		}
		return nil
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, controller *ingest.Controller, store storage.Store, m *metrics.Metrics, check func(ctx context.Context) error) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:     logger,
		Controller: controller,
		Store:      store,
		OutputDir:  cfg.Images.OutputDir,
	}

	return router.SetupRouter(handlerDeps, router.Options{
		ServiceName: cfg.App.Name,
		HealthCheck: check,
		Metrics:     m.Handler(),
	})
}

// stopWorker waits for running jobs, giving up after timeout
func stopWorker(w *worker.Worker, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}
}
