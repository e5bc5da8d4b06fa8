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

	"github.com/cuongbtq/face-swap-service/internal/config"
	"github.com/cuongbtq/face-swap-service/internal/faceswap"
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
	defaultConfigPath := config.ResolvePath("", "configs/faceswap-worker/config.yaml")
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting face-swap worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	if err := os.MkdirAll(cfg.Images.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize SQL client; the store is shared with the API service
	dbClient, err := database.NewClient(cfg.DatabaseClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	store := storage.NewSQLStore(dbClient.GetDB(), appLogger.Logger)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate job store: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	detector, err := faceswap.LoadPigoDetector(cfg.Composer.CascadePath, cfg.DetectorOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize face detector: %w", err)
	}

	m := metrics.New()

	workerInstance := worker.NewWorker(&worker.Config{
		Logger: appLogger.Logger,
		Processor: worker.NewProcessor(&worker.ProcessorConfig{
			Store:         store,
			Composer:      faceswap.NewSwapper(detector, cfg.Composer.Feather, appLogger.Logger),
			Metrics:       m,
			Logger:        appLogger.Logger,
			OutputDir:     cfg.Images.OutputDir,
			PublicBaseURL: cfg.Images.PublicBaseURL,
			JobTimeout:    cfg.Worker.JobTimeout,
		}),
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
		WorkerID:    cfg.Worker.ID,
		Acker:       rabbitClient.GetChannel(),
	})

	consumerTag := cfg.RabbitMQ.Consumer.Tag
	if consumerTag == "" {
		consumerTag = cfg.App.Name + "-worker"
	}
	deliveries, err := rabbitClient.Consume(consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workerInstance.Start(ctx)
	consumerDone := make(chan struct{})
	go func() {
		workerInstance.Consume(ctx, deliveries)
		close(consumerDone)
	}()

	// Metrics and health endpoint
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           opsRouter(cfg.App.Name, m, dbClient),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("metrics_address", srv.Addr),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Metrics server error",
			slog.String("error", err.Error()),
		)
	case <-consumerDone:
		appLogger.Error("Consumer stopped unexpectedly")
	}

	// Cancel context to stop consuming
	cancel()

	// Give worker time to shutdown gracefully
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Metrics server forced to shutdown",
			slog.String("error", err.Error()),
		)
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// opsRouter serves /health and /metrics for the worker process
func opsRouter(serviceName string, m *metrics.Metrics, dbClient *database.Client) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		if err := dbClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": serviceName,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	return r
}
