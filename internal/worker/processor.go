package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/face-swap-service/internal/domain"
	"github.com/cuongbtq/face-swap-service/internal/faceswap"
	"github.com/cuongbtq/face-swap-service/internal/metrics"
	"github.com/cuongbtq/face-swap-service/internal/storage"
)

// ReasonTimeout is recorded when composition exceeds the configured job timeout
const ReasonTimeout = "timeout"

// OutputRoute is the URL path the produced images are served under
const OutputRoute = "/static/output/"

// ProcessorConfig holds Processor dependencies
type ProcessorConfig struct {
	Store         storage.Store
	Composer      faceswap.Composer
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	OutputDir     string
	PublicBaseURL string
	// JobTimeout bounds the composition step; zero waits indefinitely.
	JobTimeout time.Duration
}

// Processor drives one job from pending to a terminal state
type Processor struct {
	store         storage.Store
	composer      faceswap.Composer
	metrics       *metrics.Metrics
	logger        *slog.Logger
	outputDir     string
	publicBaseURL string
	jobTimeout    time.Duration
	finishRetries int
	retryDelay    time.Duration
}

// NewProcessor creates a new Processor instance
func NewProcessor(cfg *ProcessorConfig) *Processor {
	return &Processor{
		store:         cfg.Store,
		composer:      cfg.Composer,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		outputDir:     cfg.OutputDir,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		jobTimeout:    cfg.JobTimeout,
		finishRetries: 3,
		retryDelay:    100 * time.Millisecond,
	}
}

// ResultURL is the public URL of the image produced for referenceID
func (p *Processor) ResultURL(referenceID string) string {
	return p.publicBaseURL + OutputRoute + referenceID + ".png"
}

// Process runs the composition for one job. Composition failures never
// surface as errors: they become the job's failed state. An error is only
// returned when the store could not be read or written.
func (p *Processor) Process(ctx context.Context, referenceID string) error {
	logger := p.logger.With(slog.String("reference_id", referenceID))

	job, found, err := p.store.Get(ctx, referenceID)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}
	if !found {
		logger.Debug("Job no longer exists, skipping")
		return nil
	}
	if job.Status != domain.StatusPending {
		logger.Info("Job already picked up, skipping",
			slog.String("status", string(job.Status)),
		)
		return nil
	}

	// pending -> processing happens before any blocking work
	if err := p.store.Update(ctx, referenceID, domain.ProcessingPatch()); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTransition),
			errors.Is(err, domain.ErrConcurrentUpdate),
			errors.Is(err, domain.ErrJobNotFound):
			logger.Info("Job claimed elsewhere, skipping",
				slog.String("error", err.Error()),
			)
			return nil
		default:
			return domain.NewRetryableError(fmt.Errorf("failed to mark job processing: %w", err))
		}
	}

	start := time.Now()
	p.metrics.JobStarted()
	logger.Info("Processing job")

	outputPath := filepath.Join(p.outputDir, referenceID+".png")
	composeErr := p.compose(ctx, job.BaseImagePath, job.SelfieImagePath, outputPath)
	elapsed := time.Since(start)

	var patch domain.JobPatch
	if composeErr != nil {
		reason := failureReason(composeErr)
		patch = domain.FailedPatch(reason)
		p.metrics.JobFinished(string(domain.StatusFailed), elapsed)
		logger.Warn("Job failed",
			slog.String("error", reason),
			slog.Duration("elapsed", elapsed),
		)
	} else {
		patch = domain.CompletedPatch(p.ResultURL(referenceID), elapsed.Milliseconds())
		p.metrics.JobFinished(string(domain.StatusCompleted), elapsed)
		logger.Info("Job completed",
			slog.Int64("processing_ms", elapsed.Milliseconds()),
		)
	}

	return p.finish(ctx, referenceID, patch)
}

// compose calls the collaborator, converting panics and timeouts into errors
func (p *Processor) compose(ctx context.Context, basePath, selfiePath, outputPath string) error {
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- p.composer.Compose(ctx, basePath, selfiePath, outputPath)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// the composer goroutine is abandoned; its late output is never referenced
		return ctx.Err()
	}
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return err.Error()
}

// finish writes the terminal patch, retrying transient store errors so the
// job is not stranded in processing
func (p *Processor) finish(ctx context.Context, referenceID string, patch domain.JobPatch) error {
	var err error
	for attempt := 1; attempt <= p.finishRetries; attempt++ {
		err = p.store.Update(ctx, referenceID, patch)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrInvalidTransition) {
			break
		}

		p.logger.Warn("Failed to record job result, retrying...",
			slog.String("reference_id", referenceID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to record job result: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * p.retryDelay):
		}
	}

	p.logger.Error("Failed to record job result",
		slog.String("reference_id", referenceID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("failed to record job result: %w", err)
}
