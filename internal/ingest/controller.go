package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/cuongbtq/face-swap-service/internal/domain"
	"github.com/cuongbtq/face-swap-service/internal/metrics"
	"github.com/cuongbtq/face-swap-service/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Dispatcher schedules asynchronous processing of a stored job. It must not
// wait for the processing itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, referenceID string) error
}

// Config holds Controller dependencies
type Config struct {
	Store      storage.Store
	Dispatcher Dispatcher
	Downloader *Downloader
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Controller turns a pair of image URLs into a tracked, scheduled job
type Controller struct {
	store      storage.Store
	dispatcher Dispatcher
	downloader *Downloader
	metrics    *metrics.Metrics
	logger     *slog.Logger
	newID      func() string
}

// NewController creates a new Controller instance
func NewController(cfg *Config) *Controller {
	return &Controller{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		downloader: cfg.Downloader,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		newID:      NewReferenceID,
	}
}

// RedispatchPending schedules every job left pending, such as jobs whose
// dispatch failed or that were queued when a previous process stopped.
// Returns how many jobs were scheduled.
func (c *Controller) RedispatchPending(ctx context.Context) (int, error) {
	ids, err := c.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, id := range ids {
		if err := c.dispatcher.Dispatch(ctx, id); err != nil {
			return scheduled, fmt.Errorf("%w: %s: %v", ErrDispatchFailed, id, err)
		}
		scheduled++
	}

	if scheduled > 0 {
		c.logger.Info("Redispatched pending jobs",
			slog.Int("count", scheduled),
		)
	}
	return scheduled, nil
}

// NewReferenceID returns "job_" followed by 32 hex digits of a random UUID
func NewReferenceID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Submit downloads both images, records a pending job and schedules it.
// Nothing is stored unless both downloads succeed. When only scheduling
// fails, the stored job is returned alongside an ErrDispatchFailed error.
func (c *Controller) Submit(ctx context.Context, baseImageURL, selfieURL string) (*domain.Job, error) {
	for _, u := range []string{baseImageURL, selfieURL} {
		if err := validateURL(u); err != nil {
			c.metrics.JobRejected(metrics.ReasonInvalidURL)
			return nil, err
		}
	}

	referenceID := c.newID()
	logger := c.logger.With(slog.String("reference_id", referenceID))

	var basePath, selfiePath string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.downloader.Fetch(gctx, baseImageURL, referenceID+"_base")
		basePath = p
		return err
	})
	g.Go(func() error {
		p, err := c.downloader.Fetch(gctx, selfieURL, referenceID+"_selfie")
		selfiePath = p
		return err
	})

	if err := g.Wait(); err != nil {
		removeFiles(basePath, selfiePath)
		c.metrics.JobRejected(rejectReason(err))
		logger.Warn("Job submission rejected",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	job := domain.NewJob(referenceID, basePath, selfiePath)
	if err := c.store.Create(ctx, job); err != nil {
		removeFiles(basePath, selfiePath)
		c.metrics.JobRejected(metrics.ReasonInternal)
		logger.Error("Failed to create job record",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := c.dispatcher.Dispatch(ctx, referenceID); err != nil {
		logger.Error("Failed to dispatch job",
			slog.String("error", err.Error()),
		)
		// the job stays pending and is picked up by RedispatchPending
		return job, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	c.metrics.JobSubmitted()
	logger.Info("Job accepted",
		slog.String("base_image_path", basePath),
		slog.String("selfie_image_path", selfiePath),
	)

	return job, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ImageError{URL: raw, Err: ErrInvalidURL}
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotAnImage):
		return metrics.ReasonNotAnImage
	case errors.Is(err, ErrInvalidURL):
		return metrics.ReasonInvalidURL
	default:
		return metrics.ReasonDownloadFailed
	}
}

// removeFiles is best-effort cleanup of partially materialised inputs
func removeFiles(paths ...string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}
