package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/face-swap-service/internal/domain"
	"github.com/google/uuid"
)

// ErrWorkerStopped is returned by Dispatch after Stop
var ErrWorkerStopped = errors.New("worker is stopped")

// Acknowledger settles queue deliveries. *amqp.Channel satisfies it.
type Acknowledger interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Processor   *Processor
	Concurrency int
	QueueSize   int
	WorkerID    string
	// Acker is set when tasks arrive from RabbitMQ; nil for in-process dispatch.
	Acker Acknowledger
}

// Worker is a fixed pool of goroutines running Processing Tasks
type Worker struct {
	logger      *slog.Logger
	processor   *Processor
	concurrency int
	workerID    string
	acker       Acknowledger
	jobsChan    chan *domain.TaskMessage
	stopChan    chan struct{}
	stopOnce    sync.Once
	startOnce   sync.Once
	wg          sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	return &Worker{
		logger:      cfg.Logger,
		processor:   cfg.Processor,
		concurrency: concurrency,
		workerID:    workerID,
		acker:       cfg.Acker,
		jobsChan:    make(chan *domain.TaskMessage, queueSize),
		stopChan:    make(chan struct{}),
	}
}

// Start spawns the worker goroutines and returns immediately. Cancelling ctx
// stops the goroutines from taking new tasks; tasks already running finish.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.logger.Info("Starting worker",
			slog.String("worker_id", w.workerID),
			slog.Int("concurrency", w.concurrency),
			slog.Int("queue_size", cap(w.jobsChan)),
		)
		w.spawnWorkerPool(ctx)
	})
}

// Dispatch hands a job to the pool without waiting for it to be processed
func (w *Worker) Dispatch(_ context.Context, referenceID string) error {
	return w.enqueue(&domain.TaskMessage{ReferenceID: referenceID})
}

func (w *Worker) enqueue(msg *domain.TaskMessage) error {
	select {
	case <-w.stopChan:
		return fmt.Errorf("%w: %s", ErrWorkerStopped, msg.ReferenceID)
	default:
	}

	select {
	case w.jobsChan <- msg:
		return nil
	default:
	}

	// buffer full: finish the hand-off in the background so the caller never blocks
	w.logger.Warn("Worker queue full, deferring hand-off",
		slog.String("reference_id", msg.ReferenceID),
	)
	go func() {
		select {
		case w.jobsChan <- msg:
		case <-w.stopChan:
			w.logger.Warn("Worker stopped before job was handed off",
				slog.String("reference_id", msg.ReferenceID),
			)
		}
	}()
	return nil
}

// Stop gracefully stops the worker, waiting for running tasks to finish.
// Queued tasks that were not started are dropped.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info("Worker stopped")
	})
}
