package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/face-swap-service/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	// running tasks are never cancelled
	taskCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg := <-w.jobsChan:
			logger.Debug("Worker received job",
				slog.String("reference_id", msg.ReferenceID),
			)

			err := w.processor.Process(taskCtx, msg.ReferenceID)
			if err != nil {
				logger.Error("Job processing failed",
					slog.String("reference_id", msg.ReferenceID),
					slog.String("error", err.Error()),
				)
			}

			w.settle(logger, msg, err)
		}
	}
}

// settle ACKs or NACKs a queue delivery based on the processing result
func (w *Worker) settle(logger *slog.Logger, msg *domain.TaskMessage, err error) {
	if w.acker == nil || msg.DeliveryTag == 0 {
		return
	}

	if err == nil {
		if ackErr := w.acker.Ack(msg.DeliveryTag, false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.String("reference_id", msg.ReferenceID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	requeue := shouldRequeueJob(err)
	if nackErr := w.acker.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message",
			slog.String("reference_id", msg.ReferenceID),
			slog.String("error", nackErr.Error()),
		)
		return
	}

	logger.Info("Message NACKed",
		slog.String("reference_id", msg.ReferenceID),
		slog.Bool("requeue", requeue),
	)
}

// shouldRequeueJob requeues only transient store failures
func shouldRequeueJob(err error) bool {
	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
