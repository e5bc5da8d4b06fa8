package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/face-swap-service/internal/domain"
)

// Publisher sends a message to the task queue. *rabbitmq.Client satisfies it.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// QueuePublisher dispatches jobs to a separate worker process through RabbitMQ
type QueuePublisher struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewQueuePublisher creates a new QueuePublisher instance
func NewQueuePublisher(publisher Publisher, logger *slog.Logger) *QueuePublisher {
	return &QueuePublisher{
		publisher: publisher,
		logger:    logger,
	}
}

// Dispatch publishes the job's reference id
func (q *QueuePublisher) Dispatch(ctx context.Context, referenceID string) error {
	body, err := json.Marshal(domain.TaskMessage{ReferenceID: referenceID})
	if err != nil {
		return fmt.Errorf("failed to marshal task message: %w", err)
	}

	if err := q.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish task message: %w", err)
	}

	q.logger.Debug("Job published to task queue",
		slog.String("reference_id", referenceID),
	)
	return nil
}
