package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/cuongbtq/face-swap-service/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consume reads task messages from RabbitMQ and hands them to the pool until
// ctx is cancelled or the delivery channel closes. Each delivery is settled by
// the pool after processing.
func (w *Worker) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var msg domain.TaskMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil || !strings.HasPrefix(msg.ReferenceID, "job_") {
				w.logger.Error("Discarding malformed task message",
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}
			msg.DeliveryTag = delivery.DeliveryTag

			// blocking send: RabbitMQ prefetch provides the backpressure here
			select {
			case w.jobsChan <- &msg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("reference_id", msg.ReferenceID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
