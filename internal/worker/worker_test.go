package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/face-swap-service/internal/domain"
	"github.com/cuongbtq/face-swap-service/internal/faceswap"
	"github.com/cuongbtq/face-swap-service/internal/storage"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

// fakeAcker records settlements. It also satisfies amqp.Acknowledger.
type fakeAcker struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, ack: true})
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcker) snapshot() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement(nil), a.settled...)
}

func newTestWorker(t *testing.T, store storage.Store, queueSize int, acker Acknowledger) *Worker {
	t.Helper()
	w := NewWorker(&Config{
		Logger:      testLogger(),
		Processor:   newTestProcessor(t, store, faceswap.ComposerFunc(writeOutput), 0),
		Concurrency: 3,
		QueueSize:   queueSize,
		WorkerID:    "test",
		Acker:       acker,
	})
	t.Cleanup(w.Stop)
	return w
}

func waitForStatus(t *testing.T, store storage.Store, id string, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, found, err := store.Get(context.Background(), id)
		return err == nil && found && job.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, want)
}

func TestWorker_DispatchProcessesJobs(t *testing.T) {
	store := storage.NewMemoryStore()
	w := newTestWorker(t, store, 2, nil)
	w.Start(context.Background())

	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("job_%02d", i)
		seedJob(t, store, ids[i])
		require.NoError(t, w.Dispatch(context.Background(), ids[i]))
	}

	for _, id := range ids {
		waitForStatus(t, store, id, domain.StatusCompleted)
	}
}

func TestWorker_DispatchDoesNotBlockWhenFull(t *testing.T) {
	store := storage.NewMemoryStore()
	w := newTestWorker(t, store, 0, nil)
	seedJob(t, store, "job_late")

	done := make(chan error, 1)
	go func() { done <- w.Dispatch(context.Background(), "job_late") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}

	job := getJob(t, store, "job_late")
	assert.Equal(t, domain.StatusPending, job.Status)

	w.Start(context.Background())
	waitForStatus(t, store, "job_late", domain.StatusCompleted)
}

func TestWorker_DispatchAfterStop(t *testing.T) {
	w := newTestWorker(t, storage.NewMemoryStore(), 1, nil)
	w.Start(context.Background())
	w.Stop()
	w.Stop()

	err := w.Dispatch(context.Background(), "job_x")
	assert.True(t, errors.Is(err, ErrWorkerStopped))
}

func TestWorker_Consume(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(t, store, "job_queued")

	acker := &fakeAcker{}
	w := newTestWorker(t, store, 1, acker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	valid, err := json.Marshal(domain.TaskMessage{ReferenceID: "job_queued"})
	require.NoError(t, err)

	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("not json")}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte(`{"reference_id":""}`)}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: valid}
	close(deliveries)

	w.Consume(ctx, deliveries)

	waitForStatus(t, store, "job_queued", domain.StatusCompleted)
	require.Eventually(t, func() bool { return len(acker.snapshot()) == 3 }, 5*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []settlement{
		{tag: 1, requeue: false},
		{tag: 2, requeue: false},
		{tag: 3, ack: true},
	}, acker.snapshot())
}

func TestWorker_SettleRequeuesRetryableErrors(t *testing.T) {
	acker := &fakeAcker{}
	store := &failingStore{Store: storage.NewMemoryStore(), err: errors.New("database is locked")}
	w := newTestWorker(t, store, 1, acker)
	w.Start(context.Background())

	w.jobsChan <- &domain.TaskMessage{ReferenceID: "job_retry", DeliveryTag: 7}

	require.Eventually(t, func() bool { return len(acker.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, settlement{tag: 7, requeue: true}, acker.snapshot()[0])
}

func TestShouldRequeueJob(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable", domain.NewRetryableError(errors.New("db down")), true},
		{"wrapped retryable", fmt.Errorf("outer: %w", domain.NewRetryableError(errors.New("db down"))), true},
		{"permanent", errors.New("failed to record job result"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeueJob(tt.err))
		})
	}
}

type recordingPublisher struct {
	body        []byte
	contentType string
	err         error
}

func (p *recordingPublisher) PublishWithRetry(_ context.Context, body []byte, contentType string) error {
	p.body = body
	p.contentType = contentType
	return p.err
}

func TestQueuePublisher_Dispatch(t *testing.T) {
	pub := &recordingPublisher{}
	q := NewQueuePublisher(pub, testLogger())

	require.NoError(t, q.Dispatch(context.Background(), "job_abc"))
	assert.JSONEq(t, `{"reference_id":"job_abc"}`, string(pub.body))
	assert.Equal(t, "application/json", pub.contentType)

	pub.err = errors.New("channel closed")
	err := q.Dispatch(context.Background(), "job_abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish task message")
}
