package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/face-swap-service/internal/domain"
)

// MemoryStore keeps jobs in a process-local map. Contents are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ReferenceID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrJobExists, job.ReferenceID)
	}
	s.jobs[job.ReferenceID] = job.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, referenceID string, patch domain.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[referenceID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, referenceID)
	}
	if err := checkPatch(job.Status, patch); err != nil {
		return err
	}

	patch.Apply(job, s.now())
	return nil
}

func (s *MemoryStore) Get(_ context.Context, referenceID string) (*domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[referenceID]
	if !ok {
		return nil, false, nil
	}
	return job.Clone(), true, nil
}

// Len returns the number of stored jobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) ListPending(_ context.Context) ([]string, error) {
	s.mu.RLock()
	pending := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.Status == domain.StatusPending {
			pending = append(pending, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ReferenceID < pending[j].ReferenceID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	ids := make([]string, len(pending))
	for i, job := range pending {
		ids[i] = job.ReferenceID
	}
	return ids, nil
}
