package storage

import (
	"context"

	"github.com/cuongbtq/face-swap-service/internal/domain"
)

// Store is the keyed registry of face-swap jobs.
//
// Implementations must be safe for concurrent use. Update applies a patch
// atomically: a reader sees either none or all of its fields.
type Store interface {
	// Create inserts a new job. Returns domain.ErrJobExists if the id is taken.
	Create(ctx context.Context, job *domain.Job) error

	// Update merges patch into an existing job. Returns domain.ErrJobNotFound
	// if the id was never created and domain.ErrInvalidTransition if the patch
	// would move the status anywhere but forward, or carries result or error
	// fields outside the transition into completed or failed.
	Update(ctx context.Context, referenceID string, patch domain.JobPatch) error

	// Get returns a copy of the job. found is false for unknown ids; err is
	// reserved for backend failures.
	Get(ctx context.Context, referenceID string) (job *domain.Job, found bool, err error)

	// ListPending returns the ids of jobs still waiting for a worker, oldest first.
	ListPending(ctx context.Context) ([]string, error)
}

// checkPatch enforces the lifecycle on a patch: the status only moves
// forward, result fields arrive with completed and error arrives with failed.
func checkPatch(current domain.Status, patch domain.JobPatch) error {
	if patch.Status == nil {
		if current.IsTerminal() {
			return domain.ErrInvalidTransition
		}
		if patch.ResultImageURL != nil || patch.ProcessingMS != nil || patch.Error != nil {
			return domain.ErrInvalidTransition
		}
		return nil
	}

	next := *patch.Status
	if (patch.ResultImageURL != nil || patch.ProcessingMS != nil) && next != domain.StatusCompleted {
		return domain.ErrInvalidTransition
	}
	if patch.Error != nil && next != domain.StatusFailed {
		return domain.ErrInvalidTransition
	}
	return domain.ValidateTransition(current, next)
}
