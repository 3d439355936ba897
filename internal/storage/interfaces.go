package storage

import (
	"context"

	"imaigine-lab/internal/domain"
)

// JobHandleStore provides access to job_handles storage.
type JobHandleStore interface {
	// Insert adds a new handle. Returns ErrDuplicateKey if job_id exists.
	Insert(ctx context.Context, h *domain.JobHandle) error

	// GetByID retrieves a handle by job id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, jobID string) (*domain.JobHandle, error)

	// ListByOwner retrieves all handles paid by owner, ordered by created_at ASC.
	ListByOwner(ctx context.Context, owner string) ([]*domain.JobHandle, error)

	// ListActive retrieves all handles not yet in a terminal status, ordered by created_at ASC.
	ListActive(ctx context.Context) ([]*domain.JobHandle, error)

	// UpdateStatus mirrors a tracker transition. Progress never decreases and a
	// terminal handle is left unchanged. Returns ErrNotFound if not exists.
	UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, progress int, updatedAt int64) error

	// MarkMinted records the mint transaction digest once.
	// Returns ErrAlreadyMinted if a digest is already set, ErrNotFound if not exists.
	MarkMinted(ctx context.Context, jobID, digest string, updatedAt int64) error
}

// JobEventStore provides access to job_events storage. Append-only.
type JobEventStore interface {
	// Append adds a new event. Returns ErrDuplicateKey if (job_id, seq) exists.
	Append(ctx context.Context, e *domain.JobEvent) error

	// GetByJobID retrieves all events of a job, ordered by seq ASC.
	GetByJobID(ctx context.Context, jobID string) ([]*domain.JobEvent, error)
}

// ValidateHandle checks the fields every store requires.
func ValidateHandle(h *domain.JobHandle) error {
	if h == nil || h.ID == "" || h.Owner == "" || !h.Kind.IsValid() || !h.Status.IsValid() {
		return ErrInvalidInput
	}
	if h.Progress < 0 || h.Progress > 100 {
		return ErrInvalidInput
	}
	return nil
}
