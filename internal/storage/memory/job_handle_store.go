package memory

import (
	"context"
	"sort"
	"sync"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/storage"
)

// JobHandleStore is an in-memory implementation of storage.JobHandleStore.
type JobHandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.JobHandle // keyed by job id
}

// NewJobHandleStore creates a new in-memory job handle store.
func NewJobHandleStore() *JobHandleStore {
	return &JobHandleStore{
		data: make(map[string]*domain.JobHandle),
	}
}

var _ storage.JobHandleStore = (*JobHandleStore)(nil)

// Insert adds a new handle. Returns ErrDuplicateKey if job_id exists.
func (s *JobHandleStore) Insert(_ context.Context, h *domain.JobHandle) error {
	if err := storage.ValidateHandle(h); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[h.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[h.ID] = copyHandle(h)
	return nil
}

// GetByID retrieves a handle by job id. Returns ErrNotFound if not exists.
func (s *JobHandleStore) GetByID(_ context.Context, jobID string) (*domain.JobHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.data[jobID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyHandle(h), nil
}

// ListByOwner retrieves all handles paid by owner, ordered by created_at ASC.
func (s *JobHandleStore) ListByOwner(_ context.Context, owner string) ([]*domain.JobHandle, error) {
	return s.filter(func(h *domain.JobHandle) bool { return h.Owner == owner }), nil
}

// ListActive retrieves all non-terminal handles, ordered by created_at ASC.
func (s *JobHandleStore) ListActive(_ context.Context) ([]*domain.JobHandle, error) {
	return s.filter(func(h *domain.JobHandle) bool { return !h.Status.IsTerminal() }), nil
}

// UpdateStatus mirrors a tracker transition.
func (s *JobHandleStore) UpdateStatus(_ context.Context, jobID string, status domain.JobStatus, progress int, updatedAt int64) error {
	if !status.IsValid() || progress < 0 || progress > 100 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.data[jobID]
	if !exists {
		return storage.ErrNotFound
	}
	if h.Status.IsTerminal() {
		return nil
	}
	h.Status = status
	if progress > h.Progress {
		h.Progress = progress
	}
	h.UpdatedAt = updatedAt
	return nil
}

// MarkMinted records the mint digest once.
func (s *JobHandleStore) MarkMinted(_ context.Context, jobID, digest string, updatedAt int64) error {
	if digest == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.data[jobID]
	if !exists {
		return storage.ErrNotFound
	}
	if h.MintDigest != nil {
		return storage.ErrAlreadyMinted
	}
	h.MintDigest = &digest
	h.UpdatedAt = updatedAt
	return nil
}

func (s *JobHandleStore) filter(keep func(*domain.JobHandle) bool) []*domain.JobHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.JobHandle
	for _, h := range s.data {
		if keep(h) {
			result = append(result, copyHandle(h))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func copyHandle(h *domain.JobHandle) *domain.JobHandle {
	cp := *h
	if h.ModelType != nil {
		mt := *h.ModelType
		cp.ModelType = &mt
	}
	if h.MintDigest != nil {
		d := *h.MintDigest
		cp.MintDigest = &d
	}
	return &cp
}
