package memory

import (
	"context"
	"sort"
	"sync"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/storage"
)

type eventKey struct {
	jobID string
	seq   int64
}

// JobEventStore is an in-memory implementation of storage.JobEventStore.
type JobEventStore struct {
	mu   sync.RWMutex
	data map[eventKey]*domain.JobEvent
}

// NewJobEventStore creates a new in-memory job event store.
func NewJobEventStore() *JobEventStore {
	return &JobEventStore{
		data: make(map[eventKey]*domain.JobEvent),
	}
}

var _ storage.JobEventStore = (*JobEventStore)(nil)

// Append adds a new event. Returns ErrDuplicateKey if (job_id, seq) exists.
func (s *JobEventStore) Append(_ context.Context, e *domain.JobEvent) error {
	if e == nil || e.JobID == "" || !e.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := eventKey{e.JobID, e.Seq}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *e
	s.data[k] = &cp
	return nil
}

// GetByJobID retrieves all events of a job, ordered by seq ASC.
func (s *JobEventStore) GetByJobID(_ context.Context, jobID string) ([]*domain.JobEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.JobEvent
	for k, e := range s.data {
		if k.jobID == jobID {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}
