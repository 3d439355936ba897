package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/storage"
)

// JobEventStore implements storage.JobEventStore using ClickHouse.
// MergeTree does not enforce keys, so Append checks for an existing row first.
type JobEventStore struct {
	conn *Conn
}

// NewJobEventStore creates a new JobEventStore.
func NewJobEventStore(conn *Conn) *JobEventStore {
	return &JobEventStore{conn: conn}
}

var _ storage.JobEventStore = (*JobEventStore)(nil)

// Append adds a new event. Returns ErrDuplicateKey if (job_id, seq) exists.
func (s *JobEventStore) Append(ctx context.Context, e *domain.JobEvent) error {
	if e == nil || e.JobID == "" || !e.Status.IsValid() || e.Progress < 0 || e.Progress > 100 {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, e.JobID, e.Seq)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO job_events (job_id, seq, status, progress, message, observed_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	if err := batch.Append(
		e.JobID, e.Seq, string(e.Status), uint8(e.Progress), e.Message, uint64(e.ObservedAt),
	); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByJobID retrieves all events of a job, ordered by seq ASC.
func (s *JobEventStore) GetByJobID(ctx context.Context, jobID string) ([]*domain.JobEvent, error) {
	query := `
		SELECT job_id, seq, status, progress, message, observed_at
		FROM job_events
		WHERE job_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.conn.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query by job id: %w", err)
	}
	defer rows.Close()

	return scanJobEvents(rows)
}

func (s *JobEventStore) exists(ctx context.Context, jobID string, seq int64) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count(*) FROM job_events WHERE job_id = ? AND seq = ?`, jobID, seq)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanJobEvents(rows driver.Rows) ([]*domain.JobEvent, error) {
	var events []*domain.JobEvent
	for rows.Next() {
		var (
			e          domain.JobEvent
			status     string
			progress   uint8
			observedAt uint64
		)
		if err := rows.Scan(&e.JobID, &e.Seq, &status, &progress, &e.Message, &observedAt); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		e.Status = domain.JobStatus(status)
		e.Progress = int(progress)
		e.ObservedAt = int64(observedAt)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job events: %w", err)
	}
	return events, nil
}
