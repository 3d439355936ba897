package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/storage"
)

// JobHandleStore implements storage.JobHandleStore using PostgreSQL.
type JobHandleStore struct {
	pool *Pool
}

// NewJobHandleStore creates a new JobHandleStore.
func NewJobHandleStore(pool *Pool) *JobHandleStore {
	return &JobHandleStore{pool: pool}
}

var _ storage.JobHandleStore = (*JobHandleStore)(nil)

const handleColumns = `job_id, kind, owner, app, model_type, trigger_word, model_id, prompt,
	status, progress, mint_digest, created_at, updated_at`

// Insert adds a new handle. Returns ErrDuplicateKey if job_id exists.
func (s *JobHandleStore) Insert(ctx context.Context, h *domain.JobHandle) error {
	if err := storage.ValidateHandle(h); err != nil {
		return err
	}

	var modelType *string
	if h.ModelType != nil {
		mt := string(*h.ModelType)
		modelType = &mt
	}

	query := `
		INSERT INTO job_handles (` + handleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.pool.Exec(ctx, query,
		h.ID,
		string(h.Kind),
		h.Owner,
		h.App,
		modelType,
		h.TriggerWord,
		h.ModelID,
		h.Prompt,
		string(h.Status),
		h.Progress,
		h.MintDigest,
		h.CreatedAt,
		h.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert job handle: %w", err)
	}
	return nil
}

// GetByID retrieves a handle by job id. Returns ErrNotFound if not exists.
func (s *JobHandleStore) GetByID(ctx context.Context, jobID string) (*domain.JobHandle, error) {
	query := `SELECT ` + handleColumns + ` FROM job_handles WHERE job_id = $1`

	h, err := scanHandle(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get job handle: %w", err)
	}
	return h, nil
}

// ListByOwner retrieves all handles paid by owner, ordered by created_at ASC.
func (s *JobHandleStore) ListByOwner(ctx context.Context, owner string) ([]*domain.JobHandle, error) {
	query := `
		SELECT ` + handleColumns + `
		FROM job_handles
		WHERE owner = $1
		ORDER BY created_at ASC, job_id ASC
	`
	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list job handles by owner: %w", err)
	}
	defer rows.Close()

	return scanHandles(rows)
}

// ListActive retrieves all non-terminal handles, ordered by created_at ASC.
func (s *JobHandleStore) ListActive(ctx context.Context) ([]*domain.JobHandle, error) {
	query := `
		SELECT ` + handleColumns + `
		FROM job_handles
		WHERE status NOT IN ('DONE', 'FAILED')
		ORDER BY created_at ASC, job_id ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active job handles: %w", err)
	}
	defer rows.Close()

	return scanHandles(rows)
}

// UpdateStatus mirrors a tracker transition. Terminal rows are not touched.
func (s *JobHandleStore) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, progress int, updatedAt int64) error {
	if !status.IsValid() || progress < 0 || progress > 100 {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE job_handles
		SET status = $2, progress = GREATEST(progress, $3), updated_at = $4
		WHERE job_id = $1 AND status NOT IN ('DONE', 'FAILED')
	`
	tag, err := s.pool.Exec(ctx, query, jobID, string(status), progress, updatedAt)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.ensureExists(ctx, jobID)
	}
	return nil
}

// MarkMinted records the mint digest once via a conditional update.
func (s *JobHandleStore) MarkMinted(ctx context.Context, jobID, digest string, updatedAt int64) error {
	if digest == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE job_handles
		SET mint_digest = $2, updated_at = $3
		WHERE job_id = $1 AND mint_digest IS NULL
	`
	tag, err := s.pool.Exec(ctx, query, jobID, digest, updatedAt)
	if err != nil {
		return fmt.Errorf("mark job minted: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := s.ensureExists(ctx, jobID); err != nil {
		return err
	}
	return storage.ErrAlreadyMinted
}

func (s *JobHandleStore) ensureExists(ctx context.Context, jobID string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM job_handles WHERE job_id = $1`, jobID).Scan(&one)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("check job handle: %w", err)
	}
	return nil
}

func scanHandle(row pgx.Row) (*domain.JobHandle, error) {
	var h domain.JobHandle
	var kind, status string
	var modelType *string

	err := row.Scan(
		&h.ID,
		&kind,
		&h.Owner,
		&h.App,
		&modelType,
		&h.TriggerWord,
		&h.ModelID,
		&h.Prompt,
		&status,
		&h.Progress,
		&h.MintDigest,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.Kind = domain.JobKind(kind)
	h.Status = domain.JobStatus(status)
	if modelType != nil {
		mt := domain.ModelType(*modelType)
		h.ModelType = &mt
	}
	return &h, nil
}

func scanHandles(rows pgx.Rows) ([]*domain.JobHandle, error) {
	var handles []*domain.JobHandle
	for rows.Next() {
		h, err := scanHandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job handle row: %w", err)
		}
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job handle rows: %w", err)
	}
	return handles, nil
}
