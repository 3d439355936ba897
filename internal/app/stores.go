package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imaigine-lab/internal/config"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/observability"
	"imaigine-lab/internal/storage"
	chstore "imaigine-lab/internal/storage/clickhouse"
	"imaigine-lab/internal/storage/memory"
	"imaigine-lab/internal/storage/migrations"
	pgstore "imaigine-lab/internal/storage/postgres"
)

// Stores holds the job persistence.
type Stores struct {
	Handles storage.JobHandleStore
	Events  storage.JobEventStore
}

// OpenStores connects the configured backend. External stores are migrated
// on open and report query timings to m.
func OpenStores(ctx context.Context, cfg config.StorageConfig, m *observability.Metrics) (Stores, func(), error) {
	if cfg.Backend != config.BackendExternal {
		return Stores{
			Handles: memory.NewJobHandleStore(),
			Events:  memory.NewJobEventStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.PoolOptions{MaxConns: cfg.MaxConns})
	if err != nil {
		return Stores{}, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return Stores{}, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return Stores{}, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := Stores{
		Handles: &observedHandles{next: pgstore.NewJobHandleStore(pool), m: m, db: "postgres"},
		Events:  &observedEvents{next: chstore.NewJobEventStore(conn), m: m, db: "clickhouse"},
	}
	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// observe records one query. Lookups of absent rows are not errors.
func observe(m *observability.Metrics, db, op string, start time.Time, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	m.RecordDBQuery(db, op, time.Since(start), err)
}

type observedHandles struct {
	next storage.JobHandleStore
	m    *observability.Metrics
	db   string
}

var _ storage.JobHandleStore = (*observedHandles)(nil)

func (s *observedHandles) Insert(ctx context.Context, h *domain.JobHandle) error {
	start := time.Now()
	err := s.next.Insert(ctx, h)
	observe(s.m, s.db, "insert_handle", start, err)
	return err
}

func (s *observedHandles) GetByID(ctx context.Context, jobID string) (*domain.JobHandle, error) {
	start := time.Now()
	h, err := s.next.GetByID(ctx, jobID)
	observe(s.m, s.db, "get_handle", start, err)
	return h, err
}

func (s *observedHandles) ListByOwner(ctx context.Context, owner string) ([]*domain.JobHandle, error) {
	start := time.Now()
	hs, err := s.next.ListByOwner(ctx, owner)
	observe(s.m, s.db, "list_handles_by_owner", start, err)
	return hs, err
}

func (s *observedHandles) ListActive(ctx context.Context) ([]*domain.JobHandle, error) {
	start := time.Now()
	hs, err := s.next.ListActive(ctx)
	observe(s.m, s.db, "list_active_handles", start, err)
	return hs, err
}

func (s *observedHandles) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, progress int, updatedAt int64) error {
	start := time.Now()
	err := s.next.UpdateStatus(ctx, jobID, status, progress, updatedAt)
	observe(s.m, s.db, "update_status", start, err)
	return err
}

func (s *observedHandles) MarkMinted(ctx context.Context, jobID, digest string, updatedAt int64) error {
	start := time.Now()
	err := s.next.MarkMinted(ctx, jobID, digest, updatedAt)
	observe(s.m, s.db, "mark_minted", start, err)
	return err
}

type observedEvents struct {
	next storage.JobEventStore
	m    *observability.Metrics
	db   string
}

var _ storage.JobEventStore = (*observedEvents)(nil)

func (s *observedEvents) Append(ctx context.Context, e *domain.JobEvent) error {
	start := time.Now()
	err := s.next.Append(ctx, e)
	observe(s.m, s.db, "append_event", start, err)
	return err
}

func (s *observedEvents) GetByJobID(ctx context.Context, jobID string) ([]*domain.JobEvent, error) {
	start := time.Now()
	evs, err := s.next.GetByJobID(ctx, jobID)
	observe(s.m, s.db, "get_events", start, err)
	return evs, err
}
