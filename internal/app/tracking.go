package app

import (
	"context"
	"sync"
	"time"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/flow"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/storage"
	"imaigine-lab/internal/tracker"
)

// DefaultRescanInterval is how often Run looks for newly persisted jobs.
const DefaultRescanInterval = 30 * time.Second

// Tracking follows every persisted job that has not reached a terminal
// status. Handles written by another process are picked up on the next scan.
type Tracking struct {
	flow    *flow.Service
	handles storage.JobHandleStore
	log     logging.Logger

	mu       sync.Mutex
	trackers map[string]*tracker.Tracker
}

// NewTracking creates a Tracking.
func NewTracking(f *flow.Service, handles storage.JobHandleStore, log logging.Logger) *Tracking {
	if log == nil {
		log = logging.Default()
	}
	return &Tracking{
		flow:     f,
		handles:  handles,
		log:      log.With("component", "tracking"),
		trackers: make(map[string]*tracker.Tracker),
	}
}

// Resume starts a tracker for each active handle not already followed and
// returns how many were started. A handle that fails to start is logged
// and retried on the next scan.
func (t *Tracking) Resume(ctx context.Context) (int, error) {
	active, err := t.handles.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, h := range active {
		t.mu.Lock()
		_, followed := t.trackers[h.ID]
		t.mu.Unlock()
		if followed {
			continue
		}

		tr, err := t.flow.Track(ctx, *h)
		if err != nil {
			t.log.Warn(ctx, "resume tracking failed", "job_id", h.ID, "error", err)
			continue
		}
		t.mu.Lock()
		t.trackers[h.ID] = tr
		t.mu.Unlock()
		started++

		go t.forget(ctx, h.ID, tr)
	}
	if started > 0 {
		t.log.Info(ctx, "tracking resumed", "started", started, "active", len(active))
	}
	return started, nil
}

// forget drops a tracker once it finishes. Its final state is in the store.
func (t *Tracking) forget(ctx context.Context, id string, tr *tracker.Tracker) {
	<-tr.Done()
	job := tr.Snapshot()
	t.log.Info(ctx, "job finished", "job_id", id, "status", job.Status, "error", tr.Err())

	t.mu.Lock()
	delete(t.trackers, id)
	t.mu.Unlock()
}

// Run resumes immediately and then every interval until ctx ends.
func (t *Tracking) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRescanInterval
	}
	if _, err := t.Resume(ctx); err != nil {
		t.log.Error(ctx, "scan active jobs failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Resume(ctx); err != nil {
				t.log.Error(ctx, "scan active jobs failed", "error", err)
			}
		}
	}
}

// Snapshot returns the live state of a followed job.
func (t *Tracking) Snapshot(id string) (domain.Job, bool) {
	t.mu.Lock()
	tr, ok := t.trackers[id]
	t.mu.Unlock()
	if !ok {
		return domain.Job{}, false
	}
	return tr.Snapshot(), true
}

// Active returns the number of followed jobs.
func (t *Tracking) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.trackers)
}
