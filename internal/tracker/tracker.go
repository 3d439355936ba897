// Package tracker follows a remote job to a terminal state and notifies
// observers of every status or progress change.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/storage"
)

var (
	// ErrDetached is reported by Err after Detach. The remote job is unaffected.
	ErrDetached = errors.New("tracker detached")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("tracker already started")

	errFeedClosed = errors.New("status feed closed before a terminal status")
)

// Observer receives a snapshot after every change.
type Observer func(domain.Job)

// Options configures a Tracker. All fields are optional.
type Options struct {
	// Initial resumes from a previously observed state.
	Initial *domain.Job
	// FirstSeq is the sequence number of the first appended event.
	FirstSeq int64

	Handles storage.JobHandleStore
	Events  storage.JobEventStore

	// OnChange runs after every applied change, before observers.
	OnChange func(prev, next domain.Job)

	Logger logging.Logger
	Clock  func() time.Time
}

// Tracker owns the local view of one remote job.
type Tracker struct {
	source Source
	opts   Options
	log    logging.Logger

	applyMu sync.Mutex // serializes Apply

	mu        sync.Mutex
	job       domain.Job
	seq       int64
	observers map[int]Observer
	nextObs   int
	started   bool
	finished  bool
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a tracker for jobID. It does not touch the network until Start.
func New(jobID string, kind domain.JobKind, source Source, opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	job := domain.Job{ID: jobID, Kind: kind, Status: domain.JobStatusQueued}
	if opts.Initial != nil {
		job = *opts.Initial
		job.ID = jobID
		job.Kind = kind
	}

	return &Tracker{
		source:    source,
		opts:      opts,
		log:       opts.Logger.With("job_id", jobID, "kind", kind),
		job:       job,
		seq:       opts.FirstSeq,
		observers: make(map[int]Observer),
		done:      make(chan struct{}),
	}
}

// Start subscribes to the status feed. It returns immediately.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	if t.finished {
		t.mu.Unlock()
		return ErrDetached
	}
	t.started = true
	if t.job.Status.IsTerminal() {
		t.mu.Unlock()
		t.finish(t.terminalErr(t.Snapshot()))
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	events, errs := t.source.Events(runCtx, t.job.ID)
	go t.run(runCtx, events, errs)
	return nil
}

func (t *Tracker) run(ctx context.Context, events <-chan jobs.StatusEvent, errs <-chan error) {
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			t.finish(ErrDetached)
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			job, _ := t.apply(ctx, ev)
			if job.Status.IsTerminal() {
				t.finish(t.terminalErr(job))
				return
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				t.fail(ctx, err)
				return
			}
		}
	}

	if ctx.Err() != nil {
		t.finish(ErrDetached)
		return
	}
	t.fail(ctx, errFeedClosed)
}

// fail moves a transport failure into FAILED.
func (t *Tracker) fail(ctx context.Context, cause error) {
	t.log.Error(ctx, "status feed failed", "error", cause)
	job, _ := t.apply(ctx, jobs.StatusEvent{Error: cause.Error()})
	t.finish(t.terminalErr(job))
}

func (t *Tracker) terminalErr(job domain.Job) error {
	if job.Status == domain.JobStatusFailed {
		return fmt.Errorf("job %s: %w: %s", job.ID, domain.ErrJobFailed, job.Error)
	}
	return nil
}

func (t *Tracker) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.err = err
	if t.cancel != nil {
		t.cancel()
	}
	close(t.done)
}

// Apply feeds one event through the state machine, persists and notifies
// on change. It returns the resulting snapshot and whether it changed.
func (t *Tracker) Apply(ev jobs.StatusEvent) (domain.Job, bool) {
	return t.apply(context.Background(), ev)
}

func (t *Tracker) apply(ctx context.Context, ev jobs.StatusEvent) (domain.Job, bool) {
	t.applyMu.Lock()
	defer t.applyMu.Unlock()

	t.mu.Lock()
	prev := t.job
	next, changed := Transition(prev, ev)
	if !changed {
		t.job.LastLogOffset = next.LastLogOffset
		snap := t.job
		t.mu.Unlock()
		return snap, false
	}
	next.UpdatedAt = t.opts.Clock()
	t.job = next
	seq := t.seq
	t.seq++
	observers := make([]Observer, 0, len(t.observers))
	for _, id := range sortedKeys(t.observers) {
		observers = append(observers, t.observers[id])
	}
	t.mu.Unlock()

	if prev.Status != next.Status {
		t.log.Info(ctx, "job status changed",
			"from", prev.Status,
			"to", next.Status,
			"progress", next.Progress,
		)
	}

	t.persist(ctx, seq, next, lastMessage(ev))

	if t.opts.OnChange != nil {
		t.opts.OnChange(prev, next)
	}
	for _, fn := range observers {
		if t.detached() {
			break
		}
		fn(next)
	}
	return next, true
}

func (t *Tracker) detached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return errors.Is(t.err, ErrDetached)
}

// persist failures are logged; local tracking continues.
func (t *Tracker) persist(ctx context.Context, seq int64, job domain.Job, msg string) {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	ts := job.UpdatedAt.UnixMilli()

	if t.opts.Events != nil {
		if job.Error != "" && msg == "" {
			msg = job.Error
		}
		err := t.opts.Events.Append(ctx, &domain.JobEvent{
			JobID:      job.ID,
			Seq:        seq,
			Status:     job.Status,
			Progress:   job.Progress,
			Message:    msg,
			ObservedAt: ts,
		})
		if err != nil {
			t.log.Warn(ctx, "append job event failed", "seq", seq, "error", err)
		}
	}
	if t.opts.Handles != nil {
		if err := t.opts.Handles.UpdateStatus(ctx, job.ID, job.Status, job.Progress, ts); err != nil {
			t.log.Warn(ctx, "update job handle failed", "error", err)
		}
	}
}

// Subscribe registers fn for every later change and returns a func that
// removes it.
func (t *Tracker) Subscribe(fn Observer) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			t.mu.Unlock()
		})
	}
}

// Snapshot returns the current job state.
func (t *Tracker) Snapshot() domain.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.job
	if job.QueuePosition != nil {
		pos := *job.QueuePosition
		job.QueuePosition = &pos
	}
	return job
}

// Done is closed once the job is terminal or the tracker is detached.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Err returns nil for DONE, an error wrapping domain.ErrJobFailed for
// FAILED, ErrDetached after Detach. It is nil while the tracker runs.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until Done or ctx ends and returns the final snapshot.
func (t *Tracker) Wait(ctx context.Context) (domain.Job, error) {
	select {
	case <-t.done:
		return t.Snapshot(), t.Err()
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	}
}

// Detach stops local observation. Observers are dropped and the remote job
// keeps running. Delivery checks for detachment before each observer, so at
// most one callback that was already being delivered can run after Detach
// returns.
func (t *Tracker) Detach() {
	t.mu.Lock()
	t.observers = make(map[int]Observer)
	t.mu.Unlock()
	t.finish(ErrDetached)
}

func lastMessage(ev jobs.StatusEvent) string {
	if n := len(ev.Logs); n > 0 {
		return ev.Logs[n-1].Message
	}
	return ""
}

func sortedKeys(m map[int]Observer) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
