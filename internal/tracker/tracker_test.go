package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/storage/memory"
)

// chanSource replays events and then an optional error.
type chanSource struct {
	events []jobs.StatusEvent
	err    error
	hold   bool // keep the feed open after replay
}

func (s *chanSource) Events(ctx context.Context, _ string) (<-chan jobs.StatusEvent, <-chan error) {
	out := make(chan jobs.StatusEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, ev := range s.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if s.err != nil {
			errs <- s.err
			return
		}
		if s.hold {
			<-ctx.Done()
		}
	}()
	return out, errs
}

func testOptions() Options {
	return Options{
		Logger: logging.Discard(),
		Clock:  func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}
}

func waitDone(t *testing.T, tr *Tracker) {
	t.Helper()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tracker did not finish")
	}
}

func TestTracker_ProgressThenDone(t *testing.T) {
	src := &chanSource{events: []jobs.StatusEvent{
		{Status: jobs.StatusInProgress, Logs: logs("10%")},
		{Status: jobs.StatusInProgress, Logs: logs("5%")},
		{Status: jobs.StatusCompleted},
	}}

	tr := New("req-1", domain.JobKindTraining, src, testOptions())
	var mu sync.Mutex
	var first, second []int
	tr.Subscribe(func(j domain.Job) {
		mu.Lock()
		first = append(first, j.Progress)
		mu.Unlock()
	})
	tr.Subscribe(func(j domain.Job) {
		mu.Lock()
		second = append(second, j.Progress)
		mu.Unlock()
	})

	require.NoError(t, tr.Start(context.Background()))
	waitDone(t, tr)

	require.NoError(t, tr.Err())
	snap := tr.Snapshot()
	assert.Equal(t, domain.JobStatusDone, snap.Status)
	assert.Equal(t, 100, snap.Progress)

	mu.Lock()
	defer mu.Unlock()
	// the "5%" event changes nothing, so observers only see real changes
	assert.Equal(t, []int{10, 100}, first)
	assert.Equal(t, first, second)
}

func TestTracker_ApplyScenario(t *testing.T) {
	tr := New("req-1", domain.JobKindTraining, &chanSource{}, testOptions())

	var seen []int
	for _, ev := range []jobs.StatusEvent{
		{Status: jobs.StatusInProgress, Logs: logs("10%")},
		{Status: jobs.StatusInProgress, Logs: logs("5%")},
		{Status: jobs.StatusInProgress, Logs: logs("40%")},
		{Status: jobs.StatusCompleted},
	} {
		job, _ := tr.Apply(ev)
		seen = append(seen, job.Progress)
	}
	assert.Equal(t, []int{10, 10, 40, 100}, seen)
	assert.Equal(t, domain.JobStatusDone, tr.Snapshot().Status)
}

func TestTracker_TransportErrorFails(t *testing.T) {
	src := &chanSource{
		events: []jobs.StatusEvent{{Status: jobs.StatusInProgress, Logs: logs("30%")}},
		err:    errors.New("connection reset"),
	}
	tr := New("req-2", domain.JobKindGeneration, src, testOptions())
	require.NoError(t, tr.Start(context.Background()))
	waitDone(t, tr)

	assert.ErrorIs(t, tr.Err(), domain.ErrJobFailed)
	snap := tr.Snapshot()
	assert.Equal(t, domain.JobStatusFailed, snap.Status)
	assert.Equal(t, 30, snap.Progress)
	assert.Contains(t, snap.Error, "connection reset")
}

func TestTracker_ExplicitFailure(t *testing.T) {
	src := &chanSource{events: []jobs.StatusEvent{{Error: "invalid images"}}}
	tr := New("req-3", domain.JobKindTraining, src, testOptions())
	require.NoError(t, tr.Start(context.Background()))
	waitDone(t, tr)

	assert.ErrorIs(t, tr.Err(), domain.ErrJobFailed)
	assert.Equal(t, "invalid images", tr.Snapshot().Error)
}

func TestTracker_FeedClosedEarlyFails(t *testing.T) {
	src := &chanSource{events: []jobs.StatusEvent{{Status: jobs.StatusInQueue}}}
	tr := New("req-4", domain.JobKindTraining, src, testOptions())
	require.NoError(t, tr.Start(context.Background()))
	waitDone(t, tr)

	assert.ErrorIs(t, tr.Err(), domain.ErrJobFailed)
}

func TestTracker_Detach(t *testing.T) {
	src := &chanSource{events: []jobs.StatusEvent{{Status: jobs.StatusInProgress, Logs: logs("50%")}}, hold: true}
	tr := New("req-5", domain.JobKindTraining, src, testOptions())

	reached := make(chan struct{})
	var once sync.Once
	tr.Subscribe(func(j domain.Job) {
		if j.Progress == 50 {
			once.Do(func() { close(reached) })
		}
	})
	require.NoError(t, tr.Start(context.Background()))
	<-reached

	tr.Detach()
	waitDone(t, tr)
	assert.ErrorIs(t, tr.Err(), ErrDetached)
	assert.Equal(t, domain.JobStatusInProgress, tr.Snapshot().Status)

	tr.Detach()
	assert.ErrorIs(t, tr.Start(context.Background()), ErrAlreadyStarted)
}

func TestTracker_NoDeliveryAfterDetach(t *testing.T) {
	tr := New("req-8", domain.JobKindTraining, &chanSource{}, testOptions())

	var first, second []int
	tr.Subscribe(func(j domain.Job) {
		first = append(first, j.Progress)
		tr.Detach()
	})
	tr.Subscribe(func(j domain.Job) { second = append(second, j.Progress) })

	job, changed := tr.Apply(jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs("30%")})
	require.True(t, changed)
	assert.Equal(t, 30, job.Progress)
	assert.Equal(t, []int{30}, first)
	assert.Empty(t, second)

	tr.Apply(jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs("60%")})
	assert.Equal(t, []int{30}, first)
	assert.Empty(t, second)
	assert.ErrorIs(t, tr.Err(), ErrDetached)
}

func TestTracker_ContextCancelDetaches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := New("req-6", domain.JobKindTraining, &chanSource{hold: true}, testOptions())
	require.NoError(t, tr.Start(ctx))
	cancel()
	waitDone(t, tr)
	assert.ErrorIs(t, tr.Err(), ErrDetached)
}

func TestTracker_Unsubscribe(t *testing.T) {
	tr := New("req-7", domain.JobKindTraining, &chanSource{}, testOptions())
	calls := 0
	unsubscribe := tr.Subscribe(func(domain.Job) { calls++ })

	tr.Apply(jobs.StatusEvent{Status: jobs.StatusInProgress})
	unsubscribe()
	unsubscribe()
	tr.Apply(jobs.StatusEvent{Status: jobs.StatusCompleted})
	assert.Equal(t, 1, calls)
}

func TestTracker_PersistsTransitions(t *testing.T) {
	ctx := context.Background()
	handles := memory.NewJobHandleStore()
	events := memory.NewJobEventStore()
	require.NoError(t, handles.Insert(ctx, &domain.JobHandle{
		ID: "req-8", Kind: domain.JobKindTraining, Owner: "0xa", Status: domain.JobStatusQueued,
	}))

	opts := testOptions()
	opts.Handles = handles
	opts.Events = events
	var transitions []domain.JobStatus
	opts.OnChange = func(prev, next domain.Job) {
		if prev.Status != next.Status {
			transitions = append(transitions, next.Status)
		}
	}

	tr := New("req-8", domain.JobKindTraining, &chanSource{}, opts)
	tr.Apply(jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs("25%")})
	tr.Apply(jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs("25%", "70%")})
	tr.Apply(jobs.StatusEvent{Status: jobs.StatusCompleted})

	stored, err := events.GetByJobID(ctx, "req-8")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "70%", stored[1].Message)
	assert.Equal(t, domain.JobStatusDone, stored[2].Status)
	assert.Equal(t, int64(1_700_000_000_000), stored[2].ObservedAt)

	h, err := handles.GetByID(ctx, "req-8")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, h.Status)
	assert.Equal(t, 100, h.Progress)

	assert.Equal(t, []domain.JobStatus{domain.JobStatusInProgress, domain.JobStatusDone}, transitions)
}

func TestTracker_ResumeFromInitial(t *testing.T) {
	opts := testOptions()
	opts.Initial = &domain.Job{Status: domain.JobStatusInProgress, Progress: 60}
	opts.FirstSeq = 4
	opts.Events = memory.NewJobEventStore()

	tr := New("req-9", domain.JobKindTraining, &chanSource{}, opts)
	job, changed := tr.Apply(jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs("30%")})
	assert.False(t, changed)
	assert.Equal(t, 60, job.Progress)

	tr.Apply(jobs.StatusEvent{Status: jobs.StatusCompleted})
	stored, _ := opts.Events.GetByJobID(context.Background(), "req-9")
	require.Len(t, stored, 1)
	assert.Equal(t, int64(4), stored[0].Seq)
}

func TestTracker_StartOnTerminalFinishesImmediately(t *testing.T) {
	opts := testOptions()
	opts.Initial = &domain.Job{Status: domain.JobStatusDone, Progress: 100}
	tr := New("req-10", domain.JobKindTraining, &chanSource{hold: true}, opts)
	require.NoError(t, tr.Start(context.Background()))
	waitDone(t, tr)
	assert.NoError(t, tr.Err())
}

type flakyStatus struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	sequence  []jobs.StatusEvent
}

func (f *flakyStatus) Status(context.Context, string, string, bool) (jobs.StatusEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return jobs.StatusEvent{}, errors.New("timeout")
	}
	i := f.calls - f.failFirst - 1
	if i >= len(f.sequence) {
		i = len(f.sequence) - 1
	}
	return f.sequence[i], nil
}

func TestPollingSource_RetriesTransparently(t *testing.T) {
	client := &flakyStatus{failFirst: 2, sequence: []jobs.StatusEvent{
		{Status: jobs.StatusInProgress, Logs: logs("40%")},
		{Status: jobs.StatusCompleted},
	}}
	src := NewPollingSource(client, jobs.TrainingApp, PollingOptions{
		Interval:    time.Millisecond,
		MaxFailures: 3,
		Logger:      logging.Discard(),
	})

	tr := New("req-11", domain.JobKindTraining, src, testOptions())
	require.NoError(t, tr.Start(context.Background()))
	waitDone(t, tr)

	require.NoError(t, tr.Err())
	assert.Equal(t, 100, tr.Snapshot().Progress)
}

func TestPollingSource_GivesUpAfterMaxFailures(t *testing.T) {
	client := &flakyStatus{failFirst: 100, sequence: []jobs.StatusEvent{{Status: jobs.StatusCompleted}}}
	src := NewPollingSource(client, jobs.TrainingApp, PollingOptions{
		Interval:    time.Millisecond,
		MaxFailures: 3,
		Logger:      logging.Discard(),
	})

	events, errs := src.Events(context.Background(), "req-12")
	for range events {
		t.Fatal("unexpected event")
	}
	assert.Error(t, <-errs)
	assert.Equal(t, 3, client.calls)
}

func TestStreamSource_WithQueueClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"status\":\"IN_QUEUE\",\"queue_position\":1}\n\n")
		fmt.Fprint(w, "data: {\"status\":\"IN_PROGRESS\",\"logs\":[{\"message\":\"80%\"}]}\n\n")
		fmt.Fprint(w, "data: {\"status\":\"COMPLETED\"}\n\n")
	}))
	defer server.Close()

	client := jobs.NewClient("k", jobs.WithBaseURL(server.URL))
	tr := New("req-13", domain.JobKindGeneration, NewStreamSource(client, jobs.GenerationApp), testOptions())
	require.NoError(t, tr.Start(context.Background()))
	waitDone(t, tr)

	require.NoError(t, tr.Err())
	assert.Equal(t, domain.JobStatusDone, tr.Snapshot().Status)
}
