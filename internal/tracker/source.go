package tracker

import (
	"context"
	"fmt"
	"time"

	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/logging"
)

// Source is a status feed keyed by job id. The event channel is closed
// when the feed ends; at most one error is sent before that.
type Source interface {
	Events(ctx context.Context, jobID string) (<-chan jobs.StatusEvent, <-chan error)
}

// StatusClient reads one status report.
type StatusClient interface {
	Status(ctx context.Context, app, id string, withLogs bool) (jobs.StatusEvent, error)
}

// StreamClient opens a pushed status stream.
type StreamClient interface {
	StreamStatus(ctx context.Context, app, id string) (<-chan jobs.StatusEvent, <-chan error)
}

// Polling defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxFailures  = 3
)

// PollingOptions configures PollingSource.
type PollingOptions struct {
	Interval time.Duration
	// MaxFailures is the number of consecutive failed polls tolerated
	// before the feed reports an error.
	MaxFailures int
	Logger      logging.Logger
}

// PollingSource polls the queue status endpoint with logs.
type PollingSource struct {
	client      StatusClient
	app         string
	interval    time.Duration
	maxFailures int
	log         logging.Logger
}

var _ Source = (*PollingSource)(nil)

// NewPollingSource creates a polling feed for jobs of app.
func NewPollingSource(client StatusClient, app string, opts PollingOptions) *PollingSource {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &PollingSource{
		client:      client,
		app:         app,
		interval:    opts.Interval,
		maxFailures: opts.MaxFailures,
		log:         opts.Logger,
	}
}

// Events polls immediately and then once per interval until the job is
// terminal, ctx is done or too many polls in a row fail.
func (s *PollingSource) Events(ctx context.Context, jobID string) (<-chan jobs.StatusEvent, <-chan error) {
	out := make(chan jobs.StatusEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		failures := 0
		for {
			ev, err := s.client.Status(ctx, s.app, jobID, true)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				failures++
				if failures >= s.maxFailures {
					errs <- fmt.Errorf("poll %s: %d consecutive failures: %w", jobID, failures, err)
					return
				}
				s.log.Warn(ctx, "status poll failed",
					"job_id", jobID,
					"attempt", failures,
					"error", err,
				)
			default:
				failures = 0
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Status == jobs.StatusCompleted || ev.Failed() {
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// StreamSource reads the pushed status stream. It does not reconnect.
type StreamSource struct {
	client StreamClient
	app    string
}

var _ Source = (*StreamSource)(nil)

// NewStreamSource creates a streaming feed for jobs of app.
func NewStreamSource(client StreamClient, app string) *StreamSource {
	return &StreamSource{client: client, app: app}
}

func (s *StreamSource) Events(ctx context.Context, jobID string) (<-chan jobs.StatusEvent, <-chan error) {
	return s.client.StreamStatus(ctx, s.app, jobID)
}
