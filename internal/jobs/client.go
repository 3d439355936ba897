// Package jobs talks to the remote inference queue: it enqueues training
// and generation requests, reads their status and fetches their results.
package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://queue.fal.run"
	DefaultTimeout = 30 * time.Second

	TrainingApp   = "fal-ai/flux-lora-fast-training"
	GenerationApp = "fal-ai/flux-lora"
)

// QueueStatus is the status reported by the queue.
type QueueStatus string

const (
	StatusInQueue    QueueStatus = "IN_QUEUE"
	StatusInProgress QueueStatus = "IN_PROGRESS"
	StatusCompleted  QueueStatus = "COMPLETED"
)

// LogLine is one log entry emitted by a running job.
type LogLine struct {
	Message   string `json:"message"`
	Level     string `json:"level,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// StatusEvent is one status report of a request. Logs holds the full log
// so far when requested.
type StatusEvent struct {
	Status        QueueStatus `json:"status"`
	QueuePosition *int        `json:"queue_position,omitempty"`
	Logs          []LogLine   `json:"logs,omitempty"`
	Error         string      `json:"error,omitempty"`
	ResponseURL   string      `json:"response_url,omitempty"`
}

// Failed reports whether the event carries an explicit failure.
func (e StatusEvent) Failed() bool {
	return e.Error != ""
}

// SubmitResponse is returned when a request is enqueued.
type SubmitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url,omitempty"`
	ResponseURL string `json:"response_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

// HTTPError is a non-2xx response from the queue.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("queue: unexpected status %d: %s", e.StatusCode, e.Body)
}

// ErrStreamClosed is sent when the status stream ends before completion.
var ErrStreamClosed = errors.New("status stream closed before completion")

// Client is an HTTP client for the queue API. It never retries.
type Client struct {
	baseURL string
	key     string
	client  *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout sets HTTP client timeout. Streams are not bound by it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// NewClient creates a queue client authenticated with key.
func NewClient(key string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		key:     key,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) requestURL(app, id, suffix string) string {
	return fmt.Sprintf("%s/%s/requests/%s%s", c.baseURL, strings.Trim(app, "/"), id, suffix)
}

func (c *Client) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Key "+c.key)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Submit enqueues input for app and returns the request id.
func (c *Client) Submit(ctx context.Context, app string, input any) (SubmitResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/"+strings.Trim(app, "/"), input)
	if err != nil {
		return SubmitResponse{}, err
	}
	var out SubmitResponse
	if err := c.do(req, &out); err != nil {
		return SubmitResponse{}, fmt.Errorf("submit %s: %w", app, err)
	}
	if out.RequestID == "" {
		return SubmitResponse{}, fmt.Errorf("submit %s: empty request id", app)
	}
	return out, nil
}

// Status returns the current status of a request.
func (c *Client) Status(ctx context.Context, app, id string, withLogs bool) (StatusEvent, error) {
	url := c.requestURL(app, id, "/status")
	if withLogs {
		url += "?logs=1"
	}
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusEvent{}, err
	}
	var out StatusEvent
	if err := c.do(req, &out); err != nil {
		return StatusEvent{}, fmt.Errorf("status %s: %w", id, err)
	}
	return out, nil
}

// Result decodes the output of a completed request into out. Fetching the
// same id again returns the same payload.
func (c *Client) Result(ctx context.Context, app, id string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.requestURL(app, id, ""), nil)
	if err != nil {
		return err
	}
	if err := c.do(req, out); err != nil {
		return fmt.Errorf("result %s: %w", id, err)
	}
	return nil
}

// Cancel asks the queue to drop a request that has not started.
func (c *Client) Cancel(ctx context.Context, app, id string) error {
	req, err := c.newRequest(ctx, http.MethodPut, c.requestURL(app, id, "/cancel"), nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	return nil
}

// StreamStatus opens the server-sent status stream of a request. Every
// data line becomes one StatusEvent. Both channels are closed when the
// stream ends; a stream that ends before COMPLETED yields ErrStreamClosed.
func (c *Client) StreamStatus(ctx context.Context, app, id string) (<-chan StatusEvent, <-chan error) {
	events := make(chan StatusEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		req, err := c.newRequest(ctx, http.MethodGet, c.requestURL(app, id, "/status/stream?logs=1"), nil)
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		// the stream outlives the request timeout of c.client
		streamClient := *c.client
		streamClient.Timeout = 0
		resp, err := streamClient.Do(req)
		if err != nil {
			errs <- fmt.Errorf("stream %s: %w", id, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errs <- fmt.Errorf("stream %s: %w", id, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)})
			return
		}

		if err := readEvents(ctx, resp.Body, events); err != nil {
			errs <- fmt.Errorf("stream %s: %w", id, err)
		}
	}()

	return events, errs
}

// readEvents parses an SSE body. It returns nil once a COMPLETED event has
// been delivered.
func readEvents(ctx context.Context, r io.Reader, out chan<- StatusEvent) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var data strings.Builder
	flush := func() (bool, error) {
		if data.Len() == 0 {
			return false, nil
		}
		var ev StatusEvent
		err := json.Unmarshal([]byte(data.String()), &ev)
		data.Reset()
		if err != nil {
			return false, fmt.Errorf("decode event: %w", err)
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		return ev.Status == StatusCompleted || ev.Failed(), nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			done, err := flush()
			if err != nil || done {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	done, err := flush()
	if err != nil {
		return err
	}
	if !done {
		return ErrStreamClosed
	}
	return nil
}
