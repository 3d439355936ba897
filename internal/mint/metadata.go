package mint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/logging"
)

// MetadataFetcher reads the trigger word from a training config file.
type MetadataFetcher interface {
	FetchTriggerWord(ctx context.Context, configURL string) (string, error)
}

const maxMetadataBytes = 1 << 20

// HTTPMetadataFetcher fetches config files over HTTP. A failed attempt is
// retried once; the second failure is returned as domain.ErrMetadataFetch.
type HTTPMetadataFetcher struct {
	client     *http.Client
	retryDelay time.Duration
	log        logging.Logger
}

var _ MetadataFetcher = (*HTTPMetadataFetcher)(nil)

// NewHTTPMetadataFetcher creates a fetcher. A nil client uses a 15s timeout.
func NewHTTPMetadataFetcher(client *http.Client, retryDelay time.Duration, log logging.Logger) *HTTPMetadataFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logging.Default()
	}
	return &HTTPMetadataFetcher{client: client, retryDelay: retryDelay, log: log}
}

func (f *HTTPMetadataFetcher) FetchTriggerWord(ctx context.Context, configURL string) (string, error) {
	word, err := f.fetch(ctx, configURL)
	if err == nil {
		return word, nil
	}
	f.log.Warn(ctx, "trigger word fetch failed, retrying once", "url", configURL, "error", err)

	if f.retryDelay > 0 {
		select {
		case <-time.After(f.retryDelay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrMetadataFetch, ctx.Err())
		}
	}

	word, err = f.fetch(ctx, configURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrMetadataFetch, configURL, err)
	}
	return word, nil
}

type trainingConfig struct {
	TriggerWord *string `json:"trigger_word"`
}

func (f *HTTPMetadataFetcher) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var cfg trainingConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return "", fmt.Errorf("decode config: %w", err)
	}
	if cfg.TriggerWord == nil || strings.TrimSpace(*cfg.TriggerWord) == "" {
		return "", fmt.Errorf("config has no trigger_word")
	}
	return strings.TrimSpace(*cfg.TriggerWord), nil
}
