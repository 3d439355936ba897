package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"imaigine-lab/internal/domain"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_FetchQuote_StringPrice(t *testing.T) {
	server := serve(t, http.StatusOK, `{"symbol":"SUIUSDT","price":"3.45670000"}`)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client := NewHTTPClient(server.URL, WithClock(func() time.Time { return fixed }))

	q, err := client.FetchQuote(context.Background())
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}

	if !q.Rate.Equal(decimal.RequireFromString("3.4567")) {
		t.Errorf("expected rate 3.4567, got %s", q.Rate)
	}
	if !q.FetchedAt.Equal(fixed) {
		t.Errorf("expected fetchedAt %v, got %v", fixed, q.FetchedAt)
	}
}

func TestHTTPClient_FetchRate_NumericPrice(t *testing.T) {
	server := serve(t, http.StatusOK, `{"price": 2.5}`)

	rate, err := NewHTTPClient(server.URL).FetchRate(context.Background())
	if err != nil {
		t.Fatalf("FetchRate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("expected 2.5, got %s", rate)
	}
}

func TestHTTPClient_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-numeric price", http.StatusOK, `{"price":"abc"}`},
		{"missing price", http.StatusOK, `{"symbol":"SUIUSDT"}`},
		{"null price", http.StatusOK, `{"price":null}`},
		{"zero price", http.StatusOK, `{"price":"0"}`},
		{"negative price", http.StatusOK, `{"price":-1}`},
		{"malformed json", http.StatusOK, `{"price":`},
		{"server error", http.StatusInternalServerError, `boom`},
		{"object price", http.StatusOK, `{"price":{"v":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serve(t, tt.status, tt.body)
			_, err := NewHTTPClient(server.URL).FetchRate(context.Background())
			if !errors.Is(err, domain.ErrOracleUnavailable) {
				t.Fatalf("expected ErrOracleUnavailable, got %v", err)
			}
		})
	}
}

func TestHTTPClient_BoundedBodies(t *testing.T) {
	huge := strings.Repeat(" ", maxResponseBytes) + `{"price":"1.5"}`
	server := serve(t, http.StatusOK, huge)
	_, err := NewHTTPClient(server.URL).FetchRate(context.Background())
	if !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable for an oversized body, got %v", err)
	}

	server = serve(t, http.StatusBadGateway, strings.Repeat("x", 10*maxErrorBodyBytes))
	_, err = NewHTTPClient(server.URL).FetchRate(context.Background())
	if !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if n := strings.Count(err.Error(), "x"); n > maxErrorBodyBytes {
		t.Errorf("error embeds %d body bytes, want at most %d", n, maxErrorBodyBytes)
	}
}

func TestHTTPClient_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPClient(url, WithTimeout(time.Second)).FetchRate(context.Background())
	if !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestHTTPClient_NoCacheNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"price":"1.5"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	if _, err := client.FetchRate(ctx); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected first call to fail, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 request (no retry), got %d", calls.Load())
	}

	for i := 0; i < 2; i++ {
		if _, err := client.FetchRate(ctx); err != nil {
			t.Fatalf("FetchRate: %v", err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("expected every call to hit the endpoint, got %d requests", calls.Load())
	}
}

func TestHTTPClient_Observer(t *testing.T) {
	server := serve(t, http.StatusOK, `{"price":"abc"}`)

	var observed error
	client := NewHTTPClient(server.URL, WithObserver(func(_ time.Duration, err error) {
		observed = err
	}))

	_, err := client.FetchRate(context.Background())
	if err == nil || observed == nil {
		t.Fatalf("expected error to be observed, got err=%v observed=%v", err, observed)
	}
}
