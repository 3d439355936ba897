package blobstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

type blob struct {
	data        []byte
	contentType string
}

// MemoryStore keeps blobs in process. It also serves them over HTTP so
// URLs it returns can be fetched in local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	blobs   map[string]blob
	uploads int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		blobs:   make(map[string]blob),
	}
}

func (m *MemoryStore) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("memory: empty upload")
	}
	key := Key("", data, contentType)
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	m.blobs[key] = blob{data: cp, contentType: contentType}
	m.uploads++
	m.mu.Unlock()

	return m.baseURL + "/" + key, nil
}

// Get returns a stored blob by key.
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, "", false
	}
	return b.data, b.contentType, true
}

// Len returns the number of distinct blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Uploads returns how many Upload calls succeeded.
func (m *MemoryStore) Uploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads
}

// ServeHTTP serves GET /{key}.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	data, ct, ok := m.Get(key)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Write(data)
}
