package mint

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"imaigine-lab/internal/blobstore"
)

const maxImageBytes = 32 << 20

// ImagePersister copies generated images into the blob store so minted
// URLs outlive the generation service's storage. The store addresses
// content, so persisting the same image twice yields the same URL.
type ImagePersister struct {
	store  blobstore.Store
	client *http.Client
}

// NewImagePersister creates a persister. A nil client uses a 60s timeout.
func NewImagePersister(store blobstore.Store, client *http.Client) *ImagePersister {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ImagePersister{store: store, client: client}
}

// Persist downloads url and uploads it. contentType is used when the
// response does not name an image type.
func (p *ImagePersister) Persist(ctx context.Context, url, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}

	ct := imageContentType(resp.Header.Get("Content-Type"), contentType, data)
	stored, err := p.store.Upload(ctx, data, ct)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return stored, nil
}

func imageContentType(header, hint string, data []byte) string {
	for _, ct := range []string{header, hint} {
		mt, _, err := mime.ParseMediaType(ct)
		if err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	return http.DetectContentType(data)
}
