// Package blobstore uploads payloads to object storage under
// content-addressed keys and returns their public URLs.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Store uploads a blob and returns a URL it can be fetched from.
// Uploading the same bytes twice yields the same URL.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

var extensions = map[string]string{
	"application/zip":  ".zip",
	"application/json": ".json",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/webp":       ".webp",
	"image/gif":        ".gif",
}

// Key returns prefix + sha256(data) + extension for contentType.
func Key(prefix string, data []byte, contentType string) string {
	sum := sha256.Sum256(data)
	ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return prefix + hex.EncodeToString(sum[:]) + extensions[strings.ToLower(ct)]
}
