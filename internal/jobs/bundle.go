package jobs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"imaigine-lab/internal/domain"
)

// File is one input file of a training payload.
type File struct {
	Name string
	Data []byte
}

// BundleImages packs files into a single zip archive. Directory parts of
// names are dropped and duplicate names get a numeric suffix.
func BundleImages(files []File) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("bundle: no files: %w", domain.ErrInvalidInput)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]int, len(files))

	for i, f := range files {
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("bundle: file %d is empty: %w", i, domain.ErrInvalidInput)
		}
		name := uniqueName(baseName(f.Name, i), seen)

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("bundle: create %s: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("bundle: write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: close: %w", err)
	}
	return buf.Bytes(), nil
}

func baseName(name string, i int) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image_" + strconv.Itoa(i)
	}
	return name
}

func uniqueName(name string, seen map[string]int) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	candidate := strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n) + ext
	return uniqueName(candidate, seen)
}
