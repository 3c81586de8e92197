package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ImageSink stores rendered page images and returns a reference recorded on
// the page.
type ImageSink interface {
	SavePageImage(ctx context.Context, documentID string, pageNumber int, png []byte) (string, error)
}

// DirSink writes page images under Dir/<documentID>/<page>.png.
type DirSink struct {
	Dir string
}

func (s DirSink) SavePageImage(ctx context.Context, documentID string, pageNumber int, png []byte) (string, error) {
	dir := filepath.Join(s.Dir, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create image dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%05d.png", pageNumber))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write page image: %w", err)
	}
	return path, nil
}
