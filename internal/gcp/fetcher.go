package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/xtractme/internal/models"
)

// GCSFetcher downloads a document's gs:// source into a temp directory.
type GCSFetcher struct {
	Client *storage.Client
}

func (f GCSFetcher) Fetch(ctx context.Context, doc *models.Document) (string, func(), error) {
	bucket, object, err := ParseGCSURI(doc.SourceURI)
	if err != nil {
		return "", nil, err
	}
	tempDir, err := os.MkdirTemp("", "xtract-source-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(tempDir); err != nil {
			slog.Warn("Failed to remove temp directory.", "path", tempDir, "error", err)
		}
	}
	dest := filepath.Join(tempDir, path.Base(object))
	if err := DownloadObject(ctx, f.Client, bucket, object, dest); err != nil {
		cleanup()
		return "", nil, err
	}
	return dest, cleanup, nil
}
