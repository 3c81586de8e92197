package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
)

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ParseGCSURI splits gs://bucket/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// URI needs a bucket and an object: %q", uri)
	}
	return bucket, object, nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't
// already exist. An existing object is not an error.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// DownloadObject streams gs://bucket/object to destPath.
func DownloadObject(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, reader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

// UploadFile copies a local file to bucket/object, retrying with
// exponential backoff.
func UploadFile(ctx context.Context, bucket *storage.BucketHandle, localPath, object string) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			f, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer f.Close()

			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()

			w := bucket.Object(object).NewWriter(writeCtx)
			if _, err := io.Copy(w, f); err != nil {
				_ = w.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.",
			"gcsObject", object,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", object, lastErr)
}

// BucketImageSink stores rendered page images as <documentID>/<page>.png.
type BucketImageSink struct {
	Bucket *storage.BucketHandle
	Name   string
}

func (s BucketImageSink) SavePageImage(ctx context.Context, documentID string, pageNumber int, png []byte) (string, error) {
	object := PageImageObject(documentID, pageNumber)
	if err := SaveToGCSAtomically(ctx, s.Bucket, object, "image/png", png); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.Name, object), nil
}

// PageImageObject is the object name of a stored page image.
func PageImageObject(documentID string, pageNumber int) string {
	return fmt.Sprintf("%s/%05d.png", documentID, pageNumber)
}

// SignedURLPublisher uploads a file under a temporary name and hands out a
// V4 signed GET URL, so remote engines can fetch it.
type SignedURLPublisher struct {
	Bucket *storage.BucketHandle
	Prefix string
	TTL    time.Duration
}

func (p SignedURLPublisher) Publish(ctx context.Context, path string) (string, func(), error) {
	object := fmt.Sprintf("%s%s%s", p.Prefix, uuid.NewString(), filepath.Ext(path))
	if err := UploadFile(ctx, p.Bucket, path, object); err != nil {
		return "", nil, err
	}
	cleanup := func() {
		delCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.Bucket.Object(object).Delete(delCtx); err != nil {
			slog.Warn("Failed to delete published source.", "gcsObject", object, "error", err)
		}
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	url, err := p.Bucket.SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to sign URL for %s: %w", object, err)
	}
	return url, cleanup, nil
}
