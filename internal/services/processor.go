package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/xtractme/internal/gcp"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pipeline"
	"github.com/Lllllllleong/xtractme/internal/store"
)

// GCSEvent is the data of a storage object finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// DownloadFunc copies gs://bucket/object to dest.
type DownloadFunc func(ctx context.Context, bucket, object, dest string) error

// ProcessorFunction ingests uploaded files: it deduplicates them by content
// hash, extracts their pages and hands them to the workflow.
type ProcessorFunction struct {
	download      DownloadFunc
	docs          store.DocumentStore
	pipeline      *pipeline.Service
	workflow      WorkflowStarter
	defaultEngine models.EngineName
}

func NewProcessor(ctx context.Context) (*ProcessorFunction, error) {
	rt, err := NewRuntime(ctx)
	if err != nil {
		return nil, err
	}
	download := func(ctx context.Context, bucket, object, dest string) error {
		return gcp.DownloadObject(ctx, rt.Storage, bucket, object, dest)
	}
	slog.Info("Document processor initialized.", "defaultEngine", rt.Config.Pipeline.DefaultEngine)
	return NewProcessorWith(download, rt.Store, rt.Pipeline, rt.Workflow, rt.Config.Pipeline.DefaultEngine), nil
}

// NewProcessorWith wires a processor from explicit collaborators. workflow
// may be nil.
func NewProcessorWith(download DownloadFunc, docs store.DocumentStore, svc *pipeline.Service, workflow WorkflowStarter, defaultEngine models.EngineName) *ProcessorFunction {
	if defaultEngine == "" {
		defaultEngine = models.DefaultEngine
	}
	return &ProcessorFunction{download: download, docs: docs, pipeline: svc, workflow: workflow, defaultEngine: defaultEngine}
}

func (f *ProcessorFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	kind := models.DetectKind(e.Name)
	if kind == models.KindUnknown {
		logCtx.Info("Unsupported file type. Skipping.")
		return nil
	}
	logCtx.Info("Processing new GCS object.", "fileType", kind)

	tempDir, err := os.MkdirTemp("", "xtract-ingest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, path.Base(e.Name))
	if err := f.download(ctx, e.Bucket, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source file", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	existing, err := f.docs.FindByHash(ctx, fileHash)
	switch {
	case err == nil:
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", existing.ID)
		return nil
	case !errors.Is(err, store.ErrNotFound):
		logCtx.Error("Failed to check for duplicate", "error", err)
		return fmt.Errorf("failed to query for duplicates: %w", err)
	}

	doc := &models.Document{
		Title:     path.Base(e.Name),
		FilePath:  sourcePath,
		SourceURI: fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name),
		FileHash:  fileHash,
		Kind:      kind,
		OCREngine: f.defaultEngine,
		CreatedAt: time.Now(),
	}
	out, err := f.pipeline.Add(ctx, doc)
	if err != nil {
		if pipeline.IsPrecondition(err) {
			// Retrying a malformed upload cannot succeed; the FAILED status
			// is already recorded.
			logCtx.Warn("Source rejected.", "documentId", doc.ID, "error", err)
			return nil
		}
		return err
	}
	logCtx = logCtx.With("documentId", out.Document.ID)
	logCtx.Info("Document processed.", "engine", out.Document.ProcessedEngine, "pageCount", out.Document.PageCount)

	return f.triggerWorkflow(ctx, logCtx, out.Document)
}

func (f *ProcessorFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, doc *models.Document) error {
	if f.workflow == nil {
		return nil
	}
	execName, err := f.workflow.Trigger(ctx, models.WorkflowPayload{
		DocumentID: doc.ID,
		PageCount:  doc.PageCount,
		OCREngine:  doc.ProcessedEngine,
	})
	if err != nil {
		return f.handleError(ctx, logCtx, doc.ID, "failed to trigger workflow execution", err)
	}
	logCtx.Info("Hand-off to workflow complete.", "execution", execName)
	return nil
}

func (f *ProcessorFunction) handleError(ctx context.Context, logCtx *slog.Logger, id, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.docs.MarkFailed(ctx, id, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
