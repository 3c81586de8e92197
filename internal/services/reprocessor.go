package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pipeline"
	"github.com/Lllllllleong/xtractme/internal/store"
)

// ErrBadRequest marks requests rejected before any work is done.
var ErrBadRequest = errors.New("bad request")

// ReprocessorFunction switches a document's engine or re-runs extraction
// on request from the workflow.
type ReprocessorFunction struct {
	pipeline *pipeline.Service
	workflow WorkflowStarter
}

func NewReprocessor(ctx context.Context) (*ReprocessorFunction, error) {
	rt, err := NewRuntime(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Document reprocessor initialized.")
	return NewReprocessorWith(rt.Pipeline, rt.Workflow), nil
}

// NewReprocessorWith wires a reprocessor from explicit collaborators.
// workflow may be nil.
func NewReprocessorWith(svc *pipeline.Service, workflow WorkflowStarter) *ReprocessorFunction {
	return &ReprocessorFunction{pipeline: svc, workflow: workflow}
}

func (f *ReprocessorFunction) Process(ctx context.Context, req *models.ReprocessRequest) (*models.ReprocessResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, fmt.Errorf("%w: documentId is required", ErrBadRequest)
	}

	var (
		out *pipeline.Outcome
		err error
	)
	if req.OCREngine != "" {
		logCtx.Info("Changing OCR engine.", "ocrEngine", req.OCREngine)
		out, err = f.pipeline.SetEngine(ctx, req.DocumentID, models.EngineName(req.OCREngine))
		if err == nil && req.Force && !out.Processed {
			out, err = f.pipeline.Sync(ctx, req.DocumentID, true)
		}
	} else {
		out, err = f.pipeline.Sync(ctx, req.DocumentID, req.Force)
	}
	if err != nil {
		logCtx.Error("Reprocessing failed", "error", err)
		if errors.Is(err, pipeline.ErrUnknownEngine) {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return nil, err
	}

	doc := out.Document
	if out.Processed && f.workflow != nil {
		if _, err := f.workflow.Trigger(ctx, models.WorkflowPayload{
			DocumentID: doc.ID,
			PageCount:  doc.PageCount,
			OCREngine:  doc.ProcessedEngine,
		}); err != nil {
			logCtx.Error("Failed to trigger workflow execution", "error", err)
			return nil, fmt.Errorf("failed to trigger workflow execution: %w", err)
		}
	}
	logCtx.Info("Reprocess request complete.", "processed", out.Processed, "pageCount", doc.PageCount)
	return &models.ReprocessResponse{
		Status:    doc.Status,
		Processed: out.Processed,
		OCREngine: doc.OCREngine,
		PageCount: doc.PageCount,
	}, nil
}

// StatusCode maps a Process error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case pipeline.IsPrecondition(err), errors.Is(err, pipeline.ErrNoFile):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
