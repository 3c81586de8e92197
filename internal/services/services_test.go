package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lllllllleong/xtractme/internal/engines"
	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc/pdftest"
	"github.com/Lllllllleong/xtractme/internal/pipeline"
	"github.com/Lllllllleong/xtractme/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorkflow struct {
	payloads []models.WorkflowPayload
	err      error
}

func (w *fakeWorkflow) Trigger(ctx context.Context, payload models.WorkflowPayload) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.payloads = append(w.payloads, payload)
	return fmt.Sprintf("executions/%d", len(w.payloads)), nil
}

// bucketFiles serves downloads from a map of object name to local file.
type bucketFiles map[string]string

func (b bucketFiles) download(ctx context.Context, bucket, object, dest string) error {
	src, ok := b[object]
	if !ok {
		return fmt.Errorf("object %s not found", object)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func (b bucketFiles) Fetch(ctx context.Context, doc *models.Document) (string, func(), error) {
	object := filepath.Base(doc.SourceURI)
	dir, err := os.MkdirTemp("", "fetch-*")
	if err != nil {
		return "", nil, err
	}
	dest := filepath.Join(dir, object)
	if err := b.download(ctx, "", object, dest); err != nil {
		return "", nil, err
	}
	return dest, func() { os.RemoveAll(dir) }, nil
}

func newPipeline() (*pipeline.Service, *store.Memory) {
	reg := extraction.NewRegistry()
	reg.Register(engines.NewDirect())
	reg.Register(engines.NewLayout())
	reg.Register(engines.NewTesseract("eng"))
	mem := store.NewMemory()
	orch := pipeline.New(reg, mem, mem, pipeline.Options{PageTimeout: 5 * time.Second, DocumentTimeout: 5 * time.Second})
	return pipeline.NewService(orch, mem, mem), mem
}

func TestProcessorIngestsUpload(t *testing.T) {
	ctx := context.Background()
	files := bucketFiles{"in/report.pdf": pdftest.Write(t, t.TempDir(), "report.pdf", []string{"first page", "second page"})}
	svc, mem := newPipeline()
	wf := &fakeWorkflow{}
	p := NewProcessorWith(files.download, mem, svc, wf, "")

	require.NoError(t, p.Process(ctx, GCSEvent{Bucket: "uploads", Name: "in/report.pdf"}))

	docs, err := mem.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, "gs://uploads/in/report.pdf", doc.SourceURI)
	assert.Equal(t, models.StatusProcessed, doc.Status)
	assert.Equal(t, models.EngineDirect, doc.ProcessedEngine)
	assert.Equal(t, 2, doc.PageCount)
	assert.Len(t, doc.FileHash, 64)

	require.Len(t, wf.payloads, 1)
	assert.Equal(t, models.WorkflowPayload{DocumentID: doc.ID, PageCount: 2, OCREngine: models.EngineDirect}, wf.payloads[0])
}

func TestProcessorSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	path := pdftest.Write(t, t.TempDir(), "a.pdf", []string{"same bytes"})
	files := bucketFiles{"a.pdf": path, "copy.pdf": path}
	svc, mem := newPipeline()
	wf := &fakeWorkflow{}
	p := NewProcessorWith(files.download, mem, svc, wf, models.EngineDirect)

	require.NoError(t, p.Process(ctx, GCSEvent{Bucket: "uploads", Name: "a.pdf"}))
	require.NoError(t, p.Process(ctx, GCSEvent{Bucket: "uploads", Name: "copy.pdf"}))

	docs, err := mem.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Len(t, wf.payloads, 1)
}

func TestProcessorIgnoresUnsupportedFiles(t *testing.T) {
	svc, mem := newPipeline()
	p := NewProcessorWith(func(ctx context.Context, bucket, object, dest string) error {
		t.Fatal("unsupported files must not be downloaded")
		return nil
	}, mem, svc, nil, "")

	require.NoError(t, p.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "notes.docx"}))
}

func TestProcessorRejectsBrokenPDFWithoutRetry(t *testing.T) {
	ctx := context.Background()
	broken := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("not a pdf"), 0o644))
	svc, mem := newPipeline()
	wf := &fakeWorkflow{}
	p := NewProcessorWith(bucketFiles{"broken.pdf": broken}.download, mem, svc, wf, "")

	require.NoError(t, p.Process(ctx, GCSEvent{Bucket: "uploads", Name: "broken.pdf"}))

	docs, err := mem.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, models.StatusFailed, docs[0].Status)
	assert.Empty(t, wf.payloads)
}

func TestProcessorDownloadFailure(t *testing.T) {
	svc, mem := newPipeline()
	p := NewProcessorWith(bucketFiles{}.download, mem, svc, nil, "")

	err := p.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "missing.pdf"})
	assert.ErrorContains(t, err, "not found")
}

func TestProcessorWorkflowFailureMarksDocument(t *testing.T) {
	ctx := context.Background()
	files := bucketFiles{"a.pdf": pdftest.Write(t, t.TempDir(), "a.pdf", []string{"text"})}
	svc, mem := newPipeline()
	p := NewProcessorWith(files.download, mem, svc, &fakeWorkflow{err: errors.New("quota exceeded")}, "")

	err := p.Process(ctx, GCSEvent{Bucket: "uploads", Name: "a.pdf"})
	require.ErrorContains(t, err, "quota exceeded")

	docs, err := mem.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, models.StatusFailed, docs[0].Status)
	assert.Contains(t, docs[0].ErrorDetails, "failed to trigger workflow")
}

func TestReprocessorChangesEngine(t *testing.T) {
	ctx := context.Background()
	files := bucketFiles{"a.pdf": pdftest.Write(t, t.TempDir(), "a.pdf", []string{"alpha", "beta"})}
	svc, mem := newPipeline()
	svc.WithFetcher(files)
	wf := &fakeWorkflow{}

	doc := &models.Document{SourceURI: "gs://uploads/a.pdf", Kind: models.KindPDF, OCREngine: models.EngineDirect}
	require.NoError(t, mem.SaveDocument(ctx, doc))

	r := NewReprocessorWith(svc, wf)
	res, err := r.Process(ctx, &models.ReprocessRequest{DocumentID: doc.ID, OCREngine: "pdfplumber"})
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Equal(t, models.EngineLayout, res.OCREngine)
	assert.Equal(t, models.StatusProcessed, res.Status)
	assert.Equal(t, 2, res.PageCount)

	pages, err := mem.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "layout", pages[0].JSONData["ocr_engine"])
	require.Len(t, wf.payloads, 1)

	res, err = r.Process(ctx, &models.ReprocessRequest{DocumentID: doc.ID})
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Len(t, wf.payloads, 1)

	res, err = r.Process(ctx, &models.ReprocessRequest{DocumentID: doc.ID, Force: true})
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Len(t, wf.payloads, 2)
}

func TestReprocessorErrors(t *testing.T) {
	ctx := context.Background()
	svc, mem := newPipeline()
	doc := &models.Document{Title: "no file"}
	require.NoError(t, mem.SaveDocument(ctx, doc))
	r := NewReprocessorWith(svc, nil)

	tests := []struct {
		name string
		req  models.ReprocessRequest
		want int
	}{
		{"missing id", models.ReprocessRequest{}, http.StatusBadRequest},
		{"unknown engine", models.ReprocessRequest{DocumentID: doc.ID, OCREngine: "easyocr"}, http.StatusBadRequest},
		{"unknown document", models.ReprocessRequest{DocumentID: "nope"}, http.StatusNotFound},
		{"no file", models.ReprocessRequest{DocumentID: doc.ID}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Process(ctx, &tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, StatusCode(err))
		})
	}
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusCode(nil))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(fmt.Errorf("wrapped: %w", &pipeline.PreconditionError{Reason: "bad"})))
}
