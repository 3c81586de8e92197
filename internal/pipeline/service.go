package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/store"
)

var (
	// ErrNoFile is wrapped in the *PreconditionError Sync returns for
	// documents without an attached file.
	ErrNoFile = errors.New("document has no file attached")
	// ErrUnknownEngine rejects engine names outside the recognized set.
	ErrUnknownEngine = errors.New("unknown engine")
)

// Fetcher materializes a document's remote source as a local file. The
// returned cleanup removes it.
type Fetcher interface {
	Fetch(ctx context.Context, doc *models.Document) (path string, cleanup func(), err error)
}

// Service applies the reprocessing trigger rule around an Orchestrator and
// keeps the document status current.
type Service struct {
	orch    *Orchestrator
	docs    store.DocumentStore
	pages   store.PageStore
	fetcher Fetcher
}

func NewService(orch *Orchestrator, docs store.DocumentStore, pages store.PageStore) *Service {
	return &Service{orch: orch, docs: docs, pages: pages}
}

// WithFetcher lets Sync download sources whose local copy is gone.
func (s *Service) WithFetcher(f Fetcher) *Service {
	s.fetcher = f
	return s
}

// Outcome reports what Sync did.
type Outcome struct {
	Document *models.Document
	// Processed is false when the trigger rule found nothing to do.
	Processed bool
	Result    *Result
}

// Add stores a new document and runs its first processing.
func (s *Service) Add(ctx context.Context, doc *models.Document) (*Outcome, error) {
	doc.ResolveKind()
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if err := s.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return s.Sync(ctx, doc.ID, false)
}

// SetEngine changes the requested engine and reprocesses when the trigger
// rule asks for it.
func (s *Service) SetEngine(ctx context.Context, id string, engine models.EngineName) (*Outcome, error) {
	name, ok := models.ParseEngine(string(engine))
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEngine, engine)
	}
	if err := s.docs.UpdateEngine(ctx, id, name); err != nil {
		return nil, err
	}
	return s.Sync(ctx, id, false)
}

// Update changes descriptive fields. It never reprocesses.
func (s *Service) Update(ctx context.Context, id, title, description string) (*models.Document, error) {
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if title != "" {
		doc.Title = title
	}
	if description != "" {
		doc.Description = description
	}
	if err := s.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return doc, nil
}

// Sync processes document id when the trigger rule or force asks for it.
// Existing pages are deleted first so a new engine's rows never mix with the
// old ones.
func (s *Service) Sync(ctx context.Context, id string, force bool) (*Outcome, error) {
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("documentId", id)
	remote := s.fetcher != nil && doc.SourceURI != ""
	if !doc.HasFile() && !remote {
		logCtx.Info("Skipping document without file.")
		return &Outcome{Document: doc}, precondition(id, "no file attached", ErrNoFile)
	}

	existing, err := s.pages.ListPages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	if !force && !NeedsProcessing(doc, len(existing)) {
		logCtx.Debug("Document up to date.", "engine", doc.OCREngine)
		return &Outcome{Document: doc}, nil
	}

	if remote && !fileExists(doc.FilePath) {
		path, cleanup, err := s.fetcher.Fetch(ctx, doc)
		if err != nil {
			err = fmt.Errorf("failed to fetch source %s: %w", doc.SourceURI, err)
			s.handleError(ctx, logCtx, id, err)
			return &Outcome{Document: doc}, err
		}
		defer cleanup()
		doc.FilePath = path
	}

	if len(existing) > 0 {
		logCtx.Info("Deleting stale pages.", "pageCount", len(existing), "previousEngine", doc.ProcessedEngine)
		if err := s.pages.DeletePages(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to delete stale pages: %w", err)
		}
	}
	if err := s.docs.MarkProcessing(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	doc.Status = models.StatusProcessing

	res, err := s.orch.Process(ctx, doc)
	if err != nil {
		s.handleError(ctx, logCtx, id, err)
		return &Outcome{Document: doc}, err
	}
	if err := s.docs.MarkProcessed(ctx, id, res.Requested, len(res.Pages)); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	doc, err = s.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Outcome{Document: doc, Processed: true, Result: res}, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (s *Service) handleError(ctx context.Context, logCtx *slog.Logger, id string, cause error) {
	logCtx.Error("Document processing failed.", "error", cause)
	if err := s.docs.MarkFailed(ctx, id, cause.Error()); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to FAILED after a processing error.", "updateError", err)
	}
}
