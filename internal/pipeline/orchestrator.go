// Package pipeline turns a document into its ordered page records, choosing
// the engine that runs and degrading through fallbacks instead of failing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Lllllllleong/xtractme/internal/config"
	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/store"
)

// Path names the route that produced a document's pages.
type Path string

const (
	PathWholeDocument  Path = "whole_document"
	PathFamilyFallback Path = "family_fallback"
	PathPerPage        Path = "per_page"
	PathSingleShot     Path = "single_shot"
)

const (
	defaultDocumentTimeout = 10 * time.Minute
	defaultPageTimeout     = 2 * time.Minute
)

// Options tune an Orchestrator.
type Options struct {
	// DocumentTimeout bounds one whole-document extraction.
	DocumentTimeout time.Duration
	// PageTimeout bounds rendering plus extraction of one page.
	PageTimeout time.Duration
	// EngineTimeouts override DocumentTimeout per engine.
	EngineTimeouts map[models.EngineName]time.Duration
	// Images receives rendered page images. Nil disables image storage.
	Images ImageSink
	Now    func() time.Time
}

// OptionsFromConfig reads timeouts from cfg.
func OptionsFromConfig(cfg *config.Config, images ImageSink) Options {
	opts := Options{
		DocumentTimeout: cfg.Pipeline.DocumentTimeout,
		PageTimeout:     cfg.Pipeline.PageTimeout,
		EngineTimeouts:  make(map[models.EngineName]time.Duration),
		Images:          images,
	}
	for name, s := range cfg.Engines {
		if s.Timeout > 0 {
			opts.EngineTimeouts[name] = s.Timeout
		}
	}
	return opts
}

// Result describes one completed processing run.
type Result struct {
	DocumentID string
	// Requested is the validated engine recorded on the document.
	Requested models.EngineName
	// Engine produced the accepted whole-document or single-shot result.
	// Per-page runs report Requested.
	Engine models.EngineName
	Path   Path
	Pages  []models.Page
}

// Orchestrator runs the engine selection and fallback state machine for one
// document at a time. It is safe for concurrent use on different documents.
type Orchestrator struct {
	registry *extraction.Registry
	docs     store.DocumentStore
	pages    store.PageStore
	opts     Options
}

func New(registry *extraction.Registry, docs store.DocumentStore, pages store.PageStore, opts Options) *Orchestrator {
	if opts.DocumentTimeout <= 0 {
		opts.DocumentTimeout = defaultDocumentTimeout
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = defaultPageTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{registry: registry, docs: docs, pages: pages, opts: opts}
}

// Process extracts and stores every page of doc. Only a *PreconditionError
// or a wrapped store error is returned; engine failures are absorbed into
// the fallback chain.
func (o *Orchestrator) Process(ctx context.Context, doc *models.Document) (*Result, error) {
	if !doc.HasFile() {
		return nil, precondition(doc.ID, "no file attached", nil)
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		return nil, precondition(doc.ID, "file not found on disk", err)
	}
	if doc.ResolveKind() {
		if err := o.docs.SaveDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to persist document kind: %w", err)
		}
	}

	requested, err := o.validateEngine(ctx, doc)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("documentId", doc.ID, "engine", requested, "kind", doc.Kind)

	var res *Result
	switch doc.Kind {
	case models.KindPDF:
		res, err = o.processPDF(ctx, logCtx, doc, requested)
	case models.KindImage:
		res, err = o.processImage(ctx, logCtx, doc, requested)
	default:
		return nil, precondition(doc.ID, "unsupported file type", nil)
	}
	if err != nil {
		return nil, err
	}

	for _, p := range res.Pages {
		if err := o.pages.UpsertPage(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to store page %d: %w", p.PageNumber, err)
		}
	}
	logCtx.Info("Document processed.", "path", res.Path, "producedBy", res.Engine, "pageCount", len(res.Pages))
	return res, nil
}

// validateEngine corrects an empty or unrecognized engine to the baseline
// and persists the correction.
func (o *Orchestrator) validateEngine(ctx context.Context, doc *models.Document) (models.EngineName, error) {
	name, ok := models.ParseEngine(string(doc.OCREngine))
	if !ok {
		slog.Warn("Unrecognized OCR engine, using baseline.", "documentId", doc.ID, "requested", doc.OCREngine, "engine", models.DefaultEngine)
		name = models.DefaultEngine
	}
	if name != doc.OCREngine {
		if err := o.docs.UpdateEngine(ctx, doc.ID, name); err != nil {
			return "", fmt.Errorf("failed to persist engine correction: %w", err)
		}
		doc.OCREngine = name
	}
	return name, nil
}

// evaluate returns nil when a whole-document result is acceptable.
func evaluate(engine models.EngineName, pages []extraction.PageResult) error {
	if len(pages) == 0 {
		return extraction.Empty(engine, "no pages returned")
	}
	if engine.UsesOCR() && !extraction.AnyText(pages) {
		return extraction.Empty(engine, "no text on any page")
	}
	return nil
}

func (o *Orchestrator) documentTimeout(name models.EngineName) time.Duration {
	if d := o.opts.EngineTimeouts[name]; d > 0 {
		return d
	}
	return o.opts.DocumentTimeout
}

func (o *Orchestrator) saveImage(ctx context.Context, logCtx *slog.Logger, docID string, page int, png []byte) string {
	if o.opts.Images == nil || len(png) == 0 {
		return ""
	}
	ref, err := o.opts.Images.SavePageImage(ctx, docID, page, png)
	if err != nil {
		logCtx.Warn("Failed to store page image.", "pageNumber", page, "error", err)
		return ""
	}
	return ref
}
