package pipeline

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc"
)

// pdfRun is the state shared by every step of one PDF run.
type pdfRun struct {
	doc       *models.Document
	requested models.EngineName
	log       *slog.Logger
	snap      extraction.Snapshot
	text      *pdfdoc.TextLayer
	sizes     []pdfdoc.Size
	n         int

	renderer  *pdfdoc.Renderer
	renderErr error
}

func (r *pdfRun) input(engine models.EngineName, source extraction.Source) extraction.NormalizeInput {
	return extraction.NormalizeInput{
		DocumentID: r.doc.ID,
		Engine:     engine,
		Requested:  r.requested,
		Source:     source,
		Kind:       models.KindPDF,
	}
}

// textLayerPage reads page n from the embedded text layer. A read error
// yields an empty page.
func (r *pdfRun) textLayerPage(n int) extraction.PageResult {
	size := pdfdoc.SizeAt(r.sizes, n)
	text, err := r.text.PageText(n)
	if err != nil {
		r.log.Warn("Text layer read failed.", "pageNumber", n, "error", err)
	}
	return extraction.PageResult{PageNumber: n, Text: text, PageWidth: size.Width, PageHeight: size.Height}
}

func (r *pdfRun) close() {
	if r.renderer != nil {
		_ = r.renderer.Close()
	}
	_ = r.text.Close()
}

func (o *Orchestrator) processPDF(ctx context.Context, logCtx *slog.Logger, doc *models.Document, requested models.EngineName) (*Result, error) {
	tl, err := pdfdoc.OpenTextLayer(doc.FilePath)
	if err != nil {
		return nil, precondition(doc.ID, "cannot open PDF", err)
	}
	r := &pdfRun{doc: doc, requested: requested, log: logCtx, text: tl, n: tl.NumPage()}
	defer r.close()
	if r.n == 0 {
		return nil, precondition(doc.ID, "PDF has no pages", nil)
	}
	if r.sizes, err = pdfdoc.PageSizes(doc.FilePath); err != nil {
		logCtx.Debug("Page geometry unavailable, using letter size.", "error", err)
	}

	names := []models.EngineName{requested, models.EngineDirect}
	de, isDocEngine := o.registry.DocumentExtractor(requested)
	var fallback models.EngineName
	if ff, ok := de.(extraction.FamilyFallback); isDocEngine && ok {
		fallback = ff.Fallback()
		names = append(names, fallback)
	}
	r.snap = o.registry.Snapshot(ctx, names...)

	if isDocEngine {
		if pages, ok := o.tryWholeDocument(ctx, r, requested); ok {
			return o.wholeDocumentResult(r, requested, PathWholeDocument, pages), nil
		}
		if fallback != "" && fallback != requested {
			logCtx.Info("Trying in-family fallback.", "fallback", fallback)
			if pages, ok := o.tryWholeDocument(ctx, r, fallback); ok {
				return o.wholeDocumentResult(r, fallback, PathFamilyFallback, pages), nil
			}
		}
		logCtx.Info("Falling back to per-page extraction.")
	}

	return &Result{
		DocumentID: doc.ID,
		Requested:  requested,
		Engine:     requested,
		Path:       PathPerPage,
		Pages:      o.perPage(ctx, r),
	}, nil
}

// tryWholeDocument runs one whole-document extraction and evaluates it.
func (o *Orchestrator) tryWholeDocument(ctx context.Context, r *pdfRun, name models.EngineName) ([]extraction.PageResult, bool) {
	de, ok := r.snap.DocumentExtractor(name)
	if !ok {
		r.log.Info("Whole-document engine unavailable.", "attempt", name, "reason", r.snap.Capability(name).Reason)
		return nil, false
	}
	pages, err := extraction.Guard(ctx, name, o.documentTimeout(name), func(ctx context.Context) ([]extraction.PageResult, error) {
		return de.ExtractDocument(ctx, r.doc.FilePath)
	})
	if err == nil {
		err = evaluate(name, pages)
	}
	if err != nil {
		r.log.Warn("Whole-document extraction rejected.", "attempt", name, "error", err)
		return nil, false
	}
	return pages, true
}

// wholeDocumentResult aligns an accepted result to pages 1..N and
// normalizes it.
func (o *Orchestrator) wholeDocumentResult(r *pdfRun, engine models.EngineName, path Path, raw []extraction.PageResult) *Result {
	aligned, filled := alignPages(r.log, raw, r.n)
	pages := make([]models.Page, 0, r.n)
	for i, res := range aligned {
		if filled[i] {
			in := r.input(models.EngineDirect, extraction.SourcePerPage)
			in.Now = o.opts.Now()
			pages = append(pages, extraction.Normalize(in, r.textLayerPage(i+1)))
			continue
		}
		if res.PageWidth == 0 || res.PageHeight == 0 {
			size := pdfdoc.SizeAt(r.sizes, res.PageNumber)
			res.PageWidth, res.PageHeight = size.Width, size.Height
		}
		in := r.input(engine, extraction.SourceWholeDocument)
		in.Now = o.opts.Now()
		pages = append(pages, extraction.Normalize(in, res))
	}
	return &Result{DocumentID: r.doc.ID, Requested: r.requested, Engine: engine, Path: path, Pages: pages}
}

// alignPages places results at pages 1..n. Uniquely numbered results keep
// their page; numbers past n are dropped. When numbers are missing or
// repeat, results are renumbered in source order. Slots nothing landed in
// are reported in filled.
func alignPages(logCtx *slog.Logger, raw []extraction.PageResult, n int) ([]extraction.PageResult, []bool) {
	out := make([]extraction.PageResult, n)
	filled := make([]bool, n)
	placed := make([]bool, n)

	numbered := true
	seen := make(map[int]bool, len(raw))
	for _, p := range raw {
		if p.PageNumber < 1 || seen[p.PageNumber] {
			numbered = false
			break
		}
		seen[p.PageNumber] = true
	}

	if numbered {
		dropped := 0
		for _, p := range raw {
			if p.PageNumber > n {
				dropped++
				continue
			}
			out[p.PageNumber-1] = p
			placed[p.PageNumber-1] = true
		}
		if dropped > 0 {
			logCtx.Warn("Dropping pages numbered past the source page count.", "dropped", dropped, "pageCount", n)
		}
	} else {
		logCtx.Warn("Engine page numbers are missing or repeat, renumbering.", "returned", len(raw), "pageCount", n)
		for i, p := range raw {
			if i >= n {
				logCtx.Warn("Dropping pages beyond the source page count.", "dropped", len(raw)-n)
				break
			}
			p.PageNumber = i + 1
			out[i] = p
			placed[i] = true
		}
	}

	for i := range out {
		if !placed[i] {
			filled[i] = true
		}
	}
	return out, filled
}
