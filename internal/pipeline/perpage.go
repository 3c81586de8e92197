package pipeline

import (
	"context"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc"
)

type pageOCR struct {
	img extraction.PageImage
	res extraction.PageResult
}

// perPage walks pages 1..N. The text layer is read first and a page is only
// rendered for the requested engine when that layer is blank. A failed page
// keeps empty text and never stops its siblings.
func (o *Orchestrator) perPage(ctx context.Context, r *pdfRun) []models.Page {
	var (
		pe     extraction.PageExtractor
		canOCR bool
	)
	if r.requested.UsesOCR() {
		pe, canOCR = r.snap.PageExtractor(r.requested)
		if !canOCR {
			r.log.Info("No page engine available, using text layer only.", "reason", r.snap.Capability(r.requested).Reason)
		}
	}

	pages := make([]models.Page, 0, r.n)
	for i := 1; i <= r.n; i++ {
		base := r.textLayerPage(i)
		in := r.input(models.EngineDirect, extraction.SourcePerPage)
		in.Now = o.opts.Now()

		if base.HasText() || !canOCR {
			pages = append(pages, extraction.Normalize(in, base))
			continue
		}

		out, err := o.ocrPage(ctx, r, pe, i)
		if err != nil {
			r.log.Warn("Page extraction failed, keeping empty text.", "pageNumber", i, "error", err)
			pages = append(pages, extraction.Normalize(in, base))
			continue
		}

		res := out.res
		res.PageNumber = i
		if res.PageWidth == 0 || res.PageHeight == 0 {
			res.PageWidth, res.PageHeight = base.PageWidth, base.PageHeight
		}
		in.Engine = r.requested
		in.RenderDPI = out.img.DPI
		in.ImageRef = o.saveImage(ctx, r.log, r.doc.ID, i, out.img.PNG)
		pages = append(pages, extraction.Normalize(in, res))
	}
	return pages
}

// ocrPage renders page n with the engine's render preference and runs it.
// Rendering is inside the guard so a stuck rasterizer also times out.
func (o *Orchestrator) ocrPage(ctx context.Context, r *pdfRun, pe extraction.PageExtractor, n int) (pageOCR, error) {
	if r.renderer == nil && r.renderErr == nil {
		r.renderer, r.renderErr = pdfdoc.OpenRenderer(r.doc.FilePath)
	}
	if r.renderErr != nil {
		return pageOCR{}, extraction.EngineError(pe.Name(), "open for rendering", r.renderErr).WithPage(r.doc.ID, n)
	}

	spec := extraction.RenderSpecFor(pe)
	out, err := extraction.Guard(ctx, pe.Name(), o.opts.PageTimeout, func(ctx context.Context) (pageOCR, error) {
		img, err := r.renderer.Render(n, spec)
		if err != nil {
			return pageOCR{}, extraction.EngineError(pe.Name(), "render page", err)
		}
		res, err := pe.ExtractPage(ctx, img)
		return pageOCR{img: img, res: res}, err
	})
	if err != nil {
		if xe, ok := err.(*extraction.Error); ok {
			return pageOCR{}, xe.WithPage(r.doc.ID, n)
		}
		return pageOCR{}, err
	}
	return out, nil
}
