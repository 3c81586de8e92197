package pipeline

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc"
)

// processImage runs a single-shot extraction over an image document. The
// requested engine's page extractor is used when available, tesseract
// otherwise. Any failure leaves the one page with empty text.
func (o *Orchestrator) processImage(ctx context.Context, logCtx *slog.Logger, doc *models.Document, requested models.EngineName) (*Result, error) {
	snap := o.registry.Snapshot(ctx, requested, models.EngineTesseract)

	engine := requested
	pe, ok := snap.PageExtractor(requested)
	if !ok && requested != models.EngineTesseract {
		logCtx.Info("Requested engine cannot read images, using tesseract.", "reason", snap.Capability(requested).Reason)
		engine = models.EngineTesseract
		pe, ok = snap.PageExtractor(engine)
	}

	in := extraction.NormalizeInput{
		DocumentID: doc.ID,
		Engine:     models.EngineDirect,
		Requested:  requested,
		Source:     extraction.SourceSingleShot,
		Kind:       models.KindImage,
		Now:        o.opts.Now(),
	}
	page := extraction.PageResult{PageNumber: 1}

	img, err := pdfdoc.LoadImage(doc.FilePath)
	if err != nil {
		logCtx.Warn("Image could not be decoded, recording an empty page.", "error", err)
		ok = false
	} else {
		page.PageWidth, page.PageHeight = img.PageWidth, img.PageHeight
		in.ImageRef = o.saveImage(ctx, logCtx, doc.ID, 1, img.PNG)
	}

	if !ok {
		if err == nil {
			logCtx.Warn("No image engine available, recording an empty page.", "reason", snap.Capability(engine).Reason)
		}
	} else {
		res, err := extraction.Guard(ctx, engine, o.opts.PageTimeout, func(ctx context.Context) (extraction.PageResult, error) {
			return pe.ExtractPage(ctx, img)
		})
		if err != nil {
			logCtx.Warn("Image extraction failed, recording an empty page.", "attempt", engine, "error", err)
		} else {
			res.PageNumber = 1
			if res.PageWidth == 0 || res.PageHeight == 0 {
				res.PageWidth, res.PageHeight = page.PageWidth, page.PageHeight
			}
			page = res
			in.Engine = engine
		}
	}

	return &Result{
		DocumentID: doc.ID,
		Requested:  requested,
		Engine:     in.Engine,
		Path:       PathSingleShot,
		Pages:      []models.Page{extraction.Normalize(in, page)},
	}, nil
}
