// Package engines holds the extraction adapters: the built-in text-layer
// engines, OCR engines, vision LLM engines and subprocess pipelines.
package engines

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc"
)

// Direct reads the embedded text layer page by page. It never OCRs, so an
// empty page is a legitimate result.
type Direct struct{}

// NewDirect returns the baseline engine.
func NewDirect() *Direct { return &Direct{} }

func (d *Direct) Name() models.EngineName { return models.EngineDirect }

func (d *Direct) Probe(ctx context.Context) extraction.Capability {
	return extraction.Capability{Available: true, Mode: extraction.ModeLocal}
}

func (d *Direct) ExtractDocument(ctx context.Context, path string) ([]extraction.PageResult, error) {
	tl, err := pdfdoc.OpenTextLayer(path)
	if err != nil {
		return nil, extraction.EngineError(models.EngineDirect, "open text layer", err)
	}
	defer tl.Close()

	sizes := pageSizes(path)
	n := tl.NumPage()
	results := make([]extraction.PageResult, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := tl.PageText(i)
		if err != nil {
			slog.Warn("Text layer unreadable, recording empty page", "engine", models.EngineDirect, "pageNumber", i, "error", err)
			text = ""
		}
		size := pdfdoc.SizeAt(sizes, i)
		results = append(results, extraction.PageResult{
			PageNumber: i,
			Text:       text,
			PageWidth:  size.Width,
			PageHeight: size.Height,
		})
	}
	return results, nil
}

// pageSizes reads page geometry, logging instead of failing when pdfcpu
// cannot parse the file.
func pageSizes(path string) []pdfdoc.Size {
	sizes, err := pdfdoc.PageSizes(path)
	if err != nil {
		slog.Debug("Page geometry unavailable, using Letter", "path", path, "error", err)
		return nil
	}
	return sizes
}
