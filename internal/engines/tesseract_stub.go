//go:build !ocr

package engines

import (
	"context"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
)

const tesseractNotBuilt = "tesseract support not compiled in; rebuild with -tags ocr"

// Tesseract is unavailable in builds without the ocr tag.
type Tesseract struct{}

func NewTesseract(lang string) *Tesseract { return &Tesseract{} }

func (t *Tesseract) Name() models.EngineName { return models.EngineTesseract }

func (t *Tesseract) RenderSpec() extraction.RenderSpec {
	return extraction.RenderSpec{DPI: TesseractDPI}
}

func (t *Tesseract) Probe(ctx context.Context) extraction.Capability {
	return extraction.Capability{Mode: extraction.ModeLocal, Reason: tesseractNotBuilt}
}

func (t *Tesseract) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	return extraction.PageResult{}, extraction.Unavailable(models.EngineTesseract, tesseractNotBuilt)
}

func (t *Tesseract) Close() error { return nil }
