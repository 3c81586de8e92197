//go:build ocr

package engines

import (
	"context"
	"fmt"
	"sync"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs classical OCR through a single shared gosseract client.
// Calls are serialized because the client is not safe for concurrent use.
type Tesseract struct {
	lang string

	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract builds the engine. The client is created lazily on Probe.
func NewTesseract(lang string) *Tesseract {
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{lang: lang}
}

func (t *Tesseract) Name() models.EngineName { return models.EngineTesseract }

func (t *Tesseract) RenderSpec() extraction.RenderSpec {
	return extraction.RenderSpec{DPI: TesseractDPI}
}

func (t *Tesseract) Probe(ctx context.Context) extraction.Capability {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		c := gosseract.NewClient()
		if err := c.SetLanguage(t.lang); err != nil {
			c.Close()
			return extraction.Capability{Reason: fmt.Sprintf("set language %s: %v", t.lang, err)}
		}
		t.client = c
	}
	return extraction.Capability{
		Available: true,
		Mode:      extraction.ModeLocal,
		Endpoint:  "libtesseract " + gosseract.Version(),
	}
}

func (t *Tesseract) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return extraction.PageResult{}, extraction.Unavailable(models.EngineTesseract, "tesseract client not initialized")
	}

	if err := t.client.SetImageFromBytes(img.PNG); err != nil {
		return extraction.PageResult{}, extraction.EngineError(models.EngineTesseract, "set image", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return extraction.PageResult{}, extraction.EngineError(models.EngineTesseract, "recognize words", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{
			Text: b.Word,
			Box: extraction.BBox{
				X0: float64(b.Box.Min.X), Y0: float64(b.Box.Min.Y),
				X1: float64(b.Box.Max.X), Y1: float64(b.Box.Max.Y),
			},
			Confidence: b.Confidence / 100.0,
		})
	}

	blocks, text := LineBlocks(GroupLines(words, LineTolerance))
	return extraction.PageResult{
		PageNumber: img.PageNumber,
		Text:       text,
		Blocks:     blocks,
		PageWidth:  img.PageWidth,
		PageHeight: img.PageHeight,
		EngineData: map[string]any{
			"word_count": len(words),
			"language":   t.lang,
			"image_size": []int{img.Width, img.Height},
		},
	}, nil
}

// Close releases the tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
