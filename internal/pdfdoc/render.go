package pdfdoc

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"sync"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/gen2brain/go-fitz"
)

const pointsPerInch = 72.0

// Renderer rasterizes pages of one PDF. It is safe for concurrent use.
type Renderer struct {
	mu  sync.Mutex
	doc *fitz.Document
}

// OpenRenderer opens path for rendering.
func OpenRenderer(path string) (*Renderer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF for rendering: %w", err)
	}
	return &Renderer{doc: doc}, nil
}

// Close releases the document.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil
	}
	err := r.doc.Close()
	r.doc = nil
	return err
}

// NumPage returns the page count seen by the renderer.
func (r *Renderer) NumPage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.NumPage()
}

// PageSize returns the size in points of 1-based page n.
func (r *Renderer) PageSize(n int) (Size, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.doc.Bound(n - 1)
	if err != nil {
		return Size{}, fmt.Errorf("page %d bounds: %w", n, err)
	}
	return Size{Width: float64(b.Dx()), Height: float64(b.Dy())}, nil
}

// RenderDPI renders 1-based page n at a fixed resolution.
func (r *Renderer) RenderDPI(n int, dpi float64) (extraction.PageImage, error) {
	size, err := r.PageSize(n)
	if err != nil {
		return extraction.PageImage{}, err
	}

	r.mu.Lock()
	img, err := r.doc.ImageDPI(n-1, dpi)
	r.mu.Unlock()
	if err != nil {
		return extraction.PageImage{}, fmt.Errorf("failed to render page %d: %w", n, err)
	}

	data, err := EncodePNG(img)
	if err != nil {
		return extraction.PageImage{}, fmt.Errorf("failed to encode page %d: %w", n, err)
	}
	bounds := img.Bounds()
	return extraction.PageImage{
		PageNumber: n,
		PNG:        data,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		DPI:        dpi,
		PageWidth:  size.Width,
		PageHeight: size.Height,
	}, nil
}

// RenderLongestSide renders page n so its longest side approaches target
// pixels, with the render scale clamped to [minScale, maxScale].
func (r *Renderer) RenderLongestSide(n, target int, minScale, maxScale float64) (extraction.PageImage, error) {
	size, err := r.PageSize(n)
	if err != nil {
		return extraction.PageImage{}, err
	}
	scale := ScaleForLongestSide(size, target, minScale, maxScale)
	return r.RenderDPI(n, pointsPerInch*scale)
}

// Render rasterizes page n as spec asks.
func (r *Renderer) Render(n int, spec extraction.RenderSpec) (extraction.PageImage, error) {
	if spec.LongestSide > 0 {
		return r.RenderLongestSide(n, spec.LongestSide, spec.MinScale, spec.MaxScale)
	}
	dpi := spec.DPI
	if dpi <= 0 {
		dpi = extraction.DefaultRender.DPI
	}
	return r.RenderDPI(n, dpi)
}

// ScaleForLongestSide returns the zoom that maps the page's longest side to
// target pixels at 72 DPI, clamped to [minScale, maxScale].
func ScaleForLongestSide(size Size, target int, minScale, maxScale float64) float64 {
	longest := math.Max(size.Width, size.Height)
	if longest <= 0 || target <= 0 {
		return 1
	}
	scale := math.Max(float64(target)/longest, minScale)
	if maxScale > 0 {
		scale = math.Min(scale, maxScale)
	}
	return scale
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
