package extraction

import (
	"context"
	"strings"

	"github.com/Lllllllleong/xtractme/internal/models"
)

// Mode is how an engine is reached.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeAPI   Mode = "api"
)

// Capability is the runtime availability of one engine, computed once.
type Capability struct {
	Available bool   `json:"available"`
	Mode      Mode   `json:"mode"`
	Endpoint  string `json:"endpoint,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BBox is an axis-aligned box in the producing engine's coordinate space.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Union returns the smallest box containing both.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// CenterY is the vertical midpoint.
func (b BBox) CenterY() float64 { return (b.Y0 + b.Y1) / 2 }

// Block is one structured region recognized on a page.
type Block struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	BBox       *BBox   `json:"bbox,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// PageImage is a rendered page handed to page-at-a-time engines.
type PageImage struct {
	PageNumber int
	PNG        []byte
	Width      int // pixels
	Height     int
	DPI        float64
	PageWidth  float64 // points
	PageHeight float64
}

// PageResult is the raw output of an engine for one page.
type PageResult struct {
	PageNumber int
	Text       string
	Blocks     []Block
	PageWidth  float64
	PageHeight float64
	// EngineData is the engine-specific page payload kept for inspection.
	EngineData map[string]any
}

// HasText reports whether the page carries non-whitespace text.
func (r PageResult) HasText() bool {
	return strings.TrimSpace(r.Text) != ""
}

// Engine is the part every adapter shares.
type Engine interface {
	Name() models.EngineName
	// Probe checks the engine's runtime dependency. It is called at most
	// once per process by the Registry.
	Probe(ctx context.Context) Capability
}

// PageExtractor extracts one rendered page at a time.
type PageExtractor interface {
	Engine
	ExtractPage(ctx context.Context, img PageImage) (PageResult, error)
}

// DocumentExtractor extracts every page of a file in one invocation.
type DocumentExtractor interface {
	Engine
	ExtractDocument(ctx context.Context, path string) ([]PageResult, error)
}

// FamilyFallback names the alternate engine tried when the adapter's
// whole-document result is degenerate.
type FamilyFallback interface {
	Fallback() models.EngineName
}

// AnyText reports whether at least one page carries non-whitespace text.
func AnyText(pages []PageResult) bool {
	for _, p := range pages {
		if p.HasText() {
			return true
		}
	}
	return false
}

// JoinBlocks concatenates block texts with sep, skipping blank blocks.
func JoinBlocks(blocks []Block, sep string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, sep)
}

// RenderSpec describes how a page engine wants pages rasterized. When
// LongestSide is set it takes precedence over DPI.
type RenderSpec struct {
	DPI         float64
	LongestSide int
	MinScale    float64
	MaxScale    float64
}

// DefaultRender is used for page engines that do not state a preference.
var DefaultRender = RenderSpec{DPI: 144}

// Renderable is implemented by page engines with a render preference.
type Renderable interface {
	RenderSpec() RenderSpec
}

// RenderSpecFor returns the engine's render preference or DefaultRender.
func RenderSpecFor(e Engine) RenderSpec {
	if r, ok := e.(Renderable); ok {
		return r.RenderSpec()
	}
	return DefaultRender
}
