package extraction

import (
	"time"

	"github.com/Lllllllleong/xtractme/internal/models"
)

// Source records which pipeline path produced a page.
type Source string

const (
	SourceWholeDocument Source = "whole_document"
	SourcePerPage       Source = "per_page"
	SourceSingleShot    Source = "single_shot"
)

// NormalizeInput carries everything the normalizer needs beyond the raw
// engine result.
type NormalizeInput struct {
	DocumentID string
	// Engine is the engine that actually produced the text.
	Engine models.EngineName
	// Requested is the engine recorded on the document. When it differs
	// from Engine the page is marked as a fallback product.
	Requested models.EngineName
	Source    Source
	Kind      models.Kind
	RenderDPI float64
	ImageRef  string
	Now       time.Time
}

// Normalize turns one engine result into the canonical page record.
func Normalize(in NormalizeInput, res PageResult) models.Page {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	data := map[string]any{
		"ocr_engine":        string(in.Engine),
		"page_number":       res.PageNumber,
		"text":              res.Text,
		"has_ocr":           in.Engine.UsesOCR(),
		"extraction_method": in.Engine.Method(),
		"page_width":        res.PageWidth,
		"page_height":       res.PageHeight,
	}
	if in.Source != "" {
		data["source"] = string(in.Source)
	}
	if len(res.Blocks) > 0 {
		blocks := make([]map[string]any, 0, len(res.Blocks))
		for _, b := range res.Blocks {
			blocks = append(blocks, blockMap(b))
		}
		data["blocks"] = blocks
	}
	if len(res.EngineData) > 0 {
		data["engine_data"] = res.EngineData
	}
	if in.Requested != "" && in.Requested != in.Engine {
		data["fallback_from"] = string(in.Requested)
	}
	if in.Kind == models.KindImage {
		data["file_type"] = string(models.KindImage)
	}
	if in.RenderDPI > 0 {
		data["render_dpi"] = in.RenderDPI
	}

	return models.Page{
		DocumentID: in.DocumentID,
		PageNumber: res.PageNumber,
		Text:       res.Text,
		JSONData:   data,
		ImageRef:   in.ImageRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func blockMap(b Block) map[string]any {
	m := map[string]any{
		"type": b.Type,
		"text": b.Text,
	}
	if b.BBox != nil {
		m["bbox"] = []float64{b.BBox.X0, b.BBox.Y0, b.BBox.X1, b.BBox.Y1}
	}
	if b.Confidence > 0 {
		m["confidence"] = b.Confidence
	}
	return m
}
