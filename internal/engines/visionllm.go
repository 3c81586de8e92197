package engines

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
)

// VisionPrompt is sent with every page image.
const VisionPrompt = "Please extract and return all the text visible in this image. " +
	"Return only the text content, preserving line breaks and spacing. " +
	"Do not add any commentary or explanations, just return the extracted text."

// Pages for vision models are rendered so the longest side lands near
// VisionLongestSide pixels.
const (
	VisionLongestSide = 1540
	VisionMinScale    = 0.5
	VisionMaxScale    = 4.0
)

// errorMarker prefixes replies that report a failure instead of page text.
const errorMarker = "Error"

// A reply is a refusal only when it opens with one of these phrases and is
// short enough to hold no page text.
const maxRefusalLen = 240

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"i can't help with",
	"as a large language model",
	"as an ai language model",
}

// Generator sends one image and a prompt to a vision model.
type Generator interface {
	Generate(ctx context.Context, png []byte, prompt string) (string, error)
	Probe(ctx context.Context) extraction.Capability
}

// Vision adapts a Generator into a page engine.
type Vision struct {
	name models.EngineName
	gen  Generator
}

// NewVision builds a vision LLM engine registered under name.
func NewVision(name models.EngineName, gen Generator) *Vision {
	return &Vision{name: name, gen: gen}
}

func (v *Vision) Name() models.EngineName { return v.name }

func (v *Vision) RenderSpec() extraction.RenderSpec {
	return extraction.RenderSpec{LongestSide: VisionLongestSide, MinScale: VisionMinScale, MaxScale: VisionMaxScale}
}

func (v *Vision) Probe(ctx context.Context) extraction.Capability {
	return v.gen.Probe(ctx)
}

func (v *Vision) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	reply, err := v.gen.Generate(ctx, img.PNG, VisionPrompt)
	if err != nil {
		return extraction.PageResult{}, extraction.AsError(v.name, err)
	}
	text, err := CleanReply(reply)
	if err != nil {
		return extraction.PageResult{}, extraction.EngineError(v.name, "model reply rejected", err)
	}
	return extraction.PageResult{
		PageNumber: img.PageNumber,
		Text:       text,
		PageWidth:  img.PageWidth,
		PageHeight: img.PageHeight,
		EngineData: map[string]any{
			"image_size": []int{img.Width, img.Height},
			"render_dpi": img.DPI,
		},
	}, nil
}

// CleanReply strips code fences from a model reply and rejects replies that
// carry an error marker or a refusal instead of page text.
func CleanReply(reply string) (string, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, errorMarker) {
		return "", fmt.Errorf("model reported an error: %s", truncate(text, 200))
	}
	if len(text) <= maxRefusalLen {
		lower := strings.ToLower(text)
		for _, phrase := range refusalPhrases {
			if strings.HasPrefix(lower, phrase) {
				return "", fmt.Errorf("model refused: %q", phrase)
			}
		}
	}

	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text), nil
}
