package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
)

// TrOCR calls an image-to-text inference endpoint.
type TrOCR struct {
	apiURL string
	token  string
}

func NewTrOCR(apiURL, token string) *TrOCR {
	return &TrOCR{apiURL: apiURL, token: token}
}

func (t *TrOCR) Name() models.EngineName { return models.EngineTrOCR }

func (t *TrOCR) Probe(ctx context.Context) extraction.Capability {
	return probeHTTP(ctx, t.apiURL)
}

func (t *TrOCR) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	raw, err := postImage(ctx, t.apiURL, t.token, img.PNG)
	if err != nil {
		return extraction.PageResult{}, extraction.EngineError(models.EngineTrOCR, "inference request", err)
	}
	text, err := parseGeneratedText(raw)
	if err != nil {
		return extraction.PageResult{}, extraction.EngineError(models.EngineTrOCR, "decode reply", err)
	}
	return extraction.PageResult{
		PageNumber: img.PageNumber,
		Text:       text,
		PageWidth:  img.PageWidth,
		PageHeight: img.PageHeight,
		EngineData: map[string]any{"image_size": []int{img.Width, img.Height}},
	}, nil
}

type generated struct {
	GeneratedText string `json:"generated_text"`
}

// parseGeneratedText accepts a single object or a list of objects.
func parseGeneratedText(raw []byte) (string, error) {
	var list []generated
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, g := range list {
			parts = append(parts, g.GeneratedText)
		}
		return strings.Join(parts, "\n"), nil
	}
	var one generated
	if err := json.Unmarshal(raw, &one); err != nil {
		return "", fmt.Errorf("unexpected reply: %s", truncate(string(raw), 120))
	}
	return one.GeneratedText, nil
}
