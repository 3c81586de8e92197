package engines

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
)

// PaddleOCR calls a PaddleX serving endpoint.
type PaddleOCR struct {
	apiURL string
	token  string
}

func NewPaddleOCR(apiURL, token string) *PaddleOCR {
	return &PaddleOCR{apiURL: apiURL, token: token}
}

func (p *PaddleOCR) Name() models.EngineName { return models.EnginePaddleOCR }

func (p *PaddleOCR) Probe(ctx context.Context) extraction.Capability {
	return probeHTTP(ctx, p.apiURL)
}

type paddleReply struct {
	ErrorCode int    `json:"errorCode"`
	ErrorMsg  string `json:"errorMsg"`
	Result    struct {
		OCRResults []struct {
			PrunedResult struct {
				RecTexts  []string    `json:"rec_texts"`
				RecScores []float64   `json:"rec_scores"`
				RecBoxes  [][]float64 `json:"rec_boxes"`
			} `json:"prunedResult"`
		} `json:"ocrResults"`
	} `json:"result"`
}

func (p *PaddleOCR) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	body := map[string]any{
		"file":     base64.StdEncoding.EncodeToString(img.PNG),
		"fileType": 1,
	}
	raw, err := postJSON(ctx, joinURL(p.apiURL, "ocr"), p.token, body)
	if err != nil {
		return extraction.PageResult{}, extraction.EngineError(models.EnginePaddleOCR, "ocr request", err)
	}
	blocks, err := parsePaddle(raw)
	if err != nil {
		return extraction.PageResult{}, extraction.EngineError(models.EnginePaddleOCR, "decode reply", err)
	}

	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		texts = append(texts, b.Text)
	}
	return extraction.PageResult{
		PageNumber: img.PageNumber,
		Text:       strings.Join(texts, "\n"),
		Blocks:     blocks,
		PageWidth:  img.PageWidth,
		PageHeight: img.PageHeight,
		EngineData: map[string]any{"line_count": len(blocks), "image_size": []int{img.Width, img.Height}},
	}, nil
}

func parsePaddle(raw []byte) ([]extraction.Block, error) {
	var reply paddleReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, err
	}
	if reply.ErrorCode != 0 {
		return nil, fmt.Errorf("paddle error %d: %s", reply.ErrorCode, reply.ErrorMsg)
	}

	var blocks []extraction.Block
	for _, r := range reply.Result.OCRResults {
		pr := r.PrunedResult
		for i, text := range pr.RecTexts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			b := extraction.Block{Type: "line", Text: text}
			if i < len(pr.RecScores) {
				b.Confidence = pr.RecScores[i]
			}
			if i < len(pr.RecBoxes) && len(pr.RecBoxes[i]) == 4 {
				box := pr.RecBoxes[i]
				b.BBox = &extraction.BBox{X0: box[0], Y0: box[1], X1: box[2], Y1: box[3]}
			}
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}
