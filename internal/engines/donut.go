package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
)

// Donut calls a document-understanding transformer endpoint whose reply is
// a decoded token sequence.
type Donut struct {
	apiURL string
	token  string
}

func NewDonut(apiURL, token string) *Donut {
	return &Donut{apiURL: apiURL, token: token}
}

func (d *Donut) Name() models.EngineName { return models.EngineDonut }

func (d *Donut) Probe(ctx context.Context) extraction.Capability {
	return probeHTTP(ctx, d.apiURL)
}

func (d *Donut) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	raw, err := postImage(ctx, d.apiURL, d.token, img.PNG)
	if err != nil {
		return extraction.PageResult{}, extraction.EngineError(models.EngineDonut, "inference request", err)
	}
	fields, text := DecodeDonut(raw)
	res := extraction.PageResult{
		PageNumber: img.PageNumber,
		Text:       text,
		PageWidth:  img.PageWidth,
		PageHeight: img.PageHeight,
	}
	if len(fields) > 0 {
		res.EngineData = map[string]any{"fields": fields}
	}
	return res, nil
}

var donutTextKeys = []string{"text", "text_sequence", "texts", "content"}

var (
	// Leaf fields only; container tags are dropped by donutToken.
	donutTag   = regexp.MustCompile(`<s_([^>]+)>([^<]*)</s_([^>]+)>`)
	donutToken = regexp.MustCompile(`</?s(_[^>]*)?>|<sep/>`)
)

// DecodeDonut returns the structured fields of a reply and the page text.
// The reply may be a JSON object, a JSON string, or a raw token sequence.
func DecodeDonut(raw []byte) (map[string]any, string) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if seq, ok := obj["sequence"].(string); ok && len(obj) == 1 {
			return decodeSequence(seq)
		}
		return obj, textFromFields(obj, "")
	}
	var seq string
	if err := json.Unmarshal(raw, &seq); err == nil {
		return decodeSequence(seq)
	}
	return decodeSequence(string(raw))
}

func decodeSequence(seq string) (map[string]any, string) {
	fields := make(map[string]any)
	for _, m := range donutTag.FindAllStringSubmatch(seq, -1) {
		if m[1] != m[3] {
			continue
		}
		fields[m[1]] = strings.TrimSpace(m[2])
	}
	fallback := strings.TrimSpace(donutToken.ReplaceAllString(seq, " "))
	fallback = strings.Join(strings.Fields(fallback), " ")
	return fields, textFromFields(fields, fallback)
}

func textFromFields(fields map[string]any, fallback string) string {
	for _, key := range donutTextKeys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, "\n")
		default:
			return fmt.Sprint(t)
		}
	}
	if fallback != "" {
		return fallback
	}
	if len(fields) == 0 {
		return ""
	}
	b, _ := json.Marshal(fields)
	return string(b)
}
