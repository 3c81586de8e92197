package engines

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc"
)

// DefaultOlmOCRCommand runs the olmOCR pipeline over a single PDF.
const DefaultOlmOCRCommand = "python -m olmocr.pipeline {workspace} --markdown --pdfs {input}"

// OlmOCR runs the olmOCR pipeline locally as a subprocess, or in api mode
// sends each rendered page to an OpenAI-compatible server hosting the model.
type OlmOCR struct {
	mode    extraction.Mode
	command commandLine
	vision  *Vision
}

func NewOlmOCRLocal(command string) *OlmOCR {
	if command == "" {
		command = DefaultOlmOCRCommand
	}
	return &OlmOCR{mode: extraction.ModeLocal, command: parseCommand(command)}
}

func NewOlmOCRAPI(gen Generator) *OlmOCR {
	return &OlmOCR{mode: extraction.ModeAPI, vision: NewVision(models.EngineOlmOCR, gen)}
}

func (o *OlmOCR) Name() models.EngineName { return models.EngineOlmOCR }

func (o *OlmOCR) Fallback() models.EngineName { return models.EngineDirect }

func (o *OlmOCR) RenderSpec() extraction.RenderSpec {
	return extraction.RenderSpec{LongestSide: VisionLongestSide, MinScale: VisionMinScale, MaxScale: VisionMaxScale}
}

func (o *OlmOCR) Probe(ctx context.Context) extraction.Capability {
	if o.mode == extraction.ModeAPI {
		return o.vision.Probe(ctx)
	}
	path, err := o.command.lookPath()
	if err != nil {
		return extraction.Capability{Mode: extraction.ModeLocal, Reason: fmt.Sprintf("olmocr runner not found: %v", err)}
	}
	return extraction.Capability{Available: true, Mode: extraction.ModeLocal, Endpoint: path}
}

func (o *OlmOCR) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	if o.mode != extraction.ModeAPI {
		return extraction.PageResult{}, extraction.Unavailable(models.EngineOlmOCR, "page mode needs an api server")
	}
	return o.vision.ExtractPage(ctx, img)
}

func (o *OlmOCR) ExtractDocument(ctx context.Context, path string) ([]extraction.PageResult, error) {
	if o.mode == extraction.ModeAPI {
		return o.extractPages(ctx, path)
	}
	return o.extractLocal(ctx, path)
}

func (o *OlmOCR) extractLocal(ctx context.Context, path string) ([]extraction.PageResult, error) {
	workspace, err := os.MkdirTemp("", "xtract-olmocr-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	args := o.command.expand(map[string]string{"input": path, "workspace": workspace})
	if _, err := run(ctx, workspace, args); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, extraction.EngineError(models.EngineOlmOCR, "olmocr run failed", err)
	}

	raw, err := os.ReadFile(filepath.Join(workspace, "results", "output.jsonl"))
	if err != nil {
		return nil, extraction.EngineError(models.EngineOlmOCR, "expected output missing", err)
	}
	pages, err := ParseDolma(raw)
	if err != nil {
		return nil, extraction.EngineError(models.EngineOlmOCR, "decode output", err)
	}
	return pages, nil
}

// extractPages renders every page and runs the vision model on it. A page
// whose call fails is kept with empty text.
func (o *OlmOCR) extractPages(ctx context.Context, path string) ([]extraction.PageResult, error) {
	r, err := pdfdoc.OpenRenderer(path)
	if err != nil {
		return nil, extraction.EngineError(models.EngineOlmOCR, "open for rendering", err)
	}
	defer r.Close()

	n := r.NumPage()
	results := make([]extraction.PageResult, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := r.Render(i, o.RenderSpec())
		if err != nil {
			slog.Warn("Page render failed", "engine", models.EngineOlmOCR, "pageNumber", i, "error", err)
			results = append(results, extraction.PageResult{PageNumber: i})
			continue
		}
		res, err := o.vision.ExtractPage(ctx, img)
		if err != nil {
			slog.Warn("Page extraction failed", "engine", models.EngineOlmOCR, "pageNumber", i, "error", err)
			res = extraction.PageResult{PageNumber: i, PageWidth: img.PageWidth, PageHeight: img.PageHeight}
		}
		results = append(results, res)
	}
	return results, nil
}

type dolmaDoc struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Attributes struct {
		PDFPageNumbers [][]int `json:"pdf_page_numbers"`
	} `json:"attributes"`
	Metadata map[string]any `json:"metadata"`
}

// ParseDolma splits olmOCR's Dolma documents into pages. Each
// pdf_page_numbers entry is [start, end, page] with character offsets into
// the document text. Only pages that received text spans are returned, in
// page order.
func ParseDolma(raw []byte) ([]extraction.PageResult, error) {
	byPage := make(map[int]*extraction.PageResult)

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var doc dolmaDoc
		if err := json.Unmarshal(line, &doc); err != nil {
			return nil, fmt.Errorf("decode dolma line: %w", err)
		}
		runes := []rune(doc.Text)
		for _, span := range doc.Attributes.PDFPageNumbers {
			if len(span) != 3 {
				continue
			}
			start, end, page := span[0], span[1], span[2]
			if page < 1 {
				continue
			}
			start = max(0, min(start, len(runes)))
			end = max(start, min(end, len(runes)))
			res, ok := byPage[page]
			if !ok {
				res = &extraction.PageResult{PageNumber: page, EngineData: map[string]any{"document_id": doc.ID}}
				byPage[page] = res
			}
			res.Text += string(runes[start:end])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	results := make([]extraction.PageResult, 0, len(byPage))
	for _, p := range slices.Sorted(maps.Keys(byPage)) {
		results = append(results, *byPage[p])
	}
	return results, nil
}
