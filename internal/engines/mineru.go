package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
)

const defaultMinerUArgs = "-p {input} -o {workspace} -b pipeline"

// SourcePublisher makes a local file fetchable by a remote service. The
// returned cleanup removes the published copy.
type SourcePublisher interface {
	Publish(ctx context.Context, path string) (url string, cleanup func(), err error)
}

// MinerU runs structured document understanding over a whole PDF, either as
// a local CLI or through the hosted task API.
type MinerU struct {
	mode      extraction.Mode
	command   commandLine
	apiURL    string
	token     string
	publisher SourcePublisher
	poll      time.Duration
}

// NewMinerULocal runs the mineru CLI. A bare executable gets the default
// pipeline arguments appended.
func NewMinerULocal(command string) *MinerU {
	cmd := parseCommand(command)
	if len(cmd) == 0 {
		cmd = parseCommand("mineru")
	}
	if !cmd.has("{input}") {
		cmd = append(cmd, parseCommand(defaultMinerUArgs)...)
	}
	return &MinerU{mode: extraction.ModeLocal, command: cmd}
}

// NewMinerUAPI uses the hosted task API. The publisher exposes the source
// file to the service by URL.
func NewMinerUAPI(apiURL, token string, publisher SourcePublisher) *MinerU {
	return &MinerU{
		mode:      extraction.ModeAPI,
		apiURL:    apiURL,
		token:     token,
		publisher: publisher,
		poll:      5 * time.Second,
	}
}

func (m *MinerU) Name() models.EngineName { return models.EngineMinerU }

// Fallback names the engine tried when MinerU produces nothing usable.
func (m *MinerU) Fallback() models.EngineName { return models.EngineDirect }

func (m *MinerU) Probe(ctx context.Context) extraction.Capability {
	if m.mode == extraction.ModeAPI {
		if m.publisher == nil {
			return extraction.Capability{Mode: extraction.ModeAPI, Endpoint: m.apiURL, Reason: "no source publisher configured"}
		}
		if m.token == "" {
			return extraction.Capability{Mode: extraction.ModeAPI, Endpoint: m.apiURL, Reason: "no api_key configured"}
		}
		return probeHTTP(ctx, m.apiURL)
	}
	path, err := m.command.lookPath()
	if err != nil {
		return extraction.Capability{Mode: extraction.ModeLocal, Reason: fmt.Sprintf("mineru not installed: %v", err)}
	}
	return extraction.Capability{Available: true, Mode: extraction.ModeLocal, Endpoint: path}
}

func (m *MinerU) ExtractDocument(ctx context.Context, path string) ([]extraction.PageResult, error) {
	if m.mode == extraction.ModeAPI {
		return m.extractAPI(ctx, path)
	}
	return m.extractLocal(ctx, path)
}

func (m *MinerU) extractLocal(ctx context.Context, path string) ([]extraction.PageResult, error) {
	workspace, err := os.MkdirTemp("", "xtract-mineru-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	args := m.command.expand(map[string]string{"input": path, "workspace": workspace})
	if _, err := run(ctx, workspace, args); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, extraction.EngineError(models.EngineMinerU, "mineru run failed", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(workspace, stem, "auto", stem+"_middle.json")
	raw, err := os.ReadFile(out)
	if err != nil {
		return nil, extraction.EngineError(models.EngineMinerU, "expected output missing", err)
	}
	pages, err := ParseMiddleJSON(raw)
	if err != nil {
		return nil, extraction.EngineError(models.EngineMinerU, "decode middle json", err)
	}
	return pages, nil
}

type middleSpan struct {
	Content string `json:"content"`
	HTML    string `json:"html"`
}

type middleLine struct {
	Spans []middleSpan `json:"spans"`
}

type middleBlock struct {
	Type   string        `json:"type"`
	BBox   []float64     `json:"bbox"`
	Text   string        `json:"text"`
	Lines  []middleLine  `json:"lines"`
	Blocks []middleBlock `json:"blocks"`
}

func (b middleBlock) text() string {
	if b.Text != "" {
		return b.Text
	}
	var lines []string
	for _, l := range b.Lines {
		var spans []string
		for _, s := range l.Spans {
			switch {
			case s.Content != "":
				spans = append(spans, s.Content)
			case s.HTML != "":
				spans = append(spans, s.HTML)
			}
		}
		if len(spans) > 0 {
			lines = append(lines, strings.Join(spans, " "))
		}
	}
	for _, child := range b.Blocks {
		if t := child.text(); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

type middlePage struct {
	PageIdx    *int          `json:"page_idx"`
	PageSize   []float64     `json:"page_size"`
	ParaBlocks []middleBlock `json:"para_blocks"`
	Blocks     []middleBlock `json:"blocks"`
}

type middleDoc struct {
	PDFInfo []json.RawMessage `json:"pdf_info"`
	Pages   []json.RawMessage `json:"pages"`
}

// ParseMiddleJSON decodes MinerU's intermediate document into page results.
// Both the current pdf_info layout and the older pages/blocks layout are read.
func ParseMiddleJSON(raw []byte) ([]extraction.PageResult, error) {
	var doc middleDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	pages := doc.PDFInfo
	if len(pages) == 0 {
		pages = doc.Pages
	}
	if len(pages) == 0 {
		return nil, errors.New("no pages in middle json")
	}

	results := make([]extraction.PageResult, 0, len(pages))
	for i, rawPage := range pages {
		var p middlePage
		if err := json.Unmarshal(rawPage, &p); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		num := i + 1
		if p.PageIdx != nil {
			num = *p.PageIdx + 1
		}
		res := extraction.PageResult{PageNumber: num}
		if len(p.PageSize) == 2 {
			res.PageWidth, res.PageHeight = p.PageSize[0], p.PageSize[1]
		}

		blocks := p.ParaBlocks
		if len(blocks) == 0 {
			blocks = p.Blocks
		}
		for _, b := range blocks {
			t := b.text()
			if strings.TrimSpace(t) == "" {
				continue
			}
			blk := extraction.Block{Type: b.Type, Text: t}
			if blk.Type == "" {
				blk.Type = "text"
			}
			if len(b.BBox) == 4 {
				blk.BBox = &extraction.BBox{X0: b.BBox[0], Y0: b.BBox[1], X1: b.BBox[2], Y1: b.BBox[3]}
			}
			res.Blocks = append(res.Blocks, blk)
		}
		res.Text = extraction.JoinBlocks(res.Blocks, "\n\n")

		var data map[string]any
		if err := json.Unmarshal(rawPage, &data); err == nil {
			res.EngineData = data
		}
		results = append(results, res)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].PageNumber < results[j].PageNumber })
	return results, nil
}
