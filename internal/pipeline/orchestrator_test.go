package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/xtractme/internal/config"
	"github.com/Lllllllleong/xtractme/internal/engines"
	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc/pdftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectTextDocument(t *testing.T) {
	ctx := context.Background()
	path := pdftest.Write(t, t.TempDir(), "three.pdf", []string{"Page one", "Page two", "Page three"})
	orch, st := newOrchestrator(newRegistry())
	doc := addDocument(t, st, path, models.EngineDirect)

	res, err := orch.Process(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, PathWholeDocument, res.Path)

	pages, err := st.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNumber)
		assert.NotEmpty(t, strings.TrimSpace(p.Text))
		assert.Equal(t, false, p.JSONData["has_ocr"])
		assert.Equal(t, "direct", p.JSONData["extraction_method"])
		assert.Equal(t, "direct", p.JSONData["ocr_engine"])
		assert.Equal(t, 612.0, p.JSONData["page_width"])
	}
}

func TestScannedPageWithUnavailableOCR(t *testing.T) {
	ctx := context.Background()
	path := pdftest.Write(t, t.TempDir(), "scan.pdf", []string{""})
	reg := newRegistry()
	reg.Force(models.EngineTesseract, extraction.Capability{Reason: "not installed"})
	orch, st := newOrchestrator(reg)
	doc := addDocument(t, st, path, models.EngineTesseract)

	res, err := orch.Process(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, PathPerPage, res.Path)

	pages, _ := st.ListPages(ctx, doc.ID)
	require.Len(t, pages, 1)
	assert.Equal(t, "", strings.TrimSpace(pages[0].Text))
	assert.Equal(t, false, pages[0].JSONData["has_ocr"])
	assert.Equal(t, "tesseract", pages[0].JSONData["fallback_from"])
}

func TestDegenerateStructuredResultFallsBackInFamily(t *testing.T) {
	ctx := context.Background()
	path := pdftest.Write(t, t.TempDir(), "two.pdf", []string{"Layer text", ""})
	mineru := &fakeDocEngine{
		name:     models.EngineMinerU,
		pages:    []extraction.PageResult{{PageNumber: 1}, {PageNumber: 2, Text: "  "}},
		fallback: models.EngineDirect,
	}
	orch, st := newOrchestrator(newRegistry(mineru))
	doc := addDocument(t, st, path, models.EngineMinerU)

	res, err := orch.Process(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, PathFamilyFallback, res.Path)
	assert.Equal(t, models.EngineDirect, res.Engine)
	assert.EqualValues(t, 1, mineru.calls.Load())

	pages, _ := st.ListPages(ctx, doc.ID)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0].Text, "Layer text")
	assert.Empty(t, strings.TrimSpace(pages[1].Text))
	assert.Equal(t, "mineru", pages[0].JSONData["fallback_from"])
}

func TestVisionErrorMarkerOnImage(t *testing.T) {
	ctx := context.Background()
	path := writePNG(t, t.TempDir())
	vision := engines.NewVision(models.EngineDeepSeek, fakeGenerator{reply: "Error: model deepseek-ocr not found"})
	orch, st := newOrchestrator(newRegistry(vision))
	doc := addDocument(t, st, path, models.EngineDeepSeek)

	res, err := orch.Process(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, PathSingleShot, res.Path)

	pages, _ := st.ListPages(ctx, doc.ID)
	require.Len(t, pages, 1)
	assert.Equal(t, "", pages[0].Text)
	assert.Equal(t, "image", pages[0].JSONData["file_type"])
	assert.Equal(t, 40.0, pages[0].JSONData["page_width"])

	got, _ := st.GetDocument(ctx, doc.ID)
	assert.Equal(t, models.KindImage, got.Kind)
}

func TestImageUsesRequestedPageEngine(t *testing.T) {
	ctx := context.Background()
	path := writePNG(t, t.TempDir())
	vision := engines.NewVision(models.EngineLightOnOCR, fakeGenerator{reply: "```\nRECEIPT\n```"})
	orch, st := newOrchestrator(newRegistry(vision))
	doc := addDocument(t, st, path, models.EngineLightOnOCR)

	res, err := orch.Process(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, models.EngineLightOnOCR, res.Engine)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, "RECEIPT", res.Pages[0].Text)
	assert.Equal(t, "vlm", res.Pages[0].JSONData["extraction_method"])
}

func TestImageFallsBackToTesseractBaseline(t *testing.T) {
	ctx := context.Background()
	path := writePNG(t, t.TempDir())
	tess := &fakePageEngine{name: models.EngineTesseract, text: "scanned words"}
	orch, st := newOrchestrator(newRegistry(tess))
	doc := addDocument(t, st, path, models.EngineLayout)

	res, err := orch.Process(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, models.EngineTesseract, res.Engine)
	assert.Equal(t, "scanned words", res.Pages[0].Text)
	assert.Equal(t, "layout", res.Pages[0].JSONData["fallback_from"])
}

func TestPreconditions(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pdf"), 0o644))
	docx := filepath.Join(dir, "notes.docx")
	require.NoError(t, os.WriteFile(docx, []byte("x"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"no file", ""},
		{"missing on disk", filepath.Join(dir, "gone.pdf")},
		{"zero pages", pdftest.Write(t, dir, "empty.pdf", nil)},
		{"unopenable", garbage},
		{"unknown kind", docx},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			orch, st := newOrchestrator(newRegistry())
			doc := addDocument(t, st, tt.path, models.EngineDirect)

			_, err := orch.Process(ctx, doc)
			require.Error(t, err)
			assert.True(t, IsPrecondition(err))
			assert.ErrorIs(t, err, extraction.ErrPrecondition)

			pages, _ := st.ListPages(ctx, doc.ID)
			assert.Empty(t, pages)
			_, err = st.GetDocument(ctx, doc.ID)
			assert.NoError(t, err)
		})
	}
}

func TestFallbackGuaranteeForEveryEngine(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "four.pdf", []string{"a", "", "c", ""})

	for _, name := range models.Engines {
		t.Run(string(name), func(t *testing.T) {
			ctx := context.Background()
			reg, closeFn := engines.Build(config.DefaultConfig(), engines.Options{})
			defer closeFn()
			reg.Force(name, extraction.Capability{Reason: "forced off"})

			orch, st := newOrchestrator(reg)
			doc := addDocument(t, st, path, name)

			res, err := orch.Process(ctx, doc)
			require.NoError(t, err)
			require.Len(t, res.Pages, 4)
			for i, p := range res.Pages {
				assert.Equal(t, i+1, p.PageNumber)
			}
		})
	}
}

func TestValidationCorrectsEngine(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "one.pdf", []string{"text"})
	for _, stored := range []models.EngineName{"", "bogus", "PyMuPDF"} {
		t.Run(string(stored), func(t *testing.T) {
			ctx := context.Background()
			orch, st := newOrchestrator(newRegistry())
			doc := addDocument(t, st, path, stored)

			res, err := orch.Process(ctx, doc)
			require.NoError(t, err)
			assert.Equal(t, models.EngineDirect, res.Requested)

			got, err := st.GetDocument(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, models.EngineDirect, got.OCREngine)
		})
	}
}

func TestReprocessingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := pdftest.Write(t, t.TempDir(), "doc.pdf", []string{"alpha", "beta"})
	orch, st := newOrchestrator(newRegistry())
	doc := addDocument(t, st, path, models.EngineLayout)

	first, err := orch.Process(ctx, doc)
	require.NoError(t, err)
	second, err := orch.Process(ctx, doc)
	require.NoError(t, err)

	pages, _ := st.ListPages(ctx, doc.ID)
	require.Len(t, pages, 2)
	for i := range pages {
		assert.Equal(t, first.Pages[i].Text, second.Pages[i].Text)
		assert.Equal(t, first.Pages[i].PageNumber, pages[i].PageNumber)
		assert.Equal(t, "layout", pages[i].JSONData["ocr_engine"])
	}
}

func TestWholeDocumentPagesAreAligned(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "three.pdf", []string{"one", "two", "three"})

	tests := []struct {
		name  string
		pages []extraction.PageResult
		want  []string
	}{
		{
			name:  "out of order",
			pages: []extraction.PageResult{{PageNumber: 3, Text: "C"}, {PageNumber: 1, Text: "A"}, {PageNumber: 2, Text: "B"}},
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "unnumbered",
			pages: []extraction.PageResult{{Text: "A"}, {Text: "B"}},
			want:  []string{"A", "B", "three"},
		},
		{
			name:  "too many",
			pages: []extraction.PageResult{{PageNumber: 1, Text: "A"}, {PageNumber: 1, Text: "B"}, {Text: "C"}, {Text: "D"}},
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "gap",
			pages: []extraction.PageResult{{PageNumber: 1, Text: "A"}, {PageNumber: 3, Text: "C"}},
			want:  []string{"A", "two", "C"},
		},
		{
			name:  "stray number past the end",
			pages: []extraction.PageResult{{PageNumber: 1, Text: "A"}, {PageNumber: 3, Text: "C"}, {PageNumber: 50000001, Text: "Z"}},
			want:  []string{"A", "two", "C"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			olm := &fakeDocEngine{name: models.EngineOlmOCR, pages: tt.pages}
			orch, st := newOrchestrator(newRegistry(olm))
			doc := addDocument(t, st, path, models.EngineOlmOCR)

			res, err := orch.Process(context.Background(), doc)
			require.NoError(t, err)
			require.Len(t, res.Pages, len(tt.want))
			for i, p := range res.Pages {
				assert.Equal(t, i+1, p.PageNumber)
				assert.Contains(t, p.Text, tt.want[i])
			}
		})
	}
}

func TestFailingWholeDocumentEngines(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "two.pdf", []string{"first", "second"})

	tests := []struct {
		name   string
		engine *fakeDocEngine
	}{
		{"panics", &fakeDocEngine{name: models.EngineMinerU, panicMsg: "segfault in native code"}},
		{"errors", &fakeDocEngine{name: models.EngineMinerU, err: extraction.EngineError(models.EngineMinerU, "expected output missing", nil)}},
		{"hangs", &fakeDocEngine{name: models.EngineMinerU, delay: time.Minute}},
		{"no pages", &fakeDocEngine{name: models.EngineMinerU}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry(tt.engine)
			mem := newMemory()
			orch := New(reg, mem, mem, Options{
				PageTimeout:    time.Second,
				EngineTimeouts: map[models.EngineName]time.Duration{models.EngineMinerU: 50 * time.Millisecond},
			})
			doc := addDocument(t, mem, path, models.EngineMinerU)

			res, err := orch.Process(context.Background(), doc)
			require.NoError(t, err)
			assert.Equal(t, PathPerPage, res.Path)
			require.Len(t, res.Pages, 2)
			assert.Contains(t, res.Pages[1].Text, "second")
		})
	}
}

func TestPerPageOCRIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "scans.pdf", []string{"", "", "typed"})
	paddle := &fakePageEngine{name: models.EnginePaddleOCR, text: "recognized", failPage: 1}

	mem := newMemory()
	orch := New(newRegistry(paddle), mem, mem, Options{Images: DirSink{Dir: filepath.Join(dir, "images")}})
	doc := addDocument(t, mem, path, models.EnginePaddleOCR)

	res, err := orch.Process(ctx, doc)
	require.NoError(t, err)
	require.Len(t, res.Pages, 3)

	assert.Equal(t, "", res.Pages[0].Text)
	assert.Equal(t, "direct", res.Pages[0].JSONData["ocr_engine"])

	assert.Equal(t, "recognized", res.Pages[1].Text)
	assert.Equal(t, "paddleocr", res.Pages[1].JSONData["ocr_engine"])
	assert.Equal(t, true, res.Pages[1].JSONData["has_ocr"])
	assert.Equal(t, extraction.DefaultRender.DPI, res.Pages[1].JSONData["render_dpi"])
	assert.FileExists(t, res.Pages[1].ImageRef)

	assert.Contains(t, res.Pages[2].Text, "typed")
	assert.EqualValues(t, 2, paddle.calls.Load())
}

func TestStoreErrorsAreReturned(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "one.pdf", []string{"text"})
	mem := newMemory()
	orch := New(newRegistry(), mem, failingPages{mem}, Options{})
	doc := addDocument(t, mem, path, models.EngineDirect)

	_, err := orch.Process(context.Background(), doc)
	require.Error(t, err)
	assert.False(t, IsPrecondition(err))
	assert.ErrorContains(t, err, "disk full")
}
