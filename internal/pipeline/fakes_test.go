package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/xtractme/internal/engines"
	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeDocEngine struct {
	name     models.EngineName
	pages    []extraction.PageResult
	err      error
	panicMsg string
	delay    time.Duration
	fallback models.EngineName
	calls    atomic.Int32
}

func (f *fakeDocEngine) Name() models.EngineName { return f.name }

func (f *fakeDocEngine) Probe(ctx context.Context) extraction.Capability {
	return extraction.Capability{Available: true, Mode: extraction.ModeLocal}
}

func (f *fakeDocEngine) Fallback() models.EngineName { return f.fallback }

func (f *fakeDocEngine) ExtractDocument(ctx context.Context, path string) ([]extraction.PageResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.pages, f.err
}

type fakePageEngine struct {
	name     models.EngineName
	text     string
	failPage int
	calls    atomic.Int32
}

func (f *fakePageEngine) Name() models.EngineName { return f.name }

func (f *fakePageEngine) Probe(ctx context.Context) extraction.Capability {
	return extraction.Capability{Available: true, Mode: extraction.ModeLocal}
}

func (f *fakePageEngine) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	f.calls.Add(1)
	if img.PageNumber == f.failPage {
		return extraction.PageResult{}, errors.New("model crashed")
	}
	return extraction.PageResult{
		PageNumber: img.PageNumber,
		Text:       f.text,
		Blocks:     []extraction.Block{{Type: "line", Text: f.text, Confidence: 0.9}},
	}, nil
}

type fakeGenerator struct {
	reply string
}

func (g fakeGenerator) Generate(ctx context.Context, png []byte, prompt string) (string, error) {
	return g.reply, nil
}

func (g fakeGenerator) Probe(ctx context.Context) extraction.Capability {
	return extraction.Capability{Available: true, Mode: extraction.ModeAPI}
}

// failingPages rejects every page write.
type failingPages struct {
	*store.Memory
}

func (failingPages) UpsertPage(ctx context.Context, page models.Page) error {
	return errors.New("disk full")
}

func newRegistry(extra ...extraction.Engine) *extraction.Registry {
	reg := extraction.NewRegistry()
	reg.Register(engines.NewDirect())
	reg.Register(engines.NewLayout())
	reg.Register(engines.NewTesseract("eng"))
	for _, e := range extra {
		reg.Register(e)
	}
	return reg
}

func newOrchestrator(reg *extraction.Registry) (*Orchestrator, *store.Memory) {
	st := store.NewMemory()
	return New(reg, st, st, Options{PageTimeout: 5 * time.Second, DocumentTimeout: 5 * time.Second}), st
}

func addDocument(t *testing.T, st store.DocumentStore, path string, engine models.EngineName) *models.Document {
	t.Helper()
	doc := &models.Document{Title: filepath.Base(path), FilePath: path, OCREngine: engine}
	require.NoError(t, st.SaveDocument(context.Background(), doc))
	return doc
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.Black)
	}
	path := filepath.Join(dir, "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func newMemory() *store.Memory { return store.NewMemory() }
