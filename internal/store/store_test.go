package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/xtractme/internal/config"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "xtract.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	all := map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
	if fs := emulatorStore(t); fs != nil {
		all["firestore"] = fs
	}
	return all
}

func page(docID string, n int, text string) models.Page {
	return models.Page{
		DocumentID: docID,
		PageNumber: n,
		Text:       text,
		JSONData:   map[string]any{"page_number": n, "text": text, "ocr_engine": "direct"},
	}
}

func TestDocumentLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := &models.Document{Title: "Spec sheet", FilePath: "/tmp/a.pdf", FileHash: "abc", Kind: models.KindPDF}
			require.NoError(t, s.SaveDocument(ctx, doc))
			require.NotEmpty(t, doc.ID)
			assert.False(t, doc.CreatedAt.IsZero())

			got, err := s.GetDocument(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, "Spec sheet", got.Title)
			assert.Equal(t, models.KindPDF, got.Kind)

			require.NoError(t, s.UpdateEngine(ctx, doc.ID, models.EngineMinerU))
			require.NoError(t, s.MarkProcessing(ctx, doc.ID))
			got, _ = s.GetDocument(ctx, doc.ID)
			assert.Equal(t, models.EngineMinerU, got.OCREngine)
			assert.Equal(t, models.StatusProcessing, got.Status)

			require.NoError(t, s.MarkFailed(ctx, doc.ID, "boom"))
			got, _ = s.GetDocument(ctx, doc.ID)
			assert.Equal(t, models.StatusFailed, got.Status)
			assert.Equal(t, "boom", got.ErrorDetails)

			require.NoError(t, s.MarkProcessed(ctx, doc.ID, models.EngineMinerU, 3))
			got, _ = s.GetDocument(ctx, doc.ID)
			assert.Equal(t, models.StatusProcessed, got.Status)
			assert.Equal(t, models.EngineMinerU, got.ProcessedEngine)
			assert.Equal(t, 3, got.PageCount)
			assert.Empty(t, got.ErrorDetails)

			found, err := s.FindByHash(ctx, "abc")
			require.NoError(t, err)
			assert.Equal(t, doc.ID, found.ID)

			docs, err := s.ListDocuments(ctx)
			require.NoError(t, err)
			assert.Len(t, docs, 1)
		})
	}
}

func TestMissingDocument(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.GetDocument(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.FindByHash(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.UpdateEngine(ctx, "nope", models.EngineDirect), ErrNotFound)
			assert.ErrorIs(t, s.MarkProcessed(ctx, "nope", models.EngineDirect, 1), ErrNotFound)
		})
	}
}

func TestPagesUpsertAndOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := &models.Document{Title: "d"}
			require.NoError(t, s.SaveDocument(ctx, doc))

			for _, n := range []int{3, 1, 2} {
				require.NoError(t, s.UpsertPage(ctx, page(doc.ID, n, "first")))
			}
			// Same key replaces instead of duplicating.
			require.NoError(t, s.UpsertPage(ctx, page(doc.ID, 2, "second")))

			pages, err := s.ListPages(ctx, doc.ID)
			require.NoError(t, err)
			require.Len(t, pages, 3)
			for i, p := range pages {
				assert.Equal(t, i+1, p.PageNumber)
			}
			assert.Equal(t, "second", pages[1].Text)
			assert.Equal(t, "direct", pages[1].JSONData["ocr_engine"])

			require.NoError(t, s.DeletePages(ctx, doc.ID))
			pages, err = s.ListPages(ctx, doc.ID)
			require.NoError(t, err)
			assert.Empty(t, pages)
		})
	}
}

func TestSQLiteRejectsOrphanPages(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	err = s.UpsertPage(context.Background(), page("missing", 1, "x"))
	assert.Error(t, err)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xtract.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	doc := &models.Document{Title: "kept", OCREngine: models.EngineLayout}
	require.NoError(t, s.SaveDocument(ctx, doc))
	require.NoError(t, s.UpsertPage(ctx, page(doc.ID, 1, "hello")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EngineLayout, got.OCREngine)
	pages, err := s.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, float64(1), pages[0].JSONData["page_number"])
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "mongo"
	_, err := Open(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown store driver")
}
