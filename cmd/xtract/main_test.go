package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc/pdftest"
	"github.com/Lllllllleong/xtractme/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type harness struct {
	t      *testing.T
	dir    string
	config string
	dbPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "xtract.db")
	cfgPath := filepath.Join(dir, "xtract.yaml")
	cfg := fmt.Sprintf("log:\n  level: error\n  format: text\nstore:\n  driver: sqlite\n  sqlite_path: %s\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return &harness{t: t, dir: dir, config: cfgPath, dbPath: dbPath}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"xtract", "--config", h.config}, args...))
	return out.String(), err
}

func (h *harness) documents() []*models.Document {
	h.t.Helper()
	st, err := store.OpenSQLite(h.dbPath)
	require.NoError(h.t, err)
	defer st.Close()
	docs, err := st.ListDocuments(context.Background())
	require.NoError(h.t, err)
	return docs
}

func TestAddProcessAndInspect(t *testing.T) {
	h := newHarness(t)
	pdf := pdftest.Write(t, h.dir, "manual.pdf", []string{"installation guide", "maintenance"})

	out, err := h.run("add", "--title", "Manual", pdf)
	require.NoError(t, err)
	assert.Contains(t, out, "PROCESSED, engine direct, 2 pages")

	docs := h.documents()
	require.Len(t, docs, 1)
	id := docs[0].ID
	assert.Equal(t, "Manual", docs[0].Title)

	out, err = h.run("pages", "--json", id)
	require.NoError(t, err)
	assert.Contains(t, out, "2 pages")
	assert.Contains(t, out, "installation guide")
	assert.Contains(t, out, `"extraction_method": "direct"`)

	out, err = h.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Total: 1 documents")

	out, err = h.run("update", "--title", "Service Manual", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Service Manual")

	out, err = h.run("set-engine", id, "direct")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to do")

	out, err = h.run("set-engine", id, "layout")
	require.NoError(t, err)
	assert.Contains(t, out, "engine layout, 2 pages")

	out, err = h.run("process", "--changed", id)
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")

	out, err = h.run("process", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed: 1  Skipped: 0  Failed: 0")
}

func TestProcessReportsFailures(t *testing.T) {
	h := newHarness(t)
	good := pdftest.Write(t, h.dir, "good.pdf", []string{"fine"})
	_, err := h.run("add", good)
	require.NoError(t, err)

	broken := filepath.Join(h.dir, "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("not a pdf"), 0o644))
	_, err = h.run("add", broken)
	require.Error(t, err)

	out, err := h.run("process", "--all")
	require.Error(t, err)
	assert.Contains(t, out, "Processed: 1  Skipped: 0  Failed: 1")

	for _, d := range h.documents() {
		if d.Title == "broken.pdf" {
			assert.Equal(t, models.StatusFailed, d.Status)
			assert.NotEmpty(t, d.ErrorDetails)
		}
	}
}

func TestProcessSyncsRepeatedIDsOnce(t *testing.T) {
	h := newHarness(t)
	pdf := pdftest.Write(t, h.dir, "notes.pdf", []string{"one", "two"})
	_, err := h.run("add", pdf)
	require.NoError(t, err)
	id := h.documents()[0].ID

	out, err := h.run("process", id, id, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed: 1  Skipped: 0  Failed: 0")

	out, err = h.run("pages", id)
	require.NoError(t, err)
	assert.Contains(t, out, "2 pages")
}

func TestEnginesTable(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("--disable", "layout", "engines")
	require.NoError(t, err)
	assert.Regexp(t, `direct\s+true`, out)
	assert.Regexp(t, `layout\s+false\s+\S*\s*disabled on the command line`, out)
	for _, name := range models.Engines {
		assert.Contains(t, out, string(name))
	}
}

func TestRejectsUnknownEngine(t *testing.T) {
	h := newHarness(t)
	pdf := pdftest.Write(t, h.dir, "a.pdf", []string{"x"})

	_, err := h.run("add", "--engine", "easyocr", pdf)
	assert.ErrorContains(t, err, "unknown engine")

	_, err = h.run("--disable", "easyocr", "engines")
	assert.ErrorContains(t, err, "unknown engine")
}
