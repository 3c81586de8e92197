package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xtract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, models.EngineDirect, cfg.Pipeline.DefaultEngine)
	assert.Len(t, cfg.Engines, len(models.Engines))
	assert.Equal(t, "ollama", cfg.Engine(models.EngineDeepSeek).Provider)
	assert.False(t, cfg.Engine("unknown").Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
store:
  driver: firestore
pipeline:
  default_engine: pdfplumber
  page_timeout: 45s
  concurrency: 4
engines:
  deepseek:
    enabled: true
    mode: api
    provider: http
    api_url: http://ocr.internal:8001
    timeout: 90s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "firestore", cfg.Store.Driver)
	assert.Equal(t, models.EngineLayout, cfg.Pipeline.DefaultEngine)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.PageTimeout)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)

	ds := cfg.Engine(models.EngineDeepSeek)
	assert.Equal(t, "http", ds.Provider)
	assert.Equal(t, "http://ocr.internal:8001", ds.APIURL)
	assert.Equal(t, 90*time.Second, ds.Timeout)

	assert.True(t, cfg.Engine(models.EngineTesseract).Enabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown default engine", "pipeline:\n  default_engine: easyocr\n"},
		{"unknown store", "store:\n  driver: postgres\n"},
		{"unknown engine section", "engines:\n  easyocr:\n    enabled: true\n"},
		{"bad mode", "engines:\n  trocr:\n    mode: remote\n"},
		{"bad provider", "engines:\n  lightonocr:\n    provider: anthropic\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XTRACT_DEFAULT_ENGINE", "tesseract")
	t.Setenv("XTRACT_TROCR_API_URL", "http://trocr:9000")
	t.Setenv("XTRACT_TROCR_TIMEOUT", "10s")
	t.Setenv("XTRACT_MINERU_ENABLED", "false")
	t.Setenv("DEEPSEEK_OCR_API_URL", "http://deepseek:8001")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, models.EngineTesseract, cfg.Pipeline.DefaultEngine)
	assert.Equal(t, "http://trocr:9000", cfg.Engine(models.EngineTrOCR).APIURL)
	assert.Equal(t, 10*time.Second, cfg.Engine(models.EngineTrOCR).Timeout)
	assert.False(t, cfg.Engine(models.EngineMinerU).Enabled)

	ds := cfg.Engine(models.EngineDeepSeek)
	assert.Equal(t, "api", ds.Mode)
	assert.Equal(t, "http", ds.Provider)
	assert.Equal(t, "http://deepseek:8001", ds.APIURL)
}
