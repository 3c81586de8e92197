package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"report.pdf", KindPDF},
		{"REPORT.PDF", KindPDF},
		{"scan.jpeg", KindImage},
		{"scan.PNG", KindImage},
		{"fax.tiff", KindImage},
		{"notes.docx", KindUnknown},
		{"noext", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectKind(tt.name))
		})
	}
}

func TestResolveKind_OnlyWhenUnset(t *testing.T) {
	doc := &Document{FilePath: "/tmp/a.pdf"}
	assert.True(t, doc.ResolveKind())
	assert.Equal(t, KindPDF, doc.Kind)

	doc.FilePath = "/tmp/a.png"
	assert.False(t, doc.ResolveKind())
	assert.Equal(t, KindPDF, doc.Kind)
}

func TestParseEngine(t *testing.T) {
	tests := []struct {
		in     string
		want   EngineName
		wantOK bool
	}{
		{"direct", EngineDirect, true},
		{" Tesseract ", EngineTesseract, true},
		{"pymupdf", EngineDirect, true},
		{"pdfplumber", EngineLayout, true},
		{"lightonocr", EngineLightOnOCR, true},
		{"", "", false},
		{"easyocr", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseEngine(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngineMethod(t *testing.T) {
	assert.Equal(t, MethodDirect, EngineLayout.Method())
	assert.Equal(t, MethodOCR, EngineTesseract.Method())
	assert.Equal(t, MethodVLM, EngineDeepSeek.Method())
	assert.False(t, EngineDirect.UsesOCR())
	assert.True(t, EngineMinerU.UsesOCR())
}

func TestTotalTextLength(t *testing.T) {
	pages := []Page{{Text: "Hello"}, {Text: "World"}, {}}
	assert.Equal(t, 10, TotalTextLength(pages))
}

func TestTotalPages(t *testing.T) {
	pages := []Page{{PageNumber: 1}, {PageNumber: 2}, {PageNumber: 2}}
	assert.Equal(t, 2, TotalPages(pages))
	assert.Equal(t, 0, TotalPages(nil))
}
