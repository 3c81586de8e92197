// Package pdfdoc wraps the PDF libraries used by the extraction engines:
// the embedded text layer, page geometry, and page rendering.
package pdfdoc

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextLayer reads the embedded text of a PDF.
type TextLayer struct {
	f *os.File
	r *pdf.Reader
}

// Row is one visual line of the text layer in PDF user space (origin at the
// bottom-left corner of the page).
type Row struct {
	Text string
	X0   float64
	Y0   float64
	X1   float64
	Y1   float64
}

// OpenTextLayer opens path for text extraction. Malformed files that make
// the parser panic are reported as errors.
func OpenTextLayer(path string) (tl *TextLayer, err error) {
	defer func() {
		if r := recover(); r != nil {
			tl, err = nil, fmt.Errorf("could not parse PDF %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read PDF %s: %w", path, err)
	}
	return &TextLayer{f: f, r: r}, nil
}

// NumPage returns the number of pages in the document.
func (t *TextLayer) NumPage() int {
	return t.r.NumPage()
}

// Close releases the underlying file.
func (t *TextLayer) Close() error {
	return t.f.Close()
}

// PageText returns the plain text of the 1-based page n.
func (t *TextLayer) PageText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: text layer panicked: %v", n, r)
		}
	}()
	if n < 1 || n > t.r.NumPage() {
		return "", fmt.Errorf("page %d out of range 1..%d", n, t.r.NumPage())
	}
	page := t.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", n, err)
	}
	return text, nil
}

// PageRows returns the visual rows of page n, top to bottom.
func (t *TextLayer) PageRows(n int) (rows []Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("page %d: row layout panicked: %v", n, r)
		}
	}()
	if n < 1 || n > t.r.NumPage() {
		return nil, fmt.Errorf("page %d out of range 1..%d", n, t.r.NumPage())
	}
	page := t.r.Page(n)
	if page.V.IsNull() {
		return nil, nil
	}
	pdfRows, err := page.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", n, err)
	}

	for _, pr := range pdfRows {
		if row, ok := buildRow(pr.Content); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func buildRow(glyphs []pdf.Text) (Row, bool) {
	if len(glyphs) == 0 {
		return Row{}, false
	}
	var sb strings.Builder
	row := Row{X0: math.MaxFloat64, Y0: math.MaxFloat64}
	prevEnd := math.NaN()
	for _, g := range glyphs {
		// A gap wider than a quarter em between glyph runs is a word break.
		if !math.IsNaN(prevEnd) && g.X-prevEnd > g.FontSize/4 && !strings.HasSuffix(sb.String(), " ") {
			sb.WriteByte(' ')
		}
		sb.WriteString(g.S)
		prevEnd = g.X + g.W

		row.X0 = math.Min(row.X0, g.X)
		row.X1 = math.Max(row.X1, g.X+g.W)
		row.Y0 = math.Min(row.Y0, g.Y)
		row.Y1 = math.Max(row.Y1, g.Y+g.FontSize)
	}
	row.Text = strings.TrimSpace(sb.String())
	if row.Text == "" {
		return Row{}, false
	}
	return row, true
}
