package engines

import (
	"sort"
	"strings"

	"github.com/Lllllllleong/xtractme/internal/extraction"
)

// TesseractDPI is the fixed render resolution for classical OCR.
const TesseractDPI = 300.0

// LineTolerance is how far, in pixels, a word's vertical center may sit from
// a line's running center and still join it.
const LineTolerance = 10.0

// Word is one recognized word with its pixel box.
type Word struct {
	Text       string
	Box        extraction.BBox
	Confidence float64 // 0..1
}

// Line is a group of words sharing a baseline.
type Line struct {
	Words  []Word
	Box    extraction.BBox
	center float64
}

// Text joins the line's words with single spaces.
func (l Line) Text() string {
	parts := make([]string, 0, len(l.Words))
	for _, w := range l.Words {
		parts = append(parts, w.Text)
	}
	return strings.Join(parts, " ")
}

// Confidence averages the word confidences.
func (l Line) Confidence() float64 {
	if len(l.Words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range l.Words {
		sum += w.Confidence
	}
	return sum / float64(len(l.Words))
}

// GroupLines clusters words into lines. Words are visited top to bottom and
// join the first line whose running center is within tolerance. Lines come
// back top to bottom, words left to right.
func GroupLines(words []Word, tolerance float64) []Line {
	sorted := make([]Word, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w.Text) != "" {
			sorted = append(sorted, w)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Box.CenterY() < sorted[j].Box.CenterY()
	})

	var lines []Line
	for _, w := range sorted {
		cy := w.Box.CenterY()
		joined := false
		for i := range lines {
			l := &lines[i]
			if abs(cy-l.center) <= tolerance {
				n := float64(len(l.Words))
				l.center = (l.center*n + cy) / (n + 1)
				l.Words = append(l.Words, w)
				l.Box = l.Box.Union(w.Box)
				joined = true
				break
			}
		}
		if !joined {
			lines = append(lines, Line{Words: []Word{w}, Box: w.Box, center: cy})
		}
	}

	for i := range lines {
		ws := lines[i].Words
		sort.SliceStable(ws, func(a, b int) bool { return ws[a].Box.X0 < ws[b].Box.X0 })
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Box.Y0 < lines[j].Box.Y0 })
	return lines
}

// LineBlocks converts lines to line blocks and their joined text.
func LineBlocks(lines []Line) ([]extraction.Block, string) {
	blocks := make([]extraction.Block, 0, len(lines))
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		box := l.Box
		t := l.Text()
		blocks = append(blocks, extraction.Block{Type: "line", Text: t, BBox: &box, Confidence: l.Confidence()})
		texts = append(texts, t)
	}
	return blocks, strings.Join(texts, "\n")
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
