package engines

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pdfdoc"
)

// Layout reconstructs visual rows from glyph positions, which keeps table
// cells on the same line. Like Direct it reads only the text layer.
type Layout struct{}

func NewLayout() *Layout { return &Layout{} }

func (l *Layout) Name() models.EngineName { return models.EngineLayout }

func (l *Layout) Probe(ctx context.Context) extraction.Capability {
	return extraction.Capability{Available: true, Mode: extraction.ModeLocal}
}

func (l *Layout) ExtractDocument(ctx context.Context, path string) ([]extraction.PageResult, error) {
	tl, err := pdfdoc.OpenTextLayer(path)
	if err != nil {
		return nil, extraction.EngineError(models.EngineLayout, "open text layer", err)
	}
	defer tl.Close()

	sizes := pageSizes(path)
	n := tl.NumPage()
	results := make([]extraction.PageResult, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		size := pdfdoc.SizeAt(sizes, i)
		res := extraction.PageResult{PageNumber: i, PageWidth: size.Width, PageHeight: size.Height}

		rows, err := tl.PageRows(i)
		if err != nil {
			slog.Warn("Row layout failed, recording empty page", "engine", models.EngineLayout, "pageNumber", i, "error", err)
			results = append(results, res)
			continue
		}

		lines := make([]string, 0, len(rows))
		for _, r := range rows {
			lines = append(lines, r.Text)
			res.Blocks = append(res.Blocks, extraction.Block{
				Type: "row",
				Text: r.Text,
				// Flip to a top-left origin so boxes match rendered pages.
				BBox: &extraction.BBox{X0: r.X0, Y0: size.Height - r.Y1, X1: r.X1, Y1: size.Height - r.Y0},
			})
		}
		res.Text = strings.Join(lines, "\n")
		res.EngineData = map[string]any{"row_count": len(rows)}
		results = append(results, res)
	}
	return results, nil
}
