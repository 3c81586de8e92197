package pdfdoc

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Size is a page's media box size in points.
type Size struct {
	Width  float64
	Height float64
}

// Letter is used when a page's geometry cannot be read.
var Letter = Size{Width: 612, Height: 792}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()
	n, err := api.PageCount(f, relaxedConfig())
	if err != nil {
		return 0, fmt.Errorf("could not count pages of %s: %w", path, err)
	}
	return n, nil
}

// PageSizes returns the size of every page, in page order.
func PageSizes(path string) ([]Size, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()
	dims, err := api.PageDims(f, relaxedConfig())
	if err != nil {
		return nil, fmt.Errorf("could not read page dimensions of %s: %w", path, err)
	}
	sizes := make([]Size, len(dims))
	for i, d := range dims {
		sizes[i] = Size{Width: d.Width, Height: d.Height}
	}
	return sizes, nil
}

// SizeAt returns the size of 1-based page n, or Letter when unknown.
func SizeAt(sizes []Size, n int) Size {
	if n < 1 || n > len(sizes) {
		return Letter
	}
	return sizes[n-1]
}
