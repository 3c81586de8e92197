package pdfdoc

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// LoadImage decodes an image document and re-encodes it as a single PNG
// page. Page geometry is reported in pixels.
func LoadImage(path string) (extraction.PageImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return extraction.PageImage{}, fmt.Errorf("could not open image %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return extraction.PageImage{}, fmt.Errorf("could not decode image %s: %w", path, err)
	}
	data, err := EncodePNG(img)
	if err != nil {
		return extraction.PageImage{}, fmt.Errorf("could not encode %s image as PNG: %w", format, err)
	}

	b := img.Bounds()
	return extraction.PageImage{
		PageNumber: 1,
		PNG:        data,
		Width:      b.Dx(),
		Height:     b.Dy(),
		PageWidth:  float64(b.Dx()),
		PageHeight: float64(b.Dy()),
	}, nil
}
