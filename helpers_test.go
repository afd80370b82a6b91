package watermark

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"testing"

	"github.com/gcslaoli/pdf-watermark-remover-go/internal/pdftest"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// rawStrip returns a sub-image with uncompressed RGB samples of one color.
func rawStrip(name string, key, w, h int, c color.RGBA) SubImage {
	data := make([]byte, 0, 3*w*h)
	for i := 0; i < w*h; i++ {
		data = append(data, c.R, c.G, c.B)
	}
	return SubImage{
		Name:   name,
		Key:    key,
		Width:  w,
		Height: h,
		Payload: RawPixels{
			Mode:             ColorRGB,
			Width:            w,
			Height:           h,
			BitsPerComponent: 8,
			Data:             data,
		},
	}
}

func writeTestPDF(t *testing.T, pages []pdftest.Page) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	if err := pdftest.WriteFile(path, pages); err != nil {
		t.Fatalf("write test PDF: %v", err)
	}
	return path
}

// meanColor averages the pixels of img inside r.
func meanColor(img image.Image, r image.Rectangle) (float64, float64, float64) {
	var sr, sg, sb float64
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			sr += float64(c.R)
			sg += float64(c.G)
			sb += float64(c.B)
			n++
		}
	}
	return sr / float64(n), sg / float64(n), sb / float64(n)
}

func imagesEqual(a, b image.Image) bool {
	if !a.Bounds().Eq(b.Bounds()) {
		return false
	}

	ab := imageToNRGBA(a)
	bb := imageToNRGBA(b)

	return bytes.Equal(ab.Pix, bb.Pix)
}

func imageToNRGBA(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	return out
}
