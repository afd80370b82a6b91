package watermark

import (
	"image"
	"image/draw"
	"runtime"
	"sync"
)

const (
	// DefaultDarkSum is the channel sum below which a pixel is always kept.
	DefaultDarkSum = 350
	// DefaultTolerance is the largest pairwise channel difference a bright
	// pixel may have and still count as gray.
	DefaultTolerance = 40
)

// Filter classifies pixels as content (dark or gray) or watermark (colored)
// and whitens the watermark pixels. The zero value uses the default
// thresholds.
type Filter struct {
	// DarkSum is the r+g+b sum below which a pixel is content regardless of
	// its color balance. Zero means DefaultDarkSum.
	DarkSum int `yaml:"dark_sum"`

	// Tolerance is the maximal pairwise channel difference of a gray pixel.
	// Zero means DefaultTolerance.
	Tolerance int `yaml:"tolerance"`

	// Workers is the number of goroutines used by Apply. Zero means
	// runtime.GOMAXPROCS(0).
	Workers int `yaml:"-"`
}

var defaultFilter Filter

// IsGray reports whether the pixel (r, g, b) is content, using the default
// thresholds.
func IsGray(r, g, b uint8) bool {
	return defaultFilter.IsGray(r, g, b)
}

// IsGray reports whether the pixel (r, g, b) is content. Dark pixels are
// always content, so that slightly tinted black text survives; brighter
// pixels must have balanced channels.
func (f Filter) IsGray(r, g, b uint8) bool {
	darkSum, tol := f.thresholds()

	ri, gi, bi := int(r), int(g), int(b)
	if ri+gi+bi < darkSum {
		return true
	}
	if absDiff(ri, gi) > tol {
		return false
	}
	if absDiff(ri, bi) > tol {
		return false
	}
	if absDiff(gi, bi) > tol {
		return false
	}
	return true
}

func (f Filter) thresholds() (int, int) {
	darkSum, tol := f.DarkSum, f.Tolerance
	if darkSum == 0 {
		darkSum = DefaultDarkSum
	}
	if tol == 0 {
		tol = DefaultTolerance
	}
	return darkSum, tol
}

// RemoveWatermark applies the default filter to a copy of img. The result is
// returned as a new *image.RGBA.
func RemoveWatermark(img image.Image) *image.RGBA {
	rgba := cloneToRGBA(img)
	defaultFilter.Apply(rgba)
	return rgba
}

// Apply replaces every watermark pixel of img with opaque white. It mutates
// the provided RGBA buffer in place and returns the number of replaced
// pixels. Alpha is ignored for classification.
func (f Filter) Apply(img *image.RGBA) int {
	bounds := img.Bounds()
	height := bounds.Dy()
	if bounds.Empty() {
		return 0
	}

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > height {
		workers = height
	}

	rowsPerBand := (height + workers - 1) / workers
	counts := make([]int, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		y0 := bounds.Min.Y + w*rowsPerBand
		y1 := min(y0+rowsPerBand, bounds.Max.Y)
		if y0 >= y1 {
			continue
		}
		wg.Add(1)
		go func(w, y0, y1 int) {
			defer wg.Done()
			counts[w] = f.applyRows(img, y0, y1)
		}(w, y0, y1)
	}
	wg.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

// applyRows filters the rows y0 <= y < y1 of img.
func (f Filter) applyRows(img *image.RGBA, y0, y1 int) int {
	bounds := img.Bounds()
	replaced := 0
	for y := y0; y < y1; y++ {
		offset := img.PixOffset(bounds.Min.X, y)
		row := img.Pix[offset : offset+4*bounds.Dx()]
		for i := 0; i < len(row); i += 4 {
			if f.IsGray(row[i], row[i+1], row[i+2]) {
				continue
			}
			row[i] = 0xFF
			row[i+1] = 0xFF
			row[i+2] = 0xFF
			row[i+3] = 0xFF
			replaced++
		}
	}
	return replaced
}

// cloneToRGBA copies the image into a mutable RGBA buffer.
func cloneToRGBA(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
