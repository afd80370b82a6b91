package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/ccitt"
)

// ColorMode is the pixel layout of a raw image stream.
type ColorMode int

const (
	// ColorUnsupported marks color spaces without a known pixel layout.
	ColorUnsupported ColorMode = iota
	// ColorRGB has three 8-bit samples per pixel.
	ColorRGB
	// ColorPaletteIndexed has one sample per pixel, looked up in a palette.
	ColorPaletteIndexed
)

func (m ColorMode) String() string {
	switch m {
	case ColorRGB:
		return "RGB"
	case ColorPaletteIndexed:
		return "P"
	default:
		return "unsupported"
	}
}

// Payload is the pixel data of one sub-image. It is one of RawPixels,
// EncodedBlob or FaxBlob.
type Payload interface {
	// Decode converts the payload into an image.
	Decode() (image.Image, error)
}

// maxPixels bounds the size of every decoded image and of the page canvas.
const maxPixels = 1 << 28

// checkSize reports an error for dimensions which are not positive or which
// would exceed maxPixels.
func checkSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if width > maxPixels/height {
		return fmt.Errorf("image dimensions %dx%d exceed %d pixels", width, height, maxPixels)
	}
	return nil
}

// RawPixels holds uncompressed samples, stored row by row with each row
// starting on a byte boundary.
type RawPixels struct {
	Mode             ColorMode
	Width, Height    int
	BitsPerComponent int
	// Palette is used for ColorPaletteIndexed. A nil palette means an
	// implied grayscale ramp over the 2^BitsPerComponent sample values.
	Palette color.Palette
	// Invert reverses the implied grayscale ramp, for a /Decode [1 0]
	// array. It is ignored when Palette is set.
	Invert bool
	Data   []byte
}

// EncodedBlob holds a self-describing image file, typically a JPEG stream.
type EncodedBlob struct {
	Data []byte
}

// FaxBlob holds CCITT group 3 (1-D) or group 4 encoded bilevel data.
type FaxBlob struct {
	Width, Height int
	Group4        bool
	Align         bool
	// Invert swaps black and white, for BlackIs1 or a /Decode [1 0] array.
	Invert bool
	Data   []byte
}

// Decode implements the Payload interface.
func (p RawPixels) Decode() (image.Image, error) {
	if err := checkSize(p.Width, p.Height); err != nil {
		return nil, err
	}

	switch p.Mode {
	case ColorRGB:
		if p.BitsPerComponent != 8 {
			return nil, fmt.Errorf("%w: RGB with %d bits per component",
				ErrUnsupportedColorSpace, p.BitsPerComponent)
		}
		need := 3 * p.Width * p.Height
		if len(p.Data) < need {
			return nil, fmt.Errorf("short RGB data: have %d bytes, want %d", len(p.Data), need)
		}
		img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
		src := p.Data
		for i := 0; i < p.Width*p.Height; i++ {
			img.Pix[4*i] = src[3*i]
			img.Pix[4*i+1] = src[3*i+1]
			img.Pix[4*i+2] = src[3*i+2]
			img.Pix[4*i+3] = 0xFF
		}
		return img, nil

	case ColorPaletteIndexed:
		bpc := p.BitsPerComponent
		if bpc != 1 && bpc != 2 && bpc != 4 && bpc != 8 {
			return nil, fmt.Errorf("%w: %d bits per component", ErrUnsupportedColorSpace, bpc)
		}
		stride := (p.Width*bpc + 7) / 8
		if len(p.Data) < stride*p.Height {
			return nil, fmt.Errorf("short palette data: have %d bytes, want %d",
				len(p.Data), stride*p.Height)
		}
		palette := p.Palette
		if palette == nil {
			palette = grayRamp(bpc, p.Invert)
		}
		img := image.NewPaletted(image.Rect(0, 0, p.Width, p.Height), palette)
		maxIndex := uint8(len(palette) - 1)
		for y := 0; y < p.Height; y++ {
			row := p.Data[y*stride : (y+1)*stride]
			for x := 0; x < p.Width; x++ {
				idx := sample(row, x, bpc)
				if idx > maxIndex {
					// out of range indices are clamped, like PDF viewers do
					idx = maxIndex
				}
				img.Pix[y*img.Stride+x] = idx
			}
		}
		return img, nil

	default:
		return nil, ErrUnsupportedColorSpace
	}
}

// Decode implements the Payload interface.
func (p EncodedBlob) Decode() (image.Image, error) {
	if len(p.Data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if err := checkSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, _, err := DecodeImageBytes(p.Data)
	return img, err
}

// Decode implements the Payload interface.
func (p FaxBlob) Decode() (image.Image, error) {
	if err := checkSize(p.Width, p.Height); err != nil {
		return nil, err
	}
	// every coded row takes at least one bit
	if p.Height > 8*len(p.Data) {
		return nil, fmt.Errorf("CCITT data of %d bytes cannot hold %d rows", len(p.Data), p.Height)
	}
	mode := ccitt.Group3
	if p.Group4 {
		mode = ccitt.Group4
	}
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	opts := &ccitt.Options{Align: p.Align, Invert: p.Invert}
	err := ccitt.DecodeIntoGray(img, bytes.NewReader(p.Data), ccitt.MSB, mode, opts)
	if err != nil {
		return nil, fmt.Errorf("decode CCITT data: %w", err)
	}
	return img, nil
}

// sample extracts the x-th bpc-bit sample from a packed row.
func sample(row []byte, x, bpc int) uint8 {
	if bpc == 8 {
		return row[x]
	}
	bit := x * bpc
	shift := 8 - bpc - bit%8
	mask := byte(1<<bpc - 1)
	return (row[bit/8] >> shift) & mask
}

// grayRamp returns the implied palette of a DeviceGray image. An inverted
// ramp maps sample 0 to white.
func grayRamp(bpc int, invert bool) color.Palette {
	n := 1 << bpc
	palette := make(color.Palette, n)
	for i := range palette {
		v := uint8(i * 255 / (n - 1))
		if invert {
			v = 255 - v
		}
		palette[i] = color.RGBA{R: v, G: v, B: v, A: 0xFF}
	}
	return palette
}
