package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Register common decoders, including WebP, BMP and TIFF via x/image.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/png"
)

// DefaultJPEGQuality matches the quality most imaging tools use by default.
const DefaultJPEGQuality = 75

// Decode reads an image from the reader, returning the decoded image and the
// detected format string ("png", "jpeg", "webp", etc.).
func Decode(r io.Reader) (image.Image, string, error) {
	return image.Decode(r)
}

// DecodeImageBytes decodes an in-memory image file.
func DecodeImageBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}
	img, format, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// EncodeJPEG writes the provided image to the writer as JPEG. A quality of
// zero selects DefaultJPEGQuality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}
