package watermark

import (
	"image"
	"image/color"
	"image/draw"
	"sort"
	"strconv"
)

// SubImage is one image XObject of a page. The strips of a page, sorted by
// Key, stack vertically without gaps to form the full page.
type SubImage struct {
	Name    string // resource name, e.g. "Im3"
	Key     int    // ordering key parsed from Name
	Width   int
	Height  int
	Payload Payload
}

// ParseOrderingKey extracts the ordering key from an image resource name.
// Names consist of one or more ASCII letters followed by one or more decimal
// digits ("Im0", "Im12", "img7"); the key is the numeric suffix.
func ParseOrderingKey(name string) (int, error) {
	i := 0
	for i < len(name) && isASCIILetter(name[i]) {
		i++
	}
	if i == 0 || i == len(name) {
		return 0, malformed(name, "%w: want letters followed by digits", ErrBadResourceName)
	}
	digits := name[i:]
	for j := 0; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return 0, malformed(name, "%w: want letters followed by digits", ErrBadResourceName)
		}
	}
	key, err := strconv.Atoi(digits)
	if err != nil {
		return 0, malformed(name, "%w: %v", ErrBadResourceName, err)
	}
	return key, nil
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// Assemble decodes the sub-images of a page and stacks them top to bottom in
// ascending key order, left aligned. The canvas is as wide as the widest
// strip and as high as all strips together; area not covered by a strip is
// opaque black. The input slice is not modified.
func Assemble(images []SubImage) (*image.RGBA, error) {
	if len(images) == 0 {
		return nil, &MalformedPageError{Page: -1, Err: ErrNoImages}
	}

	sorted := make([]SubImage, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Key == sorted[i-1].Key {
			return nil, malformed(sorted[i].Name, "duplicate ordering key %d (also used by %s)",
				sorted[i].Key, sorted[i-1].Name)
		}
	}

	decoded := make([]image.Image, len(sorted))
	width, height := 0, 0
	for i, sub := range sorted {
		img, err := decodeSubImage(sub)
		if err != nil {
			return nil, err
		}
		decoded[i] = img
		b := img.Bounds()
		width = max(width, b.Dx())
		height += b.Dy()
	}
	if width == 0 || height == 0 {
		return nil, &MalformedPageError{Page: -1, Err: ErrNoImages}
	}
	if err := checkSize(width, height); err != nil {
		return nil, malformed("", "page canvas: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	offset := 0
	for _, img := range decoded {
		b := img.Bounds()
		dst := image.Rect(0, offset, b.Dx(), offset+b.Dy())
		draw.Draw(canvas, dst, img, b.Min, draw.Src)
		offset += b.Dy()
	}
	return canvas, nil
}

// decodeSubImage decodes one strip and checks its size against the declared
// dimensions. Encoded image files carry their own size, which wins.
func decodeSubImage(sub SubImage) (image.Image, error) {
	if sub.Payload == nil {
		return nil, malformed(sub.Name, "missing image data")
	}
	img, err := sub.Payload.Decode()
	if err != nil {
		return nil, &MalformedPageError{Page: -1, Name: sub.Name, Err: err}
	}
	if _, ok := sub.Payload.(EncodedBlob); ok {
		return img, nil
	}
	b := img.Bounds()
	if b.Dx() != sub.Width || b.Dy() != sub.Height {
		return nil, malformed(sub.Name, "decoded size %dx%d does not match declared size %dx%d",
			b.Dx(), b.Dy(), sub.Width, sub.Height)
	}
	return img, nil
}
