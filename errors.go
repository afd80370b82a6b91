package watermark

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImages is reported for pages without any image XObject.
	ErrNoImages = errors.New("page has no embedded images")

	// ErrUnsupportedColorSpace is reported for image color spaces which
	// cannot be mapped to an RGB or palette-indexed pixel layout.
	ErrUnsupportedColorSpace = errors.New("unsupported color space")

	// ErrUnsupportedFilter is reported for image compression filters which
	// cannot be decoded.
	ErrUnsupportedFilter = errors.New("unsupported image filter")

	// ErrUnsupportedDecode is reported for /Decode arrays other than the
	// default mapping and, for grayscale and fax images, its inversion.
	ErrUnsupportedDecode = errors.New("unsupported decode array")

	// ErrBadResourceName is reported for image resource names which do not
	// end in a decimal ordering key.
	ErrBadResourceName = errors.New("malformed image resource name")
)

// MalformedPageError describes a page whose images cannot be assembled into
// a canvas.
type MalformedPageError struct {
	Page int    // zero-based page index, -1 if unknown
	Name string // image resource name, if the problem is specific to one image
	Err  error
}

func (e *MalformedPageError) Error() string {
	switch {
	case e.Page < 0 && e.Name == "":
		return fmt.Sprintf("malformed page: %v", e.Err)
	case e.Page < 0:
		return fmt.Sprintf("malformed page: image %s: %v", e.Name, e.Err)
	case e.Name == "":
		return fmt.Sprintf("malformed page %d: %v", e.Page, e.Err)
	default:
		return fmt.Sprintf("malformed page %d: image %s: %v", e.Page, e.Name, e.Err)
	}
}

func (e *MalformedPageError) Unwrap() error {
	return e.Err
}

// malformed builds a MalformedPageError for an image without a known page.
// The page index is filled in by the caller which knows it.
func malformed(name string, format string, args ...any) *MalformedPageError {
	return &MalformedPageError{Page: -1, Name: name, Err: fmt.Errorf(format, args...)}
}

// withPage attaches the page index to a MalformedPageError, leaving other
// errors unchanged.
func withPage(err error, page int) error {
	var mpe *MalformedPageError
	if errors.As(err, &mpe) && mpe.Page < 0 {
		cp := *mpe
		cp.Page = page
		return &cp
	}
	return err
}
