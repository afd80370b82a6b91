package watermark

import (
	"errors"
	"image"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// WritePDF creates outFile with one page per image file, in the given order.
// Each page has the size of its image. outFile must not exist yet; pdfcpu
// appends to existing files.
func WritePDF(images []string, outFile string) error {
	if len(images) == 0 {
		return errors.New("no page images")
	}
	if _, err := os.Stat(outFile); err == nil {
		return &os.PathError{Op: "create", Path: outFile, Err: os.ErrExist}
	}
	imp := pdfcpu.DefaultImportConfig()
	return api.ImportImagesFile(images, outFile, imp, newConfiguration())
}

// writeJPEG stores a page image in the staging directory.
func writeJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeJPEG(f, img, quality); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
