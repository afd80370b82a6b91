// Package pdftest writes small PDF files whose pages consist of stacked image
// XObjects, the layout produced by document scanners.
package pdftest

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Encoding selects how a strip's samples are stored.
type Encoding int

const (
	Raw   Encoding = iota // no filter
	Flate                 // FlateDecode
	DCT                   // DCTDecode (JPEG, quality 100)
	Fax                   // CCITTFaxDecode group 4, data taken from Strip.Fax
)

// Strip is one image XObject.
type Strip struct {
	Name     string // resource name, e.g. "Im0"
	Image    image.Image
	Encoding Encoding

	// Gray stores the samples as DeviceGray instead of DeviceRGB.
	Gray bool

	// Palette stores the samples as an Indexed color space over DeviceRGB.
	// Image must be an *image.Paletted.
	Palette bool

	// ColorSpace, if set, replaces the derived color space, e.g.
	// types.Name("DeviceCMYK").
	ColorSpace types.Object

	// Fax is the encoded CCITT data of a Fax strip. Image only supplies the
	// dimensions.
	Fax []byte

	// Entries are set on the image dictionary last, overriding derived
	// entries such as Filter or DecodeParms.
	Entries types.Dict
}

// Page lists the strips of one page, top to bottom.
type Page struct {
	Strips []Strip
}

var disableConfigDir sync.Once

// WriteFile writes the pages to a new PDF file.
func WriteFile(path string, pages []Page) error {
	ctx, err := build(pages)
	if err != nil {
		return err
	}
	return api.WriteContextFile(ctx, path)
}

// Write writes the pages as a PDF document to w.
func Write(w io.Writer, pages []Page) error {
	ctx, err := build(pages)
	if err != nil {
		return err
	}
	return api.WriteContext(ctx, w)
}

func build(pages []Page) (*model.Context, error) {
	disableConfigDir.Do(api.DisableConfigDir)
	ctx, err := pdfcpu.CreateContextWithXRefTable(model.NewDefaultConfiguration(), &types.Dim{Width: 595, Height: 842})
	if err != nil {
		return nil, err
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, err
	}
	pagesRef := rootDict.IndirectRefEntry("Pages")
	if pagesRef == nil {
		return nil, fmt.Errorf("catalog without page tree")
	}
	pagesDict, err := ctx.DereferenceDict(*pagesRef)
	if err != nil {
		return nil, err
	}

	var kids types.Array
	for i, p := range pages {
		pageRef, err := addPage(ctx, *pagesRef, p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		kids = append(kids, *pageRef)
	}
	pagesDict.Update("Kids", kids)
	pagesDict.Update("Count", types.Integer(len(kids)))
	ctx.PageCount = len(kids)
	return ctx, nil
}

func addPage(ctx *model.Context, parent types.IndirectRef, p Page) (*types.IndirectRef, error) {
	width, height := 0, 0
	for _, s := range p.Strips {
		b := s.Image.Bounds()
		width = max(width, b.Dx())
		height += b.Dy()
	}

	xobjects := types.NewDict()
	var content bytes.Buffer
	y := height
	for _, s := range p.Strips {
		b := s.Image.Bounds()
		y -= b.Dy()
		ref, err := addStrip(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("strip %s: %w", s.Name, err)
		}
		xobjects.Insert(s.Name, *ref)
		fmt.Fprintf(&content, "q %d 0 0 %d 0 %d cm /%s Do Q\n", b.Dx(), b.Dy(), y, s.Name)
	}

	contentRef, err := addStream(ctx, types.NewDict(), content.Bytes(), nil)
	if err != nil {
		return nil, err
	}

	pageDict := types.Dict(map[string]types.Object{
		"Type":   types.Name("Page"),
		"Parent": parent,
		"MediaBox": types.Array{
			types.Integer(0), types.Integer(0), types.Integer(width), types.Integer(height),
		},
		"Resources": types.Dict(map[string]types.Object{"XObject": xobjects}),
		"Contents":  *contentRef,
	})
	return ctx.IndRefForNewObject(pageDict)
}

// addStream encodes data with the given filters and adds the stream as a new
// object.
func addStream(ctx *model.Context, dict types.Dict, data []byte, filters []types.PDFFilter) (*types.IndirectRef, error) {
	sd := &types.StreamDict{Dict: dict, Content: data, FilterPipeline: filters}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(*sd)
}

func addStrip(ctx *model.Context, s Strip) (*types.IndirectRef, error) {
	b := s.Image.Bounds()
	dict := types.NewDict()
	dict.InsertName("Type", "XObject")
	dict.InsertName("Subtype", "Image")
	dict.InsertInt("Width", b.Dx())
	dict.InsertInt("Height", b.Dy())
	dict.InsertInt("BitsPerComponent", 8)

	var (
		data    []byte
		cs      types.Object = types.Name("DeviceRGB")
		filters []types.PDFFilter
	)
	switch s.Encoding {
	case DCT:
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, s.Image, &jpeg.Options{Quality: 100}); err != nil {
			return nil, err
		}
		data = buf.Bytes()
		dict.InsertName("Filter", "DCTDecode")

	case Fax:
		data = s.Fax
		cs = types.Name("DeviceGray")
		dict.Update("BitsPerComponent", types.Integer(1))
		dict.InsertName("Filter", "CCITTFaxDecode")
		dict.Insert("DecodeParms", types.Dict(map[string]types.Object{
			"K":       types.Integer(-1),
			"Columns": types.Integer(b.Dx()),
			"Rows":    types.Integer(b.Dy()),
		}))

	default:
		var err error
		cs, data, err = samples(s)
		if err != nil {
			return nil, err
		}
		if s.Encoding == Flate {
			filters = []types.PDFFilter{{Name: filter.Flate}}
			dict.InsertName("Filter", filter.Flate)
		}
	}

	if s.ColorSpace != nil {
		cs = s.ColorSpace
	}
	dict.Insert("ColorSpace", cs)
	for k, v := range s.Entries {
		dict.Update(k, v)
	}
	return addStream(ctx, dict, data, filters)
}

// samples returns the color space and the uncompressed samples of a strip.
func samples(s Strip) (types.Object, []byte, error) {
	b := s.Image.Bounds()
	var data []byte
	switch {
	case s.Palette:
		p, ok := s.Image.(*image.Paletted)
		if !ok {
			return nil, nil, fmt.Errorf("palette strip needs *image.Paletted, got %T", s.Image)
		}
		lookup := make([]byte, 0, 3*len(p.Palette))
		for _, c := range p.Palette {
			r, g, b, _ := c.RGBA()
			lookup = append(lookup, byte(r>>8), byte(g>>8), byte(b>>8))
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				data = append(data, p.ColorIndexAt(x, y))
			}
		}
		cs := types.Array{
			types.Name("Indexed"),
			types.Name("DeviceRGB"),
			types.Integer(len(p.Palette) - 1),
			types.HexLiteral(hex.EncodeToString(lookup)),
		}
		return cs, data, nil

	case s.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				data = append(data, color.GrayModel.Convert(s.Image.At(x, y)).(color.Gray).Y)
			}
		}
		return types.Name("DeviceGray"), data, nil
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(s.Image.At(x, y)).(color.RGBA)
			data = append(data, c.R, c.G, c.B)
		}
	}
	return types.Name("DeviceRGB"), data, nil
}
