package watermark

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Filters which are removed by the PDF reader and leave raw samples behind.
var genericFilters = map[string]bool{
	"FlateDecode":     true,
	"LZWDecode":       true,
	"RunLengthDecode": true,
	"ASCII85Decode":   true,
	"ASCIIHexDecode":  true,
}

var disableConfigDir sync.Once

// newConfiguration returns a pdfcpu configuration which does not touch the
// user's pdfcpu config directory.
func newConfiguration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Document is a PDF file opened for extracting page images. A Document is
// safe for concurrent use.
type Document struct {
	mu  sync.Mutex
	ctx *model.Context
	c   io.Closer
}

// Open opens the named PDF file. The caller must call Close when done.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	doc, err := ReadDocument(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc.c = f
	return doc, nil
}

// ReadDocument reads a PDF document from rs. rs must stay readable until the
// Document is closed.
func ReadDocument(rs io.ReadSeeker) (*Document, error) {
	ctx, err := api.ReadContext(rs, newConfiguration())
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	return &Document{ctx: ctx}, nil
}

// Close releases the underlying file, if any.
func (d *Document) Close() error {
	if d.c == nil {
		return nil
	}
	return d.c.Close()
}

// NumPages returns the number of pages in the document.
func (d *Document) NumPages() int {
	return d.ctx.PageCount
}

// PageImages returns the image XObjects of the given zero-based page, ordered
// by resource name. Errors caused by the page contents are
// *MalformedPageError values.
func (d *Document) PageImages(page int) ([]SubImage, error) {
	if page < 0 || page >= d.NumPages() {
		return nil, fmt.Errorf("page %d out of range [0, %d)", page, d.NumPages())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pageDict, _, inherited, err := d.ctx.PageDict(page+1, false)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	if pageDict == nil {
		return nil, fmt.Errorf("page %d: missing page dictionary", page)
	}

	res, err := d.resources(pageDict, inherited)
	if err != nil {
		return nil, withPage(err, page)
	}
	xobjects, err := d.dict(res, "XObject")
	if err != nil {
		return nil, withPage(err, page)
	}

	names := make([]string, 0, len(xobjects))
	for name := range xobjects {
		names = append(names, name)
	}
	sort.Strings(names)

	var images []SubImage
	for _, name := range names {
		sd, _, err := d.ctx.DereferenceStreamDict(xobjects[name])
		if err != nil {
			return nil, withPage(malformed(name, "%w", err), page)
		}
		if sd == nil {
			continue
		}
		if subtype := sd.Subtype(); subtype == nil || *subtype != "Image" {
			continue
		}
		sub, err := d.subImage(name, sd)
		if err != nil {
			return nil, withPage(err, page)
		}
		images = append(images, sub)
	}
	if len(images) == 0 {
		return nil, &MalformedPageError{Page: page, Err: ErrNoImages}
	}
	return images, nil
}

// resources returns the page's own resource dictionary, or the inherited one.
func (d *Document) resources(pageDict types.Dict, inherited *model.InheritedPageAttrs) (types.Dict, error) {
	if obj, found := pageDict.Find("Resources"); found {
		res, err := d.ctx.DereferenceDict(obj)
		if err != nil {
			return nil, malformed("", "resources: %w", err)
		}
		if res != nil {
			return res, nil
		}
	}
	if inherited != nil && inherited.Resources != nil {
		return inherited.Resources, nil
	}
	return nil, &MalformedPageError{Page: -1, Err: ErrNoImages}
}

func (d *Document) dict(parent types.Dict, key string) (types.Dict, error) {
	obj, found := parent.Find(key)
	if !found {
		return nil, &MalformedPageError{Page: -1, Err: ErrNoImages}
	}
	dict, err := d.ctx.DereferenceDict(obj)
	if err != nil {
		return nil, malformed("", "%s: %w", key, err)
	}
	if dict == nil {
		return nil, &MalformedPageError{Page: -1, Err: ErrNoImages}
	}
	return dict, nil
}

// subImage turns an image XObject into a SubImage with a resolved payload.
func (d *Document) subImage(name string, sd *types.StreamDict) (SubImage, error) {
	key, err := ParseOrderingKey(name)
	if err != nil {
		return SubImage{}, err
	}

	width, err := d.intEntry(sd.Dict, "Width")
	if err != nil {
		return SubImage{}, malformed(name, "Width: %w", err)
	}
	height, err := d.intEntry(sd.Dict, "Height")
	if err != nil {
		return SubImage{}, malformed(name, "Height: %w", err)
	}
	if err := checkSize(width, height); err != nil {
		return SubImage{}, malformed(name, "%w", err)
	}

	payload, err := d.payload(name, sd, width, height)
	if err != nil {
		return SubImage{}, err
	}
	return SubImage{
		Name:    name,
		Key:     key,
		Width:   width,
		Height:  height,
		Payload: payload,
	}, nil
}

type streamFilter struct {
	name   string
	params types.Dict
}

// payload decides once per image whether the stream holds raw samples, an
// encoded image file, or CCITT fax data.
func (d *Document) payload(name string, sd *types.StreamDict, width, height int) (Payload, error) {
	filters, err := d.filters(sd.Dict)
	if err != nil {
		return nil, malformed(name, "%w", err)
	}

	last := ""
	if len(filters) > 0 {
		last = filters[len(filters)-1].name
	}
	switch {
	case last == "DCTDecode":
		if len(filters) > 1 {
			return nil, malformed(name, "%w: DCTDecode after %s", ErrUnsupportedFilter, filters[0].name)
		}
		if _, err := d.decodeArray(sd.Dict, 1, false); err != nil {
			return nil, malformed(name, "%w", err)
		}
		data := sd.Raw
		if data == nil {
			data = sd.Content
		}
		return EncodedBlob{Data: data}, nil

	case last == "CCITTFaxDecode":
		if len(filters) > 1 {
			return nil, malformed(name, "%w: CCITTFaxDecode after %s", ErrUnsupportedFilter, filters[0].name)
		}
		return d.faxPayload(name, sd, filters[0].params, width, height)

	case last != "" && !genericFilters[last]:
		return nil, malformed(name, "%w: %s", ErrUnsupportedFilter, last)
	}

	if d.boolEntry(sd.Dict, "ImageMask") {
		return nil, malformed(name, "%w: stencil mask", ErrUnsupportedColorSpace)
	}
	csObj, found := sd.Find("ColorSpace")
	if !found {
		return nil, malformed(name, "%w: ColorSpace missing", ErrUnsupportedColorSpace)
	}
	mode, palette, err := d.colorSpace(csObj)
	if err != nil {
		return nil, malformed(name, "%w", err)
	}

	bpc := 8
	if _, found := sd.Find("BitsPerComponent"); found {
		bpc, err = d.intEntry(sd.Dict, "BitsPerComponent")
		if err != nil {
			return nil, malformed(name, "BitsPerComponent: %w", err)
		}
	}

	// the implied gray ramp is the only layout which can be inverted
	maxSample := 1
	if mode == ColorPaletteIndexed && palette != nil {
		maxSample = 1<<bpc - 1
	}
	invert, err := d.decodeArray(sd.Dict, maxSample, mode == ColorPaletteIndexed && palette == nil)
	if err != nil {
		return nil, malformed(name, "%w", err)
	}

	if sd.Content == nil {
		if err := sd.Decode(); err != nil {
			return nil, malformed(name, "decode stream: %w", err)
		}
	}
	return RawPixels{
		Mode:             mode,
		Width:            width,
		Height:           height,
		BitsPerComponent: bpc,
		Palette:          palette,
		Invert:           invert,
		Data:             sd.Content,
	}, nil
}

func (d *Document) faxPayload(name string, sd *types.StreamDict, params types.Dict, width, height int) (Payload, error) {
	k, columns, rows := 0, 1728, height
	align, blackIs1 := false, false
	if params != nil {
		var err error
		if _, found := params.Find("K"); found {
			if k, err = d.intEntry(params, "K"); err != nil {
				return nil, malformed(name, "K: %w", err)
			}
		}
		if _, found := params.Find("Columns"); found {
			if columns, err = d.intEntry(params, "Columns"); err != nil {
				return nil, malformed(name, "Columns: %w", err)
			}
		}
		if _, found := params.Find("Rows"); found {
			if rows, err = d.intEntry(params, "Rows"); err != nil {
				return nil, malformed(name, "Rows: %w", err)
			}
		}
		align = d.boolEntry(params, "EncodedByteAlign")
		blackIs1 = d.boolEntry(params, "BlackIs1")
	}
	if k > 0 {
		return nil, malformed(name, "%w: mixed CCITT group 3 2-D encoding (K=%d)", ErrUnsupportedFilter, k)
	}
	if columns != width || rows != height {
		return nil, malformed(name, "CCITT size %dx%d does not match image size %dx%d",
			columns, rows, width, height)
	}
	decodeInverted, err := d.decodeArray(sd.Dict, 1, true)
	if err != nil {
		return nil, malformed(name, "%w", err)
	}
	data := sd.Raw
	if data == nil {
		data = sd.Content
	}
	return FaxBlob{
		Width:  width,
		Height: height,
		Group4: k < 0,
		Align:  align,
		Invert: blackIs1 != decodeInverted,
		Data:   data,
	}, nil
}

// filters lists the stream filters together with their decode parameters.
func (d *Document) filters(dict types.Dict) ([]streamFilter, error) {
	obj, found := dict.Find("Filter")
	if !found {
		return nil, nil
	}
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil, err
	}

	var names []string
	switch f := obj.(type) {
	case nil:
		return nil, nil
	case types.Name:
		names = []string{f.Value()}
	case types.Array:
		for _, elem := range f {
			elem, err := d.ctx.Dereference(elem)
			if err != nil {
				return nil, err
			}
			n, ok := elem.(types.Name)
			if !ok {
				return nil, fmt.Errorf("Filter: unexpected %T", elem)
			}
			names = append(names, n.Value())
		}
	default:
		return nil, fmt.Errorf("Filter: unexpected %T", obj)
	}

	var params []types.Dict
	if obj, found := dict.Find("DecodeParms"); found {
		obj, err := d.ctx.Dereference(obj)
		if err != nil {
			return nil, err
		}
		switch p := obj.(type) {
		case types.Dict:
			params = []types.Dict{p}
		case types.Array:
			for _, elem := range p {
				pd, err := d.ctx.DereferenceDict(elem)
				if err != nil {
					return nil, err
				}
				params = append(params, pd)
			}
		}
	}

	res := make([]streamFilter, len(names))
	for i, n := range names {
		res[i].name = n
		if i < len(params) {
			res[i].params = params[i]
		}
	}
	return res, nil
}

// colorSpace maps a PDF color space to a pixel layout. Only RGB and single
// channel layouts are supported; everything else is an error.
func (d *Document) colorSpace(obj types.Object) (ColorMode, color.Palette, error) {
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return ColorUnsupported, nil, err
	}

	switch cs := obj.(type) {
	case types.Name:
		switch cs.Value() {
		case "DeviceRGB", "RGB", "CalRGB":
			return ColorRGB, nil, nil
		case "DeviceGray", "G", "CalGray":
			return ColorPaletteIndexed, nil, nil
		}
		return ColorUnsupported, nil, fmt.Errorf("%w: %s", ErrUnsupportedColorSpace, cs.Value())

	case types.Array:
		if len(cs) == 0 {
			return ColorUnsupported, nil, fmt.Errorf("%w: empty array", ErrUnsupportedColorSpace)
		}
		family, err := d.ctx.Dereference(cs[0])
		if err != nil {
			return ColorUnsupported, nil, err
		}
		fname, ok := family.(types.Name)
		if !ok {
			return ColorUnsupported, nil, fmt.Errorf("%w: family %T", ErrUnsupportedColorSpace, family)
		}
		switch fname.Value() {
		case "CalRGB":
			return ColorRGB, nil, nil
		case "CalGray":
			return ColorPaletteIndexed, nil, nil
		case "ICCBased":
			return d.iccColorSpace(cs)
		case "Indexed", "I":
			return d.indexedColorSpace(cs)
		}
		return ColorUnsupported, nil, fmt.Errorf("%w: %s", ErrUnsupportedColorSpace, fname.Value())
	}
	return ColorUnsupported, nil, fmt.Errorf("%w: %T", ErrUnsupportedColorSpace, obj)
}

func (d *Document) iccColorSpace(cs types.Array) (ColorMode, color.Palette, error) {
	if len(cs) < 2 {
		return ColorUnsupported, nil, fmt.Errorf("%w: ICCBased without profile", ErrUnsupportedColorSpace)
	}
	sd, _, err := d.ctx.DereferenceStreamDict(cs[1])
	if err != nil {
		return ColorUnsupported, nil, err
	}
	if sd == nil {
		return ColorUnsupported, nil, fmt.Errorf("%w: ICCBased without profile", ErrUnsupportedColorSpace)
	}
	n, err := d.intEntry(sd.Dict, "N")
	if err != nil {
		return ColorUnsupported, nil, fmt.Errorf("ICCBased N: %w", err)
	}
	switch n {
	case 3:
		return ColorRGB, nil, nil
	case 1:
		return ColorPaletteIndexed, nil, nil
	}
	return ColorUnsupported, nil, fmt.Errorf("%w: ICCBased with %d components", ErrUnsupportedColorSpace, n)
}

func (d *Document) indexedColorSpace(cs types.Array) (ColorMode, color.Palette, error) {
	if len(cs) != 4 {
		return ColorUnsupported, nil, fmt.Errorf("%w: Indexed needs 4 elements, got %d",
			ErrUnsupportedColorSpace, len(cs))
	}
	base, basePalette, err := d.colorSpace(cs[1])
	if err != nil {
		return ColorUnsupported, nil, fmt.Errorf("Indexed base: %w", err)
	}
	if basePalette != nil {
		return ColorUnsupported, nil, fmt.Errorf("%w: nested Indexed", ErrUnsupportedColorSpace)
	}
	comps := 1
	if base == ColorRGB {
		comps = 3
	}

	hiObj, err := d.ctx.Dereference(cs[2])
	if err != nil {
		return ColorUnsupported, nil, err
	}
	hival, ok := hiObj.(types.Integer)
	if !ok || hival.Value() < 0 || hival.Value() > 255 {
		return ColorUnsupported, nil, fmt.Errorf("%w: invalid hival %v", ErrUnsupportedColorSpace, hiObj)
	}

	lookup, err := d.bytes(cs[3])
	if err != nil {
		return ColorUnsupported, nil, fmt.Errorf("Indexed lookup: %w", err)
	}
	n := hival.Value() + 1
	if len(lookup) < n*comps {
		return ColorUnsupported, nil, fmt.Errorf("%w: lookup has %d bytes, want %d",
			ErrUnsupportedColorSpace, len(lookup), n*comps)
	}

	palette := make(color.Palette, n)
	for i := range palette {
		if comps == 3 {
			palette[i] = color.RGBA{R: lookup[3*i], G: lookup[3*i+1], B: lookup[3*i+2], A: 0xFF}
		} else {
			palette[i] = color.RGBA{R: lookup[i], G: lookup[i], B: lookup[i], A: 0xFF}
		}
	}
	return ColorPaletteIndexed, palette, nil
}

// decodeArray checks the /Decode entry of an image. Every pair must be the
// default [0 maxSample] or, if invertible is set, the single pair
// [maxSample 0]. The result reports the inverted form.
func (d *Document) decodeArray(dict types.Dict, maxSample int, invertible bool) (bool, error) {
	obj, found := dict.Find("Decode")
	if !found {
		return false, nil
	}
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return false, err
	}
	arr, ok := obj.(types.Array)
	if !ok || len(arr) == 0 || len(arr)%2 != 0 {
		return false, fmt.Errorf("%w: %v", ErrUnsupportedDecode, obj)
	}

	identity, inverted := true, true
	for i := 0; i < len(arr); i += 2 {
		lo, err := d.number(arr[i])
		if err != nil {
			return false, fmt.Errorf("Decode: %w", err)
		}
		hi, err := d.number(arr[i+1])
		if err != nil {
			return false, fmt.Errorf("Decode: %w", err)
		}
		identity = identity && lo == 0 && hi == float64(maxSample)
		inverted = inverted && lo == float64(maxSample) && hi == 0
	}
	switch {
	case identity:
		return false, nil
	case inverted && invertible && len(arr) == 2:
		return true, nil
	}
	return false, fmt.Errorf("%w: %v", ErrUnsupportedDecode, arr)
}

func (d *Document) number(obj types.Object) (float64, error) {
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return 0, err
	}
	switch v := obj.(type) {
	case types.Integer:
		return float64(v.Value()), nil
	case types.Float:
		return v.Value(), nil
	}
	return 0, fmt.Errorf("unexpected %T", obj)
}

// bytes returns the contents of a string or stream object.
func (d *Document) bytes(obj types.Object) ([]byte, error) {
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case types.StringLiteral:
		return types.Unescape(o.Value())
	case types.HexLiteral:
		return o.Bytes()
	case types.StreamDict:
		if o.Content == nil {
			if err := o.Decode(); err != nil {
				return nil, err
			}
		}
		return o.Content, nil
	}
	return nil, fmt.Errorf("unexpected %T", obj)
}

func (d *Document) intEntry(dict types.Dict, key string) (int, error) {
	obj, found := dict.Find(key)
	if !found {
		return 0, errors.New("missing")
	}
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return 0, err
	}
	switch v := obj.(type) {
	case types.Integer:
		return v.Value(), nil
	case types.Float:
		return int(v.Value()), nil
	}
	return 0, fmt.Errorf("unexpected %T", obj)
}

func (d *Document) boolEntry(dict types.Dict, key string) bool {
	obj, found := dict.Find(key)
	if !found {
		return false
	}
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return false
	}
	b, ok := obj.(types.Boolean)
	return ok && b.Value()
}
