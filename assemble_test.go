package watermark

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseOrderingKey(t *testing.T) {
	cases := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{name: "Im0", want: 0},
		{name: "Im12", want: 12},
		{name: "img7", want: 7},
		{name: "X003", want: 3},
		{name: "Im", wantErr: true},
		{name: "12", wantErr: true},
		{name: "", wantErr: true},
		{name: "Im1a", wantErr: true},
		{name: "Im-1", wantErr: true},
		{name: "Im_2", wantErr: true},
		{name: "Im99999999999999999999999", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseOrderingKey(tc.name)
			if tc.wantErr {
				if !errors.Is(err, ErrBadResourceName) {
					t.Fatalf("ParseOrderingKey(%q) error = %v, want ErrBadResourceName", tc.name, err)
				}
				var mpe *MalformedPageError
				if !errors.As(err, &mpe) || mpe.Name != tc.name {
					t.Fatalf("ParseOrderingKey(%q) error = %#v, want MalformedPageError naming the image", tc.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOrderingKey(%q): %v", tc.name, err)
			}
			if got != tc.want {
				t.Fatalf("ParseOrderingKey(%q) = %d, want %d", tc.name, got, tc.want)
			}
		})
	}
}

func TestAssembleOrdering(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	images := []SubImage{
		rawStrip("Im2", 2, 30, 10, blue),
		rawStrip("Im0", 0, 30, 20, red),
		rawStrip("Im1", 1, 30, 15, green),
	}

	canvas, err := Assemble(images)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if got, want := canvas.Bounds(), image.Rect(0, 0, 30, 45); !got.Eq(want) {
		t.Fatalf("canvas bounds %v, want %v", got, want)
	}

	bands := []struct {
		y0, y1 int
		want   color.RGBA
	}{
		{0, 20, red},
		{20, 35, green},
		{35, 45, blue},
	}
	for _, band := range bands {
		for y := band.y0; y < band.y1; y++ {
			for x := 0; x < 30; x++ {
				if got := canvas.RGBAAt(x, y); got != band.want {
					t.Fatalf("pixel (%d, %d) = %v, want %v", x, y, got, band.want)
				}
			}
		}
	}

	// the caller's slice keeps its order
	var names []string
	for _, img := range images {
		names = append(names, img.Name)
	}
	if diff := cmp.Diff([]string{"Im2", "Im0", "Im1"}, names); diff != "" {
		t.Fatalf("input slice was reordered (-want +got):\n%s", diff)
	}
}

func TestAssembleMixedWidths(t *testing.T) {
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	images := []SubImage{
		rawStrip("Im0", 0, 8, 4, gray),
		rawStrip("Im1", 1, 5, 4, gray),
	}

	canvas, err := Assemble(images)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got, want := canvas.Bounds(), image.Rect(0, 0, 8, 8); !got.Eq(want) {
		t.Fatalf("canvas bounds %v, want %v", got, want)
	}
	if got := canvas.RGBAAt(4, 6); got != gray {
		t.Fatalf("pixel inside the narrow strip = %v, want %v", got, gray)
	}
	if got, want := canvas.RGBAAt(6, 6), (color.RGBA{A: 255}); got != want {
		t.Fatalf("uncovered pixel = %v, want %v", got, want)
	}
}

func TestAssembleEncodedStrips(t *testing.T) {
	gray := solidImage(6, 3, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	blob := EncodedBlob{Data: mustEncodePNG(t, gray)}

	images := []SubImage{
		{Name: "Im1", Key: 1, Width: 6, Height: 3, Payload: blob},
		rawStrip("Im0", 0, 6, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255}),
	}

	canvas, err := Assemble(images)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := canvas.Bounds().Dy(); got != 5 {
		t.Fatalf("canvas height %d, want 5", got)
	}
	if got, want := canvas.RGBAAt(0, 0), (color.RGBA{R: 10, G: 20, B: 30, A: 255}); got != want {
		t.Fatalf("top pixel = %v, want %v", got, want)
	}
	if got, want := canvas.RGBAAt(5, 4), (color.RGBA{R: 90, G: 90, B: 90, A: 255}); got != want {
		t.Fatalf("bottom pixel = %v, want %v", got, want)
	}
}

func TestAssembleErrors(t *testing.T) {
	cases := []struct {
		name    string
		images  []SubImage
		wantErr error
	}{
		{
			name:    "no_images",
			images:  nil,
			wantErr: ErrNoImages,
		},
		{
			name: "duplicate_key",
			images: []SubImage{
				rawStrip("Im1", 1, 4, 4, color.RGBA{A: 255}),
				rawStrip("Img1", 1, 4, 4, color.RGBA{A: 255}),
			},
		},
		{
			name: "size_mismatch",
			images: []SubImage{
				func() SubImage {
					s := rawStrip("Im0", 0, 4, 4, color.RGBA{A: 255})
					s.Height = 5
					return s
				}(),
			},
		},
		{
			name: "short_data",
			images: []SubImage{
				func() SubImage {
					s := rawStrip("Im0", 0, 4, 4, color.RGBA{A: 255})
					p := s.Payload.(RawPixels)
					p.Data = p.Data[:10]
					s.Payload = p
					return s
				}(),
			},
		},
		{
			name: "unsupported_mode",
			images: []SubImage{
				{Name: "Im0", Width: 1, Height: 1, Payload: RawPixels{
					Mode: ColorUnsupported, Width: 1, Height: 1, BitsPerComponent: 8, Data: []byte{0, 0, 0, 0},
				}},
			},
			wantErr: ErrUnsupportedColorSpace,
		},
		{
			name:   "missing_payload",
			images: []SubImage{{Name: "Im0", Width: 1, Height: 1}},
		},
		{
			name: "huge_fax_strip",
			images: []SubImage{{Name: "Im0", Width: 1 << 31, Height: 1 << 31, Payload: FaxBlob{
				Width: 1 << 31, Height: 1 << 31, Group4: true, Data: []byte{0, 0},
			}}},
		},
		{
			name: "huge_raw_strip",
			images: []SubImage{{Name: "Im0", Width: 1 << 31, Height: 1 << 31, Payload: RawPixels{
				Mode: ColorRGB, Width: 1 << 31, Height: 1 << 31, BitsPerComponent: 8, Data: []byte{0, 0, 0},
			}}},
		},
		{
			name: "fax_rows_exceed_data",
			images: []SubImage{{Name: "Im0", Width: 8, Height: 100, Payload: FaxBlob{
				Width: 8, Height: 100, Group4: true, Data: []byte{0xC0, 0x04, 0x00, 0x40},
			}}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble(tc.images)
			var mpe *MalformedPageError
			if !errors.As(err, &mpe) {
				t.Fatalf("Assemble error = %v, want *MalformedPageError", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("Assemble error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
