package watermark

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/gcslaoli/pdf-watermark-remover-go/internal/pdftest"
)

var (
	testGray      = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	testWatermark = color.RGBA{R: 255, G: 60, B: 60, A: 255}
)

// grayOverWatermark is a page whose upper strip is gray content and whose
// lower strip is a colored watermark.
func grayOverWatermark() pdftest.Page {
	return pdftest.Page{Strips: []pdftest.Strip{
		{Name: "Im0", Image: solidImage(64, 32, testGray), Encoding: pdftest.Flate},
		{Name: "Im1", Image: solidImage(64, 32, testWatermark), Encoding: pdftest.Flate},
	}}
}

// readPages assembles every page of a PDF file.
func readPages(t *testing.T, path string) []*image.RGBA {
	t.Helper()
	doc, err := Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer doc.Close()

	var pages []*image.RGBA
	for i := 0; i < doc.NumPages(); i++ {
		images, err := doc.PageImages(i)
		if err != nil {
			t.Fatalf("output page %d: %v", i, err)
		}
		canvas, err := Assemble(images)
		if err != nil {
			t.Fatalf("output page %d: %v", i, err)
		}
		pages = append(pages, canvas)
	}
	return pages
}

func near(got, want float64) bool {
	return got > want-10 && got < want+10
}

func testOptions(t *testing.T, input string) Options {
	return Options{
		Input:      input,
		Output:     filepath.Join(t.TempDir(), "output.pdf"),
		StagingDir: t.TempDir(),
		Workers:    2,
	}
}

func assertStagingEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read staging parent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging directory left behind: %v", entries[0].Name())
	}
}

func TestRunEndToEnd(t *testing.T) {
	input := writeTestPDF(t, []pdftest.Page{grayOverWatermark()})
	opts := testOptions(t, input)

	report, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Pages != 1 || report.Written != 1 || report.Filtered != 1 {
		t.Fatalf("report = %+v, want one page written and filtered", report)
	}
	if report.Replaced != 64*32 {
		t.Fatalf("replaced %d pixels, want %d", report.Replaced, 64*32)
	}
	assertStagingEmpty(t, opts.StagingDir)

	pages := readPages(t, opts.Output)
	if len(pages) != 1 {
		t.Fatalf("output has %d pages, want 1", len(pages))
	}
	page := pages[0]
	if got, want := page.Bounds(), image.Rect(0, 0, 64, 64); !got.Eq(want) {
		t.Fatalf("output page bounds %v, want %v", got, want)
	}

	// stay away from the strip boundary, where JPEG blocks mix colors
	r, g, b := meanColor(page, image.Rect(8, 4, 56, 24))
	if !near(r, 128) || !near(g, 128) || !near(b, 128) {
		t.Fatalf("gray half = (%.1f, %.1f, %.1f), want about 128", r, g, b)
	}
	r, g, b = meanColor(page, image.Rect(8, 40, 56, 60))
	if r < 245 || g < 245 || b < 245 {
		t.Fatalf("watermark half = (%.1f, %.1f, %.1f), want white", r, g, b)
	}
}

func TestRunSkip(t *testing.T) {
	page := pdftest.Page{Strips: []pdftest.Strip{
		{Name: "Im0", Image: solidImage(32, 32, testWatermark), Encoding: pdftest.Flate},
	}}
	input := writeTestPDF(t, []pdftest.Page{page, page, page})
	opts := testOptions(t, input)
	opts.Skip = 2

	report, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Written != 3 || report.Filtered != 1 {
		t.Fatalf("report = %+v, want 3 pages written, 1 filtered", report)
	}

	pages := readPages(t, opts.Output)
	if len(pages) != 3 {
		t.Fatalf("output has %d pages, want 3", len(pages))
	}
	for i, p := range pages {
		r, g, _ := meanColor(p, image.Rect(8, 8, 24, 24))
		if i < 2 {
			if !near(r, 255) || !near(g, 60) {
				t.Fatalf("skipped page %d = (%.1f, %.1f, _), want unfiltered red", i, r, g)
			}
		} else if r < 245 || g < 245 {
			t.Fatalf("filtered page %d = (%.1f, %.1f, _), want white", i, r, g)
		}
	}
}

func TestRunMalformedPageAborts(t *testing.T) {
	bad := pdftest.Page{Strips: []pdftest.Strip{
		{Name: "Im0", Image: solidImage(8, 8, testGray), ColorSpace: types.Name("DeviceCMYK")},
	}}
	input := writeTestPDF(t, []pdftest.Page{grayOverWatermark(), bad})
	opts := testOptions(t, input)

	_, err := Run(context.Background(), opts)
	var mpe *MalformedPageError
	if !errors.As(err, &mpe) {
		t.Fatalf("Run error = %v, want *MalformedPageError", err)
	}
	if mpe.Page != 1 {
		t.Fatalf("MalformedPageError.Page = %d, want 1", mpe.Page)
	}
	if _, err := os.Stat(opts.Output); !os.IsNotExist(err) {
		t.Fatalf("output file was written after a failed run")
	}
	assertStagingEmpty(t, opts.StagingDir)
}

func TestRunContinueOnError(t *testing.T) {
	bad := pdftest.Page{Strips: []pdftest.Strip{
		{Name: "Im0", Image: solidImage(8, 8, testGray), ColorSpace: types.Name("DeviceCMYK")},
	}}
	input := writeTestPDF(t, []pdftest.Page{grayOverWatermark(), bad, grayOverWatermark()})
	opts := testOptions(t, input)
	opts.ContinueOnError = true

	report, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Written != 2 {
		t.Fatalf("wrote %d pages, want 2", report.Written)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Page != 1 {
		t.Fatalf("skipped = %+v, want page 1", report.Skipped)
	}
	if !errors.Is(report.Skipped[0].Err, ErrUnsupportedColorSpace) {
		t.Fatalf("skip reason = %v, want ErrUnsupportedColorSpace", report.Skipped[0].Err)
	}
	if pages := readPages(t, opts.Output); len(pages) != 2 {
		t.Fatalf("output has %d pages, want 2", len(pages))
	}
	assertStagingEmpty(t, opts.StagingDir)
}

func TestRunOverwritesOutput(t *testing.T) {
	input := writeTestPDF(t, []pdftest.Page{grayOverWatermark()})
	opts := testOptions(t, input)
	if err := os.WriteFile(opts.Output, []byte("old contents"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pages := readPages(t, opts.Output); len(pages) != 1 {
		t.Fatalf("output has %d pages, want 1", len(pages))
	}
}

func TestRunCanceled(t *testing.T) {
	input := writeTestPDF(t, []pdftest.Page{grayOverWatermark()})
	opts := testOptions(t, input)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	assertStagingEmpty(t, opts.StagingDir)
}

func TestRunInputErrors(t *testing.T) {
	input := writeTestPDF(t, []pdftest.Page{grayOverWatermark()})
	dir := t.TempDir()

	cases := []struct {
		name string
		opts Options
	}{
		{name: "no_input", opts: Options{Output: filepath.Join(dir, "out.pdf")}},
		{name: "no_output", opts: Options{Input: input}},
		{name: "missing_input", opts: Options{Input: filepath.Join(dir, "missing.pdf"), Output: filepath.Join(dir, "out.pdf")}},
		{name: "missing_output_dir", opts: Options{Input: input, Output: filepath.Join(dir, "no", "such", "out.pdf")}},
		{name: "negative_skip", opts: Options{Input: input, Output: filepath.Join(dir, "out.pdf"), Skip: -1}},
		{name: "bad_quality", opts: Options{Input: input, Output: filepath.Join(dir, "out.pdf"), JPEGQuality: 101}},
		{name: "not_a_pdf", opts: Options{Input: writeNotPDF(t), Output: filepath.Join(dir, "out.pdf")}},
		{name: "output_is_directory", opts: Options{Input: input, Output: dir}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Run(context.Background(), tc.opts); err == nil {
				t.Fatalf("Run succeeded, want error")
			}
		})
	}
}

func TestRunOutputNotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	input := writeTestPDF(t, []pdftest.Page{grayOverWatermark()})
	opts := testOptions(t, input)
	dir := filepath.Join(t.TempDir(), "readonly")
	if err := os.Mkdir(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	opts.Output = filepath.Join(dir, "out.pdf")

	if _, err := Run(context.Background(), opts); err == nil {
		t.Fatalf("Run succeeded with a read-only output directory")
	}
	// the check runs before any page is staged
	assertStagingEmpty(t, opts.StagingDir)
}

func writeNotPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte("just some text\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWritePDFRefusesExistingFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "exists.pdf")
	if err := os.WriteFile(out, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WritePDF([]string{"page.jpg"}, out); !errors.Is(err, os.ErrExist) {
		t.Fatalf("WritePDF error = %v, want os.ErrExist", err)
	}
	if err := WritePDF(nil, filepath.Join(t.TempDir(), "new.pdf")); err == nil {
		t.Fatalf("WritePDF without pages succeeded")
	}
}
