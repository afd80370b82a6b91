package watermark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options configures a Run.
type Options struct {
	Input  string // source PDF
	Output string // destination PDF, overwritten if it exists

	// Skip is the number of leading pages which are copied without
	// filtering.
	Skip int

	// StagingDir is the parent directory of the per-run staging directory.
	// Empty means os.TempDir().
	StagingDir string

	// Workers bounds the number of pages processed concurrently. Zero means
	// runtime.GOMAXPROCS(0).
	Workers int

	// JPEGQuality is used for the page images, 1 to 100. Zero means
	// DefaultJPEGQuality.
	JPEGQuality int

	// ContinueOnError leaves out malformed pages instead of aborting the
	// run. The pages are listed in Report.Skipped.
	ContinueOnError bool

	Filter Filter

	// Logger receives progress messages. Nil disables logging.
	Logger *zerolog.Logger
}

// PageError records a page which was left out of the output.
type PageError struct {
	Page int
	Err  error
}

// Report summarizes a Run.
type Report struct {
	Pages    int         // pages in the input document
	Written  int         // pages in the output document
	Filtered int         // pages the watermark filter was applied to
	Replaced int64       // pixels replaced with white, over all pages
	Skipped  []PageError // malformed pages left out (ContinueOnError only)
}

type pageResult struct {
	path     string
	filtered bool
	replaced int
	err      error
}

// Run removes the watermark from every page of opts.Input and writes the
// result to opts.Output. Page images are staged in a fresh temporary
// directory which is removed before Run returns, whether or not it succeeds.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Input == "" {
		return nil, errors.New("no input file given")
	}
	if opts.Output == "" {
		return nil, errors.New("no output file given")
	}
	if opts.Skip < 0 {
		return nil, fmt.Errorf("invalid skip count %d", opts.Skip)
	}
	if q := opts.JPEGQuality; q < 0 || q > 100 {
		return nil, fmt.Errorf("invalid JPEG quality %d", q)
	}
	if err := checkOutputDir(opts.Output); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}

	doc, err := Open(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer doc.Close()

	staging, err := os.MkdirTemp(opts.StagingDir, "pdfwatermark-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer removeStaging(staging, log)

	p := &pipeline{
		doc:     doc,
		opts:    opts,
		staging: staging,
		log:     log,
	}
	return p.run(ctx)
}

type pipeline struct {
	doc     *Document
	opts    Options
	staging string
	log     *zerolog.Logger
}

func (p *pipeline) run(ctx context.Context) (*Report, error) {
	numPages := p.doc.NumPages()
	report := &Report{Pages: numPages}
	if numPages == 0 {
		return nil, errors.New("input document has no pages")
	}

	workers := p.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	// pages already run in parallel, so each filter gets its share of CPUs
	if p.opts.Filter.Workers == 0 {
		p.opts.Filter.Workers = max(1, runtime.GOMAXPROCS(0)/workers)
	}

	results := make([]pageResult, numPages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < numPages; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.processPage(i)
			if err != nil {
				var mpe *MalformedPageError
				if p.opts.ContinueOnError && errors.As(err, &mpe) {
					p.log.Warn().Int("page", i).Err(err).Msg("skipping malformed page")
					results[i] = pageResult{err: err}
					return nil
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pages []string
	for i, res := range results {
		if res.err != nil {
			report.Skipped = append(report.Skipped, PageError{Page: i, Err: res.err})
			continue
		}
		pages = append(pages, res.path)
		if res.filtered {
			report.Filtered++
		}
		report.Replaced += int64(res.replaced)
	}
	if len(pages) == 0 {
		return nil, errors.New("no pages left to write")
	}
	report.Written = len(pages)

	p.log.Info().Int("pages", len(pages)).Str("output", p.opts.Output).Msg("writing output PDF file")
	tmpOut := filepath.Join(p.staging, "out.pdf")
	if err := WritePDF(pages, tmpOut); err != nil {
		return nil, fmt.Errorf("assemble output: %w", err)
	}
	if err := copyFile(p.opts.Output, tmpOut); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	p.log.Info().
		Int("written", report.Written).
		Int("filtered", report.Filtered).
		Int("skipped", len(report.Skipped)).
		Int64("replaced", report.Replaced).
		Msg("done")
	return report, nil
}

// processPage assembles, filters and stages a single page.
func (p *pipeline) processPage(page int) (pageResult, error) {
	start := time.Now()

	images, err := p.doc.PageImages(page)
	if err != nil {
		return pageResult{}, err
	}
	canvas, err := Assemble(images)
	if err != nil {
		return pageResult{}, withPage(err, page)
	}

	res := pageResult{
		path:     filepath.Join(p.staging, fmt.Sprintf("%d.jpg", page)),
		filtered: page >= p.opts.Skip,
	}
	if res.filtered {
		res.replaced = p.opts.Filter.Apply(canvas)
	}

	if err := writeJPEG(res.path, canvas, p.opts.JPEGQuality); err != nil {
		return pageResult{}, fmt.Errorf("page %d: %w", page, err)
	}

	bounds := canvas.Bounds()
	p.log.Info().
		Int("page", page+1).
		Int("of", p.doc.NumPages()).
		Int("strips", len(images)).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Bool("filtered", res.filtered).
		Int("replaced", res.replaced).
		Dur("duration", time.Since(start)).
		Msg("processed page")
	return res, nil
}

// checkOutputDir fails early if the output file cannot be created, so that
// no pages are processed for nothing.
func checkOutputDir(output string) error {
	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		return fmt.Errorf("output %s is a directory", output)
	}
	dir := filepath.Dir(output)
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".pdfwatermark-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

// removeStaging deletes the staging directory. Errors are logged and
// otherwise ignored.
func removeStaging(dir string, log *zerolog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("remove staging directory")
	}
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
