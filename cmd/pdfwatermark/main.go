package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	watermark "github.com/gcslaoli/pdf-watermark-remover-go"
)

// go run . -o clean.pdf scan.pdf
// go run . -s 1 -o clean.pdf scan.pdf
// go run . --config settings.yaml --output clean.pdf scan.pdf

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

type cliFlags struct {
	output    string
	skip      int
	config    string
	workers   int
	quality   int
	keepGoing bool
	verbose   bool
}

func newFlagSet(stderr io.Writer, f *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("pdfwatermark", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.output, "o", "", "Output PDF file (required)")
	fs.StringVar(&f.output, "output", "", "Output PDF file (required)")
	fs.IntVar(&f.skip, "s", 0, "Skip over the first n page(s)")
	fs.IntVar(&f.skip, "skip", 0, "Skip over the first n page(s)")
	fs.StringVar(&f.config, "c", "", "YAML config file")
	fs.StringVar(&f.config, "config", "", "YAML config file")
	fs.IntVar(&f.workers, "w", 0, "Pages processed in parallel (default: number of CPUs)")
	fs.IntVar(&f.workers, "workers", 0, "Pages processed in parallel (default: number of CPUs)")
	fs.IntVar(&f.quality, "q", watermark.DefaultJPEGQuality, "JPEG quality of the output pages (1-100)")
	fs.IntVar(&f.quality, "quality", watermark.DefaultJPEGQuality, "JPEG quality of the output pages (1-100)")
	fs.BoolVar(&f.keepGoing, "k", false, "Leave out malformed pages instead of aborting")
	fs.BoolVar(&f.keepGoing, "keep-going", false, "Leave out malformed pages instead of aborting")
	fs.BoolVar(&f.verbose, "v", false, "Verbose logging")
	fs.BoolVar(&f.verbose, "verbose", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "pdfwatermark - remove colored watermarks from scanned PDF files\n\n")
		fmt.Fprintf(stderr, "Usage:\n  pdfwatermark [options] -o out.pdf input.pdf\n\nOptions:\n")
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses flags and positional arguments in any order.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	var f cliFlags
	fs := newFlagSet(stderr, &f)
	positional, err := parseArgs(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	if len(positional) != 1 || f.output == "" {
		fs.Usage()
		return 2
	}

	log := newLogger(stderr, f.verbose)

	cfg := watermark.DefaultConfig()
	if f.config != "" {
		cfg, err = watermark.LoadConfig(f.config)
		if err != nil {
			fmt.Fprintf(stderr, "load config: %v\n", err)
			return 1
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "s", "skip":
			cfg.Skip = f.skip
		case "w", "workers":
			cfg.Workers = f.workers
		case "q", "quality":
			cfg.JPEGQuality = f.quality
		case "k", "keep-going":
			cfg.ContinueOnError = f.keepGoing
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid settings: %v\n", err)
		return 2
	}

	opts := cfg.Options(positional[0], f.output)
	opts.Logger = &log

	report, err := watermark.Run(ctx, opts)
	if err != nil {
		fmt.Fprintf(stderr, "remove watermark: %v\n", err)
		return 1
	}
	for _, skipped := range report.Skipped {
		fmt.Fprintf(stderr, "page %d left out: %v\n", skipped.Page+1, skipped.Err)
	}
	return 0
}

// newLogger logs human readable lines to terminals and JSON otherwise.
func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := w
	if fd, ok := w.(interface{ Fd() uintptr }); ok && term.IsTerminal(int(fd.Fd())) {
		out = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
