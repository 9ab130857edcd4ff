// Command pdfrender renders the pages of a PDF to PNG files with their text
// and annotation layers as JSON, or prints the document to a PDF file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/drummonds/pdfview/engine/chromeprint"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/drummonds/pdfview/viewer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

type cliOptions struct {
	input     string
	outDir    string
	page      int
	width     string
	scale     float64
	rotation  int
	dpi       int
	password  string
	print     bool
	allPages  bool
	backend   string
	chrome    string
	noText    bool
	noAnnots  bool
	verbosity string
}

func main() {
	var opts cliOptions
	flag.StringVar(&opts.outDir, "out", ".", "Directory to write the rendered layers to")
	flag.IntVar(&opts.page, "page", 0, "Page to render, 0 renders every page")
	flag.StringVar(&opts.width, "width", "", "Page width, e.g. 800, 800px or 50%")
	flag.Float64Var(&opts.scale, "scale", 0, "Raster scale override")
	flag.IntVar(&opts.rotation, "rotation", 0, "Rotation in degrees, a multiple of 90")
	flag.IntVar(&opts.dpi, "dpi", 150, "Resolution used with -print")
	flag.StringVar(&opts.password, "password", "", "Document password; prompted for when needed and not set")
	flag.BoolVar(&opts.print, "print", false, "Print to <out>/<name>.pdf instead of rendering layers")
	flag.BoolVar(&opts.allPages, "all", false, "Print every page even when -page is set")
	flag.StringVar(&opts.backend, "backend", pdfrenderer.BackendPDFium, "Render backend: pdfium or fitz")
	flag.StringVar(&opts.chrome, "chrome", "", "Chrome executable used with -print (default: search PATH)")
	flag.BoolVar(&opts.noText, "no-text", false, "Skip the text layer")
	flag.BoolVar(&opts.noAnnots, "no-annotations", false, "Skip the annotation layer")
	flag.StringVar(&opts.verbosity, "log", "warn", "Log level: debug, info, warn or error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file.pdf|url>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.input = flag.Arg(0)

	Logger = newLogger(opts.verbosity)
	viewer.Logger = Logger
	pdfrenderer.Logger = Logger
	chromeprint.Logger = Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, "pdfrender:", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// source picks a Remote source for http(s) inputs and a Raw one otherwise.
func source(input string) (viewer.Source, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return &viewer.Remote{URL: input}, nil
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, err
	}
	return &viewer.Raw{Data: data, Name: filepath.Base(input)}, nil
}

// baseName is the output file stem for input.
func baseName(input string) string {
	name := filepath.Base(input)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	return name
}

func buildOptions(opts cliOptions, src viewer.Source) (viewer.Options, error) {
	vo := viewer.Options{
		Source:                 src,
		Page:                   opts.page,
		Scale:                  opts.scale,
		Rotation:               opts.rotation,
		DisableTextLayer:       opts.noText,
		DisableAnnotationLayer: opts.noAnnots,
		Identifier:             baseName(opts.input),
	}
	if opts.width != "" {
		w, err := viewer.ParseLength(opts.width)
		if err != nil {
			return vo, &viewer.ConfigError{Field: "width", Err: err}
		}
		vo.Width = w
	}
	return vo, vo.Validate()
}

func run(ctx context.Context, opts cliOptions) error {
	src, err := source(opts.input)
	if err != nil {
		return err
	}
	vo, err := buildOptions(opts, src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return err
	}

	renderer, err := pdfrenderer.NewEngine(pdfrenderer.Config{Backend: opts.backend, Workers: 1})
	if err != nil {
		return fmt.Errorf("starting %s backend: %w", opts.backend, err)
	}
	defer renderer.Close()

	var failure error
	events := viewer.Events{
		OnLoaded: func(doc viewer.Document) {
			Logger.Info("Document loaded", "pages", doc.PageCount())
		},
		OnLoadingFailed:   func(err error) { failure = err },
		OnRenderingFailed: func(err error) { failure = errors.Join(failure, err) },
		OnPrintingFailed:  func(err error) { failure = err },
		OnPasswordRequested: func(prompt *viewer.PasswordPrompt, retry bool) {
			answerPassword(prompt, opts.password, retry)
		},
	}

	viewerOpts := []viewer.Option{viewer.WithListener(events), viewer.WithLogger(Logger)}
	var printed []byte
	if opts.print {
		presenter, err := chromeprint.New(ctx, opts.chrome, func(ctx context.Context, title string, pdf []byte) error {
			printed = pdf
			return nil
		})
		if err != nil {
			return err
		}
		defer presenter.Close()
		viewerOpts = append(viewerOpts, viewer.WithPresentation(presenter))
	}

	v := viewer.New(renderer, viewerOpts...)
	defer v.Close()

	// Update returns once the document is loaded and every layer rendered
	if err := v.Update(ctx, vo); err != nil {
		return err
	}
	if failure != nil {
		return failure
	}

	if opts.print {
		v.Print(ctx, opts.dpi, baseName(opts.input)+".pdf", opts.allPages)
		if failure != nil {
			return failure
		}
		out := filepath.Join(opts.outDir, baseName(opts.input)+".pdf")
		if err := os.WriteFile(out, printed, 0644); err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	for _, surfaces := range v.AllSurfaces() {
		files, err := writePage(opts.outDir, surfaces)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
	}
	return nil
}

// answerPassword supplies the -password flag on the first request and
// prompts on the terminal afterwards. Without a terminal the prompt is
// cancelled.
func answerPassword(prompt *viewer.PasswordPrompt, flagPassword string, retry bool) {
	if !retry && flagPassword != "" {
		prompt.Submit(flagPassword)
		return
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		prompt.Cancel()
		return
	}
	if retry {
		fmt.Fprint(os.Stderr, "Incorrect password. ")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil || len(pw) == 0 {
		prompt.Cancel()
		return
	}
	prompt.Submit(string(pw))
}
