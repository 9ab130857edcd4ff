// Package chromeprint prints viewer frames to PDF through headless Chrome.
package chromeprint

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"sort"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	xdraw "golang.org/x/image/draw"

	"github.com/drummonds/pdfview/viewer"
)

// Logger is replaced by the host at startup.
var Logger = slog.Default()

// Browsers are looked up on PATH when no executable is configured.
var Browsers = []string{"chromium", "chromium-browser", "google-chrome", "chrome"}

// ErrNoBrowser is returned when no Chrome executable can be found.
var ErrNoBrowser = errors.New("no Chrome/Chromium browser found")

// Sink receives each printed document.
type Sink func(ctx context.Context, title string, pdf []byte) error

// Presenter implements viewer.Presentation. Frames are printed with
// Page.printToPDF in a fresh tab and handed to the sink.
type Presenter struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	sink     Sink

	mu    sync.Mutex
	title string
}

// FindBrowser returns path if set, otherwise the first browser on PATH.
func FindBrowser(path string) (string, error) {
	if path != "" {
		return exec.LookPath(path)
	}
	for _, b := range Browsers {
		if p, err := exec.LookPath(b); err == nil {
			return p, nil
		}
	}
	return "", ErrNoBrowser
}

// New starts an allocator for the browser at execPath. The browser itself
// is launched on the first print.
func New(ctx context.Context, execPath string, sink Sink) (*Presenter, error) {
	path, err := FindBrowser(execPath)
	if err != nil {
		return nil, err
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	Logger.Info("Chrome print presenter ready", "browser", path)
	return &Presenter{allocCtx: allocCtx, cancel: cancel, sink: sink, title: "Document"}, nil
}

// Close stops the browser.
func (p *Presenter) Close() {
	p.cancel()
}

// SwapTitle sets the title printed documents carry.
func (p *Presenter) SwapTitle(title string) func() {
	p.mu.Lock()
	prev := p.title
	p.title = title
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.title = prev
		p.mu.Unlock()
	}
}

func (p *Presenter) currentTitle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

// CreateContainer returns an empty frame.
func (p *Presenter) CreateContainer(ctx context.Context) (viewer.PrintContainer, error) {
	return &Frame{print: p.print}, nil
}

func (p *Presenter) print(ctx context.Context, html string) error {
	tabCtx, cancel := chromedp.NewContext(p.allocCtx)
	defer cancel()
	// stop the tab when the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPreferCSSPageSize(true).
				WithPrintBackground(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("printing in chrome: %w", err)
	}
	title := p.currentTitle()
	Logger.Debug("Printed frame", "title", title, "bytes", len(pdf))
	if p.sink == nil {
		return nil
	}
	return p.sink(ctx, title, pdf)
}

// Frame collects page canvases and renders them into a printable page.
type Frame struct {
	print func(ctx context.Context, html string) error

	mu       sync.Mutex
	width    float64
	height   float64
	pages    map[int]*image.RGBA
	released bool
}

// SetPageBox sets the printed page size in CSS pixels.
func (f *Frame) SetPageBox(width, height float64) {
	f.mu.Lock()
	f.width, f.height = width, height
	f.mu.Unlock()
}

// Canvas adds a page surface at index.
func (f *Frame) Canvas(index, width, height int) (xdraw.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil, errors.New("print frame released")
	}
	if f.pages == nil {
		f.pages = make(map[int]*image.RGBA)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	f.pages[index] = img
	return img, nil
}

// Print renders the frame and prints it.
func (f *Frame) Print(ctx context.Context) error {
	html, err := f.HTML()
	if err != nil {
		return err
	}
	return f.print(ctx, html)
}

// Release drops every page surface.
func (f *Frame) Release() error {
	f.mu.Lock()
	f.pages = nil
	f.released = true
	f.mu.Unlock()
	return nil
}

var frameTemplate = template.Must(template.New("frame").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8">
<style>
@page { size: {{.Width}}px {{.Height}}px; margin: 0; }
html, body { margin: 0; padding: 0; }
img { display: block; width: {{.Width}}px; height: {{.Height}}px; page-break-after: always; }
img:last-child { page-break-after: auto; }
</style></head>
<body>{{range .Pages}}<img src="{{.}}">{{end}}</body></html>
`))

// HTML returns the printable document: one image per page, each sized to
// the page box.
func (f *Frame) HTML() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return "", errors.New("print frame released")
	}
	if len(f.pages) == 0 {
		return "", errors.New("print frame has no pages")
	}
	indexes := make([]int, 0, len(f.pages))
	for i := range f.pages {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	data := struct {
		Width, Height float64
		Pages         []template.URL
	}{Width: f.width, Height: f.height}
	for _, i := range indexes {
		var buf bytes.Buffer
		if err := png.Encode(&buf, f.pages[i]); err != nil {
			return "", fmt.Errorf("encoding page %d: %w", i+1, err)
		}
		data.Pages = append(data.Pages, template.URL("data:image/png;base64,"+base64.StdEncoding.EncodeToString(buf.Bytes())))
	}
	var out bytes.Buffer
	if err := frameTemplate.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}
