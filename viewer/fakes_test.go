package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"
)

var letter = Size{Width: 612, Height: 792}

// fakeEngine decodes any source into a fakeDoc.
type fakeEngine struct {
	pages     int
	password  string
	decodeErr error

	// failPage and failLayer make one layer task of one page fail.
	failPage  int
	failLayer Layer
	// gate, when set, holds raster renders of the next decoded document
	// until it is closed; entered is signalled as each render starts.
	gate    chan struct{}
	entered chan struct{}

	decodes atomic.Int32
	closes  atomic.Int32
	renders atomic.Int32
}

func (e *fakeEngine) Decode(ctx context.Context, src Source, password PasswordFunc) (Document, error) {
	e.decodes.Add(1)
	if e.decodeErr != nil {
		return nil, e.decodeErr
	}
	if e.password != "" {
		retry := false
		for {
			pw, ok := password(ctx, retry)
			if !ok {
				return nil, ErrPasswordCancelled
			}
			if pw == e.password {
				break
			}
			retry = true
		}
	}
	doc := &fakeDoc{engine: e, pages: e.pages, gate: e.gate}
	e.gate = nil
	return doc, nil
}

type fakeDoc struct {
	engine *fakeEngine
	pages  int
	gate   chan struct{}
	closed atomic.Bool
}

func (d *fakeDoc) PageCount() int { return d.pages }

func (d *fakeDoc) Page(ctx context.Context, n int) (Page, error) {
	if d.closed.Load() {
		return nil, errors.New("document closed")
	}
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d out of range", n)
	}
	return &fakePage{doc: d, number: n}, nil
}

func (d *fakeDoc) ResolveDestination(ctx context.Context, dest Destination) (int, error) {
	switch {
	case dest.Name == "chapter2":
		return 2, nil
	case dest.Page > 0:
		return dest.Page, nil
	}
	return 0, fmt.Errorf("unknown destination %+v", dest)
}

func (d *fakeDoc) Close() error {
	if d.closed.Swap(true) {
		return errors.New("document closed twice")
	}
	if d.engine != nil {
		d.engine.closes.Add(1)
	}
	return nil
}

type fakePage struct {
	doc    *fakeDoc
	number int
}

func (p *fakePage) Number() int      { return p.number }
func (p *fakePage) NativeSize() Size { return letter }

func (p *fakePage) fails(layer Layer) bool {
	e := p.doc.engine
	return e != nil && e.failPage == p.number && e.failLayer == layer
}

func (p *fakePage) Render(ctx context.Context, req RenderRequest) error {
	e := p.doc.engine
	if p.doc.gate != nil {
		if e != nil && e.entered != nil {
			select {
			case e.entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-p.doc.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.fails(LayerRaster) {
		return errors.New("raster failed")
	}
	if e != nil {
		e.renders.Add(1)
	}
	canvas := req.Surface.Canvas()
	if canvas == nil {
		return errors.New("surface not sized")
	}
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.RGBA{R: 200, A: 255}), image.Point{}, draw.Src)
	return nil
}

func (p *fakePage) TextContent(ctx context.Context) ([]TextRun, error) {
	if p.fails(LayerText) {
		return nil, errors.New("text failed")
	}
	return []TextRun{{Text: fmt.Sprintf("Page %d", p.number), X: 72, Y: 700, Width: 60, FontSize: 12}}, nil
}

func (p *fakePage) Annotations(ctx context.Context) ([]Annotation, error) {
	if p.fails(LayerAnnotation) {
		return nil, errors.New("annotations failed")
	}
	return []Annotation{
		{ID: "toc", Subtype: "Link", Rect: [4]float64{72, 72, 144, 96}, Dest: &Destination{Name: "chapter2"}},
		{ID: "web", Subtype: "Link", Rect: [4]float64{72, 100, 144, 124}, URL: "https://example.com"},
		{ID: "pop", Subtype: "Popup", Rect: [4]float64{0, 0, 10, 10}},
	}, nil
}

// recorder is a Listener that records notifications.
type recorder struct {
	mu        sync.Mutex
	events    []string
	errs      []error
	jumps     []int
	passwords []string
	retries   []bool
}

func (r *recorder) add(ev string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *recorder) Loaded(Document) { r.add("loaded", nil) }
func (r *recorder) LoadingFailed(err error) { r.add("loading-failed", err) }
func (r *recorder) Rendered() { r.add("rendered", nil) }
func (r *recorder) RenderingFailed(err error) { r.add("rendering-failed", err) }
func (r *recorder) PrintingFailed(err error) { r.add("printing-failed", err) }

func (r *recorder) JumpRequested(page int) {
	r.mu.Lock()
	r.jumps = append(r.jumps, page)
	r.mu.Unlock()
	r.add("jump", nil)
}

// PasswordRequested answers from the queued passwords and cancels once
// they run out.
func (r *recorder) PasswordRequested(prompt *PasswordPrompt, retry bool) {
	r.mu.Lock()
	r.retries = append(r.retries, retry)
	var pw string
	ok := len(r.passwords) > 0
	if ok {
		pw, r.passwords = r.passwords[0], r.passwords[1:]
	}
	r.mu.Unlock()
	r.add("password", nil)
	if ok {
		prompt.Submit(pw)
		return
	}
	prompt.Cancel()
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(ev string) int {
	n := 0
	for _, e := range r.Events() {
		if e == ev {
			n++
		}
	}
	return n
}

// fakePresentation records what Print does with its container.
type fakePresentation struct {
	mu        sync.Mutex
	title     string
	titles    []string
	createErr error
	printErr  error
	container *fakeContainer
}

func (p *fakePresentation) CreateContainer(ctx context.Context) (PrintContainer, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.container = &fakeContainer{canvases: map[int]*image.RGBA{}, printErr: p.printErr, presentation: p}
	return p.container, nil
}

func (p *fakePresentation) SwapTitle(title string) func() {
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

type fakeContainer struct {
	mu           sync.Mutex
	presentation *fakePresentation
	pageBox      Size
	canvases     map[int]*image.RGBA
	printErr     error
	printed      bool
	released     bool
}

func (c *fakeContainer) SetPageBox(w, h float64) {
	c.mu.Lock()
	c.pageBox = Size{Width: w, Height: h}
	c.mu.Unlock()
}

func (c *fakeContainer) Canvas(index, w, h int) (xdraw.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c.canvases[index] = img
	return img, nil
}

func (c *fakeContainer) Print(ctx context.Context) error {
	c.presentation.mu.Lock()
	c.presentation.titles = append(c.presentation.titles, c.presentation.title)
	c.presentation.mu.Unlock()
	if c.printErr != nil {
		return c.printErr
	}
	c.mu.Lock()
	c.printed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeContainer) Release() error {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
	return nil
}
