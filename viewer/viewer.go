// Package viewer reconciles viewer options against a decoded document and
// keeps a raster, text and annotation layer per displayed page.
package viewer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Logger is the package logger, replaced by the host at startup.
var Logger = slog.Default()

// DefaultContainerWidth is the host container width used to resolve
// relative lengths when none is configured.
const DefaultContainerWidth = 800

// Viewer displays one document. Each call to Update supersedes the
// operation in flight; a superseded operation never emits notifications
// and never commits its output.
type Viewer struct {
	engine         Engine
	listener       Listener
	presentation   Presentation
	logger         *slog.Logger
	containerWidth float64

	// opMu serialises load, render and print operations.
	opMu sync.Mutex

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	closed bool

	requested    Options
	hasRequested bool
	applied      Options
	hasApplied   bool
	loadedSource Source
	settled      bool

	doc       Document
	pageCount int
	pages     []int
	surfaces  map[int]*PageSurfaces
	links     *LinkService
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithListener sets the notification listener.
func WithListener(l Listener) Option {
	return func(v *Viewer) { v.listener = l }
}

// WithPresentation sets where Print sends its output.
func WithPresentation(p Presentation) Option {
	return func(v *Viewer) { v.presentation = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Viewer) { v.logger = l }
}

// WithContainerWidth sets the width relative lengths resolve against.
func WithContainerWidth(w float64) Option {
	return func(v *Viewer) {
		if w > 0 {
			v.containerWidth = w
		}
	}
}

// New returns a viewer that decodes documents with engine.
func New(engine Engine, opts ...Option) *Viewer {
	v := &Viewer{
		engine:         engine,
		listener:       Events{},
		logger:         Logger,
		containerWidth: DefaultContainerWidth,
		surfaces:       make(map[int]*PageSurfaces),
	}
	for _, o := range opts {
		o(v)
	}
	if v.listener == nil {
		v.listener = Events{}
	}
	return v
}

// Update applies opts. A changed source releases everything and reloads;
// any other change re-renders the current document. Identical options are a
// no-op. Only configuration errors are returned; loading and rendering
// failures go to the listener.
func (v *Viewer) Update(ctx context.Context, opts Options) error {
	u, err := v.Request(opts)
	if err != nil {
		return err
	}
	u.Apply(ctx)
	return nil
}

// PendingUpdate is an update whose generation is reserved but which has not
// been applied yet.
type PendingUpdate struct {
	v    *Viewer
	gen  uint64
	opts Options
	noop bool
}

// Request validates opts and supersedes the operation in flight before
// returning. Requests take effect in call order even when their Apply calls
// run on separate goroutines: an Apply whose request has been superseded
// does nothing.
func (v *Viewer) Request(opts Options) (*PendingUpdate, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrClosed
	}
	if v.hasRequested && diffOptions(v.requested, opts) == 0 {
		return &PendingUpdate{v: v, noop: true}, nil
	}
	v.requested, v.hasRequested = opts, true
	return &PendingUpdate{v: v, gen: v.supersedeLocked(), opts: opts}, nil
}

// Apply loads and renders the requested options. It returns once the
// operation has finished or been superseded.
func (u *PendingUpdate) Apply(ctx context.Context) {
	if u.noop {
		return
	}
	v, gen, opts := u.v, u.gen, u.opts

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.opMu.Lock()
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		v.opMu.Unlock()
		return
	}
	v.cancel = cancel
	c := changeSource | changeLayout | changePage | changeLayers
	if v.hasApplied {
		c = diffOptions(v.applied, opts)
	}
	reload := !v.settled || !SameSource(v.loadedSource, opts.Source)
	if !reload && c == 0 {
		v.mu.Unlock()
		v.opMu.Unlock()
		return
	}
	v.applied, v.hasApplied = opts, true
	if reload {
		if err := v.resetLocked(); err != nil {
			v.logger.Warn("Closing previous document", "error", err)
		}
	} else {
		v.syncLocked(opts)
	}
	v.mu.Unlock()

	v.logger.Debug("Applying options", "change", c, "reload", reload, "generation", gen)
	if reload {
		notice, ok := v.load(ctx, gen, opts)
		// listeners run without opMu so they may call back into the viewer
		v.opMu.Unlock()
		v.notify(gen, notice)
		if !ok {
			return
		}
		v.opMu.Lock()
	}
	notice := v.renderAll(ctx, gen)
	v.opMu.Unlock()
	v.notify(gen, notice)
}

// notify runs notice unless gen has been superseded meanwhile.
func (v *Viewer) notify(gen uint64, notice func()) {
	if notice == nil {
		return
	}
	v.mu.Lock()
	current := gen == v.gen
	v.mu.Unlock()
	if current {
		notice()
	}
}

// Close releases the document and all surfaces. The operation in flight is
// superseded and Close waits for it to return.
func (v *Viewer) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.supersedeLocked()
	v.mu.Unlock()

	v.opMu.Lock()
	defer v.opMu.Unlock()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resetLocked()
}

func (v *Viewer) supersedeLocked() uint64 {
	v.gen++
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	return v.gen
}

// resetLocked releases the surfaces and the document.
func (v *Viewer) resetLocked() error {
	for n, s := range v.surfaces {
		s.Release()
		delete(v.surfaces, n)
	}
	v.pages = nil
	v.links = nil
	v.pageCount = 0
	if v.doc == nil {
		return nil
	}
	doc := v.doc
	v.doc = nil
	return doc.Close()
}

// syncLocked recomputes the page set and the link service. Surfaces of
// pages leaving the set are released before new ones are allocated.
func (v *Viewer) syncLocked(opts Options) {
	pages := ResolvePages(v.pageCount, opts.Page)
	keep := make(map[int]bool, len(pages))
	for _, n := range pages {
		keep[n] = true
	}
	for n, s := range v.surfaces {
		if !keep[n] || s.ID != containerID(opts.Identifier, n) {
			s.Release()
			delete(v.surfaces, n)
		}
	}
	for _, n := range pages {
		if _, ok := v.surfaces[n]; !ok {
			v.surfaces[n] = newPageSurfaces(opts.Identifier, n)
		}
	}
	v.pages = pages

	v.links = nil
	if v.doc != nil && !opts.DisableAnnotationLayer {
		v.links = newLinkService(v.doc, v.jump)
	}
}

func (v *Viewer) jump(page int) {
	v.logger.Debug("Jump requested", "page", page)
	v.listener.JumpRequested(page)
}

// Document returns the loaded document, or nil.
func (v *Viewer) Document() Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc
}

// PageCount returns the page count of the loaded document, or 0.
func (v *Viewer) PageCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pageCount
}

// Pages returns the displayed page numbers in order.
func (v *Viewer) Pages() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.pages...)
}

// Surfaces returns the layers of a displayed page, or nil.
func (v *Viewer) Surfaces(page int) *PageSurfaces {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.surfaces[page]
}

// AllSurfaces returns the layers of every displayed page in page order.
func (v *Viewer) AllSurfaces() []*PageSurfaces {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*PageSurfaces, 0, len(v.surfaces))
	for _, s := range v.surfaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}

// LinkService returns the link service of the current document, or nil
// when nothing is loaded or the annotation layer is disabled.
func (v *Viewer) LinkService() *LinkService {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.links
}

// Options returns the options last applied.
func (v *Viewer) Options() Options {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.applied
}
