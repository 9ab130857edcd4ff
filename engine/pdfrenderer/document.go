package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/drummonds/pdfview/viewer"
)

var errClosed = errors.New("document is closed")

// document pairs a rasteriser with the text index of the same bytes.
type document struct {
	name   string
	raster rasterDocument
	// text is nil when the parser cannot read the file; pages then have no
	// text or annotations.
	text *textIndex

	mu     sync.Mutex
	sizes  map[int]viewer.Size
	closed bool
}

func newDocument(name string, data []byte, password *string, raster rasterDocument) (*document, error) {
	if raster.pageCount() < 1 {
		return nil, fmt.Errorf("%s has no pages", name)
	}
	d := &document{name: name, raster: raster, sizes: make(map[int]viewer.Size)}
	text, err := openTextIndex(data, password)
	if err != nil {
		Logger.Warn("Text and annotations unavailable", "name", name, "error", err)
	} else {
		d.text = text
	}
	return d, nil
}

func (d *document) PageCount() int { return d.raster.pageCount() }

func (d *document) Page(ctx context.Context, n int) (viewer.Page, error) {
	if n < 1 || n > d.PageCount() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", n, d.PageCount())
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errClosed
	}
	size, ok := d.sizes[n]
	d.mu.Unlock()
	if !ok {
		var err error
		size, err = d.raster.pageSize(n - 1)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.sizes[n] = size
		d.mu.Unlock()
	}
	return &page{doc: d, number: n, size: size}, nil
}

func (d *document) ResolveDestination(ctx context.Context, dest viewer.Destination) (int, error) {
	if d.text == nil {
		if dest.Page > 0 {
			return dest.Page, nil
		}
		return 0, errors.New("document has no link destinations")
	}
	return d.text.resolve(dest)
}

func (d *document) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	Logger.Debug("Closing document", "name", d.name)
	return d.raster.close()
}

type page struct {
	doc    *document
	number int
	size   viewer.Size
}

func (p *page) Number() int             { return p.number }
func (p *page) NativeSize() viewer.Size { return p.size }

// Render rasterises the page at the viewport scale, rotates it clockwise
// and scales it onto the canvas.
func (p *page) Render(ctx context.Context, req viewer.RenderRequest) error {
	canvas := req.Surface.Canvas()
	if canvas == nil {
		return errors.New("render surface has no canvas")
	}
	dpi := int(math.Ceil(72 * req.Viewport.Scale))
	img, err := p.doc.raster.renderPage(ctx, p.number-1, dpi)
	if err != nil {
		return err
	}
	img = rotate(img, req.Viewport.Rotation)

	dst := canvas.Bounds()
	if img.Bounds().Size() == dst.Size() {
		xdraw.Copy(canvas, dst.Min, img, img.Bounds(), xdraw.Src, nil)
		return nil
	}
	var interpolator xdraw.Interpolator = xdraw.ApproxBiLinear
	if req.Intent == viewer.IntentPrint {
		interpolator = xdraw.CatmullRom
	}
	interpolator.Scale(canvas, dst, img, img.Bounds(), xdraw.Src, nil)
	return nil
}

// rotate turns img clockwise by rotation degrees.
func rotate(img image.Image, rotation int) image.Image {
	switch rotation {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	}
	return img
}

func (p *page) TextContent(ctx context.Context) ([]viewer.TextRun, error) {
	if p.doc.text == nil {
		return nil, nil
	}
	return p.doc.text.textRuns(p.number)
}

func (p *page) Annotations(ctx context.Context) ([]viewer.Annotation, error) {
	if p.doc.text == nil {
		return nil, nil
	}
	return p.doc.text.annotations(p.number)
}
