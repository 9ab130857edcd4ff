package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/drummonds/pdfview/viewer"
)

// fitzBackend rasterises with MuPDF (requires CGo). It cannot open
// encrypted documents.
type fitzBackend struct{}

func newFitzBackend() *fitzBackend {
	return &fitzBackend{}
}

func (b *fitzBackend) open(ctx context.Context, data []byte, password *string) (rasterDocument, error) {
	if password != nil {
		return nil, errors.New("the fitz backend cannot open encrypted documents")
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, errPassword
		}
		return nil, err
	}
	return &fitzDocument{doc: doc, pages: doc.NumPage()}, nil
}

func (b *fitzBackend) close() error { return nil }

type fitzDocument struct {
	mu    sync.Mutex
	doc   *fitz.Document
	pages int
}

func (d *fitzDocument) pageCount() int { return d.pages }

func (d *fitzDocument) pageSize(index int) (viewer.Size, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return viewer.Size{}, errClosed
	}
	bound, err := d.doc.Bound(index)
	if err != nil {
		return viewer.Size{}, fmt.Errorf("unable to get size of page %d: %w", index+1, err)
	}
	return viewer.Size{Width: float64(bound.Dx()), Height: float64(bound.Dy())}, nil
}

func (d *fitzDocument) renderPage(ctx context.Context, index int, dpi int) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.doc == nil {
		return nil, errClosed
	}
	img, err := d.doc.ImageDPI(index, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index+1, err)
	}
	return img, nil
}

func (d *fitzDocument) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}
