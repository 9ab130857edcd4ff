package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"strings"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	pdfiumerrors "github.com/klippa-app/go-pdfium/errors"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"

	"github.com/drummonds/pdfview/viewer"
)

// instanceTimeout bounds the wait for a free PDFium instance.
const instanceTimeout = 30 * time.Second

// pdfiumBackend hands each open document its own instance from a
// WebAssembly pool.
type pdfiumBackend struct {
	pool pdfium.Pool
}

func newPDFiumBackend(workers int) (*pdfiumBackend, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  workers,
		MaxTotal: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}
	return &pdfiumBackend{pool: pool}, nil
}

func (b *pdfiumBackend) open(ctx context.Context, data []byte, password *string) (rasterDocument, error) {
	instance, err := b.pool.GetInstance(instanceTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File:     &data,
		Password: password,
	})
	if err != nil {
		instance.Close()
		if isPasswordError(err) {
			return nil, errPassword
		}
		return nil, err
	}
	count, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: doc.Document})
	if err != nil {
		instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		instance.Close()
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}
	return &pdfiumDocument{instance: instance, doc: doc.Document, pages: count.PageCount}, nil
}

func (b *pdfiumBackend) close() error {
	return b.pool.Close()
}

func isPasswordError(err error) bool {
	return errors.Is(err, pdfiumerrors.ErrPassword) || strings.Contains(strings.ToLower(err.Error()), "password")
}

// pdfiumDocument serialises calls into its instance, which runs one
// WebAssembly module and is not safe for concurrent use.
type pdfiumDocument struct {
	mu       sync.Mutex
	instance pdfium.Pdfium
	doc      references.FPDF_DOCUMENT
	pages    int
}

func (d *pdfiumDocument) pageCount() int { return d.pages }

func (d *pdfiumDocument) page(index int) requests.Page {
	return requests.Page{ByIndex: &requests.PageByIndex{Document: d.doc, Index: index}}
}

func (d *pdfiumDocument) pageSize(index int) (viewer.Size, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instance == nil {
		return viewer.Size{}, errClosed
	}
	size, err := d.instance.GetPageSize(&requests.GetPageSize{Page: d.page(index)})
	if err != nil {
		return viewer.Size{}, fmt.Errorf("unable to get size of page %d: %w", index+1, err)
	}
	return viewer.Size{Width: size.Width, Height: size.Height}, nil
}

func (d *pdfiumDocument) renderPage(ctx context.Context, index int, dpi int) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.instance == nil {
		return nil, errClosed
	}
	render, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI:  dpi,
		Page: d.page(index),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index+1, err)
	}
	defer render.Cleanup()
	// the result buffer lives in WebAssembly memory until Cleanup
	src := render.Result.Image
	img := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
	return img, nil
}

func (d *pdfiumDocument) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instance == nil {
		return nil
	}
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.doc})
	if cerr := d.instance.Close(); err == nil {
		err = cerr
	}
	d.instance = nil
	return err
}
