package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// DefaultPrintDPI is used when Print is called with a non-positive dpi.
const DefaultPrintDPI = 300

// cssUnits converts points to CSS pixels.
const cssUnits = 96.0 / 72.0

// Presentation is the host capability Print renders into.
type Presentation interface {
	// CreateContainer attaches a hidden container holding an empty print
	// frame.
	CreateContainer(ctx context.Context) (PrintContainer, error)
	// SwapTitle sets the host document title and returns a func that
	// restores the previous one.
	SwapTitle(title string) (restore func())
}

// PrintContainer is a hidden print frame. Release detaches it and frees
// every surface created in it.
type PrintContainer interface {
	// SetPageBox sizes the printed page in CSS pixels.
	SetPageBox(width, height float64)
	// Canvas adds the surface for the page at index to the frame.
	Canvas(index, width, height int) (xdraw.Image, error)
	Print(ctx context.Context) error
	Release() error
}

// Print renders pages at dpi into a container from the presentation and
// triggers the host print. The selected page is printed unless allPages is
// set or no page is selected. A non-empty filename replaces the host title
// while printing. Failures go to the listener as a PrintError.
func (v *Viewer) Print(ctx context.Context, dpi int, filename string, allPages bool) {
	v.opMu.Lock()
	v.mu.Lock()
	doc, pageCount, selector := v.doc, v.pageCount, v.applied.Page
	v.mu.Unlock()
	if doc == nil {
		v.opMu.Unlock()
		v.logger.Debug("Print ignored without a document")
		return
	}
	pages := printPages(pageCount, selector, allPages)
	err := v.print(ctx, doc, pages, dpi, filename)
	v.opMu.Unlock()
	if err != nil {
		v.logger.Error("Printing failed", "pages", len(pages), "error", err)
		v.listener.PrintingFailed(&PrintError{Err: err})
		return
	}
	v.logger.Info("Printed document", "pages", len(pages), "dpi", dpi)
}

func (v *Viewer) print(ctx context.Context, doc Document, pages []int, dpi int, filename string) (err error) {
	if v.presentation == nil {
		return ErrNoPresentation
	}
	if len(pages) == 0 {
		return errors.New("nothing to print")
	}
	if dpi <= 0 {
		dpi = DefaultPrintDPI
	}
	printUnits := float64(dpi) / 72

	container, err := v.presentation.CreateContainer(ctx)
	if err != nil {
		return fmt.Errorf("creating print container: %w", err)
	}
	defer func() {
		if rerr := container.Release(); rerr != nil {
			if err == nil {
				err = fmt.Errorf("releasing print container: %w", rerr)
			} else {
				v.logger.Warn("Releasing print container", "error", rerr)
			}
		}
	}()

	first, err := doc.Page(ctx, pages[0])
	if err != nil {
		return err
	}
	unit := NewViewport(first.NativeSize(), 1, 0)
	container.SetPageBox(unit.Width*printUnits/cssUnits, unit.Height*printUnits/cssUnits)

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range pages {
		g.Go(func() error {
			page, err := doc.Page(gctx, n)
			if err != nil {
				return fmt.Errorf("page %d: %w", n, err)
			}
			img, err := renderPrintPage(gctx, page, printUnits)
			if err != nil {
				return fmt.Errorf("page %d: %w", n, err)
			}
			dst, err := container.Canvas(i, img.Bounds().Dx(), img.Bounds().Dy())
			if err != nil {
				return fmt.Errorf("page %d: %w", n, err)
			}
			xdraw.Copy(dst, dst.Bounds().Min, img, img.Bounds(), xdraw.Src, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if filename != "" {
		restore := v.presentation.SwapTitle(filename)
		defer restore()
	}
	return container.Print(ctx)
}

// renderPrintPage renders page unrotated at printUnits onto a scratch
// surface that is discarded once copied.
func renderPrintPage(ctx context.Context, page Page, printUnits float64) (*image.RGBA, error) {
	unit := NewViewport(page.NativeSize(), 1, 0)
	w := int(math.Floor(unit.Width * printUnits))
	h := int(math.Floor(unit.Height * printUnits))
	if w <= 0 || h <= 0 {
		return nil, errors.New("page has an empty page box")
	}
	scratch := NewRasterSurface()
	scratch.Resize(w, h, Dimensions{Width: unit.Width * cssUnits, Height: unit.Height * cssUnits})
	viewport := NewViewport(page.NativeSize(), printUnits, 0)
	if err := page.Render(ctx, RenderRequest{Surface: scratch, Viewport: viewport, Intent: IntentPrint}); err != nil {
		return nil, err
	}
	return scratch.Image(), nil
}
