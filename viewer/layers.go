package viewer

import (
	"context"
	"errors"
	"fmt"
)

// pagePlan is what the layer renderers of one page need.
type pagePlan struct {
	page     Page
	native   Size
	rotation int
	// unrotated is the display size before rotation; actual after.
	unrotated Dimensions
	actual    Dimensions
}

func planPage(page Page, layout Layout, containerWidth float64) (pagePlan, error) {
	native := page.NativeSize()
	if native.Width <= 0 || native.Height <= 0 {
		return pagePlan{}, fmt.Errorf("page %d has an empty page box", page.Number())
	}
	unrotated := PageDimensions(layout, containerWidth, native.AspectRatio())
	return pagePlan{
		page:      page,
		native:    native,
		rotation:  layout.Rotation,
		unrotated: unrotated,
		actual:    unrotated.Rotate(layout.Rotation),
	}, nil
}

// displayScale is the ratio of display to native width, without
// oversampling.
func (p pagePlan) displayScale() float64 {
	return p.unrotated.Width / p.native.Width
}

// renderRaster draws the page onto out at an oversampled scale; out keeps
// the actual dimensions as its display size.
func renderRaster(ctx context.Context, plan pagePlan, explicitScale float64, out *RasterSurface) error {
	scale := rasterScale(explicitScale, plan.unrotated.Width, plan.native.Width)
	viewport := NewViewport(plan.native, scale, plan.rotation)
	w, h := viewport.DeviceSize()
	if w == 0 || h == 0 {
		return errors.New("raster surface would be empty")
	}
	out.Resize(w, h, plan.actual)
	return plan.page.Render(ctx, RenderRequest{Surface: out, Viewport: viewport, Intent: IntentDisplay})
}

func renderTextLayer(ctx context.Context, plan pagePlan, out *TextContainer) error {
	out.Clear()
	runs, err := plan.page.TextContent(ctx)
	if err != nil {
		return err
	}
	LayoutTextLayer(out, runs, NewViewport(plan.native, plan.displayScale(), plan.rotation))
	return nil
}

func renderAnnotationLayer(ctx context.Context, plan pagePlan, links *LinkService, imageResourcesPath string, out *AnnotationContainer) error {
	out.Clear()
	annotations, err := plan.page.Annotations(ctx)
	if err != nil {
		return err
	}
	viewport := NewViewport(plan.native, plan.displayScale(), plan.rotation).NonFlipped()
	LayoutAnnotationLayer(out, annotations, viewport, links, imageResourcesPath)
	return nil
}
