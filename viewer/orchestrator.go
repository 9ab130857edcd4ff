package viewer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// pass is the snapshot a render pass works from.
type pass struct {
	gen            uint64
	doc            Document
	pages          []int
	layout         Layout
	opts           Options
	containerWidth float64
	links          *LinkService
}

// run renders every layer of every page into detached surfaces. All tasks
// join on one group, so the first failure cancels the rest.
func (p pass) run(ctx context.Context) ([]*PageSurfaces, error) {
	staged := make([]*PageSurfaces, len(p.pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range p.pages {
		out := newPageSurfaces(p.opts.Identifier, n)
		staged[i] = out
		g.Go(func() error {
			page, err := p.doc.Page(gctx, n)
			if err != nil {
				return &RenderError{Page: n, Err: err}
			}
			plan, err := planPage(page, p.layout, p.containerWidth)
			if err != nil {
				return &RenderError{Page: n, Err: err}
			}
			g.Go(func() error {
				if err := renderRaster(gctx, plan, p.layout.Scale, out.Raster); err != nil {
					return &RenderError{Page: n, Layer: LayerRaster, Err: err}
				}
				return nil
			})
			if !p.opts.DisableTextLayer {
				g.Go(func() error {
					if err := renderTextLayer(gctx, plan, out.Text); err != nil {
						return &RenderError{Page: n, Layer: LayerText, Err: err}
					}
					return nil
				})
			}
			if !p.opts.DisableAnnotationLayer {
				g.Go(func() error {
					if err := renderAnnotationLayer(gctx, plan, p.links, p.opts.ImageResourcesPath, out.Annotations); err != nil {
						return &RenderError{Page: n, Layer: LayerAnnotation, Err: err}
					}
					return nil
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range staged {
			s.Release()
		}
		return nil, err
	}
	return staged, nil
}

// renderAll runs a pass over the current page set and commits its output
// only if gen is still the current generation. It returns the notification
// to emit once opMu is released.
func (v *Viewer) renderAll(ctx context.Context, gen uint64) func() {
	v.mu.Lock()
	if gen != v.gen || v.doc == nil {
		v.mu.Unlock()
		return nil
	}
	p := pass{
		gen:            gen,
		doc:            v.doc,
		pages:          append([]int(nil), v.pages...),
		layout:         v.applied.layout(),
		opts:           v.applied,
		containerWidth: v.containerWidth,
		links:          v.links,
	}
	v.mu.Unlock()

	start := time.Now()
	v.logger.Debug("Render pass started", "generation", gen, "pages", len(p.pages))
	staged, err := p.run(ctx)

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		for _, s := range staged {
			s.Release()
		}
		v.logger.Debug("Discarding superseded render pass", "generation", gen)
		return nil
	}
	if err != nil {
		if cerr := v.resetLocked(); cerr != nil {
			v.logger.Warn("Closing document after failed render", "error", cerr)
		}
		v.mu.Unlock()
		v.logger.Error("Render pass failed", "generation", gen, "error", err)
		return func() { v.listener.RenderingFailed(err) }
	}
	for _, s := range staged {
		dst, ok := v.surfaces[s.Page]
		if !ok {
			continue
		}
		dst.Raster.replace(s.Raster)
		dst.Text.replace(s.Text)
		dst.Annotations.replace(s.Annotations, p.links)
	}
	v.mu.Unlock()
	v.logger.Debug("Render pass finished", "generation", gen, "pages", len(p.pages), "duration", time.Since(start))
	return v.listener.Rendered
}
