package viewer

import (
	"strconv"
	"strings"
)

// LayoutTextLayer positions text runs on viewport and appends the fragments
// to container.
func LayoutTextLayer(container *TextContainer, runs []TextRun, viewport Viewport) {
	fragments := make([]TextFragment, 0, len(runs))
	for _, run := range runs {
		if run.Text == "" {
			continue
		}
		left, top, width, height := viewport.ApplyRect([4]float64{
			run.X, run.Y, run.X + run.Width, run.Y + run.FontSize,
		})
		fragments = append(fragments, TextFragment{
			Text:     run.Text,
			Left:     left,
			Top:      top,
			Width:    width,
			Height:   height,
			FontSize: run.FontSize * viewport.Scale,
			Angle:    viewport.Rotation,
		})
	}
	container.Append(fragments...)
}

// LayoutAnnotationLayer turns annotation records into widgets on a
// non-flipped viewport and appends them to container. Links to places in
// the document are bound to links.
func LayoutAnnotationLayer(container *AnnotationContainer, annotations []Annotation, viewport Viewport, links *LinkService, imageResourcesPath string) {
	if !viewport.DontFlip {
		viewport = viewport.NonFlipped()
	}
	pageHeight := viewport.Page.Height
	widgets := make([]Widget, 0, len(annotations))
	for i, a := range annotations {
		if a.Hidden || a.Subtype == "Popup" {
			continue
		}
		// the non-flipped viewport expects top-down page coordinates
		left, top, width, height := viewport.ApplyRect([4]float64{
			a.Rect[0], pageHeight - a.Rect[1], a.Rect[2], pageHeight - a.Rect[3],
		})
		w := Widget{
			ID:       a.ID,
			Kind:     strings.ToLower(a.Subtype),
			Left:     left,
			Top:      top,
			Width:    width,
			Height:   height,
			Contents: a.Contents,
		}
		if w.ID == "" {
			w.ID = strconv.Itoa(i)
		}
		switch a.Subtype {
		case "Link":
			w.URL = a.URL
			if a.Dest != nil && links != nil {
				dest := *a.Dest
				w.dest = &dest
				w.Internal = true
			}
		case "Text":
			if imageResourcesPath != "" {
				icon := a.Icon
				if icon == "" {
					icon = "Note"
				}
				w.Image = imageResourcesPath + "annotation-" + strings.ToLower(icon) + ".svg"
			}
		}
		widgets = append(widgets, w)
	}
	container.Append(widgets...)
	container.bind(links)
}
