package viewer

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"strconv"
	"sync"
)

// Layer names one of the three per-page layers.
type Layer string

const (
	LayerRaster     Layer = "raster"
	LayerText       Layer = "text"
	LayerAnnotation Layer = "annotation"
)

// RasterSurface holds the pixels of a page. The device size is the size of
// the image; the display size is the size the host shows it at.
type RasterSurface struct {
	mu      sync.RWMutex
	img     *image.RGBA
	display Dimensions
}

// NewRasterSurface returns an empty surface.
func NewRasterSurface() *RasterSurface {
	return &RasterSurface{}
}

// Resize allocates a transparent canvas of w x h device pixels.
func (s *RasterSurface) Resize(w, h int, display Dimensions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	s.display = display
}

// Canvas returns the drawable canvas, or nil before Resize.
func (s *RasterSurface) Canvas() draw.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return nil
	}
	return s.img
}

// Image returns the current pixels, or nil when the surface is empty.
func (s *RasterSurface) Image() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img
}

// DisplaySize returns the size the host should display the pixels at.
func (s *RasterSurface) DisplaySize() Dimensions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display
}

// Empty reports whether the surface holds no pixels.
func (s *RasterSurface) Empty() bool {
	return s.Image() == nil
}

// Release drops the pixels.
func (s *RasterSurface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = nil
	s.display = Dimensions{}
}

// replace takes over the pixels of src.
func (s *RasterSurface) replace(src *RasterSurface) {
	src.mu.RLock()
	img, display := src.img, src.display
	src.mu.RUnlock()
	s.mu.Lock()
	s.img, s.display = img, display
	s.mu.Unlock()
}

// TextFragment is a positioned, selectable piece of text in display space.
type TextFragment struct {
	Text     string  `json:"text"`
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"fontSize"`
	Angle    int     `json:"angle"`
}

// TextContainer is the text overlay of a page.
type TextContainer struct {
	mu        sync.RWMutex
	fragments []TextFragment
}

// Clear removes all fragments.
func (c *TextContainer) Clear() {
	c.mu.Lock()
	c.fragments = nil
	c.mu.Unlock()
}

// Append adds fragments to the container.
func (c *TextContainer) Append(f ...TextFragment) {
	c.mu.Lock()
	c.fragments = append(c.fragments, f...)
	c.mu.Unlock()
}

// Fragments returns a copy of the fragments.
func (c *TextContainer) Fragments() []TextFragment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]TextFragment(nil), c.fragments...)
}

// replace takes over the fragments of src.
func (c *TextContainer) replace(src *TextContainer) {
	fragments := src.Fragments()
	c.mu.Lock()
	c.fragments = fragments
	c.mu.Unlock()
}

// Len returns the number of fragments.
func (c *TextContainer) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fragments)
}

// Widget is an interactive annotation in display space.
type Widget struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	URL      string  `json:"url,omitempty"`
	Internal bool    `json:"internal,omitempty"`
	Contents string  `json:"contents,omitempty"`
	Image    string  `json:"image,omitempty"`

	dest *Destination
}

// AnnotationContainer is the annotation overlay of a page.
type AnnotationContainer struct {
	mu      sync.RWMutex
	widgets []Widget
	links   *LinkService
}

// Clear removes all widgets and unbinds the link service.
func (c *AnnotationContainer) Clear() {
	c.mu.Lock()
	c.widgets = nil
	c.links = nil
	c.mu.Unlock()
}

// Append adds widgets to the container.
func (c *AnnotationContainer) Append(w ...Widget) {
	c.mu.Lock()
	c.widgets = append(c.widgets, w...)
	c.mu.Unlock()
}

func (c *AnnotationContainer) bind(links *LinkService) {
	c.mu.Lock()
	c.links = links
	c.mu.Unlock()
}

// Widgets returns a copy of the widgets.
func (c *AnnotationContainer) Widgets() []Widget {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Widget(nil), c.widgets...)
}

// Len returns the number of widgets.
func (c *AnnotationContainer) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.widgets)
}

// Activate follows the internal link of the widget with the given id.
// External links and non-link widgets are left to the host.
func (c *AnnotationContainer) Activate(ctx context.Context, id string) error {
	c.mu.RLock()
	links := c.links
	var dest *Destination
	found := false
	for _, w := range c.widgets {
		if w.ID == id {
			dest, found = w.dest, true
			break
		}
	}
	c.mu.RUnlock()
	if !found {
		return fmt.Errorf("no widget %q", id)
	}
	if dest == nil {
		return nil
	}
	if links == nil {
		return ErrNoDocument
	}
	return links.GoToDestination(ctx, *dest)
}

// replace takes over the widgets of src.
func (c *AnnotationContainer) replace(src *AnnotationContainer, links *LinkService) {
	widgets := src.Widgets()
	c.mu.Lock()
	c.widgets = widgets
	c.links = links
	c.mu.Unlock()
}

// PageSurfaces are the three layer destinations of one page.
type PageSurfaces struct {
	// ID is the page container id, "{identifier}-{page}".
	ID          string
	Page        int
	Raster      *RasterSurface
	Text        *TextContainer
	Annotations *AnnotationContainer
}

func newPageSurfaces(identifier string, page int) *PageSurfaces {
	return &PageSurfaces{
		ID:          containerID(identifier, page),
		Page:        page,
		Raster:      NewRasterSurface(),
		Text:        &TextContainer{},
		Annotations: &AnnotationContainer{},
	}
}

func containerID(identifier string, page int) string {
	if identifier == "" {
		return strconv.Itoa(page)
	}
	return identifier + "-" + strconv.Itoa(page)
}

// Release clears all three layers.
func (p *PageSurfaces) Release() {
	p.Raster.Release()
	p.Text.Clear()
	p.Annotations.Clear()
}

// Empty reports whether no layer holds content.
func (p *PageSurfaces) Empty() bool {
	return p.Raster.Empty() && p.Text.Len() == 0 && p.Annotations.Len() == 0
}
