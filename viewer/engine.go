package viewer

import (
	"context"
)

// PasswordFunc is called by an Engine while decoding an encrypted document.
// retry is false on the first call and true after an incorrect password.
// It returns ok=false when the caller abandons the prompt.
type PasswordFunc func(ctx context.Context, retry bool) (password string, ok bool)

// Engine decodes documents.
type Engine interface {
	Decode(ctx context.Context, src Source, password PasswordFunc) (Document, error)
}

// Document is a decoded document handle. It is shared read-only by all
// tasks of a render pass and closed only by the viewer that loaded it.
type Document interface {
	PageCount() int
	// Page returns the page with the 1-based number n.
	Page(ctx context.Context, n int) (Page, error)
	// ResolveDestination returns the 1-based page number of an internal
	// link destination.
	ResolveDestination(ctx context.Context, dest Destination) (int, error)
	Close() error
}

// Page is one page of a decoded document.
type Page interface {
	Number() int
	// NativeSize is the size of the page box in points.
	NativeSize() Size
	// Render draws the page onto req.Surface, which has already been sized
	// to the device size of req.Viewport.
	Render(ctx context.Context, req RenderRequest) error
	TextContent(ctx context.Context) ([]TextRun, error)
	Annotations(ctx context.Context) ([]Annotation, error)
}

// RenderIntent tells the engine what the pixels are for.
type RenderIntent string

const (
	IntentDisplay RenderIntent = "display"
	IntentPrint   RenderIntent = "print"
)

// RenderRequest is a draw request for one page.
type RenderRequest struct {
	Surface  *RasterSurface
	Viewport Viewport
	Intent   RenderIntent
}

// TextRun is a run of text positioned in PDF user space. X and Y locate the
// start of the baseline.
type TextRun struct {
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	FontSize float64 `json:"fontSize"`
	FontName string  `json:"fontName,omitempty"`
}

// Destination is an internal link target. Exactly one of Name, Page or Ref
// is set; Ref is private to the engine that produced it.
type Destination struct {
	Name string
	Page int
	Ref  string
}

// Annotation is an annotation record in PDF user space.
type Annotation struct {
	ID       string
	Subtype  string
	Rect     [4]float64
	Contents string
	// URL is set for links with a URI action.
	URL string
	// Dest is set for links to a place inside the document.
	Dest *Destination
	// Icon is the icon name of a text annotation.
	Icon   string
	Hidden bool
}
