package viewer

import (
	"context"
	"testing"
)

func TestLayoutTextLayer(t *testing.T) {
	c := &TextContainer{}
	runs := []TextRun{
		{Text: "Hello", X: 72, Y: 700, Width: 60, FontSize: 12},
		{Text: "", X: 0, Y: 0},
	}
	LayoutTextLayer(c, runs, NewViewport(letter, 2, 0))
	got := c.Fragments()
	if len(got) != 1 {
		t.Fatalf("Expected 1 fragment, got %d", len(got))
	}
	f := got[0]
	if !almostEqual(f.Left, 144) || !almostEqual(f.Top, 160) || !almostEqual(f.Width, 120) || !almostEqual(f.Height, 24) {
		t.Errorf("Unexpected fragment box: %+v", f)
	}
	if f.FontSize != 24 || f.Angle != 0 {
		t.Errorf("Unexpected fragment font: %+v", f)
	}
}

func TestLayoutAnnotationLayer(t *testing.T) {
	var jumped []int
	doc := &fakeDoc{pages: 3}
	links := newLinkService(doc, func(p int) { jumped = append(jumped, p) })

	annotations := []Annotation{
		{ID: "toc", Subtype: "Link", Rect: [4]float64{72, 72, 144, 96}, Dest: &Destination{Name: "chapter2"}},
		{ID: "web", Subtype: "Link", Rect: [4]float64{72, 100, 144, 124}, URL: "https://example.com"},
		{ID: "note", Subtype: "Text", Rect: [4]float64{10, 10, 30, 30}, Icon: "Comment"},
		{ID: "pop", Subtype: "Popup"},
		{ID: "hidden", Subtype: "Square", Hidden: true},
	}
	c := &AnnotationContainer{}
	LayoutAnnotationLayer(c, annotations, NewViewport(letter, 1, 0), links, "/images/")

	widgets := c.Widgets()
	if len(widgets) != 3 {
		t.Fatalf("Expected 3 widgets, got %d: %+v", len(widgets), widgets)
	}
	toc := widgets[0]
	if !almostEqual(toc.Left, 72) || !almostEqual(toc.Top, 696) || !almostEqual(toc.Width, 72) || !almostEqual(toc.Height, 24) {
		t.Errorf("Unexpected link box: %+v", toc)
	}
	if !toc.Internal || toc.Kind != "link" {
		t.Errorf("Expected internal link widget, got %+v", toc)
	}
	if widgets[1].URL != "https://example.com" || widgets[1].Internal {
		t.Errorf("Unexpected external link widget: %+v", widgets[1])
	}
	if widgets[2].Image != "/images/annotation-comment.svg" {
		t.Errorf("Unexpected icon image %q", widgets[2].Image)
	}

	if err := c.Activate(context.Background(), "toc"); err != nil {
		t.Fatalf("Activate(toc) failed: %v", err)
	}
	if err := c.Activate(context.Background(), "web"); err != nil {
		t.Fatalf("Activate(web) failed: %v", err)
	}
	if err := c.Activate(context.Background(), "missing"); err == nil {
		t.Error("Expected error activating unknown widget")
	}
	if len(jumped) != 1 || jumped[0] != 2 {
		t.Errorf("Expected one jump to page 2, got %v", jumped)
	}
}

func TestLayoutAnnotationLayerWithoutLinks(t *testing.T) {
	c := &AnnotationContainer{}
	LayoutAnnotationLayer(c, []Annotation{
		{ID: "toc", Subtype: "Link", Rect: [4]float64{72, 72, 144, 96}, Dest: &Destination{Page: 2}},
		{ID: "note", Subtype: "Text"},
	}, NewViewport(letter, 1, 0), nil, "")
	widgets := c.Widgets()
	if widgets[0].Internal {
		t.Error("Expected link to stay external without a link service")
	}
	if widgets[1].Image != "" {
		t.Errorf("Expected no icon image without a resource path, got %q", widgets[1].Image)
	}
}

func TestLinkServiceRange(t *testing.T) {
	links := newLinkService(&fakeDoc{pages: 3}, func(int) {})
	if err := links.GoToPage(4); err == nil {
		t.Error("Expected error for page past the end")
	}
	if err := links.GoToDestination(context.Background(), Destination{Name: "nowhere"}); err == nil {
		t.Error("Expected error for unknown destination")
	}
}
