package viewer

import (
	"context"
	"errors"
	"testing"
)

func newPrintViewer(t *testing.T, e *fakeEngine, opts Options) (*Viewer, *recorder, *fakePresentation) {
	t.Helper()
	r := &recorder{}
	p := &fakePresentation{title: "Viewer"}
	v := New(e, WithListener(r), WithPresentation(p))
	if opts.Source == nil {
		opts.Source = pdfSource()
	}
	if err := v.Update(context.Background(), opts); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	return v, r, p
}

func TestPrintPageSelection(t *testing.T) {
	tests := []struct {
		name     string
		selector int
		allPages bool
		want     int
	}{
		{"selected page", 2, false, 1},
		{"all pages", 2, true, 3},
		{"no selection", 0, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, r, p := newPrintViewer(t, &fakeEngine{pages: 3}, Options{Page: tt.selector})
			v.Print(context.Background(), 300, "", tt.allPages)

			c := p.container
			if c == nil {
				t.Fatal("Expected a print container")
			}
			if len(c.canvases) != tt.want {
				t.Errorf("Expected %d printed pages, got %d", tt.want, len(c.canvases))
			}
			if !c.printed || !c.released {
				t.Errorf("Expected container printed and released, printed=%v released=%v", c.printed, c.released)
			}
			if r.count("printing-failed") != 0 {
				t.Errorf("Unexpected print failure: %v", r.errs)
			}
		})
	}
}

func TestPrintResolution(t *testing.T) {
	v, _, p := newPrintViewer(t, &fakeEngine{pages: 1}, Options{})
	v.Print(context.Background(), 0, "", false)

	c := p.container
	// 0 dpi falls back to 300: 612pt * 300/72 = 2550px
	img := c.canvases[0]
	if img.Bounds().Dx() != 2550 || img.Bounds().Dy() != 3300 {
		t.Errorf("Unexpected print canvas size %v", img.Bounds())
	}
	if img.RGBAAt(10, 10).R != 200 {
		t.Error("Expected rendered pixels to be copied into the print canvas")
	}
	if !almostEqual(c.pageBox.Width, 1912.5) || !almostEqual(c.pageBox.Height, 2475) {
		t.Errorf("Unexpected page box %+v", c.pageBox)
	}
}

func TestPrintSwapsAndRestoresTitle(t *testing.T) {
	v, _, p := newPrintViewer(t, &fakeEngine{pages: 1}, Options{})
	v.Print(context.Background(), 72, "report.pdf", false)

	if len(p.titles) != 1 || p.titles[0] != "report.pdf" {
		t.Errorf("Expected title report.pdf while printing, got %v", p.titles)
	}
	if p.title != "Viewer" {
		t.Errorf("Expected title restored, got %q", p.title)
	}
}

func TestPrintFailure(t *testing.T) {
	printErr := errors.New("printer on fire")
	v, r, p := newPrintViewer(t, &fakeEngine{pages: 2}, Options{})
	p.printErr = printErr
	v.Print(context.Background(), 150, "report.pdf", true)

	if r.count("printing-failed") != 1 {
		t.Fatalf("Expected printing-failed, got %v", r.Events())
	}
	var pe *PrintError
	if !errors.As(r.errs[0], &pe) || !errors.Is(pe, printErr) {
		t.Errorf("Expected *PrintError wrapping the print error, got %v", r.errs[0])
	}
	if !p.container.released {
		t.Error("Expected container released after a failure")
	}
	if p.title != "Viewer" {
		t.Errorf("Expected title restored after a failure, got %q", p.title)
	}
	for _, s := range v.AllSurfaces() {
		if s.Empty() {
			t.Errorf("Expected page %d on screen to be untouched", s.Page)
		}
	}
}

func TestPrintRenderFailureReleasesContainer(t *testing.T) {
	e := &fakeEngine{pages: 3}
	v, r, p := newPrintViewer(t, e, Options{})
	e.failPage, e.failLayer = 3, LayerRaster
	v.Print(context.Background(), 72, "", true)

	if r.count("printing-failed") != 1 {
		t.Fatalf("Expected printing-failed, got %v", r.Events())
	}
	if p.container.printed || !p.container.released {
		t.Error("Expected container released without printing")
	}
	if v.Document() == nil {
		t.Error("Expected print failure to leave the document loaded")
	}
}

func TestPrintWithoutDocumentIsNoop(t *testing.T) {
	r := &recorder{}
	p := &fakePresentation{}
	v := New(&fakeEngine{}, WithListener(r), WithPresentation(p))
	v.Print(context.Background(), 300, "x.pdf", true)
	if p.container != nil || len(r.Events()) != 0 {
		t.Error("Expected Print without a document to do nothing")
	}
}

func TestPrintWithoutPresentation(t *testing.T) {
	r := &recorder{}
	v := New(&fakeEngine{pages: 1}, WithListener(r))
	if err := v.Update(context.Background(), Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	v.Print(context.Background(), 300, "", false)
	if r.count("printing-failed") != 1 || !errors.Is(r.errs[0], ErrNoPresentation) {
		t.Errorf("Expected ErrNoPresentation, got %v", r.errs)
	}
}

func TestPrintContainerCreationFailure(t *testing.T) {
	v, r, p := newPrintViewer(t, &fakeEngine{pages: 1}, Options{})
	p.createErr = errors.New("no frame")
	v.Print(context.Background(), 300, "report.pdf", false)
	if r.count("printing-failed") != 1 {
		t.Errorf("Expected printing-failed, got %v", r.Events())
	}
	if p.title != "Viewer" {
		t.Errorf("Expected title untouched, got %q", p.title)
	}
}
