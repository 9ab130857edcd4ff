package viewer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func init() {
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestViewer(e *fakeEngine) (*Viewer, *recorder) {
	r := &recorder{}
	return New(e, WithListener(r)), r
}

func pdfSource() *Raw {
	return &Raw{Data: []byte("%PDF-1.7 test"), Name: "test.pdf"}
}

func TestUpdateRendersAllPages(t *testing.T) {
	e := &fakeEngine{pages: 3}
	v, r := newTestViewer(e)
	ctx := context.Background()

	if err := v.Update(ctx, Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if diff := cmp.Diff([]string{"loaded", "rendered"}, r.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, v.Pages()); diff != "" {
		t.Errorf("Pages mismatch (-want +got):\n%s", diff)
	}
	for _, s := range v.AllSurfaces() {
		if s.Raster.Empty() || s.Text.Len() != 1 || s.Annotations.Len() != 2 {
			t.Errorf("Page %d layers not rendered: raster empty=%v text=%d annotations=%d",
				s.Page, s.Raster.Empty(), s.Text.Len(), s.Annotations.Len())
		}
		// 800px display width gives an oversampling scale of 2
		if got := s.Raster.Image().Bounds().Dx(); got != 1224 {
			t.Errorf("Page %d raster width = %d, want 1224", s.Page, got)
		}
		if got := s.Raster.DisplaySize().Width; got != 800 {
			t.Errorf("Page %d display width = %v, want 800", s.Page, got)
		}
	}
}

func TestUpdateSelectedPage(t *testing.T) {
	v, _ := newTestViewer(&fakeEngine{pages: 3})
	if err := v.Update(context.Background(), Options{Source: pdfSource(), Page: 2, Identifier: "doc"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if diff := cmp.Diff([]int{2}, v.Pages()); diff != "" {
		t.Errorf("Pages mismatch (-want +got):\n%s", diff)
	}
	s := v.Surfaces(2)
	if s == nil || s.ID != "doc-2" {
		t.Fatalf("Expected surfaces with id doc-2, got %+v", s)
	}
	if v.Surfaces(1) != nil {
		t.Error("Expected no surfaces for an unselected page")
	}
}

func TestUpdateSameOptionsIsNoop(t *testing.T) {
	e := &fakeEngine{pages: 2}
	v, r := newTestViewer(e)
	ctx := context.Background()
	opts := Options{Source: pdfSource()}

	for i := 0; i < 3; i++ {
		if err := v.Update(ctx, opts); err != nil {
			t.Fatalf("Update %d failed: %v", i, err)
		}
	}
	if got := e.decodes.Load(); got != 1 {
		t.Errorf("Expected 1 decode, got %d", got)
	}
	if got := r.count("rendered"); got != 1 {
		t.Errorf("Expected 1 render pass, got %d", got)
	}
}

func TestRotationChangeRendersWithoutReload(t *testing.T) {
	e := &fakeEngine{pages: 1}
	v, r := newTestViewer(e)
	ctx := context.Background()
	src := pdfSource()

	if err := v.Update(ctx, Options{Source: src}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	before := v.Surfaces(1).Raster.DisplaySize()
	if err := v.Update(ctx, Options{Source: src, Rotation: 90}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := e.decodes.Load(); got != 1 {
		t.Errorf("Expected rotation not to reload, got %d decodes", got)
	}
	if got := r.count("rendered"); got != 2 {
		t.Errorf("Expected 2 render passes, got %d", got)
	}
	after := v.Surfaces(1).Raster.DisplaySize()
	if !almostEqual(after.Width, before.Height) || !almostEqual(after.Height, before.Width) {
		t.Errorf("Expected swapped display size, before %+v after %+v", before, after)
	}
	img := v.Surfaces(1).Raster.Image()
	if img.Bounds().Dx() <= img.Bounds().Dy() {
		t.Errorf("Expected landscape raster after rotation, got %v", img.Bounds())
	}
}

func TestSourceChangeReloads(t *testing.T) {
	e := &fakeEngine{pages: 2}
	v, r := newTestViewer(e)
	ctx := context.Background()

	if err := v.Update(ctx, Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	old := v.Surfaces(1)
	if err := v.Update(ctx, Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := e.decodes.Load(); got != 2 {
		t.Errorf("Expected 2 decodes, got %d", got)
	}
	if got := e.closes.Load(); got != 1 {
		t.Errorf("Expected previous document to be closed, got %d closes", got)
	}
	if !old.Empty() {
		t.Error("Expected surfaces of the previous document to be released")
	}
	if diff := cmp.Diff([]string{"loaded", "rendered", "loaded", "rendered"}, r.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
}

func TestPageChangeReleasesLeavingSurfaces(t *testing.T) {
	e := &fakeEngine{pages: 3}
	v, _ := newTestViewer(e)
	ctx := context.Background()
	src := pdfSource()

	if err := v.Update(ctx, Options{Source: src}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	first, second, third := v.Surfaces(1), v.Surfaces(2), v.Surfaces(3)
	if err := v.Update(ctx, Options{Source: src, Page: 2}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !first.Empty() || !third.Empty() {
		t.Error("Expected surfaces of pages leaving the set to be released")
	}
	if v.Surfaces(2) != second || second.Empty() {
		t.Error("Expected the surfaces of page 2 to be kept and re-rendered")
	}
	if got := e.decodes.Load(); got != 1 {
		t.Errorf("Expected page change not to reload, got %d decodes", got)
	}
}

func TestRenderFailureResetsViewer(t *testing.T) {
	e := &fakeEngine{pages: 3, failPage: 2, failLayer: LayerText}
	v, r := newTestViewer(e)
	ctx := context.Background()
	src := pdfSource()

	if err := v.Update(ctx, Options{Source: src}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if diff := cmp.Diff([]string{"loaded", "rendering-failed"}, r.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
	var renderErr *RenderError
	if !errors.As(r.errs[0], &renderErr) {
		t.Fatalf("Expected *RenderError, got %v", r.errs[0])
	}
	if renderErr.Page != 2 || renderErr.Layer != LayerText {
		t.Errorf("Unexpected render error: %v", renderErr)
	}
	if v.Document() != nil || v.PageCount() != 0 || len(v.AllSurfaces()) != 0 {
		t.Error("Expected viewer to be reset after a render failure")
	}
	if got := e.closes.Load(); got != 1 {
		t.Errorf("Expected document to be released, got %d closes", got)
	}

	// the same source is not decoded again
	if err := v.Update(ctx, Options{Source: src, Rotation: 180}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := e.decodes.Load(); got != 1 {
		t.Errorf("Expected no reload of a failed source, got %d decodes", got)
	}
}

func TestLoadFailure(t *testing.T) {
	e := &fakeEngine{decodeErr: errors.New("not a pdf")}
	v, r := newTestViewer(e)
	ctx := context.Background()
	src := pdfSource()

	if err := v.Update(ctx, Options{Source: src}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if diff := cmp.Diff([]string{"loading-failed"}, r.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
	var loadErr *LoadError
	if !errors.As(r.errs[0], &loadErr) {
		t.Errorf("Expected *LoadError, got %v", r.errs[0])
	}
	if err := v.Update(ctx, Options{Source: src, Width: Px(300)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := e.decodes.Load(); got != 1 {
		t.Errorf("Expected failed source not to be decoded again, got %d", got)
	}
}

func TestPasswordRetry(t *testing.T) {
	e := &fakeEngine{pages: 1, password: "secret"}
	v, r := newTestViewer(e)
	r.passwords = []string{"wrong", "secret"}

	if err := v.Update(context.Background(), Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if diff := cmp.Diff([]bool{false, true}, r.retries); diff != "" {
		t.Errorf("Retry flags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"password", "password", "loaded", "rendered"}, r.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
}

func TestPasswordCancelled(t *testing.T) {
	e := &fakeEngine{pages: 1, password: "secret"}
	v, r := newTestViewer(e)

	if err := v.Update(context.Background(), Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if r.count("loading-failed") != 1 {
		t.Fatalf("Expected loading-failed, got %v", r.Events())
	}
	if !errors.Is(r.errs[0], ErrPasswordCancelled) {
		t.Errorf("Expected ErrPasswordCancelled, got %v", r.errs[0])
	}
}

func TestPasswordPromptWithoutListenerCancels(t *testing.T) {
	e := &fakeEngine{pages: 1, password: "secret"}
	var failed error
	v := New(e, WithListener(Events{OnLoadingFailed: func(err error) { failed = err }}))
	if err := v.Update(context.Background(), Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !errors.Is(failed, ErrPasswordCancelled) {
		t.Errorf("Expected ErrPasswordCancelled, got %v", failed)
	}
}

func TestConfigErrorIsReturned(t *testing.T) {
	e := &fakeEngine{pages: 1}
	v, r := newTestViewer(e)
	err := v.Update(context.Background(), Options{Source: pdfSource(), Rotation: 45})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *ConfigError, got %v", err)
	}
	if len(r.Events()) != 0 || e.decodes.Load() != 0 {
		t.Error("Expected invalid options to do nothing")
	}
}

func TestDecodedSourcePassesThrough(t *testing.T) {
	doc := &fakeDoc{pages: 2}
	v, r := newTestViewer(nil)
	if err := v.Update(context.Background(), Options{Source: &Decoded{Document: doc}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if v.Document() != doc {
		t.Error("Expected the decoded document to be used as is")
	}
	if diff := cmp.Diff([]string{"loaded", "rendered"}, r.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !doc.closed.Load() {
		t.Error("Expected Close to close the document")
	}
}

func TestLayerToggles(t *testing.T) {
	e := &fakeEngine{pages: 1}
	v, _ := newTestViewer(e)
	ctx := context.Background()
	src := pdfSource()

	if err := v.Update(ctx, Options{Source: src, DisableTextLayer: true, DisableAnnotationLayer: true}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	s := v.Surfaces(1)
	if s.Text.Len() != 0 || s.Annotations.Len() != 0 || v.LinkService() != nil {
		t.Error("Expected disabled layers to stay empty")
	}
	if s.Raster.Empty() {
		t.Error("Expected raster layer to render")
	}
	if err := v.Update(ctx, Options{Source: src}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if s.Text.Len() != 1 || s.Annotations.Len() != 2 || v.LinkService() == nil {
		t.Error("Expected enabled layers to render")
	}
	if got := e.decodes.Load(); got != 1 {
		t.Errorf("Expected layer toggles not to reload, got %d decodes", got)
	}
}

func TestInternalLinkRequestsJump(t *testing.T) {
	v, r := newTestViewer(&fakeEngine{pages: 3})
	ctx := context.Background()
	if err := v.Update(ctx, Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := v.Surfaces(3).Annotations.Activate(ctx, "toc"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if diff := cmp.Diff([]int{2}, r.jumps); diff != "" {
		t.Errorf("Jumps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, v.Pages()); diff != "" {
		t.Errorf("Expected link activation not to change the page set: %s", diff)
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for render to start")
	}
}

func TestCloseDuringRenderIsSilent(t *testing.T) {
	e := &fakeEngine{pages: 3, gate: make(chan struct{}), entered: make(chan struct{}, 8)}
	v, r := newTestViewer(e)

	done := make(chan error, 1)
	go func() { done <- v.Update(context.Background(), Options{Source: pdfSource()}) }()
	waitSignal(t, e.entered)

	if err := v.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Update returned %v", err)
	}
	if diff := cmp.Diff([]string{"loaded"}, r.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
	if got := e.closes.Load(); got != 1 {
		t.Errorf("Expected document to be closed once, got %d", got)
	}
	if len(v.AllSurfaces()) != 0 {
		t.Error("Expected no surfaces after Close")
	}
	if err := v.Update(context.Background(), Options{Source: pdfSource()}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}

func TestNewSourceSupersedesRender(t *testing.T) {
	e := &fakeEngine{pages: 2, gate: make(chan struct{}), entered: make(chan struct{}, 8)}
	v, r := newTestViewer(e)

	done := make(chan error, 1)
	go func() { done <- v.Update(context.Background(), Options{Source: pdfSource()}) }()
	waitSignal(t, e.entered)

	if err := v.Update(context.Background(), Options{Source: pdfSource()}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Superseded update returned %v", err)
	}
	if diff := cmp.Diff([]string{"loaded", "loaded", "rendered"}, r.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
	if got := e.closes.Load(); got != 1 {
		t.Errorf("Expected superseded document to be closed, got %d closes", got)
	}
	for _, s := range v.AllSurfaces() {
		if s.Raster.Empty() {
			t.Errorf("Expected page %d of the new document to be rendered", s.Page)
		}
	}
}
