package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	xdraw "golang.org/x/image/draw"

	"github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/database"
	"github.com/drummonds/pdfview/viewer"
)

func init() {
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	database.Logger = Logger
	viewer.Logger = Logger
}

var letter = viewer.Size{Width: 612, Height: 792}

// fakeEngine decodes every source into a two page document. Raw sources
// whose name starts with "locked" need the password "secret".
type fakeEngine struct{}

func (fakeEngine) Decode(ctx context.Context, src viewer.Source, password viewer.PasswordFunc) (viewer.Document, error) {
	raw, ok := src.(*viewer.Raw)
	if !ok {
		return nil, errors.New("only raw sources are supported")
	}
	if len(raw.Name) >= 6 && raw.Name[:6] == "locked" {
		retry := false
		for {
			pw, ok := password(ctx, retry)
			if !ok {
				return nil, viewer.ErrPasswordCancelled
			}
			if pw == "secret" {
				break
			}
			retry = true
		}
	}
	return &fakeDoc{pages: 2}, nil
}

type fakeDoc struct {
	pages int
}

func (d *fakeDoc) PageCount() int { return d.pages }

func (d *fakeDoc) Page(ctx context.Context, n int) (viewer.Page, error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d out of range", n)
	}
	return &fakePage{number: n}, nil
}

func (d *fakeDoc) ResolveDestination(ctx context.Context, dest viewer.Destination) (int, error) {
	if dest.Name == "chapter2" {
		return 2, nil
	}
	return 0, fmt.Errorf("unknown destination %+v", dest)
}

func (d *fakeDoc) Close() error { return nil }

type fakePage struct {
	number int
}

func (p *fakePage) Number() int             { return p.number }
func (p *fakePage) NativeSize() viewer.Size { return letter }

func (p *fakePage) Render(ctx context.Context, req viewer.RenderRequest) error {
	canvas := req.Surface.Canvas()
	if canvas == nil {
		return errors.New("surface not sized")
	}
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.RGBA{R: 200, A: 255}), image.Point{}, draw.Src)
	return nil
}

func (p *fakePage) TextContent(ctx context.Context) ([]viewer.TextRun, error) {
	return []viewer.TextRun{{Text: fmt.Sprintf("Page %d", p.number), X: 72, Y: 700, Width: 60, FontSize: 12}}, nil
}

func (p *fakePage) Annotations(ctx context.Context) ([]viewer.Annotation, error) {
	return []viewer.Annotation{
		{ID: "toc", Subtype: "Link", Rect: [4]float64{72, 72, 144, 96}, Dest: &viewer.Destination{Name: "chapter2"}},
		{ID: "web", Subtype: "Link", Rect: [4]float64{72, 100, 144, 124}, URL: "https://example.com"},
		{ID: "pop", Subtype: "Popup", Rect: [4]float64{0, 0, 10, 10}},
	}, nil
}

// fakePresentation hands a fixed PDF to the print sink.
type fakePresentation struct {
	mu    sync.Mutex
	title string
}

func (p *fakePresentation) CreateContainer(ctx context.Context) (viewer.PrintContainer, error) {
	return &fakeContainer{presentation: p}, nil
}

func (p *fakePresentation) SwapTitle(title string) func() {
	p.mu.Lock()
	prev := p.title
	p.title = title
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.title = prev
		p.mu.Unlock()
	}
}

type fakeContainer struct {
	presentation *fakePresentation
	pages        int
}

func (c *fakeContainer) SetPageBox(w, h float64) {}

func (c *fakeContainer) Canvas(index, w, h int) (xdraw.Image, error) {
	c.pages++
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func (c *fakeContainer) Print(ctx context.Context) error {
	c.presentation.mu.Lock()
	title := c.presentation.title
	c.presentation.mu.Unlock()
	return PrintSink(ctx, title, []byte("%PDF-fake"))
}

func (c *fakeContainer) Release() error { return nil }

// newTestServer wires a handler over a fresh sqlite database and a
// temporary document folder.
func newTestServer(t *testing.T, presentation viewer.Presentation) (*ServerHandler, *echo.Echo) {
	t.Helper()
	tempDir := t.TempDir()
	cfg := config.ServerConfig{
		DatabaseType:       "sqlite",
		DatabaseDbname:     filepath.Join(tempDir, "test.sqlite"),
		DocumentPath:       filepath.Join(tempDir, "documents"),
		RenderConfig:       config.RenderConfig{Backend: "fake", ContainerWidth: 800, PrintDPI: 72},
		SessionIdleMinutes: 1,
		JobRetentionHours:  24,
	}
	db, err := database.NewRepository(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	e := echo.New()
	sessions := NewSessionStore(fakeEngine{}, presentation, cfg.ContainerWidth, db)
	t.Cleanup(func() {
		sessions.CloseAll()
		db.Close()
	})
	serverHandler := &ServerHandler{DB: db, Echo: e, ServerConfig: cfg, Engine: fakeEngine{}, Sessions: sessions}
	if err := serverHandler.StartupChecks(); err != nil {
		t.Fatalf("Startup checks failed: %v", err)
	}
	serverHandler.AddRoutes()
	return serverHandler, e
}

func uploadRequest(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	fw.Write(data)
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/document/upload", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// upload stores a document and returns its record.
func upload(t *testing.T, e *echo.Echo, name string, data []byte) database.Document {
	t.Helper()
	rec := serve(e, uploadRequest(t, name, data))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc database.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode document: %v", err)
	}
	return doc
}

// waitForEvent polls the session until an event of type typ arrives after
// seq and returns it.
func waitForEvent(t *testing.T, s *Session, after uint64, typ EventType) Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range s.Events(context.Background(), after, time.Second) {
			if ev.Type == typ {
				return ev
			}
			after = ev.Seq
		}
	}
	t.Fatalf("Timed out waiting for %s event", typ)
	return Event{}
}

func testPDF(tag string) []byte {
	return []byte("%PDF-1.4\n% " + tag + "\n%%EOF\n")
}
