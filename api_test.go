package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	config "github.com/drummonds/pdfview/config"
	database "github.com/drummonds/pdfview/database"
	engine "github.com/drummonds/pdfview/engine"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
)

// samplePDF builds a one page document with a line of text and a link.
func samplePDF() []byte {
	content := "BT /F1 18 Tf 72 700 Td (Quarterly figures) Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> /Annots [6 0 R] >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Type /Annot /Subtype /Link /Rect [72 72 144 96] /A << /S /URI /URI (https://example.com) >> >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// setupTestServer creates a test server with all routes configured over
// the PDFium engine
func setupTestServer(t *testing.T) (*echo.Echo, *engine.ServerHandler) {
	t.Helper()
	injectGlobals(slog.New(slog.NewTextHandler(io.Discard, nil)))

	tempDir := t.TempDir()
	serverConfig := config.ServerConfig{
		DatabaseType:       "sqlite",
		DatabaseDbname:     filepath.Join(tempDir, "pdfview.sqlite"),
		DocumentPath:       filepath.Join(tempDir, "documents"),
		RenderConfig:       config.RenderConfig{Backend: pdfrenderer.BackendPDFium, Workers: 1, ContainerWidth: 800, PrintDPI: 150},
		SessionIdleMinutes: 30,
		JobRetentionHours:  24,
	}
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	renderer, err := pdfrenderer.NewEngine(pdfrenderer.Config{Backend: serverConfig.Backend, Workers: serverConfig.Workers})
	if err != nil {
		db.Close()
		t.Skipf("PDFium unavailable: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = notFoundHandler(e)
	serverHandler := &engine.ServerHandler{DB: db, Echo: e, ServerConfig: serverConfig, Engine: renderer}
	if err := serverHandler.StartupChecks(); err != nil {
		t.Fatalf("Startup checks failed: %v", err)
	}
	serverHandler.Sessions = engine.NewSessionStore(renderer, nil, serverConfig.ContainerWidth, db)
	serverHandler.AddRoutes()
	t.Cleanup(func() {
		serverHandler.Sessions.CloseAll()
		renderer.Close()
		db.Close()
	})
	return e, serverHandler
}

func doRequest(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// TestViewDocumentEndToEnd uploads a PDF, opens a viewer on it and reads
// back the rendered layers
func TestViewDocumentEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	e, _ := setupTestServer(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, _ := w.CreateFormFile("file", "quarterly.pdf")
	fw.Write(samplePDF())
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/document/upload", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := doRequest(e, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc database.Document
	json.Unmarshal(rec.Body.Bytes(), &doc)
	if doc.Pages != 1 {
		t.Errorf("Expected 1 page recorded, got %d", doc.Pages)
	}

	payload, _ := json.Marshal(map[string]interface{}{"documentId": doc.ULID.String(), "options": map[string]interface{}{"width": 306}})
	req = httptest.NewRequest(http.MethodPost, "/api/viewers", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = doRequest(e, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var state engine.SessionState
	json.Unmarshal(rec.Body.Bytes(), &state)
	base := "/api/viewers/" + state.ID

	var after uint64
	deadline := time.Now().Add(20 * time.Second)
	rendered := false
	for !rendered && time.Now().Before(deadline) {
		rec = doRequest(e, httptest.NewRequest(http.MethodGet, fmt.Sprintf("%s/events?after=%d&wait=1000", base, after), nil))
		var events []engine.Event
		json.Unmarshal(rec.Body.Bytes(), &events)
		for _, ev := range events {
			after = ev.Seq
			switch ev.Type {
			case engine.EventRendered:
				rendered = true
			case engine.EventLoadingFailed, engine.EventRenderingFailed:
				t.Fatalf("Viewer failed: %s", ev.Error)
			}
		}
	}
	if !rendered {
		t.Fatal("Timed out waiting for the document to render")
	}

	rec = doRequest(e, httptest.NewRequest(http.MethodGet, base+"/pages/1/raster", nil))
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Errorf("Expected a PNG raster, got %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}

	rec = doRequest(e, httptest.NewRequest(http.MethodGet, base+"/pages/1/text", nil))
	if !bytes.Contains(rec.Body.Bytes(), []byte("Quarterly figures")) {
		t.Errorf("Expected the page text, got %s", rec.Body.String())
	}

	rec = doRequest(e, httptest.NewRequest(http.MethodGet, base+"/pages/1/annotations", nil))
	if !bytes.Contains(rec.Body.Bytes(), []byte("https://example.com")) {
		t.Errorf("Expected the link widget, got %s", rec.Body.String())
	}

	rec = doRequest(e, httptest.NewRequest(http.MethodPost, base+"/print", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected printing to be unavailable without a browser, got %d", rec.Code)
	}
}

// TestUnknownAPIPath tests the JSON 404 for unknown endpoints
func TestUnknownAPIPath(t *testing.T) {
	e, _ := setupTestServer(t)
	rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/searchtest", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != echo.MIMEApplicationJSON {
		t.Errorf("Expected JSON error, got %s", ct)
	}
}
