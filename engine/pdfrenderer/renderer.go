// Package pdfrenderer decodes PDF documents for the viewer. Pages are
// rasterised with PDFium (WebAssembly, no CGo) or MuPDF through go-fitz;
// text and annotations are read with a pure Go parser.
package pdfrenderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/drummonds/pdfview/viewer"
)

// Logger is replaced by the host at startup.
var Logger = slog.Default()

// Backend names the rasteriser.
const (
	BackendPDFium = "pdfium"
	BackendFitz   = "fitz"
)

// maxDocumentSize bounds remote and streamed sources unless
// Config.MaxDocumentSize says otherwise.
const maxDocumentSize = 256 << 20

// ErrDocumentTooLarge is returned for a source longer than the limit.
var ErrDocumentTooLarge = errors.New("document too large")

// Config configures an Engine.
type Config struct {
	// Backend is BackendPDFium (default) or BackendFitz.
	Backend string
	// Workers is the number of PDFium instances, one per open document.
	Workers int
	// HTTPClient fetches Remote sources; http.DefaultClient when nil.
	HTTPClient *http.Client
	// MaxDocumentSize caps streamed and fetched sources in bytes.
	MaxDocumentSize int64
}

// rasterBackend opens documents for rasterising.
type rasterBackend interface {
	// open returns errPassword when password is missing or wrong.
	open(ctx context.Context, data []byte, password *string) (rasterDocument, error)
	close() error
}

// rasterDocument is a document opened by a backend. Implementations
// serialise their own calls.
type rasterDocument interface {
	pageCount() int
	// pageSize returns the page box of the 0-based page in points.
	pageSize(index int) (viewer.Size, error)
	// renderPage rasterises the 0-based page unrotated at dpi.
	renderPage(ctx context.Context, index int, dpi int) (image.Image, error)
	close() error
}

var errPassword = errors.New("password required or incorrect")

// Engine implements viewer.Engine.
type Engine struct {
	backend rasterBackend
	name    string
	client  *http.Client
	maxSize int64
}

// NewEngine starts the configured backend.
func NewEngine(cfg Config) (*Engine, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	e := &Engine{client: client, name: cfg.Backend, maxSize: cfg.MaxDocumentSize}
	switch strings.ToLower(cfg.Backend) {
	case "", BackendPDFium:
		b, err := newPDFiumBackend(cfg.Workers)
		if err != nil {
			return nil, err
		}
		e.backend, e.name = b, BackendPDFium
	case BackendFitz:
		e.backend, e.name = newFitzBackend(), BackendFitz
	default:
		return nil, fmt.Errorf("unknown render backend %q", cfg.Backend)
	}
	Logger.Info("PDF render engine started", "backend", e.name, "workers", cfg.Workers)
	return e, nil
}

// Backend returns the name of the rasteriser in use.
func (e *Engine) Backend() string { return e.name }

// Close stops the backend. Open documents must be closed first.
func (e *Engine) Close() error {
	return e.backend.close()
}

// Decode reads src and opens it, asking for a password through password
// until the document opens or the prompt is abandoned.
func (e *Engine) Decode(ctx context.Context, src viewer.Source, password viewer.PasswordFunc) (viewer.Document, error) {
	data, name, err := e.readSource(ctx, src)
	if err != nil {
		return nil, err
	}
	return e.Open(ctx, data, name, password)
}

// Open opens a document held in memory.
func (e *Engine) Open(ctx context.Context, data []byte, name string, password viewer.PasswordFunc) (viewer.Document, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return nil, fmt.Errorf("%s is not a PDF document", name)
	}
	var pw *string
	retry := false
	for {
		raster, err := e.backend.open(ctx, data, pw)
		if err == nil {
			doc, err := newDocument(name, data, pw, raster)
			if err != nil {
				raster.close()
				return nil, err
			}
			Logger.Debug("Opened document", "name", name, "pages", doc.PageCount(), "encrypted", pw != nil)
			return doc, nil
		}
		if !errors.Is(err, errPassword) {
			return nil, fmt.Errorf("unable to open %s: %w", name, err)
		}
		if password == nil {
			return nil, fmt.Errorf("%s is encrypted: %w", name, viewer.ErrPasswordCancelled)
		}
		if pw != nil {
			retry = true
		}
		answer, ok := password(ctx, retry)
		if !ok {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, viewer.ErrPasswordCancelled
		}
		pw = &answer
	}
}

func (e *Engine) readSource(ctx context.Context, src viewer.Source) ([]byte, string, error) {
	switch s := src.(type) {
	case *viewer.Raw:
		return s.Data, nameOr(s.Name, "document"), nil
	case *viewer.Stream:
		name := nameOr(s.Name, "stream")
		data, err := e.readLimited(s.Reader, name)
		if err != nil {
			return nil, "", fmt.Errorf("reading document stream: %w", err)
		}
		return data, name, nil
	case *viewer.Remote:
		data, err := e.fetch(ctx, s)
		return data, s.URL, err
	}
	return nil, "", fmt.Errorf("unsupported source %T", src)
}

func (e *Engine) fetch(ctx context.Context, src *viewer.Remote) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range src.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", src.URL, resp.Status)
	}
	data, err := e.readLimited(resp.Body, src.URL)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src.URL, err)
	}
	return data, nil
}

// readLimited reads r whole, failing rather than truncating when it is
// longer than the engine's limit.
func (e *Engine) readLimited(r io.Reader, name string) ([]byte, error) {
	limit := e.maxSize
	if limit <= 0 {
		limit = maxDocumentSize
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrDocumentTooLarge, name, limit)
	}
	return data, nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
