package webapp

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// PaginatedResponse represents the paginated API response
type PaginatedResponse struct {
	Documents   []Document `json:"documents"`
	Page        int        `json:"page"`
	PageSize    int        `json:"pageSize"`
	TotalCount  int        `json:"totalCount"`
	TotalPages  int        `json:"totalPages"`
	HasNext     bool       `json:"hasNext"`
	HasPrevious bool       `json:"hasPrevious"`
}

// LibraryPage lists the stored documents with pagination and an upload form
type LibraryPage struct {
	app.Compo
	documents   []Document
	currentPage int
	totalPages  int
	totalCount  int
	hasNext     bool
	hasPrevious bool
	loading     bool
	error       string
}

// OnMount is called when the component is mounted
func (h *LibraryPage) OnMount(ctx app.Context) {
	h.currentPage = 1
	h.loading = true
	h.fetchDocuments(ctx, 1)
	ctx.Handle(documentsChanged, func(ctx app.Context, a app.Action) {
		h.fetchDocuments(ctx, h.currentPage)
	})
}

// fetchDocuments fetches documents for a specific page
func (h *LibraryPage) fetchDocuments(ctx app.Context, page int) {
	callAPI(ctx, BuildAPIURL(fmt.Sprintf("/api/documents/latest?page=%d", page)), nil,
		func(ctx app.Context, status int, body string) {
			h.loading = false
			if status < 200 || status >= 300 {
				h.error = apiError(status, body)
				return
			}
			var resp PaginatedResponse
			if err := json.Unmarshal([]byte(body), &resp); err != nil {
				h.error = fmt.Sprintf("Failed to parse response: %v", err)
				return
			}
			h.error = ""
			h.documents = resp.Documents
			h.currentPage = resp.Page
			h.totalPages = resp.TotalPages
			h.totalCount = resp.TotalCount
			h.hasNext = resp.HasNext
			h.hasPrevious = resp.HasPrevious
		},
		func(ctx app.Context) {
			h.error = "Network error"
			h.loading = false
		})
}

// onPageChange handles page navigation
func (h *LibraryPage) onPageChange(page int) func(ctx app.Context, e app.Event) {
	return func(ctx app.Context, e app.Event) {
		e.PreventDefault()
		h.loading = true
		h.error = ""
		h.fetchDocuments(ctx, page)
	}
}

// Render renders the library page
func (h *LibraryPage) Render() app.UI {
	var content app.UI

	if h.loading {
		content = app.Div().Class("loading").Body(app.Text("Loading..."))
	} else if h.error != "" {
		content = app.Div().Class("error").Body(app.Text("Error: " + h.error))
	} else if len(h.documents) == 0 {
		content = app.Div().Class("no-results").Body(app.Text("No documents yet. Upload a PDF to get started."))
	} else {
		content = app.Div().Class("document-grid").Body(
			app.Range(h.documents).Slice(func(i int) app.UI {
				return &DocumentCard{Document: h.documents[i]}
			}),
		)
	}

	return app.Div().
		Class("library-page").
		Body(
			app.H2().Text("Library"),
			&UploadForm{},
			app.P().Class("page-info").Text(
				fmt.Sprintf("Showing page %d of %d (%d documents)",
					h.currentPage, max(h.totalPages, 1), h.totalCount),
			),
			content,
			h.renderPagination(),
		)
}

// renderPagination renders the pagination controls
func (h *LibraryPage) renderPagination() app.UI {
	if h.totalPages <= 1 {
		return app.Div() // No pagination needed
	}

	return app.Div().Class("pagination").Body(
		app.Button().
			Class("pagination-btn").
			Disabled(!h.hasPrevious || h.loading).
			OnClick(h.onPageChange(h.currentPage - 1)).
			Body(app.Text("← Previous")),

		app.Span().Class("pagination-info").Body(
			app.Text(fmt.Sprintf("Page %d of %d", h.currentPage, h.totalPages)),
		),

		app.Button().
			Class("pagination-btn").
			Disabled(!h.hasNext || h.loading).
			OnClick(h.onPageChange(h.currentPage + 1)).
			Body(app.Text("Next →")),
	)
}

// DocumentCard displays a single document with its thumbnail
type DocumentCard struct {
	app.Compo
	Document Document
	deleting bool
	error    string
}

// viewerHref links to the viewer page for a stored document
func viewerHref(documentID string) string {
	return "/viewer?" + url.Values{"doc": {documentID}}.Encode()
}

// describe summarises page count, size and encryption of a document
func describe(doc Document) string {
	var text string
	switch {
	case doc.Pages == 1:
		text = "1 page, " + formatBytes(doc.Size)
	case doc.Pages > 1:
		text = fmt.Sprintf("%d pages, %s", doc.Pages, formatBytes(doc.Size))
	default:
		text = formatBytes(doc.Size)
	}
	if doc.Encrypted {
		text += ", password protected"
	}
	return text
}

// Render renders the document card
func (d *DocumentCard) Render() app.UI {
	doc := d.Document
	title := doc.Title
	if title == "" {
		title = doc.Name
	}
	return app.Div().
		Class("document-card").
		Body(
			app.A().Href(viewerHref(doc.ULID)).Class("document-thumbnail").Body(
				app.Img().
					Src(BuildAPIURL("/api/document/" + doc.ULID + "/thumbnail")).
					Alt(doc.Name).
					Attr("loading", "lazy"),
			),
			app.Div().Class("document-info").Body(
				app.H3().Text(title),
				app.If(doc.Author != "", func() app.UI {
					return app.P().Class("document-author").Text(doc.Author)
				}),
				app.P().Class("document-meta").Text(describe(doc)),
				app.P().Class("document-date").Text("Added: "+doc.CreatedAt),
				app.Div().Class("document-actions").Body(
					app.A().
						Href(viewerHref(doc.ULID)).
						Class("document-link").
						Body(app.Text("Open")),
					app.A().
						Href(BuildAPIURL("/api/document/"+doc.ULID+"/file")).
						Class("document-link").
						Target("_blank").
						Body(app.Text("Download")),
					app.Button().
						Class("btn-danger").
						Disabled(d.deleting).
						OnClick(d.onDelete).
						Body(app.Text("Delete")),
				),
				app.If(d.error != "", func() app.UI {
					return app.Div().Class("error").Text(d.error)
				}),
			),
		)
}

// onDelete removes the document and asks the library to reload
func (d *DocumentCard) onDelete(ctx app.Context, e app.Event) {
	if !app.Window().Call("confirm", "Delete "+d.Document.Name+"?").Bool() {
		return
	}
	d.deleting = true
	callAPI(ctx, BuildAPIURL("/api/document/"+d.Document.ULID), map[string]interface{}{"method": "DELETE"},
		func(ctx app.Context, status int, body string) {
			d.deleting = false
			if status < 200 || status >= 300 {
				d.error = apiError(status, body)
				return
			}
			ctx.NewAction(documentsChanged)
		},
		func(ctx app.Context) {
			d.deleting = false
			d.error = "Network error"
		})
}

// formatBytes formats bytes to human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
