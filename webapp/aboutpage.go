package webapp

import (
	"encoding/json"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// AboutInfo represents the about information from the API
type AboutInfo struct {
	Version        string  `json:"version"`
	RenderBackend  string  `json:"renderBackend"`
	Printing       bool    `json:"printing"`
	ContainerWidth float64 `json:"containerWidth"`
	Sessions       int     `json:"sessions"`
	DatabaseType   string  `json:"databaseType"`
	DatabaseHost   string  `json:"databaseHost"`
	DatabaseName   string  `json:"databaseName"`
	DocumentPath   string  `json:"documentPath"`
}

// AboutPage displays information about the application
type AboutPage struct {
	app.Compo
	aboutInfo AboutInfo
	loading   bool
	error     string
}

// OnMount is called when the component is mounted
func (a *AboutPage) OnMount(ctx app.Context) {
	a.loading = true
	a.fetchAboutInfo(ctx)
}

// fetchAboutInfo fetches the about information from the API
func (a *AboutPage) fetchAboutInfo(ctx app.Context) {
	callAPI(ctx, BuildAPIURL("/api/about"), nil,
		func(ctx app.Context, status int, body string) {
			if err := json.Unmarshal([]byte(body), &a.aboutInfo); err != nil {
				a.error = fmt.Sprintf("Failed to parse response: %v", err)
			}
			a.loading = false
		},
		func(ctx app.Context) {
			a.error = "Network error"
			a.loading = false
		})
}

// Render renders the about page
func (a *AboutPage) Render() app.UI {
	if a.loading {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About pdfview"),
			app.Div().Class("loading").Body(app.Text("Loading...")),
		)
	}

	if a.error != "" {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About pdfview"),
			app.Div().Class("error").Body(app.Text("Error: "+a.error)),
		)
	}

	return app.Div().Class("about-page").Body(
		app.H2().Text("About pdfview"),
		app.Div().Class("about-content").Body(
			app.Div().Class("about-section").Body(
				app.H3().Text("Application Information"),
				app.Div().Class("info-grid").Body(
					a.renderInfoItem("Version", a.aboutInfo.Version),
					a.renderInfoItem("Renderer", a.getRendererDisplay()),
					a.renderInfoItem("Printing", a.getPrintingStatus()),
					a.renderInfoItem("Open viewers", fmt.Sprintf("%d", a.aboutInfo.Sessions)),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Rendering"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Default container width: "),
						app.Text(fmt.Sprintf("%.0fpx", a.aboutInfo.ContainerWidth)),
					),
					app.P().Body(
						app.Strong().Text("Print to PDF: "),
						app.Text(a.getPrintingStatus()),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Storage"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Database Type: "),
						app.Text(a.getDatabaseDisplay()),
					),
					app.If(a.aboutInfo.DatabaseHost != "", func() app.UI {
						return app.P().Body(
							app.Strong().Text("Host: "),
							app.Text(a.aboutInfo.DatabaseHost),
						)
					}),
					app.P().Body(
						app.Strong().Text("Database Name: "),
						app.Text(a.aboutInfo.DatabaseName),
					),
					app.P().Body(
						app.Strong().Text("Document Storage Path: "),
						app.Text(a.aboutInfo.DocumentPath),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("About pdfview"),
				app.P().Text("pdfview renders PDF pages on the server and shows them in the browser with a selectable text layer and clickable links."),
			),
		),
	)
}

// renderInfoItem creates an info item display
func (a *AboutPage) renderInfoItem(label, value string) app.UI {
	return app.Div().Class("info-item").Body(
		app.Div().Class("info-label").Body(app.Text(label)),
		app.Div().Class("info-value").Body(app.Text(value)),
	)
}

// getDatabaseDisplay returns a user-friendly database display name
func (a *AboutPage) getDatabaseDisplay() string {
	switch a.aboutInfo.DatabaseType {
	case "postgres":
		return "PostgreSQL"
	case "cockroachdb":
		return "CockroachDB"
	case "sqlite":
		return "SQLite"
	default:
		return a.aboutInfo.DatabaseType
	}
}

// getRendererDisplay names the rendering backend
func (a *AboutPage) getRendererDisplay() string {
	switch a.aboutInfo.RenderBackend {
	case "pdfium":
		return "PDFium (WebAssembly)"
	case "fitz":
		return "MuPDF (go-fitz)"
	default:
		return a.aboutInfo.RenderBackend
	}
}

// getPrintingStatus returns the printing status as a user-friendly string
func (a *AboutPage) getPrintingStatus() string {
	if a.aboutInfo.Printing {
		return "Enabled"
	}
	return "Disabled"
}
