package webapp

import (
	"encoding/json"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// documentsChanged is the action fired after an upload or delete
const documentsChanged = "documents-changed"

// UploadForm sends a PDF to the document store
type UploadForm struct {
	app.Compo
	running bool
	result  string
	error   string
}

// Render renders the upload form
func (i *UploadForm) Render() app.UI {
	label := "Choose a PDF to upload"
	if i.running {
		label = "Uploading..."
	}

	return app.Div().
		Class("upload-form").
		Body(
			app.Label().Class("btn-primary upload-label").Body(
				app.Text(label),
				app.Input().
					Type("file").
					Accept("application/pdf,.pdf").
					Disabled(i.running).
					Style("display", "none").
					OnChange(i.onFileChange),
			),
			i.renderStatus(),
		)
}

// renderStatus renders the status section
func (i *UploadForm) renderStatus() app.UI {
	if i.error != "" {
		return app.Div().Class("error").Body(
			app.Text("Upload failed: " + i.error),
		)
	}

	if i.result != "" {
		return app.Div().Class("success").Body(
			app.Text(i.result),
		)
	}

	return app.Div()
}

// onFileChange uploads the selected file
func (i *UploadForm) onFileChange(ctx app.Context, e app.Event) {
	files := ctx.JSSrc().Get("files")
	if !files.Truthy() || files.Length() == 0 {
		return
	}
	file := files.Index(0)
	i.running = true
	i.result = ""
	i.error = ""

	form := app.Window().Get("FormData").New()
	form.Call("append", "file", file)
	init := app.Window().Get("Object").New()
	init.Set("method", "POST")
	init.Set("body", form)

	callAPI(ctx, BuildAPIURL("/api/document/upload"), init,
		func(ctx app.Context, status int, body string) {
			i.running = false
			if status < 200 || status >= 300 {
				i.error = apiError(status, body)
				return
			}
			var doc Document
			if err := json.Unmarshal([]byte(body), &doc); err == nil {
				i.result = "Uploaded " + doc.Name + " (" + describe(doc) + ")"
			}
			ctx.NewAction(documentsChanged)
		},
		func(ctx app.Context) {
			i.running = false
			i.error = "Network error: Could not connect to server"
		})
}
