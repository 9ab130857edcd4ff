package webapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// eventWaitMillis is how long one events request may block on the server
const eventWaitMillis = 25000

// ViewerOptions mirrors the options accepted by /api/viewers/:id/options.
// Width holds a number of pixels or a length such as "50%".
type ViewerOptions struct {
	Page                   int         `json:"page,omitempty"`
	Width                  interface{} `json:"width,omitempty"`
	Rotation               int         `json:"rotation,omitempty"`
	DisableTextLayer       bool        `json:"disableTextLayer,omitempty"`
	DisableAnnotationLayer bool        `json:"disableAnnotationLayer,omitempty"`
}

// Dimensions is a display size in CSS pixels
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageState is one displayed page of a viewer session
type PageState struct {
	ID        string     `json:"id"`
	Page      int        `json:"page"`
	Display   Dimensions `json:"display"`
	Rendered  bool       `json:"rendered"`
	Fragments int        `json:"fragments"`
	Widgets   int        `json:"widgets"`
}

// SessionState is the snapshot returned for a viewer session
type SessionState struct {
	ID              string      `json:"id"`
	DocumentID      string      `json:"documentId"`
	Name            string      `json:"name"`
	PageCount       int         `json:"pageCount"`
	Pages           []PageState `json:"pages"`
	PasswordPending bool        `json:"passwordPending"`
	LastEvent       uint64      `json:"lastEvent"`
}

// ViewerEvent is one notification from the events endpoint
type ViewerEvent struct {
	Seq       uint64 `json:"seq"`
	Type      string `json:"type"`
	Error     string `json:"error"`
	PageCount int    `json:"pageCount"`
	Page      int    `json:"page"`
	Retry     bool   `json:"retry"`
}

// TextFragment is a positioned run of selectable text
type TextFragment struct {
	Text     string  `json:"text"`
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"fontSize"`
	Angle    int     `json:"angle"`
}

// Widget is a positioned annotation
type Widget struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	URL      string  `json:"url"`
	Internal bool    `json:"internal"`
	Contents string  `json:"contents"`
	Image    string  `json:"image"`
}

// ViewerPage shows one document through a server-side viewer session
type ViewerPage struct {
	app.Compo

	documentID string
	sessionID  string
	state      SessionState
	options    ViewerOptions
	widthInput string

	fragments map[int][]TextFragment
	widgets   map[int][]Widget
	// version busts the raster image cache after each render
	version uint64
	after   uint64
	polling bool

	loading        bool
	error          string
	passwordNeeded bool
	passwordRetry  bool
	password       string
	printing       bool
}

// OnNav reads the document from the query string and opens a session
func (v *ViewerPage) OnNav(ctx app.Context) {
	query := ctx.Page().URL().Query()
	doc := query.Get("doc")
	if doc == "" {
		v.error = "No document selected. Open one from the library."
		return
	}
	if doc == v.documentID && v.sessionID != "" {
		return
	}
	v.closeSession(ctx)
	v.documentID = doc
	v.options = ViewerOptions{Page: atoiDefault(query.Get("page"), 0)}
	v.widthInput = ""
	v.fragments = map[int][]TextFragment{}
	v.widgets = map[int][]Widget{}
	v.loading = true
	v.error = ""
	v.openSession(ctx)
}

// OnDismount closes the server side session
func (v *ViewerPage) OnDismount() {
	v.polling = false
	if v.sessionID != "" && app.IsClient {
		app.Window().Call("fetch", BuildAPIURL("/api/viewers/"+v.sessionID), map[string]interface{}{"method": "DELETE"})
	}
}

func (v *ViewerPage) closeSession(ctx app.Context) {
	if v.sessionID == "" {
		return
	}
	v.polling = false
	callAPI(ctx, BuildAPIURL("/api/viewers/"+v.sessionID), map[string]interface{}{"method": "DELETE"},
		func(ctx app.Context, status int, body string) {}, nil)
	v.sessionID = ""
	v.after = 0
}

func (v *ViewerPage) openSession(ctx app.Context) {
	body := map[string]interface{}{
		"documentId": v.documentID,
		"options":    v.options,
	}
	callAPI(ctx, BuildAPIURL("/api/viewers"), jsonInit("POST", body),
		func(ctx app.Context, status int, body string) {
			if status != 201 {
				v.loading = false
				v.error = apiError(status, body)
				return
			}
			var state SessionState
			if err := json.Unmarshal([]byte(body), &state); err != nil {
				v.loading = false
				v.error = fmt.Sprintf("Failed to parse session: %v", err)
				return
			}
			v.state = state
			v.sessionID = state.ID
			v.polling = true
			v.pollEvents(ctx)
		},
		func(ctx app.Context) {
			v.loading = false
			v.error = "Network error: Could not connect to server"
		})
}

// pollEvents long-polls the session and re-arms itself while polling is on
func (v *ViewerPage) pollEvents(ctx app.Context) {
	if !v.polling || v.sessionID == "" {
		return
	}
	id := v.sessionID
	url := BuildAPIURL(fmt.Sprintf("/api/viewers/%s/events?after=%d&wait=%d", id, v.after, eventWaitMillis))
	callAPI(ctx, url, nil,
		func(ctx app.Context, status int, body string) {
			if id != v.sessionID {
				return
			}
			if status == 404 {
				v.polling = false
				v.error = "The viewer session expired. Reload the page to reopen the document."
				return
			}
			var events []ViewerEvent
			if status == 200 && json.Unmarshal([]byte(body), &events) == nil {
				for _, e := range events {
					v.apply(ctx, e)
				}
			}
			v.pollEvents(ctx)
		},
		func(ctx app.Context) {
			v.polling = false
			v.error = "Lost connection to the server"
		})
}

// handleEvent folds one event into the page state and reports whether the
// page surfaces need to be fetched again.
func (v *ViewerPage) handleEvent(e ViewerEvent) (refresh bool) {
	if e.Seq > v.after {
		v.after = e.Seq
	}
	switch e.Type {
	case "loaded":
		v.state.PageCount = e.PageCount
		v.error = ""
	case "rendered":
		v.loading = false
		v.version = e.Seq
		return true
	case "loadingFailed", "renderingFailed":
		v.loading = false
		v.passwordNeeded = false
		v.error = e.Error
	case "printingFailed":
		v.printing = false
		v.error = e.Error
	case "passwordRequested":
		v.loading = false
		v.passwordNeeded = true
		v.passwordRetry = e.Retry
		v.password = ""
	case "jumpRequested":
		if v.options.Page != 0 && e.Page > 0 {
			v.options.Page = e.Page
		}
	}
	return false
}

func (v *ViewerPage) apply(ctx app.Context, e ViewerEvent) {
	page := v.options.Page
	refresh := v.handleEvent(e)
	switch {
	case e.Type == "jumpRequested" && v.options.Page != page:
		v.sendOptions(ctx)
	case e.Type == "jumpRequested":
		if el := app.Window().GetElementByID(pageElementID(v.sessionID, e.Page)); el.Truthy() {
			el.Call("scrollIntoView")
		}
	case refresh:
		v.refreshState(ctx)
	}
}

// refreshState fetches the session snapshot and the layers of every page
func (v *ViewerPage) refreshState(ctx app.Context) {
	id := v.sessionID
	callAPI(ctx, BuildAPIURL("/api/viewers/"+id), nil,
		func(ctx app.Context, status int, body string) {
			var state SessionState
			if status != 200 || json.Unmarshal([]byte(body), &state) != nil || id != v.sessionID {
				return
			}
			v.state = state
			for _, p := range state.Pages {
				v.fetchLayers(ctx, id, p)
			}
		}, nil)
}

func (v *ViewerPage) fetchLayers(ctx app.Context, id string, p PageState) {
	base := fmt.Sprintf("/api/viewers/%s/pages/%d", id, p.Page)
	if p.Fragments > 0 {
		callAPI(ctx, BuildAPIURL(base+"/text"), nil, func(ctx app.Context, status int, body string) {
			var fragments []TextFragment
			if status == 200 && json.Unmarshal([]byte(body), &fragments) == nil {
				v.fragments[p.Page] = fragments
			}
		}, nil)
	} else {
		delete(v.fragments, p.Page)
	}
	if p.Widgets > 0 {
		callAPI(ctx, BuildAPIURL(base+"/annotations"), nil, func(ctx app.Context, status int, body string) {
			var widgets []Widget
			if status == 200 && json.Unmarshal([]byte(body), &widgets) == nil {
				v.widgets[p.Page] = widgets
			}
		}, nil)
	} else {
		delete(v.widgets, p.Page)
	}
}

// sendOptions pushes the current options to the session
func (v *ViewerPage) sendOptions(ctx app.Context) {
	if v.sessionID == "" {
		return
	}
	v.loading = true
	v.error = ""
	callAPI(ctx, BuildAPIURL("/api/viewers/"+v.sessionID+"/options"), jsonInit("PUT", v.options),
		func(ctx app.Context, status int, body string) {
			if status != 202 {
				v.loading = false
				v.error = apiError(status, body)
			}
		},
		func(ctx app.Context) {
			v.loading = false
			v.error = "Network error"
		})
}

// parseWidth turns the width field into an option value; numbers are
// pixels, anything else is passed through as a length.
func parseWidth(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (v *ViewerPage) onPageChange(ctx app.Context, e app.Event) {
	v.options.Page = atoiDefault(ctx.JSSrc().Get("value").String(), 0)
	v.sendOptions(ctx)
}

func (v *ViewerPage) onWidthChange(ctx app.Context, e app.Event) {
	v.widthInput = ctx.JSSrc().Get("value").String()
	v.options.Width = parseWidth(v.widthInput)
	v.sendOptions(ctx)
}

func (v *ViewerPage) onRotate(ctx app.Context, e app.Event) {
	v.options.Rotation = (v.options.Rotation + 90) % 360
	v.sendOptions(ctx)
}

func (v *ViewerPage) onTextLayerChange(ctx app.Context, e app.Event) {
	v.options.DisableTextLayer = !ctx.JSSrc().Get("checked").Bool()
	v.sendOptions(ctx)
}

func (v *ViewerPage) onAnnotationLayerChange(ctx app.Context, e app.Event) {
	v.options.DisableAnnotationLayer = !ctx.JSSrc().Get("checked").Bool()
	v.sendOptions(ctx)
}

func (v *ViewerPage) onPasswordInput(ctx app.Context, e app.Event) {
	v.password = ctx.JSSrc().Get("value").String()
}

func (v *ViewerPage) answerPassword(cancel bool) func(ctx app.Context, e app.Event) {
	return func(ctx app.Context, e app.Event) {
		e.PreventDefault()
		body := map[string]interface{}{"password": v.password, "cancel": cancel}
		v.passwordNeeded = false
		v.password = ""
		v.loading = !cancel
		callAPI(ctx, BuildAPIURL("/api/viewers/"+v.sessionID+"/password"), jsonInit("POST", body),
			func(ctx app.Context, status int, body string) {
				if status != 204 {
					v.error = apiError(status, body)
				}
			}, nil)
	}
}

// onActivate follows an internal link widget
func (v *ViewerPage) onActivate(page int, widget string) func(ctx app.Context, e app.Event) {
	return func(ctx app.Context, e app.Event) {
		e.PreventDefault()
		url := BuildAPIURL(fmt.Sprintf("/api/viewers/%s/pages/%d/annotations/%s/activate", v.sessionID, page, widget))
		callAPI(ctx, url, map[string]interface{}{"method": "POST"},
			func(ctx app.Context, status int, body string) {
				if status != 200 {
					v.error = apiError(status, body)
				}
			}, nil)
	}
}

// onPrint prints the document to PDF and starts a download
func (v *ViewerPage) onPrint(ctx app.Context, e app.Event) {
	v.printing = true
	v.error = ""
	filename := strings.TrimSuffix(v.state.Name, ".pdf") + "-print.pdf"
	init := jsonInit("POST", map[string]interface{}{"filename": filename, "allPages": true})
	ctx.Async(func() {
		res := app.Window().Call("fetch", BuildAPIURL("/api/viewers/"+v.sessionID+"/print"), init)
		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			if len(args) == 0 {
				return nil
			}
			response := args[0]
			status := response.Get("status").Int()
			if status != 200 {
				response.Call("text").Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
					body := ""
					if len(args) > 0 {
						body = args[0].String()
					}
					ctx.Dispatch(func(ctx app.Context) {
						v.printing = false
						v.error = "Printing failed: " + apiError(status, body)
					})
					return nil
				}))
				return nil
			}
			response.Call("blob").Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
				if len(args) == 0 {
					return nil
				}
				urlAPI := app.Window().Get("URL")
				href := urlAPI.Call("createObjectURL", args[0])
				link := app.Window().Get("document").Call("createElement", "a")
				link.Set("href", href)
				link.Set("download", filename)
				link.Call("click")
				urlAPI.Call("revokeObjectURL", href)
				ctx.Dispatch(func(ctx app.Context) {
					v.printing = false
				})
				return nil
			}))
			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			ctx.Dispatch(func(ctx app.Context) {
				v.printing = false
				v.error = "Network error"
			})
			return nil
		}))
	})
}

func pageElementID(session string, page int) string {
	return fmt.Sprintf("page-%s-%d", session, page)
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "px"
}

// rasterURL addresses the raster of a page at a given render version
func rasterURL(session string, page int, version uint64) string {
	return BuildAPIURL(fmt.Sprintf("/api/viewers/%s/pages/%d/raster?v=%d", session, page, version))
}

// Render renders the viewer page
func (v *ViewerPage) Render() app.UI {
	return app.Div().
		Class("viewer-page").
		Body(
			app.H2().Text(v.title()),
			v.renderToolbar(),
			app.If(v.error != "", func() app.UI {
				return app.Div().Class("error").Text("Error: " + v.error)
			}),
			app.If(v.passwordNeeded, v.renderPasswordPrompt),
			app.If(v.loading, func() app.UI {
				return app.Div().Class("loading").Text("Rendering...")
			}),
			app.Div().Class("viewer-pages").Body(
				app.Range(v.state.Pages).Slice(func(i int) app.UI {
					return v.renderPage(v.state.Pages[i])
				}),
			),
		)
}

func (v *ViewerPage) title() string {
	if v.state.Name == "" {
		return "Viewer"
	}
	switch {
	case v.state.PageCount == 1:
		return v.state.Name + " (1 page)"
	case v.state.PageCount > 1:
		return fmt.Sprintf("%s (%d pages)", v.state.Name, v.state.PageCount)
	}
	return v.state.Name
}

func (v *ViewerPage) renderToolbar() app.UI {
	pageOptions := []app.UI{app.Option().Value("0").Selected(v.options.Page == 0).Text("All pages")}
	for n := 1; n <= v.state.PageCount; n++ {
		pageOptions = append(pageOptions,
			app.Option().Value(strconv.Itoa(n)).Selected(v.options.Page == n).Text(fmt.Sprintf("Page %d", n)))
	}

	printLabel := "Print to PDF"
	if v.printing {
		printLabel = "Printing..."
	}

	return app.Div().Class("viewer-toolbar").Body(
		app.Label().Body(
			app.Text("Page "),
			app.Select().Disabled(v.sessionID == "").OnChange(v.onPageChange).Body(pageOptions...),
		),
		app.Label().Body(
			app.Text("Width "),
			app.Input().
				Type("text").
				Placeholder("auto, 600 or 50%").
				Value(v.widthInput).
				OnChange(v.onWidthChange),
		),
		app.Button().
			Class("btn-secondary").
			Disabled(v.sessionID == "").
			OnClick(v.onRotate).
			Text(fmt.Sprintf("Rotate (%d°)", v.options.Rotation)),
		app.Label().Class("checkbox-label").Body(
			app.Input().Type("checkbox").Checked(!v.options.DisableTextLayer).OnChange(v.onTextLayerChange),
			app.Text(" Text layer"),
		),
		app.Label().Class("checkbox-label").Body(
			app.Input().Type("checkbox").Checked(!v.options.DisableAnnotationLayer).OnChange(v.onAnnotationLayerChange),
			app.Text(" Links"),
		),
		app.Button().
			Class("btn-primary").
			Disabled(v.sessionID == "" || v.printing).
			OnClick(v.onPrint).
			Text(printLabel),
	)
}

func (v *ViewerPage) renderPasswordPrompt() app.UI {
	message := "This document is protected. Enter its password."
	if v.passwordRetry {
		message = "Incorrect password, try again."
	}
	return app.Form().Class("password-prompt").OnSubmit(v.answerPassword(false)).Body(
		app.P().Text(message),
		app.Input().
			Type("password").
			AutoFocus(true).
			Value(v.password).
			OnInput(v.onPasswordInput),
		app.Button().Type("submit").Class("btn-primary").Text("Open"),
		app.Button().Type("button").Class("btn-secondary").OnClick(v.answerPassword(true)).Text("Cancel"),
	)
}

func (v *ViewerPage) renderPage(p PageState) app.UI {
	fragments := v.fragments[p.Page]
	widgets := v.widgets[p.Page]
	var raster app.UI = app.Div().Class("page-placeholder")
	if p.Rendered {
		raster = app.Img().
			Class("page-raster").
			Src(rasterURL(v.sessionID, p.Page, v.version)).
			Alt(fmt.Sprintf("Page %d", p.Page)).
			Style("width", px(p.Display.Width)).
			Style("height", px(p.Display.Height))
	}

	return app.Div().
		ID(pageElementID(v.sessionID, p.Page)).
		Class("page-container").
		Style("position", "relative").
		Style("width", px(p.Display.Width)).
		Style("height", px(p.Display.Height)).
		Body(
			raster,
			app.Div().Class("text-layer").Body(
				app.Range(fragments).Slice(func(i int) app.UI {
					return renderFragment(fragments[i])
				}),
			),
			app.Div().Class("annotation-layer").Body(
				app.Range(widgets).Slice(func(i int) app.UI {
					return v.renderWidget(p.Page, widgets[i])
				}),
			),
		)
}

func renderFragment(f TextFragment) app.UI {
	span := app.Span().
		Style("position", "absolute").
		Style("left", px(f.Left)).
		Style("top", px(f.Top)).
		Style("font-size", px(f.FontSize)).
		Style("color", "transparent").
		Style("white-space", "pre").
		Text(f.Text)
	if f.Angle != 0 {
		span = span.Style("transform", fmt.Sprintf("rotate(%ddeg)", f.Angle)).Style("transform-origin", "0 0")
	}
	return span
}

func (v *ViewerPage) renderWidget(page int, w Widget) app.UI {
	a := app.A().
		Class("widget widget-"+w.Kind).
		Title(w.Contents).
		Style("position", "absolute").
		Style("left", px(w.Left)).
		Style("top", px(w.Top)).
		Style("width", px(w.Width)).
		Style("height", px(w.Height))
	switch {
	case w.Internal:
		a = a.Href("#").OnClick(v.onActivate(page, w.ID))
	case w.URL != "":
		a = a.Href(w.URL).Target("_blank").Rel("noopener noreferrer")
	}
	if w.Image != "" {
		a = a.Body(app.Img().Src(w.Image).Alt(w.Kind))
	}
	return a
}
