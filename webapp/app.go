package webapp

import (
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// routes lists the paths served by the App component
var routes = []string{"/", "/viewer", "/jobs", "/about"}

// App is the root component of the application
type App struct {
	app.Compo
}

// Render renders the app
func (a *App) Render() app.UI {
	return app.Div().
		Class("app-container").
		Body(
			app.Header().Body(
				&NavBar{},
			),
			app.Div().Class("app-layout").Body(
				&Sidebar{},
				app.Main().Class("main-content").Body(
					app.Div().Class("content").Body(
						a.renderPage(),
					),
				),
			),
		)
}

// renderPage renders the current page based on the route
func (a *App) renderPage() app.UI {
	return pageFor(app.Window().URL().Path)
}

func pageFor(path string) app.UI {
	switch path {
	case "/":
		return &LibraryPage{}
	case "/viewer":
		return &ViewerPage{}
	case "/jobs":
		return &JobsPage{}
	case "/about":
		return &AboutPage{}
	default:
		return &NotFoundPage{}
	}
}

// RegisterRoutes points every page route at the App component
func RegisterRoutes() {
	for _, path := range routes {
		app.Route(path, func() app.Composer { return &App{} })
	}
}
