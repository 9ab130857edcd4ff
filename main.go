package main

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pdfview/config"
	database "github.com/drummonds/pdfview/database"
	engine "github.com/drummonds/pdfview/engine"
	"github.com/drummonds/pdfview/engine/chromeprint"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/drummonds/pdfview/viewer"
	"github.com/drummonds/pdfview/webapp"
)

//go:embed webapp/webapp.css
var webappFS embed.FS

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
	chromeprint.Logger = Logger
	viewer.Logger = Logger
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Database setup failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	renderer, err := pdfrenderer.NewEngine(pdfrenderer.Config{
		Backend: serverConfig.Backend,
		Workers: serverConfig.Workers,
	})
	if err != nil {
		Logger.Error("Render engine failed to start", "backend", serverConfig.Backend, "error", err)
		os.Exit(1)
	}
	defer renderer.Close()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = notFoundHandler(e)

	serverHandler := engine.ServerHandler{DB: db, Echo: e, ServerConfig: serverConfig, Engine: renderer}
	if err := serverHandler.StartupChecks(); err != nil { //Run all the sanity checks
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}

	var presentation viewer.Presentation
	if path := serverHandler.ServerConfig.ChromePath; path != "" {
		presenter, err := chromeprint.New(ctx, path, engine.PrintSink)
		if err != nil {
			Logger.Warn("Printing unavailable", "error", err)
			serverHandler.ServerConfig.ChromePath = ""
		} else {
			defer presenter.Close()
			presentation = presenter
		}
	}
	serverHandler.Sessions = engine.NewSessionStore(renderer, presentation, serverConfig.ContainerWidth, db)
	defer serverHandler.Sessions.CloseAll()

	scheduler := serverHandler.InitializeSchedules() //initialize the sweep job
	defer scheduler.Stop()

	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
		Skipper: func(c echo.Context) bool {
			// long polls would drown everything else
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))
	serverHandler.AddRoutes()

	Logger.Info("Setting up go-app WASM UI")
	appHandler := webapp.Handler()

	// app.wasm and wasm_exec.js are build outputs served from disk
	e.File("/wasm_exec.js", "web/wasm_exec.js")
	e.Static("/web", "web")
	e.GET("/app.js", echo.WrapHandler(appHandler))
	e.GET("/app.css", echo.WrapHandler(appHandler))
	e.GET("/manifest.webmanifest", echo.WrapHandler(appHandler))

	e.GET("/webapp/webapp.css", func(c echo.Context) error {
		data, err := webappFS.ReadFile("webapp/webapp.css")
		if err != nil {
			return c.String(http.StatusNotFound, "webapp.css not found")
		}
		return c.Blob(http.StatusOK, "text/css", data)
	})

	// Inject backend API URL into the page
	e.GET("/config.js", func(c echo.Context) error {
		c.Response().Header().Set("Content-Type", "application/javascript")
		return c.String(http.StatusOK, configJS(serverConfig.FrontEndConfig))
	})

	// The WASM app handles its own client-side routing and 404s via NotFoundPage component
	e.Any("/*", echo.WrapHandler(appHandler))

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			Logger.Warn("Server shutdown", "error", err)
		}
	}()

	if err := startServer(e, &serverHandler.ServerConfig, 5); err != nil {
		Logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}

// configJS renders the script exposing the front end configuration
func configJS(cfg config.FrontEndConfig) string {
	return fmt.Sprintf(`
// pdfview Frontend Configuration
window.pdfviewConfig = {
    apiURL: "%s",
    newDocumentCount: %d
};
`, cfg.ServerAPIURL, cfg.NewDocumentNumber)
}

// notFoundHandler answers unknown API paths with JSON and everything else
// with the default handler
func notFoundHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		if code == http.StatusNotFound && strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}

		e.DefaultHTTPErrorHandler(err, c)
	}
}

// startServer starts e, moving to the next port while the address is in use
func startServer(e *echo.Echo, serverConfig *config.ServerConfig, maxRetries int) error {
	startPort := serverConfig.ListenAddrPort
	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		err := e.Start(addr)
		switch {
		case err == nil || err == http.ErrServerClosed:
			return nil
		case !isAddressInUse(err):
			return err
		}
		Logger.Warn("Port already in use, trying next port",
			"port", serverConfig.ListenAddrPort,
			"attempt", attempt+1,
			"max_attempts", maxRetries)
		serverConfig.ListenAddrPort = nextPort(serverConfig.ListenAddrPort)
	}
	return fmt.Errorf("no free port between %s and %s", startPort, serverConfig.ListenAddrPort)
}

func nextPort(port string) string {
	portNum := 0
	fmt.Sscanf(port, "%d", &portNum)
	return fmt.Sprintf("%d", portNum+1)
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
