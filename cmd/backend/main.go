package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pdfview/config"
	database "github.com/drummonds/pdfview/database"
	engine "github.com/drummonds/pdfview/engine"
	"github.com/drummonds/pdfview/engine/chromeprint"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/drummonds/pdfview/viewer"
)

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

// @title pdfview Backend API
// @version 1.0
// @description PDF viewer sessions: upload documents, render pages, stream viewer events and print to PDF

// @host localhost:8000
// @BasePath /api
// @schemes http https

// @tag.name Documents
// @tag.description Document library operations

// @tag.name Viewers
// @tag.description Viewer sessions and rendered page layers

// @tag.name Jobs
// @tag.description Render, print and sweep job history

func main() {
	port := flag.String("port", "", "Port to run backend server on (overrides config)")
	flag.Parse()

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("pdfview Backend API Server")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("• API-only mode (no frontend)")
	fmt.Println("• All endpoints under /api/*")
	fmt.Println(strings.Repeat("=", 50) + "\n")

	serverConfig, logger := config.SetupServer()
	injectGlobals(logger)
	if *port != "" {
		serverConfig.ListenAddrPort = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Database setup failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	renderer, err := pdfrenderer.NewEngine(pdfrenderer.Config{Backend: serverConfig.Backend, Workers: serverConfig.Workers})
	if err != nil {
		Logger.Error("Render engine failed to start", "backend", serverConfig.Backend, "error", err)
		os.Exit(1)
	}
	defer renderer.Close()

	e := echo.New()
	e.HideBanner = true

	serverHandler := engine.ServerHandler{DB: db, Echo: e, ServerConfig: serverConfig, Engine: renderer}
	if err := serverHandler.StartupChecks(); err != nil {
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
	scheduler := serverHandler.InitializeSchedules()
	defer scheduler.Stop()

	// CORS configuration - allow frontend from different origin
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"}, // In production, specify your frontend URL
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))
	serverHandler.AddRoutes()

	go func() {
		<-ctx.Done()
		e.Shutdown(context.Background())
	}()

	addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	Logger.Info("Starting Backend API Server", "address", addr)
	fmt.Printf("\nBackend API Server running on %s\n", addr)
	fmt.Printf("Health check: http://%s/api/health\n\n", addr)

	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		Logger.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
