package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string `json:"-"`
	DatabaseDbname   string
	DatabaseSslmode  string
	DocumentPath     string
	RenderConfig
	SessionIdleMinutes int // viewer sessions untouched for this long are closed
	SweepInterval      int // minutes between idle sweeps
	JobRetentionHours  int
	ChromePath         string // empty disables printing
	FrontEndConfig
}

// RenderConfig selects and sizes the document engine
type RenderConfig struct {
	Backend        string // pdfium or fitz
	Workers        int
	ContainerWidth float64
	PrintDPI       int
}

// FrontEndConfig stores all of the frontend settings
type FrontEndConfig struct {
	NewDocumentNumber int
	ServerAPIURL      string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a positive float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "pdfview")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "databases/pdfview.sqlite")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	// Document storage configuration
	documentPathRelative := filepath.ToSlash(getEnv("DOCUMENT_PATH", "documents"))
	documentPathAbs, err := filepath.Abs(documentPathRelative)
	if err != nil {
		logger.Error("Error creating document path", "path", documentPathRelative, "error", err)
	}
	serverConfigLive.DocumentPath = documentPathAbs

	serverConfigLive.RenderConfig = loadRenderConfig(logger)

	// Session housekeeping
	serverConfigLive.SessionIdleMinutes = getEnvInt("SESSION_IDLE_MINUTES", 30)
	serverConfigLive.SweepInterval = getEnvInt("SWEEP_INTERVAL", 5)
	serverConfigLive.JobRetentionHours = getEnvInt("JOB_RETENTION_HOURS", 24)

	// Printing
	chromePath := getEnv("CHROME_PATH", "")
	if getEnvBool("PRINT_ENABLED", true) {
		serverConfigLive.ChromePath = chromePath
		if chromePath == "" {
			serverConfigLive.ChromePath = "auto"
		}
		CheckChrome(&serverConfigLive, logger)
	}

	fmt.Println("\n========================================")
	fmt.Println("   pdfview - PDF Page Viewer")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "pdfview.log"))
	fmt.Println("Initializing...")

	// Frontend configuration
	serverConfigLive.FrontEndConfig = FrontEndConfig{
		NewDocumentNumber: getEnvInt("NEW_DOCUMENT_COUNT", 5),
		ServerAPIURL:      getEnv("SERVER_API_URL", ""),
	}

	logger.Info("About to setup database", "type", serverConfigLive.DatabaseType)

	return serverConfigLive, logger
}

func loadRenderConfig(logger *slog.Logger) RenderConfig {
	rc := RenderConfig{
		Backend:        getEnv("RENDER_BACKEND", "pdfium"),
		Workers:        getEnvInt("PDFIUM_WORKERS", 4),
		ContainerWidth: getEnvFloat("CONTAINER_WIDTH", 800),
		PrintDPI:       getEnvInt("PRINT_DPI", 300),
	}
	switch rc.Backend {
	case "pdfium", "fitz":
	default:
		logger.Warn("Unknown render backend, using pdfium", "backend", rc.Backend)
		rc.Backend = "pdfium"
	}
	if rc.Workers < 1 {
		rc.Workers = 1
	}
	if rc.PrintDPI < 72 {
		logger.Warn("Print DPI below 72, using 300", "dpi", rc.PrintDPI)
		rc.PrintDPI = 300
	}
	logger.Info("Render configuration loaded", "backend", rc.Backend, "workers", rc.Workers, "containerWidth", rc.ContainerWidth)
	return rc
}

// SetupFrontend loads configuration for frontend-only server
func SetupFrontend() (FrontEndConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
	_ = godotenv.Load("frontend.env")

	logger := setupLogging()
	Logger = logger

	frontendConfig := FrontEndConfig{}

	// Frontend configuration
	frontendConfig.NewDocumentNumber = getEnvInt("NEW_DOCUMENT_COUNT", 5)
	frontendConfig.ServerAPIURL = getEnv("SERVER_API_URL", "http://localhost:8000")

	logger.Info("Frontend configuration loaded",
		"apiURL", frontendConfig.ServerAPIURL,
		"newDocumentCount", frontendConfig.NewDocumentNumber)

	return frontendConfig, logger
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdfview.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// checkExecutables verifies that an executable exists at the given path
func checkExecutables(path string, logger *slog.Logger) error {
	_, err := os.Stat(path)
	if err != nil {
		logger.Error("Cannot find executable at location specified", "path", path)
		return err
	}
	logger.Debug("Executable found", "path", path)
	return nil
}

// CheckChrome validates a configured browser path. "auto" defers the lookup
// to print time.
func CheckChrome(cfg *ServerConfig, logger *slog.Logger) {
	if cfg.ChromePath == "" || cfg.ChromePath == "auto" {
		return
	}
	if err := checkExecutables(cfg.ChromePath, logger); err != nil {
		logger.Warn("Chrome not found, printing disabled", "path", cfg.ChromePath)
		cfg.ChromePath = ""
	}
}
