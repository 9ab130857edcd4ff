package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/engine/chromeprint"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := documentDirectoryChecks(serverHandler.ServerConfig); err != nil {
		return err
	}
	serverHandler.ServerConfig.ChromePath = chromeChecks(serverHandler.ServerConfig)
	return nil
}

// chromeChecks resolves the browser used for printing and returns its
// path, or "" when printing is unavailable.
func chromeChecks(serverConfig config.ServerConfig) string {
	if serverConfig.ChromePath == "" {
		Logger.Info("Printing disabled by configuration")
		return ""
	}
	configured := serverConfig.ChromePath
	if configured == "auto" {
		configured = ""
	}
	path, err := chromeprint.FindBrowser(configured)
	if err != nil {
		Logger.Warn("No Chrome/Chromium browser found, printing will be unavailable", "configured", serverConfig.ChromePath, "error", err)
		return ""
	}
	Logger.Info("Browser found, printing enabled", "path", path)
	return path
}

// documentDirectoryChecks ensures the document storage and thumbnail
// directories exist
func documentDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.DocumentPath == "" {
		Logger.Warn("Document path not configured")
		return nil
	}

	docInfo, err := os.Stat(serverConfig.DocumentPath)
	if err != nil {
		if !os.IsNotExist(err) {
			Logger.Error("Error checking document directory", "path", serverConfig.DocumentPath, "error", err)
			return err
		}
		Logger.Info("Creating document directory", "path", serverConfig.DocumentPath)
	} else if !docInfo.IsDir() {
		Logger.Error("Document path exists but is not a directory", "path", serverConfig.DocumentPath)
		return fmt.Errorf("document path is not a directory: %s", serverConfig.DocumentPath)
	}

	thumbnails := filepath.Join(serverConfig.DocumentPath, "thumbnails")
	if err := os.MkdirAll(thumbnails, 0755); err != nil {
		Logger.Error("Failed to create document directory", "path", thumbnails, "error", err)
		return err
	}
	Logger.Info("Document directory ready", "path", serverConfig.DocumentPath)
	return nil
}
