package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckExecutables_ValidPath(t *testing.T) {
	tempDir := t.TempDir()
	validExe := filepath.Join(tempDir, "chromium")

	file, err := os.Create(validExe)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	file.Close()

	err = os.Chmod(validExe, 0755)
	if err != nil {
		t.Fatalf("Failed to chmod file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	err = checkExecutables(validExe, logger)
	if err != nil {
		t.Errorf("Expected no error with valid path, got: %v", err)
	}
}

func TestCheckExecutables_InvalidPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	invalidPath := "/nonexistent/path/to/chromium"
	err := checkExecutables(invalidPath, logger)
	if err == nil {
		t.Error("Expected error with invalid path, got nil")
	}
	t.Logf("Correctly returned error for invalid path: %v", err)
}

func TestCheckChrome(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := ServerConfig{ChromePath: "/nonexistent/chrome"}
	CheckChrome(&cfg, logger)
	if cfg.ChromePath != "" {
		t.Errorf("Expected missing browser to disable printing, got %q", cfg.ChromePath)
	}

	cfg = ServerConfig{ChromePath: "auto"}
	CheckChrome(&cfg, logger)
	if cfg.ChromePath != "auto" {
		t.Errorf("Expected auto to be kept, got %q", cfg.ChromePath)
	}
}

func TestLoadRenderConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		env     map[string]string
		backend string
		workers int
		width   float64
		dpi     int
	}{
		{"defaults", nil, "pdfium", 4, 800, 300},
		{"fitz", map[string]string{"RENDER_BACKEND": "fitz", "PDFIUM_WORKERS": "2"}, "fitz", 2, 800, 300},
		{"unknown backend", map[string]string{"RENDER_BACKEND": "mupdf"}, "pdfium", 4, 800, 300},
		{"bad width", map[string]string{"CONTAINER_WIDTH": "-5"}, "pdfium", 4, 800, 300},
		{"width", map[string]string{"CONTAINER_WIDTH": "1024.5"}, "pdfium", 4, 1024.5, 300},
		{"zero workers", map[string]string{"PDFIUM_WORKERS": "0"}, "pdfium", 1, 800, 300},
		{"low dpi", map[string]string{"PRINT_DPI": "10"}, "pdfium", 4, 800, 300},
		{"dpi", map[string]string{"PRINT_DPI": "150"}, "pdfium", 4, 800, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"RENDER_BACKEND", "PDFIUM_WORKERS", "CONTAINER_WIDTH", "PRINT_DPI"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			rc := loadRenderConfig(logger)
			if rc.Backend != tt.backend {
				t.Errorf("Expected backend %s, got %s", tt.backend, rc.Backend)
			}
			if rc.Workers != tt.workers {
				t.Errorf("Expected %d workers, got %d", tt.workers, rc.Workers)
			}
			if rc.ContainerWidth != tt.width {
				t.Errorf("Expected width %v, got %v", tt.width, rc.ContainerWidth)
			}
			if rc.PrintDPI != tt.dpi {
				t.Errorf("Expected dpi %d, got %d", tt.dpi, rc.PrintDPI)
			}
		})
	}
}
