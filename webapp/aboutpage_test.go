package webapp

import (
	"testing"
)

// TestGetDatabaseDisplay tests the database type display conversion
func TestGetDatabaseDisplay(t *testing.T) {
	tests := []struct {
		name     string
		dbType   string
		expected string
	}{
		{name: "PostgreSQL", dbType: "postgres", expected: "PostgreSQL"},
		{name: "CockroachDB", dbType: "cockroachdb", expected: "CockroachDB"},
		{name: "SQLite", dbType: "sqlite", expected: "SQLite"},
		{name: "Unknown type", dbType: "mongodb", expected: "mongodb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &AboutPage{aboutInfo: AboutInfo{DatabaseType: tt.dbType}}
			got := page.getDatabaseDisplay()
			if got != tt.expected {
				t.Errorf("getDatabaseDisplay() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestGetRendererDisplay tests the backend display names
func TestGetRendererDisplay(t *testing.T) {
	tests := []struct {
		backend  string
		expected string
	}{
		{"pdfium", "PDFium (WebAssembly)"},
		{"fitz", "MuPDF (go-fitz)"},
		{"fake", "fake"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			page := &AboutPage{aboutInfo: AboutInfo{RenderBackend: tt.backend}}
			if got := page.getRendererDisplay(); got != tt.expected {
				t.Errorf("getRendererDisplay() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestGetPrintingStatus tests the printing status display conversion
func TestGetPrintingStatus(t *testing.T) {
	tests := []struct {
		name     string
		printing bool
		expected string
	}{
		{name: "Printing enabled", printing: true, expected: "Enabled"},
		{name: "Printing disabled", printing: false, expected: "Disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &AboutPage{aboutInfo: AboutInfo{Printing: tt.printing}}
			got := page.getPrintingStatus()
			if got != tt.expected {
				t.Errorf("getPrintingStatus() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestAboutPageRenderStates tests that different states produce valid UI
func TestAboutPageRenderStates(t *testing.T) {
	t.Run("Loading state returns valid UI", func(t *testing.T) {
		page := &AboutPage{loading: true}
		if page.Render() == nil {
			t.Error("Loading state should return non-nil UI")
		}
	})

	t.Run("Error state returns valid UI", func(t *testing.T) {
		page := &AboutPage{error: "Network error"}
		if page.Render() == nil {
			t.Error("Error state should return non-nil UI")
		}
	})

	t.Run("Success state returns valid UI", func(t *testing.T) {
		page := &AboutPage{
			aboutInfo: AboutInfo{
				Version:        "v1.2.3",
				RenderBackend:  "pdfium",
				Printing:       true,
				ContainerWidth: 800,
				DatabaseType:   "postgres",
				DatabaseHost:   "db.example.com",
			},
		}
		if page.Render() == nil {
			t.Error("Success state should return non-nil UI")
		}
	})
}
