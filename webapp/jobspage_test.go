package webapp

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFormatJobType(t *testing.T) {
	page := &JobsPage{}
	tests := []struct {
		jobType  string
		expected string
	}{
		{"render", "Render Pass"},
		{"print", "Print to PDF"},
		{"sweep", "Session Sweep"},
		{"thumbnail", "Thumbnail"},
	}
	for _, tt := range tests {
		t.Run(tt.jobType, func(t *testing.T) {
			if got := page.formatJobType(tt.jobType); got != tt.expected {
				t.Errorf("formatJobType(%q) = %q, want %q", tt.jobType, got, tt.expected)
			}
		})
	}
}

func TestFormatResult(t *testing.T) {
	page := &JobsPage{}
	tests := []struct {
		name     string
		result   string
		expected string
	}{
		{"render", `{"pages":[1,2],"pageCount":5}`, "Rendered: 2 pages, Document: 5 pages"},
		{"print", `{"bytes": 2048}`, "PDF: 2.0 KB"},
		{"sweep", `{"sessionsClosed": 2, "jobsPruned": 0}`, "Closed: 2 viewers"},
		{"sweep thumbnails", `{"sessionsClosed": 0, "jobsPruned": 3, "thumbnailsRemoved": 1}`, "Pruned: 3 jobs, Removed: 1 thumbnails"},
		{"nothing to report", `{"sessionsClosed": 0, "jobsPruned": 0}`, `{"sessionsClosed": 0, "jobsPruned": 0}`},
		{"plain text", `"done"`, "done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := page.formatResult(json.RawMessage(tt.result)); got != tt.expected {
				t.Errorf("formatResult() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	page := &JobsPage{}
	if got := page.formatDuration(1500); got != " in 1.5s" {
		t.Errorf("Expected \" in 1.5s\", got %q", got)
	}
	if got := page.formatDuration(0); got != "" {
		t.Errorf("Expected no duration for unfinished passes, got %q", got)
	}
}

func TestFormatTime(t *testing.T) {
	page := &JobsPage{}
	if got := page.formatTime(time.Now().Format(time.RFC3339)); got != "Just now" {
		t.Errorf("Expected Just now, got %q", got)
	}
	if got := page.formatTime(time.Now().Add(-2 * time.Hour).Format(time.RFC3339)); got != "2 hours ago" {
		t.Errorf("Expected 2 hours ago, got %q", got)
	}
	if got := page.formatTime("yesterday"); got != "yesterday" {
		t.Errorf("Expected unparsable time to pass through, got %q", got)
	}
}
