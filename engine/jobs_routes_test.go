package engine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/drummonds/pdfview/database"
)

func TestJobRoutes(t *testing.T) {
	serverHandler, e := newTestServer(t, nil)
	s := openSession(t, serverHandler, "passes.pdf", nil)
	waitForEvent(t, s, 0, EventRendered)
	s.wait()
	serverHandler.sweepJobFunc()

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) []PassRecord {
		t.Helper()
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var passes []PassRecord
		if err := json.Unmarshal(rec.Body.Bytes(), &passes); err != nil {
			t.Fatalf("Failed to decode passes: %v", err)
		}
		return passes
	}

	t.Run("filter by type", func(t *testing.T) {
		passes := decode(t, serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs?type=sweep", nil)))
		if len(passes) != 1 {
			t.Fatalf("Expected 1 sweep pass, got %d", len(passes))
		}
		var result map[string]int
		if err := json.Unmarshal(passes[0].Result, &result); err != nil {
			t.Fatalf("Expected the sweep result as an object, got %s", passes[0].Result)
		}
		if _, ok := result["sessionsClosed"]; !ok {
			t.Errorf("Expected sessionsClosed in %v", result)
		}
		if passes[0].Session != "" {
			t.Errorf("Expected a sweep to have no session, got %q", passes[0].Session)
		}
	})

	t.Run("filter by session and status", func(t *testing.T) {
		url := "/api/jobs?session=" + s.ID.String() + "&status=completed,failed"
		passes := decode(t, serve(e, httptest.NewRequest(http.MethodGet, url, nil)))
		if len(passes) != 1 || passes[0].Type != database.JobTypeRender {
			t.Fatalf("Expected the session's render pass, got %+v", passes)
		}
		if passes[0].StartedAt == nil || passes[0].CompletedAt == nil {
			t.Error("Expected a finished pass to carry its times")
		}
	})

	t.Run("active", func(t *testing.T) {
		passes := decode(t, serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs/active", nil)))
		if len(passes) != 0 {
			t.Errorf("Expected no unfinished passes, got %d", len(passes))
		}
	})

	t.Run("by id", func(t *testing.T) {
		jobs, _ := serverHandler.DB.ListJobs(database.JobFilter{Type: database.JobTypeRender, Limit: 1})
		if len(jobs) != 1 {
			t.Fatalf("Expected a render job, got %d", len(jobs))
		}
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobs[0].ID.String(), nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
		var pass PassRecord
		json.Unmarshal(rec.Body.Bytes(), &pass)
		if pass.ID != jobs[0].ID {
			t.Errorf("Expected job %s, got %s", jobs[0].ID, pass.ID)
		}

		unknown, _ := database.CalculateUUID(time.Now())
		if rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs/"+unknown.String(), nil)); rec.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 for an unknown job, got %d", rec.Code)
		}
	})

	badRequests := []string{
		"/api/jobs?type=ingest",
		"/api/jobs?status=paused",
		"/api/jobs/not-a-ulid",
		"/api/viewers/not-a-ulid/jobs",
	}
	for _, url := range badRequests {
		t.Run(url, func(t *testing.T) {
			if rec := serve(e, httptest.NewRequest(http.MethodGet, url, nil)); rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestNewPassRecord(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	tests := []struct {
		name     string
		job      database.Job
		result   string
		duration int64
	}{
		{"json result", database.Job{Result: `{"pages": [1]}`, StartedAt: &started, CompletedAt: &completed}, `{"pages": [1]}`, 1500},
		{"plain text result", database.Job{Result: "done"}, `"done"`, 0},
		{"no result", database.Job{StartedAt: &started}, ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newPassRecord(tt.job)
			if string(rec.Result) != tt.result {
				t.Errorf("Expected result %s, got %s", tt.result, rec.Result)
			}
			if rec.DurationMs != tt.duration {
				t.Errorf("Expected duration %d ms, got %d", tt.duration, rec.DurationMs)
			}
		})
	}
}
