package engine

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfview/database"
)

// defaultPassLimit is how many passes a listing returns without ?limit
const defaultPassLimit = 20

// PassRecord is a job as the API reports it: the stored result is
// decoded so clients see an object, and finished passes carry their
// duration.
type PassRecord struct {
	database.Job
	Result     json.RawMessage `json:"result,omitempty"`
	DurationMs int64           `json:"durationMs,omitempty"`
}

func newPassRecord(job database.Job) PassRecord {
	rec := PassRecord{Job: job, DurationMs: job.Duration().Milliseconds()}
	switch {
	case job.Result == "":
	case json.Valid([]byte(job.Result)):
		rec.Result = json.RawMessage(job.Result)
	default:
		rec.Result, _ = json.Marshal(job.Result)
	}
	return rec
}

func passRecords(jobs []database.Job) []PassRecord {
	recs := make([]PassRecord, 0, len(jobs))
	for _, job := range jobs {
		recs = append(recs, newPassRecord(job))
	}
	return recs
}

// passFilter reads type, status, limit and offset from the query string.
// status may repeat or hold a comma separated list.
func passFilter(c echo.Context) (database.JobFilter, error) {
	filter := database.JobFilter{Limit: defaultPassLimit}
	if s := c.QueryParam("type"); s != "" {
		jt, err := database.ParseJobType(s)
		if err != nil {
			return filter, err
		}
		filter.Type = jt
	}
	for _, param := range c.QueryParams()["status"] {
		for _, s := range strings.Split(param, ",") {
			st, err := database.ParseJobStatus(strings.TrimSpace(s))
			if err != nil {
				return filter, err
			}
			filter.Status = append(filter.Status, st)
		}
	}
	if s := c.QueryParam("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 100 {
			filter.Limit = l
		}
	}
	if s := c.QueryParam("offset"); s != "" {
		if o, err := strconv.Atoi(s); err == nil && o >= 0 {
			filter.Offset = o
		}
	}
	return filter, nil
}

func (serverHandler *ServerHandler) listPasses(c echo.Context, filter database.JobFilter) error {
	jobs, err := serverHandler.DB.ListJobs(filter)
	if err != nil {
		Logger.Error("Failed to list jobs", "type", filter.Type, "session", filter.Session, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to retrieve jobs")
	}
	return c.JSON(http.StatusOK, passRecords(jobs))
}

// GetJob returns one pass by ID
// @Summary Get a render, print or sweep pass
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID (ULID)"
// @Success 200 {object} PassRecord "Pass record"
// @Failure 400 {object} map[string]interface{} "Invalid job ID"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /jobs/{id} [get]
func (serverHandler *ServerHandler) GetJob(c echo.Context) error {
	jobID, err := ulid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid job ID format")
	}
	job, err := serverHandler.DB.GetJob(jobID)
	if err != nil {
		Logger.Error("Failed to get job", "jobID", jobID.String(), "error", err)
		return errorJSON(c, http.StatusNotFound, "Job not found")
	}
	return c.JSON(http.StatusOK, newPassRecord(*job))
}

// GetJobs lists passes newest first
// @Summary List passes
// @Tags Jobs
// @Produce json
// @Param type query string false "render, print or sweep"
// @Param status query string false "Comma separated statuses"
// @Param session query string false "Viewer session ID"
// @Param limit query int false "Number of passes (default: 20)"
// @Param offset query int false "Offset for pagination (default: 0)"
// @Success 200 {array} PassRecord "Passes"
// @Failure 400 {object} map[string]interface{} "Unknown type or status"
// @Router /jobs [get]
func (serverHandler *ServerHandler) GetJobs(c echo.Context) error {
	filter, err := passFilter(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	filter.Session = c.QueryParam("session")
	return serverHandler.listPasses(c, filter)
}

// GetActiveJobs lists the pending and running passes
// @Summary List unfinished passes
// @Tags Jobs
// @Produce json
// @Param type query string false "render, print or sweep"
// @Success 200 {array} PassRecord "Passes"
// @Router /jobs/active [get]
func (serverHandler *ServerHandler) GetActiveJobs(c echo.Context) error {
	filter, err := passFilter(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	filter.Status = database.ActiveStatuses
	filter.Limit, filter.Offset = 0, 0
	return serverHandler.listPasses(c, filter)
}

// GetViewerJobs lists the passes run for one viewer session. Passes of
// a closed session stay listed until the sweep prunes them.
// @Summary List a session's passes
// @Tags Viewer
// @Produce json
// @Param id path string true "Session ID"
// @Param type query string false "render or print"
// @Success 200 {array} PassRecord "Passes"
// @Failure 400 {object} map[string]interface{} "Invalid session ID"
// @Router /viewers/{id}/jobs [get]
func (serverHandler *ServerHandler) GetViewerJobs(c echo.Context) error {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid session ID format")
	}
	filter, err := passFilter(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	filter.Session = id.String()
	return serverHandler.listPasses(c, filter)
}
