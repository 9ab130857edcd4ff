package engine

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/labstack/echo/v4"

	"github.com/drummonds/pdfview/database"
	"github.com/drummonds/pdfview/viewer"
)

// maxEventWait bounds a long poll on the events endpoint
const maxEventWait = 30 * time.Second

type createViewerRequest struct {
	DocumentID string         `json:"documentId"`
	URL        string         `json:"url"`
	Options    viewer.Options `json:"options"`
}

type passwordRequest struct {
	Password string `json:"password"`
	Cancel   bool   `json:"cancel"`
}

type printRequest struct {
	DPI      int    `json:"dpi"`
	Filename string `json:"filename"`
	AllPages bool   `json:"allPages"`
}

func optionsError(c echo.Context, err error) error {
	var cfgErr *viewer.ConfigError
	if errors.As(err, &cfgErr) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": cfgErr.Error(),
			"field": cfgErr.Field,
		})
	}
	if errors.Is(err, viewer.ErrClosed) {
		return errorJSON(c, http.StatusNotFound, "Viewer session closed")
	}
	return errorJSON(c, http.StatusInternalServerError, err.Error())
}

func (serverHandler *ServerHandler) session(c echo.Context) (*Session, error) {
	s, err := serverHandler.Sessions.Get(c.Param("id"))
	if err != nil {
		return nil, errorJSON(c, http.StatusNotFound, "Viewer session not found")
	}
	return s, nil
}

func (serverHandler *ServerHandler) pageSurfaces(c echo.Context) (*viewer.PageSurfaces, error) {
	s, err := serverHandler.session(c)
	if s == nil {
		return nil, err
	}
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 1 {
		return nil, errorJSON(c, http.StatusBadRequest, "Invalid page number")
	}
	surfaces := s.Surfaces(page)
	if surfaces == nil {
		return nil, errorJSON(c, http.StatusNotFound, fmt.Sprintf("Page %d is not displayed", page))
	}
	return surfaces, nil
}

// CreateViewer opens a viewer session on a stored document or a URL
// @Summary Open a viewer session
// @Tags Viewer
// @Accept json
// @Produce json
// @Param request body createViewerRequest true "Document and initial options"
// @Success 201 {object} SessionState "New session"
// @Failure 400 {object} map[string]interface{} "Invalid options"
// @Failure 404 {object} map[string]interface{} "Document not found"
// @Router /viewers [post]
func (serverHandler *ServerHandler) CreateViewer(c echo.Context) error {
	var req createViewerRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	var (
		src  viewer.Source
		name string
	)
	switch {
	case req.DocumentID != "":
		doc, err := database.FetchDocument(req.DocumentID, serverHandler.DB)
		if err != nil {
			return errorJSON(c, http.StatusNotFound, "Document not found")
		}
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			Logger.Error("Stored document is missing", "path", doc.Path, "error", err)
			return errorJSON(c, http.StatusNotFound, "Document file missing")
		}
		src, name = &viewer.Raw{Data: data, Name: doc.Name}, doc.Name
	case strings.HasPrefix(req.URL, "http://") || strings.HasPrefix(req.URL, "https://"):
		src, name = &viewer.Remote{URL: req.URL}, req.URL
	default:
		return errorJSON(c, http.StatusBadRequest, "A documentId or an http(s) url is required")
	}

	s, err := serverHandler.Sessions.Create(req.DocumentID, name, src, req.Options)
	if err != nil {
		return optionsError(c, err)
	}
	return c.JSON(http.StatusCreated, s.State())
}

// GetViewers lists the live sessions
// @Summary List viewer sessions
// @Tags Viewer
// @Produce json
// @Success 200 {array} SessionState "Sessions"
// @Router /viewers [get]
func (serverHandler *ServerHandler) GetViewers(c echo.Context) error {
	states := []SessionState{}
	for _, id := range serverHandler.Sessions.IDs() {
		if s, err := serverHandler.Sessions.Get(id); err == nil {
			states = append(states, s.State())
		}
	}
	return c.JSON(http.StatusOK, states)
}

// GetViewer returns the state of one session
// @Summary Get viewer session state
// @Tags Viewer
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SessionState "Session state"
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /viewers/{id} [get]
func (serverHandler *ServerHandler) GetViewer(c echo.Context) error {
	s, err := serverHandler.session(c)
	if s == nil {
		return err
	}
	return c.JSON(http.StatusOK, s.State())
}

// CloseViewer closes a session and releases its surfaces
// @Summary Close a viewer session
// @Tags Viewer
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /viewers/{id} [delete]
func (serverHandler *ServerHandler) CloseViewer(c echo.Context) error {
	if err := serverHandler.Sessions.Remove(c.Param("id")); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return errorJSON(c, http.StatusNotFound, "Viewer session not found")
		}
		Logger.Warn("Closing viewer session", "session", c.Param("id"), "error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateViewerOptions applies new options; rendering happens in the
// background and is reported as events
// @Summary Update viewer options
// @Tags Viewer
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param options body viewer.Options true "Options"
// @Success 202 {object} SessionState "Accepted"
// @Failure 400 {object} map[string]interface{} "Invalid options"
// @Router /viewers/{id}/options [put]
func (serverHandler *ServerHandler) UpdateViewerOptions(c echo.Context) error {
	s, err := serverHandler.session(c)
	if s == nil {
		return err
	}
	var opts viewer.Options
	if err := c.Bind(&opts); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid options")
	}
	if err := s.Update(opts); err != nil {
		return optionsError(c, err)
	}
	return c.JSON(http.StatusAccepted, s.State())
}

// SubmitPassword answers the pending password request
// @Summary Submit or cancel a document password
// @Tags Viewer
// @Accept json
// @Param id path string true "Session ID"
// @Param request body passwordRequest true "Password or cancel"
// @Success 204
// @Failure 409 {object} map[string]interface{} "No password requested"
// @Router /viewers/{id}/password [post]
func (serverHandler *ServerHandler) SubmitPassword(c echo.Context) error {
	s, err := serverHandler.session(c)
	if s == nil {
		return err
	}
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := s.AnswerPassword(req.Password, req.Cancel); err != nil {
		return errorJSON(c, http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// GetViewerEvents long-polls the notifications of a session
// @Summary Poll viewer events
// @Tags Viewer
// @Produce json
// @Param id path string true "Session ID"
// @Param after query int false "Return events with a higher sequence number"
// @Param wait query int false "Milliseconds to wait for new events (max 30000)"
// @Success 200 {array} Event "Events"
// @Router /viewers/{id}/events [get]
func (serverHandler *ServerHandler) GetViewerEvents(c echo.Context) error {
	s, err := serverHandler.session(c)
	if s == nil {
		return err
	}
	var after uint64
	if a := c.QueryParam("after"); a != "" {
		after, err = strconv.ParseUint(a, 10, 64)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "Invalid after parameter")
		}
	}
	var wait time.Duration
	if w := c.QueryParam("wait"); w != "" {
		ms, err := strconv.Atoi(w)
		if err != nil || ms < 0 {
			return errorJSON(c, http.StatusBadRequest, "Invalid wait parameter")
		}
		wait = min(time.Duration(ms)*time.Millisecond, maxEventWait)
	}
	return c.JSON(http.StatusOK, s.Events(c.Request().Context(), after, wait))
}

// GetPageRaster serves the raster layer of a page as PNG
// @Summary Get page raster
// @Tags Viewer
// @Produce image/png
// @Param id path string true "Session ID"
// @Param page path int true "Page number"
// @Failure 404 {object} map[string]interface{} "Page not rendered"
// @Router /viewers/{id}/pages/{page}/raster [get]
func (serverHandler *ServerHandler) GetPageRaster(c echo.Context) error {
	surfaces, err := serverHandler.pageSurfaces(c)
	if surfaces == nil {
		return err
	}
	img := surfaces.Raster.Image()
	if img == nil {
		return errorJSON(c, http.StatusNotFound, "Page not rendered")
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "image/png")
	res.Header().Set("Cache-Control", "no-store")
	res.WriteHeader(http.StatusOK)
	return imaging.Encode(res, img, imaging.PNG)
}

// GetPageText returns the text layer of a page
// @Summary Get page text fragments
// @Tags Viewer
// @Produce json
// @Param id path string true "Session ID"
// @Param page path int true "Page number"
// @Success 200 {array} viewer.TextFragment "Fragments"
// @Router /viewers/{id}/pages/{page}/text [get]
func (serverHandler *ServerHandler) GetPageText(c echo.Context) error {
	surfaces, err := serverHandler.pageSurfaces(c)
	if surfaces == nil {
		return err
	}
	fragments := surfaces.Text.Fragments()
	if fragments == nil {
		fragments = []viewer.TextFragment{}
	}
	return c.JSON(http.StatusOK, fragments)
}

// GetPageAnnotations returns the annotation layer of a page
// @Summary Get page annotation widgets
// @Tags Viewer
// @Produce json
// @Param id path string true "Session ID"
// @Param page path int true "Page number"
// @Success 200 {array} viewer.Widget "Widgets"
// @Router /viewers/{id}/pages/{page}/annotations [get]
func (serverHandler *ServerHandler) GetPageAnnotations(c echo.Context) error {
	surfaces, err := serverHandler.pageSurfaces(c)
	if surfaces == nil {
		return err
	}
	widgets := surfaces.Annotations.Widgets()
	if widgets == nil {
		widgets = []viewer.Widget{}
	}
	return c.JSON(http.StatusOK, widgets)
}

// ActivateWidget follows an internal link widget
// @Summary Activate an annotation widget
// @Tags Viewer
// @Produce json
// @Param id path string true "Session ID"
// @Param page path int true "Page number"
// @Param widget path string true "Widget ID"
// @Success 200 {object} map[string]interface{} "Page jumped to, 0 when none"
// @Router /viewers/{id}/pages/{page}/annotations/{widget}/activate [post]
func (serverHandler *ServerHandler) ActivateWidget(c echo.Context) error {
	s, err := serverHandler.session(c)
	if s == nil {
		return err
	}
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 1 {
		return errorJSON(c, http.StatusBadRequest, "Invalid page number")
	}
	jump, err := s.Activate(c.Request().Context(), page, c.Param("widget"))
	if err != nil {
		return errorJSON(c, http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"page": jump,
	})
}

// PrintViewer prints the session's document to PDF
// @Summary Print to PDF
// @Tags Viewer
// @Accept json
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param request body printRequest false "Print settings"
// @Failure 409 {object} map[string]interface{} "No document loaded"
// @Failure 503 {object} map[string]interface{} "Printing not configured"
// @Router /viewers/{id}/print [post]
func (serverHandler *ServerHandler) PrintViewer(c echo.Context) error {
	s, err := serverHandler.session(c)
	if s == nil {
		return err
	}
	var req printRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.DPI <= 0 {
		req.DPI = serverHandler.ServerConfig.PrintDPI
	}
	result, err := s.Print(c.Request().Context(), req.DPI, req.Filename, req.AllPages)
	switch {
	case errors.Is(err, ErrPrintingDisabled):
		return errorJSON(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, viewer.ErrNoDocument):
		return errorJSON(c, http.StatusConflict, err.Error())
	case err != nil:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	filename := req.Filename
	if filename == "" {
		filename = result.Title
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		filename += ".pdf"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "application/pdf", result.PDF)
}
