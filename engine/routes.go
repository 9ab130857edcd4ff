package engine

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/labstack/echo/v4"

	"github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/database"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/drummonds/pdfview/internal/build"
	"github.com/drummonds/pdfview/viewer"
)

// maxUploadSize bounds a single uploaded document
const maxUploadSize = 128 << 20

// thumbnailWidth is the width of library thumbnails in pixels
const thumbnailWidth = 240

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Engine       viewer.Engine
	Sessions     *SessionStore
}

// AddRoutes registers the API routes. All of them live under /api.
func (serverHandler *ServerHandler) AddRoutes() {
	e := serverHandler.Echo

	// Document API routes
	e.GET("/api/documents/latest", serverHandler.GetLatestDocuments)
	e.POST("/api/document/upload", serverHandler.UploadDocuments)
	e.GET("/api/document/:id", serverHandler.GetDocument)
	e.GET("/api/document/:id/file", serverHandler.GetDocumentFile)
	e.GET("/api/document/:id/thumbnail", serverHandler.GetDocumentThumbnail)
	e.DELETE("/api/document/:id", serverHandler.DeleteDocument)

	// Viewer session API routes
	e.GET("/api/viewers", serverHandler.GetViewers)
	e.POST("/api/viewers", serverHandler.CreateViewer)
	e.GET("/api/viewers/:id", serverHandler.GetViewer)
	e.DELETE("/api/viewers/:id", serverHandler.CloseViewer)
	e.PUT("/api/viewers/:id/options", serverHandler.UpdateViewerOptions)
	e.POST("/api/viewers/:id/password", serverHandler.SubmitPassword)
	e.GET("/api/viewers/:id/events", serverHandler.GetViewerEvents)
	e.GET("/api/viewers/:id/pages/:page/raster", serverHandler.GetPageRaster)
	e.GET("/api/viewers/:id/pages/:page/text", serverHandler.GetPageText)
	e.GET("/api/viewers/:id/pages/:page/annotations", serverHandler.GetPageAnnotations)
	e.POST("/api/viewers/:id/pages/:page/annotations/:widget/activate", serverHandler.ActivateWidget)
	e.POST("/api/viewers/:id/print", serverHandler.PrintViewer)
	e.GET("/api/viewers/:id/jobs", serverHandler.GetViewerJobs)

	// Job tracking API routes
	e.GET("/api/jobs", serverHandler.GetJobs)
	e.GET("/api/jobs/active", serverHandler.GetActiveJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)

	// Admin API routes
	e.GET("/api/about", serverHandler.GetAboutInfo)
	e.GET("/api/health", serverHandler.GetHealth)
}

// GetHealth reports liveness and the number of open viewer sessions
func (serverHandler *ServerHandler) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  "pdfview",
		"sessions": serverHandler.Sessions.Len(),
	})
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]interface{}{
		"error": message,
	})
}

// UploadDocuments stores an uploaded PDF and records its metadata
// @Summary Upload a document
// @Description Store a PDF in the document folder and add it to the library
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF file to upload"
// @Success 201 {object} database.Document "Stored document"
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Failure 409 {object} map[string]interface{} "Duplicate document"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /document/upload [post]
func (serverHandler *ServerHandler) UploadDocuments(c echo.Context) error {
	file, fileHeader, err := c.Request().FormFile("file")
	if err != nil {
		Logger.Debug("Upload without a file", "error", err)
		return errorJSON(c, http.StatusBadRequest, "A file field is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		Logger.Error("Unable to read uploaded file", "name", fileHeader.Filename, "error", err)
		return errorJSON(c, http.StatusBadRequest, "Unable to read upload")
	}
	if len(data) > maxUploadSize {
		return errorJSON(c, http.StatusRequestEntityTooLarge, "Document is too large")
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return errorJSON(c, http.StatusBadRequest, "Only PDF documents can be uploaded")
	}

	var meta database.DocumentMeta
	info, err := pdfrenderer.Inspect(data)
	if err != nil {
		// the rasteriser is more forgiving than the metadata parser
		Logger.Warn("Unable to read document metadata", "name", fileHeader.Filename, "error", err)
	} else {
		meta = database.DocumentMeta{Pages: info.Pages, Title: info.Title, Author: info.Author, Encrypted: info.Encrypted}
	}

	doc, err := database.AddNewDocument(fileHeader.Filename, data, meta, serverHandler.ServerConfig.DocumentPath, serverHandler.DB)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateDocument) {
			return errorJSON(c, http.StatusConflict, "Document already uploaded")
		}
		return errorJSON(c, http.StatusInternalServerError, "Failed to store document")
	}
	return c.JSON(http.StatusCreated, doc)
}

// GetLatestDocuments returns the newest documents, 20 per page
// @Summary Get latest documents
// @Tags Documents
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Success 200 {object} map[string]interface{} "Paginated documents with metadata"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /documents/latest [get]
func (serverHandler *ServerHandler) GetLatestDocuments(c echo.Context) error {
	page := 1
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if p, err := strconv.Atoi(pageParam); err == nil && p > 0 {
			page = p
		}
	}

	// Fixed page size of 20
	pageSize := 20

	documents, totalCount, err := serverHandler.DB.GetNewestDocumentsWithPagination(page, pageSize)
	if err != nil {
		Logger.Error("Can't find latest documents", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to fetch documents")
	}
	if documents == nil {
		documents = []database.Document{}
	}

	totalPages := (totalCount + pageSize - 1) / pageSize // Ceiling division

	return c.JSON(http.StatusOK, map[string]interface{}{
		"documents":   documents,
		"page":        page,
		"pageSize":    pageSize,
		"totalCount":  totalCount,
		"totalPages":  totalPages,
		"hasNext":     page < totalPages,
		"hasPrevious": page > 1,
	})
}

func (serverHandler *ServerHandler) fetchDocument(c echo.Context) (*database.Document, error) {
	doc, err := database.FetchDocument(c.Param("id"), serverHandler.DB)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorJSON(c, http.StatusNotFound, "Document not found")
		}
		return nil, errorJSON(c, http.StatusBadRequest, err.Error())
	}
	return doc, nil
}

// GetDocument returns the record of one document
// @Summary Get document by ULID
// @Tags Documents
// @Produce json
// @Param id path string true "Document ULID"
// @Success 200 {object} database.Document "Document details"
// @Failure 404 {object} map[string]interface{} "Document not found"
// @Router /document/{id} [get]
func (serverHandler *ServerHandler) GetDocument(c echo.Context) error {
	doc, err := serverHandler.fetchDocument(c)
	if doc == nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

// GetDocumentFile serves the stored PDF
// @Summary Download the document file
// @Tags Documents
// @Produce application/pdf
// @Param id path string true "Document ULID"
// @Router /document/{id}/file [get]
func (serverHandler *ServerHandler) GetDocumentFile(c echo.Context) error {
	doc, err := serverHandler.fetchDocument(c)
	if doc == nil {
		return err
	}
	return c.Inline(doc.Path, doc.Name)
}

// GetDocumentThumbnail serves a PNG of the first page, rendering it on
// first request
// @Summary Get document thumbnail
// @Tags Documents
// @Produce image/png
// @Param id path string true "Document ULID"
// @Failure 404 {object} map[string]interface{} "No thumbnail available"
// @Router /document/{id}/thumbnail [get]
func (serverHandler *ServerHandler) GetDocumentThumbnail(c echo.Context) error {
	doc, err := serverHandler.fetchDocument(c)
	if doc == nil {
		return err
	}
	if doc.Encrypted {
		return errorJSON(c, http.StatusNotFound, "Encrypted documents have no thumbnail")
	}
	thumbPath := filepath.Join(serverHandler.ServerConfig.DocumentPath, "thumbnails", doc.ULID.String()+".png")
	if _, err := os.Stat(thumbPath); err != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
		defer cancel()
		if err := serverHandler.renderThumbnail(ctx, doc, thumbPath); err != nil {
			Logger.Warn("Unable to render thumbnail", "ulid", doc.ULID.String(), "error", err)
			return errorJSON(c, http.StatusNotFound, "No thumbnail available")
		}
	}
	return c.File(thumbPath)
}

// renderThumbnail renders page 1 through a throwaway viewer and saves it
// as a sharpened PNG.
func (serverHandler *ServerHandler) renderThumbnail(ctx context.Context, doc *database.Document, thumbPath string) error {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return err
	}
	var failure error
	v := viewer.New(serverHandler.Engine,
		viewer.WithLogger(Logger),
		viewer.WithListener(viewer.Events{
			OnLoadingFailed:   func(err error) { failure = err },
			OnRenderingFailed: func(err error) { failure = err },
		}),
	)
	defer v.Close()
	err = v.Update(ctx, viewer.Options{
		Source:                 &viewer.Raw{Data: data, Name: doc.Name},
		Page:                   1,
		Width:                  viewer.Px(thumbnailWidth),
		DisableTextLayer:       true,
		DisableAnnotationLayer: true,
	})
	if err != nil {
		return err
	}
	if failure != nil {
		return failure
	}
	surfaces := v.Surfaces(1)
	if surfaces == nil || surfaces.Raster.Empty() {
		return fmt.Errorf("page 1 of %s was not rendered", doc.Name)
	}
	thumb := imaging.Resize(surfaces.Raster.Image(), thumbnailWidth, 0, imaging.Lanczos)
	thumb = imaging.Sharpen(thumb, 0.5)
	if err := os.MkdirAll(filepath.Dir(thumbPath), os.ModePerm); err != nil {
		return err
	}
	return imaging.Save(thumb, thumbPath)
}

// DeleteDocument removes a document, its file and its thumbnail
// @Summary Delete a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ULID"
// @Success 200 {string} string "Document Deleted"
// @Failure 404 {object} map[string]interface{} "Document not found"
// @Router /document/{id} [delete]
func (serverHandler *ServerHandler) DeleteDocument(c echo.Context) error {
	doc, err := serverHandler.fetchDocument(c)
	if doc == nil {
		return err
	}
	if err := database.DeleteDocument(doc.ULID.String(), serverHandler.DB); err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Failed to delete document")
	}
	thumbPath := filepath.Join(serverHandler.ServerConfig.DocumentPath, "thumbnails", doc.ULID.String()+".png")
	os.Remove(thumbPath)
	return c.JSON(http.StatusOK, "Document Deleted")
}

// GetAboutInfo returns information about the application configuration
// @Summary Get application information
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Application information"
// @Router /about [get]
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {
	cfg := serverHandler.ServerConfig
	backend := cfg.Backend
	if named, ok := serverHandler.Engine.(interface{ Backend() string }); ok {
		backend = named.Backend()
	}
	sessions := 0
	if serverHandler.Sessions != nil {
		sessions = serverHandler.Sessions.Len()
	}

	aboutInfo := map[string]interface{}{
		"version":        build.Version,
		"renderBackend":  backend,
		"printing":       cfg.ChromePath != "",
		"containerWidth": cfg.ContainerWidth,
		"sessions":       sessions,
		"databaseType":   cfg.DatabaseType,
		"databaseHost":   cfg.DatabaseHost,
		"databaseName":   cfg.DatabaseDbname,
		"documentPath":   cfg.DocumentPath,
	}

	return c.JSON(http.StatusOK, aboutInfo)
}
