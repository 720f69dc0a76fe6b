package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/drummonds/pdfbridge/config"
	"github.com/drummonds/pdfbridge/database"
	"github.com/drummonds/pdfbridge/engine/pdfrenderer"
	"github.com/drummonds/pdfbridge/internal/build"
	"github.com/drummonds/pdfbridge/raster"
	"github.com/labstack/echo/v4"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Engine       *raster.Engine
	Renderer     pdfrenderer.Renderer
}

// pageInfo describes one page of an uploaded document
type pageInfo struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// documentInfo is the response body of the info endpoint
type documentInfo struct {
	Filename  string     `json:"filename"`
	PageCount int        `json:"pageCount"`
	Pages     []pageInfo `json:"pages"`
}

// GetHealth reports whether the service and its rendering engine are up
// @Summary Health check
// @Description Returns service health and rendering engine status
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Health status"
// @Router /health [get]
func (serverHandler *ServerHandler) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"backend": serverHandler.ServerConfig.RenderBackend,
	})
}

// GetAboutInfo returns information about the running service
// @Summary Get application information
// @Description Retrieve information about the application configuration, version, and database
// @Tags Admin
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Application information"
// @Router /about [get]
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {

	// Get database type
	dbType := serverHandler.ServerConfig.DatabaseType
	dbHost := serverHandler.ServerConfig.DatabaseHost
	dbPort := serverHandler.ServerConfig.DatabasePort
	dbName := serverHandler.ServerConfig.DatabaseDbname

	aboutInfo := map[string]interface{}{
		"version":        build.Version,
		"renderBackend":  serverHandler.ServerConfig.RenderBackend,
		"renderWidth":    serverHandler.ServerConfig.RenderWidth,
		"thumbnailWidth": serverHandler.ServerConfig.ThumbnailWidth,
		"databaseType":   dbType,
		"databaseHost":   dbHost,
		"databasePort":   dbPort,
		"databaseName":   dbName,
		"storagePath":    serverHandler.ServerConfig.StoragePath,
		"renderPath":     serverHandler.ServerConfig.RenderPath,
	}

	return c.JSON(http.StatusOK, aboutInfo)
}

// RenderPage renders a single page of an uploaded PDF to PNG
// @Summary Render one PDF page
// @Description Upload a PDF and get one page back as a PNG at the requested width
// @Tags Render
// @Accept multipart/form-data
// @Produce png
// @Param pdf formData file true "PDF file to render"
// @Param page query int false "Zero based page index (default: 0)"
// @Param width query int false "Output width in pixels (default: configured render width)"
// @Success 200 {file} binary "Rendered page"
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /render [post]
func (serverHandler *ServerHandler) RenderPage(c echo.Context) error {
	pageIndex, width, err := renderParams(c, serverHandler.ServerConfig.RenderWidth)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	pdfPath, _, cleanup, err := serverHandler.receiveUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer cleanup()

	doc, err := serverHandler.Engine.Open(pdfPath)
	if err != nil {
		Logger.Error("Unable to open uploaded PDF", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "unable to open PDF document",
		})
	}
	defer doc.Close()

	bmp, err := doc.RenderPage(pageIndex, width)
	if err != nil {
		return renderError(c, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, bmp.Image()); err != nil {
		Logger.Error("Unable to encode rendered page", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "unable to encode page image",
		})
	}

	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// RenderThumbnail renders a page thumbnail of an uploaded PDF
// @Summary Render a page thumbnail
// @Description Upload a PDF and get a sharpened thumbnail of one page as a PNG
// @Tags Render
// @Accept multipart/form-data
// @Produce png
// @Param pdf formData file true "PDF file to render"
// @Param page query int false "Zero based page index (default: 0)"
// @Success 200 {file} binary "Thumbnail image"
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /thumbnail [post]
func (serverHandler *ServerHandler) RenderThumbnail(c echo.Context) error {
	pageIndex, _, err := renderParams(c, serverHandler.ServerConfig.RenderWidth)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	width := serverHandler.ServerConfig.ThumbnailWidth

	pdfPath, _, cleanup, err := serverHandler.receiveUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer cleanup()

	doc, err := serverHandler.Engine.Open(pdfPath)
	if err != nil {
		Logger.Error("Unable to open uploaded PDF", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "unable to open PDF document",
		})
	}
	defer doc.Close()

	// Render at double size, then Lanczos downscale and sharpen for a
	// crisper small image
	bmp, err := doc.RenderPage(pageIndex, width*2)
	if err != nil {
		return renderError(c, err)
	}

	resized := imaging.Resize(bmp.Image(), width, 0, imaging.Lanczos)
	sharpened := imaging.Sharpen(resized, 0.5)

	var buf bytes.Buffer
	if err := png.Encode(&buf, sharpened); err != nil {
		Logger.Error("Unable to encode thumbnail", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "unable to encode thumbnail image",
		})
	}

	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// GetDocumentInfo reports page count and page sizes of an uploaded PDF
// @Summary Inspect a PDF
// @Description Upload a PDF and get its page count and per-page sizes in points
// @Tags Render
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} documentInfo "Document information"
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Router /info [post]
func (serverHandler *ServerHandler) GetDocumentInfo(c echo.Context) error {
	pdfPath, filename, cleanup, err := serverHandler.receiveUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer cleanup()

	doc, err := serverHandler.Engine.Open(pdfPath)
	if err != nil {
		Logger.Error("Unable to open uploaded PDF", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "unable to open PDF document",
		})
	}
	defer doc.Close()

	pageCount, err := doc.PageCount()
	if err != nil {
		Logger.Error("Unable to get page count", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "unable to get page count",
		})
	}

	info := documentInfo{
		Filename:  filename,
		PageCount: pageCount,
		Pages:     make([]pageInfo, 0, pageCount),
	}
	for i := 0; i < pageCount; i++ {
		w, h, err := doc.PageSize(i)
		if err != nil {
			Logger.Error("Unable to get page size", "page", i, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"error": fmt.Sprintf("unable to get size of page %d", i),
			})
		}
		info.Pages = append(info.Pages, pageInfo{Index: i, Width: w, Height: h})
	}

	return c.JSON(http.StatusOK, info)
}

// CreateRender accepts a PDF and renders every page in the background
// @Summary Start an async render
// @Description Upload a PDF and create a background job that renders all pages to PNG files
// @Tags Render
// @Accept multipart/form-data
// @Produce json
// @Param pdf formData file true "PDF file to render"
// @Param width query int false "Output width in pixels (default: configured render width)"
// @Success 202 {object} map[string]interface{} "Job created with job ID"
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /renders [post]
func (serverHandler *ServerHandler) CreateRender(c echo.Context) error {
	_, width, err := renderParams(c, serverHandler.ServerConfig.RenderWidth)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	file, fileHeader, err := c.Request().FormFile("pdf")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "missing pdf form field",
		})
	}
	defer file.Close()

	// Create a job to track the render
	job, err := serverHandler.DB.CreateJob(database.JobTypeRender, fileHeader.Filename, width, "Render queued")
	if err != nil {
		Logger.Error("Failed to create render job", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create job",
		})
	}

	// Keep the upload under the storage path, named after the job
	pdfPath := filepath.Join(serverHandler.ServerConfig.StoragePath, job.ID.String()+".pdf")
	body, err := io.ReadAll(file)
	if err == nil {
		err = os.WriteFile(pdfPath, body, 0644)
	}
	if err != nil {
		Logger.Error("Unable to store uploaded file", "path", pdfPath, "error", err)
		serverHandler.DB.UpdateJobError(job.ID, fmt.Sprintf("Failed to store upload: %v", err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to store upload",
		})
	}

	// Run the render in a goroutine so we can return immediately
	go func() {
		serverHandler.renderJobFuncWithTracking(serverHandler.DB, job.ID, pdfPath)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message":   "Render started",
		"jobId":     job.ID.String(),
		"statusUrl": "/api/renders/" + job.ID.String(),
	})
}

// GetRender returns the manifest of an async render
// @Summary Get render status and manifest
// @Description Retrieve job status for a render, including the page file list once completed
// @Tags Render
// @Produce json
// @Param id path string true "Render job ID (ULID)"
// @Success 200 {object} map[string]interface{} "Render manifest"
// @Failure 400 {object} map[string]interface{} "Invalid job ID"
// @Failure 404 {object} map[string]interface{} "Render not found"
// @Router /renders/{id} [get]
func (serverHandler *ServerHandler) GetRender(c echo.Context) error {
	job, errResp := serverHandler.lookupJob(c)
	if errResp != nil {
		return errResp
	}

	manifest := map[string]interface{}{
		"jobId":     job.ID.String(),
		"status":    job.Status,
		"progress":  job.Progress,
		"filename":  job.Filename,
		"width":     job.Width,
		"pageCount": job.PageCount,
	}
	if job.Error != "" {
		manifest["error"] = job.Error
	}
	if job.Status == database.JobStatusCompleted && job.Result != "" {
		var summary database.RenderSummary
		if err := json.Unmarshal([]byte(job.Result), &summary); err == nil {
			manifest["pages"] = summary.Pages
		} else {
			Logger.Warn("Unable to decode render summary", "jobID", job.ID.String(), "error", err)
		}
	}

	return c.JSON(http.StatusOK, manifest)
}

// GetRenderedPage serves one rendered page image of a completed render
// @Summary Get a rendered page
// @Description Serve the PNG for one page of a completed render
// @Tags Render
// @Produce png
// @Param id path string true "Render job ID (ULID)"
// @Param page path int true "Zero based page index"
// @Success 200 {file} binary "Rendered page"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 404 {object} map[string]interface{} "Page not found"
// @Router /renders/{id}/pages/{page} [get]
func (serverHandler *ServerHandler) GetRenderedPage(c echo.Context) error {
	job, errResp := serverHandler.lookupJob(c)
	if errResp != nil {
		return errResp
	}

	pageIndex, err := strconv.Atoi(c.Param("page"))
	if err != nil || pageIndex < 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid page index",
		})
	}

	// Page files are numbered from one
	pagePath := filepath.Join(serverHandler.ServerConfig.RenderPath, job.ID.String(),
		fmt.Sprintf("page-%04d.png", pageIndex+1))
	if _, err := os.Stat(pagePath); err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Page not rendered",
		})
	}

	return c.File(pagePath)
}

// DeleteRender removes a render's output files, stored upload and job row
// @Summary Delete a render
// @Description Delete the output directory, the stored upload and the job record of a render
// @Tags Render
// @Produce json
// @Param id path string true "Render job ID (ULID)"
// @Success 200 {string} string "Render Deleted"
// @Failure 400 {object} map[string]interface{} "Invalid job ID"
// @Failure 404 {object} map[string]interface{} "Render not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /renders/{id} [delete]
func (serverHandler *ServerHandler) DeleteRender(c echo.Context) error {
	job, errResp := serverHandler.lookupJob(c)
	if errResp != nil {
		return errResp
	}

	outputDir := filepath.Join(serverHandler.ServerConfig.RenderPath, job.ID.String())
	if err := os.RemoveAll(outputDir); err != nil {
		Logger.Error("Unable to delete render output", "dir", outputDir, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to delete render output",
		})
	}

	pdfPath := filepath.Join(serverHandler.ServerConfig.StoragePath, job.ID.String()+".pdf")
	if err := os.Remove(pdfPath); err != nil && !os.IsNotExist(err) {
		Logger.Warn("Unable to delete stored upload", "path", pdfPath, "error", err)
	}

	if err := serverHandler.DB.DeleteJob(job.ID); err != nil {
		Logger.Error("Unable to delete job record", "jobID", job.ID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to delete job record",
		})
	}

	return c.JSON(http.StatusOK, "Render Deleted")
}

// renderParams reads the page and width query parameters with defaults
func renderParams(c echo.Context, defaultWidth int) (pageIndex int, width int, err error) {
	pageIndex = 0
	width = defaultWidth

	if pageStr := c.QueryParam("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p < 0 {
			return 0, 0, fmt.Errorf("invalid page index %q", pageStr)
		}
		pageIndex = p
	}

	if widthStr := c.QueryParam("width"); widthStr != "" {
		w, err := strconv.Atoi(widthStr)
		if err != nil || w <= 0 {
			return 0, 0, fmt.Errorf("invalid width %q", widthStr)
		}
		width = w
	}

	return pageIndex, width, nil
}

// receiveUpload writes the multipart "pdf" field to a temporary file.
// The returned cleanup removes the file again.
func (serverHandler *ServerHandler) receiveUpload(c echo.Context) (string, string, func(), error) {
	request := c.Request()
	file, fileHeader, err := request.FormFile("pdf")
	if err != nil {
		return "", "", nil, fmt.Errorf("missing pdf form field")
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "pdfbridge-*.pdf")
	if err != nil {
		Logger.Error("Unable to create temporary file for upload", "error", err)
		return "", "", nil, fmt.Errorf("unable to store upload")
	}

	_, err = io.Copy(tmp, file)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		Logger.Error("Unable to write uploaded file", "path", tmp.Name(), "error", err)
		return "", "", nil, fmt.Errorf("unable to store upload")
	}

	cleanup := func() { os.Remove(tmp.Name()) }
	return tmp.Name(), fileHeader.Filename, cleanup, nil
}

// renderError maps raster errors onto HTTP responses
func renderError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, raster.ErrPageOutOfRange),
		errors.Is(err, raster.ErrInvalidWidth),
		errors.Is(err, raster.ErrEmptyPage):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	default:
		Logger.Error("Render failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "render failed",
		})
	}
}

// lookupJob parses the :id route parameter and fetches the job behind it
func (serverHandler *ServerHandler) lookupJob(c echo.Context) (*database.Job, error) {
	job, status, err := database.FetchJob(c.Param("id"), serverHandler.DB)
	if err != nil {
		return nil, c.JSON(status, map[string]interface{}{
			"error": err.Error(),
		})
	}
	return job, nil
}
