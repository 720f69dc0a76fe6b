// Package client is a typed HTTP client for the pdfbridge render service.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running pdfbridge server
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for the server at baseURL
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Health is the response of the health endpoint
type Health struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// PageInfo describes one page of an inspected document
type PageInfo struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DocumentInfo is the response of the info endpoint
type DocumentInfo struct {
	Filename  string     `json:"filename"`
	PageCount int        `json:"pageCount"`
	Pages     []PageInfo `json:"pages"`
}

// RenderCreated is the response of the async render endpoint
type RenderCreated struct {
	Message   string `json:"message"`
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
}

// RenderManifest is the status and page list of an async render
type RenderManifest struct {
	JobID     string   `json:"jobId"`
	Status    string   `json:"status"`
	Progress  int      `json:"progress"`
	Filename  string   `json:"filename"`
	Width     int      `json:"width"`
	PageCount int      `json:"pageCount"`
	Pages     []string `json:"pages,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Job mirrors the server's job record
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	Result      string     `json:"result,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	Width       int        `json:"width,omitempty"`
	PageCount   int        `json:"pageCount,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Done reports whether the job has reached a terminal status
func (j *Job) Done() bool {
	switch j.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// GetHealth checks that the server is up
func (c *Client) GetHealth() (*Health, error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("failed to call render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// RenderPage uploads a PDF and returns one page as PNG bytes.
// A width of zero uses the server's configured render width.
func (c *Client) RenderPage(pdfPath string, page int, width int) ([]byte, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if width > 0 {
		query.Set("width", strconv.Itoa(width))
	}

	resp, err := c.postPDF("/api/render", pdfPath, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	pngBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	return pngBytes, nil
}

// RenderThumbnail uploads a PDF and returns a page thumbnail as PNG bytes
func (c *Client) RenderThumbnail(pdfPath string, page int) ([]byte, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))

	resp, err := c.postPDF("/api/thumbnail", pdfPath, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	pngBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read thumbnail: %w", err)
	}
	return pngBytes, nil
}

// GetDocumentInfo uploads a PDF and returns its page count and sizes
func (c *Client) GetDocumentInfo(pdfPath string) (*DocumentInfo, error) {
	resp, err := c.postPDF("/api/info", pdfPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var info DocumentInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode info response: %w", err)
	}
	return &info, nil
}

// CreateRender uploads a PDF and starts a background render of all pages
func (c *Client) CreateRender(pdfPath string, width int) (*RenderCreated, error) {
	query := url.Values{}
	if width > 0 {
		query.Set("width", strconv.Itoa(width))
	}

	resp, err := c.postPDF("/api/renders", pdfPath, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var created RenderCreated
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode render response: %w", err)
	}
	return &created, nil
}

// GetRender fetches the manifest of an async render
func (c *Client) GetRender(jobID string) (*RenderManifest, error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + "/api/renders/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to call render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var manifest RenderManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &manifest, nil
}

// GetRenderedPage downloads one page PNG of a completed render
func (c *Client) GetRenderedPage(jobID string, page int) ([]byte, error) {
	resp, err := c.HTTPClient.Get(fmt.Sprintf("%s/api/renders/%s/pages/%d", c.BaseURL, jobID, page))
	if err != nil {
		return nil, fmt.Errorf("failed to call render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	pngBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	return pngBytes, nil
}

// DeleteRender removes a render's files and job record
func (c *Client) DeleteRender(jobID string) error {
	req, err := http.NewRequest("DELETE", c.BaseURL+"/api/renders/"+jobID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// GetJob fetches a job record
func (c *Client) GetJob(jobID string) (*Job, error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + "/api/jobs/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to call render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// WaitForJob polls a job until it reaches a terminal status or the
// timeout passes
func (c *Client) WaitForJob(jobID string, pollInterval, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := c.GetJob(jobID)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		if time.Now().After(deadline) {
			return job, fmt.Errorf("job %s still %s after %s", jobID, job.Status, timeout)
		}
		time.Sleep(pollInterval)
	}
}

// postPDF uploads a local PDF file as the multipart "pdf" field
func (c *Client) postPDF(path string, pdfPath string, query url.Values) (*http.Response, error) {
	// Open the PDF file
	file, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	// Create multipart form data
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("pdf", filepath.Base(pdfPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	_, err = io.Copy(part, file)
	if err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	// Make HTTP request
	requestURL := c.BaseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	req, err := http.NewRequest("POST", requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call render service: %w", err)
	}
	return resp, nil
}
