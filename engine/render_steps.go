package engine

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/drummonds/pdfbridge/database"
	"github.com/oklog/ulid/v2"
)

// RenderDocumentWithSteps renders a stored PDF through explicit steps with
// progress tracking
// Step 1: Open the document and record its page count
// Step 2: Render every page to a PNG file in the output directory
// Step 3: Write the manifest
func (serverHandler *ServerHandler) RenderDocumentWithSteps(pdfPath string, outputDir string, db database.Repository, jobID ulid.ULID, width int) (*database.RenderSummary, error) {
	fileName := filepath.Base(pdfPath)

	// Step 1: Open the document
	stepMsg := fmt.Sprintf("%s - Step 1: Opening document", fileName)
	db.UpdateJobProgress(jobID, 5, stepMsg)
	Logger.Info("Step 1: Opening document", "pdfPath", pdfPath)

	doc, err := serverHandler.Engine.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("step 1 failed (open document): %w", err)
	}
	defer doc.Close()

	pageCount, err := doc.PageCount()
	if err != nil {
		return nil, fmt.Errorf("step 1 failed (page count): %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("step 1 failed: document has no pages")
	}

	if err := db.UpdateJobPages(jobID, pageCount); err != nil {
		Logger.Error("Failed to record page count", "jobID", jobID, "error", err)
		// Not fatal, the render can still proceed
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("step 1 failed (create output dir): %w", err)
	}

	Logger.Info("Step 1 complete: Document opened", "pages", pageCount)

	// Step 2: Render each page. Reserve 10-90% of the progress bar for
	// this loop.
	pages := make([]string, 0, pageCount)
	if serverHandler.ServerConfig.RenderBackend == "fitz" && serverHandler.Renderer != nil {
		// MuPDF renders the whole document in one pass
		stepMsg = fmt.Sprintf("%s - Step 2: Rendering %d pages with MuPDF", fileName, pageCount)
		db.UpdateJobProgress(jobID, 15, stepMsg)

		images, err := serverHandler.Renderer.RenderPDF(pdfPath, width)
		if err != nil {
			return nil, fmt.Errorf("step 2 failed (render): %w", err)
		}
		for i, img := range images {
			progress := 50 + int((float64(i)/float64(len(images)))*40)
			stepMsg = fmt.Sprintf("[%d/%d] %s - Step 2: Writing page", i+1, len(images), fileName)
			db.UpdateJobProgress(jobID, progress, stepMsg)

			// Page files are numbered from one
			pageFile := fmt.Sprintf("page-%04d.png", i+1)
			if err := writePNG(filepath.Join(outputDir, pageFile), img); err != nil {
				return nil, fmt.Errorf("step 2 failed (write page %d): %w", i, err)
			}
			pages = append(pages, pageFile)
		}
	} else {
		for i := 0; i < pageCount; i++ {
			progress := 10 + int((float64(i)/float64(pageCount))*80)
			stepMsg = fmt.Sprintf("[%d/%d] %s - Step 2: Rendering page", i+1, pageCount, fileName)
			db.UpdateJobProgress(jobID, progress, stepMsg)

			bmp, err := doc.RenderPage(i, width)
			if err != nil {
				return nil, fmt.Errorf("step 2 failed (render page %d): %w", i, err)
			}

			// Page files are numbered from one
			pageFile := fmt.Sprintf("page-%04d.png", i+1)
			if err := writePNG(filepath.Join(outputDir, pageFile), bmp.Image()); err != nil {
				return nil, fmt.Errorf("step 2 failed (write page %d): %w", i, err)
			}
			pages = append(pages, pageFile)
		}
	}

	Logger.Info("Step 2 complete: All pages rendered", "pages", pageCount, "outputDir", outputDir)

	// Step 3: Write the manifest next to the page files
	stepMsg = fmt.Sprintf("%s - Step 3: Writing manifest", fileName)
	db.UpdateJobProgress(jobID, 95, stepMsg)

	summary := &database.RenderSummary{
		PageCount: pageCount,
		Width:     width,
		Pages:     pages,
	}

	manifest, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("step 3 failed (encode manifest): %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "manifest.json"), manifest, 0644); err != nil {
		return nil, fmt.Errorf("step 3 failed (write manifest): %w", err)
	}

	Logger.Info("Step 3 complete: Manifest written", "fileName", fileName)
	Logger.Info("Document render complete", "fileName", fileName, "pages", pageCount)

	return summary, nil
}

// writePNG encodes a rendered page to a PNG file
func writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}

	err = png.Encode(out, img)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
