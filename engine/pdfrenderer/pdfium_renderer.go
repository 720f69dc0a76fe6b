package pdfrenderer

import (
	"fmt"
	"image"

	"github.com/drummonds/pdfbridge/raster"
)

// PDFiumRenderer implements PDF rendering on top of the shared raster
// engine (go-pdfium WebAssembly, pure Go, no CGo)
type PDFiumRenderer struct {
	engine *raster.Engine
}

// NewPDFiumRenderer creates a renderer that borrows an already running
// raster engine. The engine stays owned by the caller.
func NewPDFiumRenderer(engine *raster.Engine) (*PDFiumRenderer, error) {
	if engine == nil {
		return nil, fmt.Errorf("pdfium renderer needs a raster engine")
	}
	return &PDFiumRenderer{engine: engine}, nil
}

// RenderPDF converts all pages of a PDF file to images at the given width
func (r *PDFiumRenderer) RenderPDF(filename string, width int) ([]image.Image, error) {
	doc, err := r.engine.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	numPages, err := doc.PageCount()
	if err != nil {
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	images := make([]image.Image, 0, numPages)

	for pageIndex := 0; pageIndex < numPages; pageIndex++ {
		bmp, err := doc.RenderPage(pageIndex, width)
		if err != nil {
			return nil, fmt.Errorf("unable to render page %d: %w", pageIndex, err)
		}
		images = append(images, bmp.Image())
	}

	return images, nil
}

// Close releases nothing; the raster engine is owned by the caller
func (r *PDFiumRenderer) Close() error {
	return nil
}
