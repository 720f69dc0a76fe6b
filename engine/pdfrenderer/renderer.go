package pdfrenderer

import (
	"image"

	"github.com/drummonds/pdfbridge/raster"
)

// Renderer defines the interface for PDF to image conversion
type Renderer interface {
	// RenderPDF converts all pages of a PDF file to images at the given
	// pixel width, preserving the aspect ratio of each page
	RenderPDF(filename string, width int) ([]image.Image, error)

	// Close cleans up any resources used by the renderer
	Close() error
}

// NewRenderer picks the rendering backend by name. The default is the
// PDFium renderer built on the shared raster engine (pure Go, no CGo);
// "fitz" selects the MuPDF renderer, which needs CGo.
func NewRenderer(backend string, engine *raster.Engine) (Renderer, error) {
	switch backend {
	case "fitz":
		return NewFitzRenderer()
	default:
		return NewPDFiumRenderer(engine)
	}
}
