// Package raster renders PDF pages to tightly packed RGBA bitmaps.
//
// The package wraps a PDF engine (PDFium compiled to WebAssembly) behind a
// small typed API: an Engine owns the engine runtime, a Document owns one
// loaded document, and RenderPage produces an owned Bitmap scaled to a
// caller-chosen pixel width. Every engine call is serialized by the Engine,
// so an Engine and the Documents opened from it may be shared across
// goroutines.
package raster

import "errors"

// Sentinel errors for failures the caller can act on. Failures reported by
// the engine itself are returned wrapped with context instead.
var (
	ErrNotInitialized = errors.New("raster: engine not initialized")
	ErrEngineClosed   = errors.New("raster: engine closed")
	ErrDocumentClosed = errors.New("raster: document closed")
	ErrPageOutOfRange = errors.New("raster: page index out of range")
	ErrInvalidWidth   = errors.New("raster: target width must be positive")
	ErrEmptyPage      = errors.New("raster: page has no printable area")
)

// RenderFlag values match the engine's render flag bits.
type RenderFlag int

const (
	// RenderAnnotations draws annotation appearances (stamps, highlights,
	// form field content).
	RenderAnnotations RenderFlag = 0x01
	// RenderPrinting renders with the printing intent.
	RenderPrinting RenderFlag = 0x800
)

// renderFlags is the fixed policy applied to every render. Callers cannot
// change it.
const renderFlags = RenderAnnotations | RenderPrinting

// Opaque engine handles. Distinct types keep a page reference from being
// passed where a document or canvas reference is expected.
type (
	documentHandle string
	pageHandle     string
	canvasHandle   string
)
