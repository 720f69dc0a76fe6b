package raster

import (
	"fmt"
	"os"
	"sync"
)

// backend is the primitive surface the rasterizer needs from a PDF engine.
// The production implementation drives PDFium over WebAssembly (pdfium.go);
// tests substitute a scripted fake.
type backend interface {
	OpenDocument(data []byte) (documentHandle, error)
	CloseDocument(doc documentHandle) error
	PageCount(doc documentHandle) (int, error)
	LoadPage(doc documentHandle, index int) (pageHandle, error)
	ClosePage(page pageHandle) error
	PageSize(page pageHandle) (width, height float64, err error)
	CreateCanvas(width, height int) (canvasHandle, error)
	FillRect(canvas canvasHandle, left, top, width, height int, color uint32) error
	RenderPage(canvas canvasHandle, page pageHandle, startX, startY, sizeX, sizeY, rotate int, flags RenderFlag) error
	CanvasBuffer(canvas canvasHandle) ([]byte, error)
	DestroyCanvas(canvas canvasHandle) error
	Close() error
}

// Engine is an explicit rasterizer context. It owns the underlying engine
// instance and a single mutex that serializes every call into it. The
// engine instance pool is pinned to one worker; concurrent callers queue on
// the mutex rather than rendering in parallel.
type Engine struct {
	mu     sync.Mutex
	be     backend
	closed bool
}

// NewEngine boots a PDFium engine and returns a ready-to-use context.
func NewEngine() (*Engine, error) {
	be, err := newPDFiumBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to start pdfium engine: %w", err)
	}
	return &Engine{be: be}, nil
}

func newEngineWithBackend(be backend) *Engine {
	return &Engine{be: be}
}

// Close shuts the engine down and releases the underlying runtime. It is
// safe to call more than once; only the first call does work. After Close,
// operations on the engine and on documents opened from it fail with
// ErrEngineClosed, except Document.Close which becomes a no-op.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.be.Close(); err != nil {
		return fmt.Errorf("failed to close engine: %w", err)
	}
	return nil
}

// Open reads the PDF at path and loads it into the engine. Missing files,
// unreadable files and malformed documents all return a nil Document and an
// error with nothing left acquired.
func (e *Engine) Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e.OpenBytes(data)
}

// OpenBytes loads a PDF held in memory.
func (e *Engine) OpenBytes(data []byte) (*Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	h, err := e.be.OpenDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	return &Document{eng: e, h: h}, nil
}

var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

// Init creates the package default engine used by the package-level Open
// functions. If a default engine already exists it is kept and Init
// returns nil.
func Init() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine != nil {
		return nil
	}
	eng, err := NewEngine()
	if err != nil {
		return err
	}
	defaultEngine = eng
	return nil
}

// Shutdown closes and clears the package default engine. Without one it is
// a no-op.
func Shutdown() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		return nil
	}
	err := defaultEngine.Close()
	defaultEngine = nil
	return err
}

// Open loads the PDF at path with the package default engine. It fails
// with ErrNotInitialized before Init has run.
func Open(path string) (*Document, error) {
	eng, err := defaultOrErr()
	if err != nil {
		return nil, err
	}
	return eng.Open(path)
}

// OpenBytes loads an in-memory PDF with the package default engine.
func OpenBytes(data []byte) (*Document, error) {
	eng, err := defaultOrErr()
	if err != nil {
		return nil, err
	}
	return eng.OpenBytes(data)
}

func defaultOrErr() (*Engine, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		return nil, ErrNotInitialized
	}
	return defaultEngine, nil
}
