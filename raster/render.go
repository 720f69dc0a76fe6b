package raster

import (
	"fmt"
	"math"
)

// RenderPage rasterizes one page into an RGBA bitmap targetWidth pixels
// wide. The height follows from the page's aspect ratio, rounded up to the
// next whole pixel, so no content row is lost. The page is composited
// without rotation onto an opaque white background with annotation and
// printing-intent hints; that policy is fixed.
//
// On failure a nil bitmap and an error are returned and every engine
// resource acquired by the call has been released.
func (d *Document) RenderPage(pageIndex, targetWidth int) (*Bitmap, error) {
	if d == nil || d.eng == nil {
		return nil, ErrDocumentClosed
	}
	e := d.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := d.usable(); err != nil {
		return nil, err
	}
	if targetWidth <= 0 {
		return nil, ErrInvalidWidth
	}

	count, err := e.be.PageCount(d.h)
	if err != nil {
		return nil, fmt.Errorf("failed to query page count: %w", err)
	}
	if pageIndex < 0 || pageIndex >= count {
		return nil, ErrPageOutOfRange
	}

	page, err := e.be.LoadPage(d.h, pageIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %d: %w", pageIndex, err)
	}
	defer e.be.ClosePage(page)

	nativeW, nativeH, err := e.be.PageSize(page)
	if err != nil {
		return nil, fmt.Errorf("failed to measure page %d: %w", pageIndex, err)
	}
	if nativeW <= 0 || nativeH <= 0 {
		return nil, ErrEmptyPage
	}

	scale := float64(targetWidth) / nativeW
	width := targetWidth
	height := int(math.Ceil(nativeH * scale))
	stride := width * 4

	canvas, err := e.be.CreateCanvas(width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to create %dx%d canvas: %w", width, height, err)
	}
	defer e.be.DestroyCanvas(canvas)

	// Flatten transparent page backgrounds onto opaque white before the
	// page content goes down.
	if err := e.be.FillRect(canvas, 0, 0, width, height, 0xFFFFFFFF); err != nil {
		return nil, fmt.Errorf("failed to fill canvas: %w", err)
	}
	if err := e.be.RenderPage(canvas, page, 0, 0, width, height, 0, renderFlags); err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageIndex, err)
	}

	buf, err := e.be.CanvasBuffer(canvas)
	if err != nil {
		return nil, fmt.Errorf("failed to read canvas buffer: %w", err)
	}
	if len(buf) < stride*height {
		return nil, fmt.Errorf("canvas buffer is %d bytes, want %d", len(buf), stride*height)
	}

	data := make([]byte, stride*height)
	copy(data, buf)
	swapBGRA(data)

	return &Bitmap{Data: data, Width: width, Height: height, Stride: stride}, nil
}
