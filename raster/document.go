package raster

import "fmt"

// Document is an owning wrapper around one open PDF document. Engine
// resources held by the document are released exactly once, by the first
// Close call; later calls are no-ops.
type Document struct {
	eng    *Engine
	h      documentHandle
	closed bool // guarded by eng.mu
}

// usable reports whether the document can serve calls. Callers hold eng.mu.
func (d *Document) usable() error {
	if d.eng.closed {
		return ErrEngineClosed
	}
	if d.closed {
		return ErrDocumentClosed
	}
	return nil
}

// PageCount reports the number of pages. The engine is queried on every
// call; the count is never cached.
func (d *Document) PageCount() (int, error) {
	if d == nil || d.eng == nil {
		return 0, ErrDocumentClosed
	}
	e := d.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := d.usable(); err != nil {
		return 0, err
	}
	count, err := e.be.PageCount(d.h)
	if err != nil {
		return 0, fmt.Errorf("failed to query page count: %w", err)
	}
	return count, nil
}

// PageSize returns the native size of a page in PDF points. The page is
// loaded for the duration of the query and always released again.
func (d *Document) PageSize(pageIndex int) (width, height float64, err error) {
	if d == nil || d.eng == nil {
		return 0, 0, ErrDocumentClosed
	}
	e := d.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := d.usable(); err != nil {
		return 0, 0, err
	}
	count, err := e.be.PageCount(d.h)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query page count: %w", err)
	}
	if pageIndex < 0 || pageIndex >= count {
		return 0, 0, ErrPageOutOfRange
	}
	page, err := e.be.LoadPage(d.h, pageIndex)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load page %d: %w", pageIndex, err)
	}
	defer e.be.ClosePage(page)
	w, h, err := e.be.PageSize(page)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to measure page %d: %w", pageIndex, err)
	}
	return w, h, nil
}

// Close releases the document. It is safe on a nil receiver and safe to
// call repeatedly; only the first call on an open document releases engine
// resources. After the owning engine has been closed the handle is already
// invalid and Close just marks the document closed.
func (d *Document) Close() error {
	if d == nil || d.eng == nil {
		return nil
	}
	e := d.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if e.closed {
		return nil
	}
	if err := e.be.CloseDocument(d.h); err != nil {
		return fmt.Errorf("failed to close document: %w", err)
	}
	return nil
}
