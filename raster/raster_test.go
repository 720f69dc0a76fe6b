package raster

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// fakeBackend is a scripted in-memory backend. It tracks outstanding pages
// and canvases so tests can assert that every path, including failures,
// releases exactly what it acquired.
type fakeBackend struct {
	pageCount int
	pageW     float64
	pageH     float64
	buffer    []byte // canvas buffer; nil synthesizes opaque white BGRA
	fail      map[string]error

	ops          []string
	openPages    int
	openCanvases int
	canvasW      int
	canvasH      int

	lastFillRect  [4]int
	lastFillColor uint32
	lastRender    struct {
		startX, startY int
		sizeX, sizeY   int
		rotate         int
		flags          RenderFlag
	}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pageCount: 1,
		pageW:     200,
		pageH:     100,
		fail:      map[string]error{},
	}
}

func (f *fakeBackend) step(name string) error {
	f.ops = append(f.ops, name)
	return f.fail[name]
}

func (f *fakeBackend) countOps(name string) int {
	n := 0
	for _, op := range f.ops {
		if op == name {
			n++
		}
	}
	return n
}

func (f *fakeBackend) opIndex(name string) int {
	for i, op := range f.ops {
		if op == name {
			return i
		}
	}
	return -1
}

func (f *fakeBackend) OpenDocument(data []byte) (documentHandle, error) {
	if err := f.step("OpenDocument"); err != nil {
		return "", err
	}
	return "doc", nil
}

func (f *fakeBackend) CloseDocument(doc documentHandle) error {
	return f.step("CloseDocument")
}

func (f *fakeBackend) PageCount(doc documentHandle) (int, error) {
	if err := f.step("PageCount"); err != nil {
		return 0, err
	}
	return f.pageCount, nil
}

func (f *fakeBackend) LoadPage(doc documentHandle, index int) (pageHandle, error) {
	if err := f.step("LoadPage"); err != nil {
		return "", err
	}
	f.openPages++
	return pageHandle(fmt.Sprintf("page-%d", index)), nil
}

func (f *fakeBackend) ClosePage(page pageHandle) error {
	f.openPages--
	return f.step("ClosePage")
}

func (f *fakeBackend) PageSize(page pageHandle) (float64, float64, error) {
	if err := f.step("PageSize"); err != nil {
		return 0, 0, err
	}
	return f.pageW, f.pageH, nil
}

func (f *fakeBackend) CreateCanvas(width, height int) (canvasHandle, error) {
	if err := f.step("CreateCanvas"); err != nil {
		return "", err
	}
	f.openCanvases++
	f.canvasW = width
	f.canvasH = height
	return "canvas", nil
}

func (f *fakeBackend) FillRect(canvas canvasHandle, left, top, width, height int, color uint32) error {
	f.lastFillRect = [4]int{left, top, width, height}
	f.lastFillColor = color
	return f.step("FillRect")
}

func (f *fakeBackend) RenderPage(canvas canvasHandle, page pageHandle, startX, startY, sizeX, sizeY, rotate int, flags RenderFlag) error {
	f.lastRender.startX = startX
	f.lastRender.startY = startY
	f.lastRender.sizeX = sizeX
	f.lastRender.sizeY = sizeY
	f.lastRender.rotate = rotate
	f.lastRender.flags = flags
	return f.step("RenderPage")
}

func (f *fakeBackend) CanvasBuffer(canvas canvasHandle) ([]byte, error) {
	if err := f.step("CanvasBuffer"); err != nil {
		return nil, err
	}
	if f.buffer != nil {
		return f.buffer, nil
	}
	buf := make([]byte, f.canvasW*f.canvasH*4)
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf, nil
}

func (f *fakeBackend) DestroyCanvas(canvas canvasHandle) error {
	f.openCanvases--
	return f.step("DestroyCanvas")
}

func (f *fakeBackend) Close() error {
	return f.step("Close")
}

func openTestDocument(t *testing.T, f *fakeBackend) *Document {
	t.Helper()
	eng := newEngineWithBackend(f)
	doc, err := eng.OpenBytes([]byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	return doc
}

func TestRenderPageGeometry(t *testing.T) {
	f := newFakeBackend()
	f.pageW, f.pageH = 200, 100
	doc := openTestDocument(t, f)

	bmp, err := doc.RenderPage(0, 100)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}

	if bmp.Width != 100 {
		t.Errorf("Expected width 100, got %d", bmp.Width)
	}
	if bmp.Height != 50 {
		t.Errorf("Expected height 50, got %d", bmp.Height)
	}
	if bmp.Stride != 400 {
		t.Errorf("Expected stride 400, got %d", bmp.Stride)
	}
	if len(bmp.Data) != 20000 {
		t.Errorf("Expected 20000 bytes, got %d", len(bmp.Data))
	}
	if f.canvasW != 100 || f.canvasH != 50 {
		t.Errorf("Expected 100x50 canvas, got %dx%d", f.canvasW, f.canvasH)
	}
}

func TestRenderPageRoundsHeightUp(t *testing.T) {
	f := newFakeBackend()
	f.pageW, f.pageH = 612, 792 // US Letter
	doc := openTestDocument(t, f)

	bmp, err := doc.RenderPage(0, 1000)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}

	// 792 * 1000/612 = 1294.117..., rounded up so the last row survives.
	if bmp.Height != 1295 {
		t.Errorf("Expected height 1295, got %d", bmp.Height)
	}
	if bmp.Stride != bmp.Width*4 {
		t.Errorf("Expected stride %d, got %d", bmp.Width*4, bmp.Stride)
	}
	if len(bmp.Data) != bmp.Stride*bmp.Height {
		t.Errorf("Expected %d bytes, got %d", bmp.Stride*bmp.Height, len(bmp.Data))
	}
}

func TestRenderPageConvertsBGRAToRGBA(t *testing.T) {
	f := newFakeBackend()
	f.pageW, f.pageH = 100, 50
	// A solid RGB(10,20,30) page sits in the canvas as BGRA.
	f.buffer = bytes.Repeat([]byte{30, 20, 10, 255}, 25*13)
	doc := openTestDocument(t, f)

	bmp, err := doc.RenderPage(0, 10)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}

	for i := 0; i < len(bmp.Data); i += 4 {
		r, g, b, a := bmp.Data[i], bmp.Data[i+1], bmp.Data[i+2], bmp.Data[i+3]
		if r != 10 || g != 20 || b != 30 || a != 255 {
			t.Fatalf("Pixel %d is {%d,%d,%d,%d}, expected {10,20,30,255}", i/4, r, g, b, a)
		}
	}
}

func TestRenderPageFillsWhiteFirst(t *testing.T) {
	f := newFakeBackend()
	f.pageW, f.pageH = 200, 100
	doc := openTestDocument(t, f)

	if _, err := doc.RenderPage(0, 100); err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}

	fill, render := f.opIndex("FillRect"), f.opIndex("RenderPage")
	if fill == -1 || render == -1 || fill > render {
		t.Fatalf("Expected fill before render, ops were %v", f.ops)
	}
	if f.lastFillColor != 0xFFFFFFFF {
		t.Errorf("Expected opaque white fill, got %#x", f.lastFillColor)
	}
	if f.lastFillRect != [4]int{0, 0, 100, 50} {
		t.Errorf("Expected full-canvas fill, got %v", f.lastFillRect)
	}
	if f.lastRender.startX != 0 || f.lastRender.startY != 0 {
		t.Errorf("Expected render at origin, got (%d,%d)", f.lastRender.startX, f.lastRender.startY)
	}
	if f.lastRender.sizeX != 100 || f.lastRender.sizeY != 50 {
		t.Errorf("Expected render size 100x50, got %dx%d", f.lastRender.sizeX, f.lastRender.sizeY)
	}
	if f.lastRender.rotate != 0 {
		t.Errorf("Expected no rotation, got %d", f.lastRender.rotate)
	}
	if f.lastRender.flags != RenderAnnotations|RenderPrinting {
		t.Errorf("Expected annotation+printing flags, got %#x", f.lastRender.flags)
	}
}

func TestRenderPageRejectsInvalidWidth(t *testing.T) {
	f := newFakeBackend()
	doc := openTestDocument(t, f)

	for _, width := range []int{0, -3} {
		f.ops = nil
		bmp, err := doc.RenderPage(0, width)
		if !errors.Is(err, ErrInvalidWidth) {
			t.Errorf("Width %d: expected ErrInvalidWidth, got %v", width, err)
		}
		if bmp != nil {
			t.Errorf("Width %d: expected nil bitmap", width)
		}
		if len(f.ops) != 0 {
			t.Errorf("Width %d: expected no engine calls, got %v", width, f.ops)
		}
	}
}

func TestRenderPageRejectsOutOfRangeIndex(t *testing.T) {
	f := newFakeBackend()
	f.pageCount = 3
	doc := openTestDocument(t, f)

	for _, index := range []int{-1, 3, 7} {
		f.ops = nil
		_, err := doc.RenderPage(index, 100)
		if !errors.Is(err, ErrPageOutOfRange) {
			t.Errorf("Index %d: expected ErrPageOutOfRange, got %v", index, err)
		}
		if f.countOps("LoadPage") != 0 {
			t.Errorf("Index %d: page must not be loaded", index)
		}
	}
}

func TestRenderPageQueriesLiveCount(t *testing.T) {
	f := newFakeBackend()
	f.pageCount = 3
	doc := openTestDocument(t, f)

	if _, err := doc.RenderPage(2, 50); err != nil {
		t.Fatalf("RenderPage failed with 3 pages: %v", err)
	}

	f.pageCount = 1
	if _, err := doc.RenderPage(2, 50); !errors.Is(err, ErrPageOutOfRange) {
		t.Fatalf("Expected ErrPageOutOfRange after count dropped, got %v", err)
	}
}

func TestRenderPageRejectsEmptyPage(t *testing.T) {
	for _, tc := range []struct{ w, h float64 }{{0, 100}, {200, 0}, {-10, 100}} {
		f := newFakeBackend()
		f.pageW, f.pageH = tc.w, tc.h
		doc := openTestDocument(t, f)

		_, err := doc.RenderPage(0, 100)
		if !errors.Is(err, ErrEmptyPage) {
			t.Errorf("Size %gx%g: expected ErrEmptyPage, got %v", tc.w, tc.h, err)
		}
		if f.openPages != 0 {
			t.Errorf("Size %gx%g: page leaked", tc.w, tc.h)
		}
	}
}

func TestRenderPageReleasesOnFailure(t *testing.T) {
	boom := errors.New("engine exploded")
	for _, failAt := range []string{"LoadPage", "PageSize", "CreateCanvas", "FillRect", "RenderPage", "CanvasBuffer"} {
		t.Run(failAt, func(t *testing.T) {
			f := newFakeBackend()
			f.fail[failAt] = boom
			doc := openTestDocument(t, f)

			bmp, err := doc.RenderPage(0, 100)
			if bmp != nil {
				t.Error("Expected nil bitmap on failure")
			}
			if !errors.Is(err, boom) {
				t.Errorf("Expected wrapped backend error, got %v", err)
			}
			if f.openPages != 0 {
				t.Errorf("%d pages leaked", f.openPages)
			}
			if f.openCanvases != 0 {
				t.Errorf("%d canvases leaked", f.openCanvases)
			}
		})
	}
}

func TestRenderPageShortCanvasBuffer(t *testing.T) {
	f := newFakeBackend()
	f.buffer = make([]byte, 8)
	doc := openTestDocument(t, f)

	bmp, err := doc.RenderPage(0, 100)
	if err == nil {
		t.Fatal("Expected error for short canvas buffer")
	}
	if bmp != nil {
		t.Error("Expected nil bitmap")
	}
	if f.openPages != 0 || f.openCanvases != 0 {
		t.Error("Resources leaked after short buffer")
	}
}

func TestDocumentCloseReleasesOnce(t *testing.T) {
	f := newFakeBackend()
	doc := openTestDocument(t, f)

	if err := doc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := doc.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if n := f.countOps("CloseDocument"); n != 1 {
		t.Errorf("Expected exactly one CloseDocument, got %d", n)
	}
}

func TestOperationsAfterDocumentClose(t *testing.T) {
	f := newFakeBackend()
	doc := openTestDocument(t, f)
	doc.Close()

	if _, err := doc.PageCount(); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("PageCount: expected ErrDocumentClosed, got %v", err)
	}
	if _, _, err := doc.PageSize(0); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("PageSize: expected ErrDocumentClosed, got %v", err)
	}
	if _, err := doc.RenderPage(0, 100); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("RenderPage: expected ErrDocumentClosed, got %v", err)
	}
}

func TestNilDocumentIsSafe(t *testing.T) {
	var doc *Document

	if err := doc.Close(); err != nil {
		t.Errorf("Close on nil document: %v", err)
	}
	if _, err := doc.PageCount(); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("PageCount on nil document: got %v", err)
	}
	if _, err := doc.RenderPage(0, 100); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("RenderPage on nil document: got %v", err)
	}
}

func TestEngineCloseIdempotent(t *testing.T) {
	f := newFakeBackend()
	eng := newEngineWithBackend(f)

	if err := eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if n := f.countOps("Close"); n != 1 {
		t.Errorf("Expected exactly one backend close, got %d", n)
	}

	if _, err := eng.OpenBytes([]byte("%PDF-1.4")); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("OpenBytes after close: expected ErrEngineClosed, got %v", err)
	}
}

func TestDocumentAfterEngineClose(t *testing.T) {
	f := newFakeBackend()
	eng := newEngineWithBackend(f)
	doc, err := eng.OpenBytes([]byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	eng.Close()

	if _, err := doc.RenderPage(0, 100); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("RenderPage: expected ErrEngineClosed, got %v", err)
	}
	if err := doc.Close(); err != nil {
		t.Errorf("Close after engine close should be a no-op, got %v", err)
	}
	if n := f.countOps("CloseDocument"); n != 0 {
		t.Errorf("Handle already invalid, expected no CloseDocument, got %d", n)
	}
}

func TestOpenBytesFailure(t *testing.T) {
	f := newFakeBackend()
	f.fail["OpenDocument"] = errors.New("bad header")
	eng := newEngineWithBackend(f)

	doc, err := eng.OpenBytes([]byte("not a pdf"))
	if err == nil {
		t.Fatal("Expected error for unparseable data")
	}
	if doc != nil {
		t.Error("Expected nil document")
	}
}

func TestPageCountIsLive(t *testing.T) {
	f := newFakeBackend()
	f.pageCount = 2
	doc := openTestDocument(t, f)

	count, err := doc.PageCount()
	if err != nil || count != 2 {
		t.Fatalf("Expected count 2, got %d (%v)", count, err)
	}

	f.pageCount = 5
	count, err = doc.PageCount()
	if err != nil || count != 5 {
		t.Fatalf("Expected count 5 after document grew, got %d (%v)", count, err)
	}
}

func TestPageSize(t *testing.T) {
	f := newFakeBackend()
	f.pageW, f.pageH = 612, 792
	doc := openTestDocument(t, f)

	w, h, err := doc.PageSize(0)
	if err != nil {
		t.Fatalf("PageSize failed: %v", err)
	}
	if w != 612 || h != 792 {
		t.Errorf("Expected 612x792, got %gx%g", w, h)
	}
	if f.openPages != 0 {
		t.Error("PageSize leaked the page it loaded")
	}

	if _, _, err := doc.PageSize(1); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("Expected ErrPageOutOfRange, got %v", err)
	}
}
