package raster

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/document"
	"seehuhn.de/go/pdf/graphics/color"
)

// newWasmEngine boots the real PDFium WebAssembly engine. The boot takes a
// moment, so these tests are skipped in short mode.
func newWasmEngine(t *testing.T) *Engine {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PDFium engine test in short mode")
	}
	eng, err := NewEngine()
	if err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

// createSolidColorPDF writes a single-page PDF whose page is one full-bleed
// rectangle of the given color, so every rendered pixel carries it.
func createSolidColorPDF(t *testing.T, path string, widthPt, heightPt, r, g, b float64) {
	t.Helper()
	page, err := document.CreateSinglePage(path, &pdf.Rectangle{URx: widthPt, URy: heightPt}, pdf.V1_7, nil)
	if err != nil {
		t.Fatalf("Failed to create test PDF: %v", err)
	}
	page.SetFillColor(color.DeviceRGB{r, g, b})
	page.Rectangle(0, 0, widthPt, heightPt)
	page.Fill()
	if err := page.Close(); err != nil {
		t.Fatalf("Failed to finish test PDF: %v", err)
	}
}

// createTwoPageTestPDF writes a minimal PDF with two empty pages of
// different sizes.
func createTwoPageTestPDF(t *testing.T, path string) {
	t.Helper()
	pdfContent := `%PDF-1.4
1 0 obj
<<
/Type /Catalog
/Pages 2 0 R
>>
endobj
2 0 obj
<<
/Type /Pages
/Kids [3 0 R 4 0 R]
/Count 2
>>
endobj
3 0 obj
<<
/Type /Page
/Parent 2 0 R
/MediaBox [0 0 200 100]
>>
endobj
4 0 obj
<<
/Type /Page
/Parent 2 0 R
/MediaBox [0 0 300 150]
>>
endobj
xref
0 5
0000000000 65535 f
0000000009 00000 n
0000000058 00000 n
0000000121 00000 n
0000000192 00000 n
trailer
<<
/Size 5
/Root 1 0 R
>>
startxref
263
%%EOF`

	if err := os.WriteFile(path, []byte(pdfContent), 0644); err != nil {
		t.Fatalf("Failed to write test PDF: %v", err)
	}
}

func TestRenderSolidColorPage(t *testing.T) {
	eng := newWasmEngine(t)
	path := filepath.Join(t.TempDir(), "solid.pdf")
	createSolidColorPDF(t, path, 200, 100, 10.0/255, 20.0/255, 30.0/255)

	doc, err := eng.Open(path)
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer doc.Close()

	bmp, err := doc.RenderPage(0, 100)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}

	if bmp.Width != 100 || bmp.Height != 50 {
		t.Fatalf("Expected 100x50, got %dx%d", bmp.Width, bmp.Height)
	}
	if bmp.Stride != 400 {
		t.Fatalf("Expected stride 400, got %d", bmp.Stride)
	}
	if len(bmp.Data) != 20000 {
		t.Fatalf("Expected 20000 bytes, got %d", len(bmp.Data))
	}

	for i := 0; i < len(bmp.Data); i += 4 {
		r, g, b, a := bmp.Data[i], bmp.Data[i+1], bmp.Data[i+2], bmp.Data[i+3]
		if r != 10 || g != 20 || b != 30 || a != 255 {
			t.Fatalf("Pixel %d is {%d,%d,%d,%d}, expected {10,20,30,255}", i/4, r, g, b, a)
		}
	}
}

func TestRenderGeometryAcrossWidths(t *testing.T) {
	eng := newWasmEngine(t)
	path := filepath.Join(t.TempDir(), "letter.pdf")
	createSolidColorPDF(t, path, 612, 792, 1, 1, 1)

	doc, err := eng.Open(path)
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer doc.Close()

	cases := []struct{ width, height int }{
		{1, 2},
		{50, 65},
		{333, 431},
	}
	for _, tc := range cases {
		bmp, err := doc.RenderPage(0, tc.width)
		if err != nil {
			t.Fatalf("RenderPage at width %d failed: %v", tc.width, err)
		}
		if bmp.Width != tc.width || bmp.Height != tc.height {
			t.Errorf("Width %d: expected %dx%d, got %dx%d", tc.width, tc.width, tc.height, bmp.Width, bmp.Height)
		}
		if bmp.Stride != tc.width*4 {
			t.Errorf("Width %d: expected stride %d, got %d", tc.width, tc.width*4, bmp.Stride)
		}
		if len(bmp.Data) != bmp.Stride*bmp.Height {
			t.Errorf("Width %d: expected %d bytes, got %d", tc.width, bmp.Stride*bmp.Height, len(bmp.Data))
		}
	}
}

func TestRenderBlankPageIsWhite(t *testing.T) {
	eng := newWasmEngine(t)
	path := filepath.Join(t.TempDir(), "twopage.pdf")
	createTwoPageTestPDF(t, path)

	doc, err := eng.Open(path)
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer doc.Close()

	bmp, err := doc.RenderPage(0, 50)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if bmp.Width != 50 || bmp.Height != 25 {
		t.Fatalf("Expected 50x25, got %dx%d", bmp.Width, bmp.Height)
	}
	for i, v := range bmp.Data {
		if v != 255 {
			t.Fatalf("Byte %d is %d, expected a fully opaque white canvas", i, v)
		}
	}
}

func TestPageCountAndSizes(t *testing.T) {
	eng := newWasmEngine(t)
	path := filepath.Join(t.TempDir(), "twopage.pdf")
	createTwoPageTestPDF(t, path)

	doc, err := eng.Open(path)
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer doc.Close()

	count, err := doc.PageCount()
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 pages, got %d", count)
	}

	w, h, err := doc.PageSize(0)
	if err != nil || w != 200 || h != 100 {
		t.Errorf("Page 0: expected 200x100, got %gx%g (%v)", w, h, err)
	}
	w, h, err = doc.PageSize(1)
	if err != nil || w != 300 || h != 150 {
		t.Errorf("Page 1: expected 300x150, got %gx%g (%v)", w, h, err)
	}
}

func TestRenderPageOutOfRangeReal(t *testing.T) {
	eng := newWasmEngine(t)
	path := filepath.Join(t.TempDir(), "solid.pdf")
	createSolidColorPDF(t, path, 200, 100, 0, 0, 0)

	doc, err := eng.Open(path)
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer doc.Close()

	for _, index := range []int{-1, 1, 99} {
		if _, err := doc.RenderPage(index, 50); !errors.Is(err, ErrPageOutOfRange) {
			t.Errorf("Index %d: expected ErrPageOutOfRange, got %v", index, err)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	eng := newWasmEngine(t)

	doc, err := eng.Open(filepath.Join(t.TempDir(), "does-not-exist.pdf"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if doc != nil {
		t.Error("Expected nil document")
	}
}

func TestOpenCorruptFile(t *testing.T) {
	eng := newWasmEngine(t)
	path := filepath.Join(t.TempDir(), "corrupt.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf at all"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	doc, err := eng.Open(path)
	if err == nil {
		t.Fatal("Expected error for corrupt file")
	}
	if doc != nil {
		t.Error("Expected nil document")
	}
}

func TestRenderPageRepeatedly(t *testing.T) {
	eng := newWasmEngine(t)
	path := filepath.Join(t.TempDir(), "solid.pdf")
	createSolidColorPDF(t, path, 200, 100, 0.5, 0.5, 0.5)

	doc, err := eng.Open(path)
	if err != nil {
		t.Fatalf("Failed to open document: %v", err)
	}
	defer doc.Close()

	for i := 0; i < 25; i++ {
		if _, err := doc.RenderPage(0, 64); err != nil {
			t.Fatalf("Render %d failed: %v", i, err)
		}
	}
}

func TestDefaultEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PDFium engine test in short mode")
	}

	if err := Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Shutdown()

	// A second Init keeps the existing engine.
	if err := Init(); err != nil {
		t.Fatalf("Second Init failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "solid.pdf")
	createSolidColorPDF(t, path, 200, 100, 1, 0, 0)

	doc, err := Open(path)
	if err != nil {
		t.Fatalf("Open via default engine failed: %v", err)
	}
	if _, err := doc.RenderPage(0, 40); err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	doc.Close()

	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := Open(path); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Expected ErrNotInitialized after Shutdown, got %v", err)
	}
}
