package raster

import (
	"fmt"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// pdfiumBackend drives PDFium compiled to WebAssembly, so no CGO or shared
// library is needed. The worker pool is pinned to a single instance; the
// Engine's mutex provides the serialization.
type pdfiumBackend struct {
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

func newPDFiumBackend() (*pdfiumBackend, error) {
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WebAssembly runtime: %w", err)
	}
	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	return &pdfiumBackend{pool: pool, instance: instance}, nil
}

func (b *pdfiumBackend) OpenDocument(data []byte) (documentHandle, error) {
	resp, err := b.instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		return "", err
	}
	return documentHandle(resp.Document), nil
}

func (b *pdfiumBackend) CloseDocument(doc documentHandle) error {
	_, err := b.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: references.FPDF_DOCUMENT(doc),
	})
	return err
}

func (b *pdfiumBackend) PageCount(doc documentHandle) (int, error) {
	resp, err := b.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: references.FPDF_DOCUMENT(doc),
	})
	if err != nil {
		return 0, err
	}
	return resp.PageCount, nil
}

func (b *pdfiumBackend) LoadPage(doc documentHandle, index int) (pageHandle, error) {
	resp, err := b.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: references.FPDF_DOCUMENT(doc),
		Index:    index,
	})
	if err != nil {
		return "", err
	}
	return pageHandle(resp.Page), nil
}

func (b *pdfiumBackend) ClosePage(page pageHandle) error {
	_, err := b.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: references.FPDF_PAGE(page),
	})
	return err
}

func (b *pdfiumBackend) PageSize(page pageHandle) (float64, float64, error) {
	ref := references.FPDF_PAGE(page)
	widthResp, err := b.instance.FPDF_GetPageWidth(&requests.FPDF_GetPageWidth{
		Page: requests.Page{ByReference: &ref},
	})
	if err != nil {
		return 0, 0, err
	}
	heightResp, err := b.instance.FPDF_GetPageHeight(&requests.FPDF_GetPageHeight{
		Page: requests.Page{ByReference: &ref},
	})
	if err != nil {
		return 0, 0, err
	}
	return widthResp.Width, heightResp.Height, nil
}

func (b *pdfiumBackend) CreateCanvas(width, height int) (canvasHandle, error) {
	resp, err := b.instance.FPDFBitmap_Create(&requests.FPDFBitmap_Create{
		Width:  width,
		Height: height,
		Alpha:  1,
	})
	if err != nil {
		return "", err
	}
	return canvasHandle(resp.Bitmap), nil
}

func (b *pdfiumBackend) FillRect(canvas canvasHandle, left, top, width, height int, color uint32) error {
	_, err := b.instance.FPDFBitmap_FillRect(&requests.FPDFBitmap_FillRect{
		Bitmap: references.FPDF_BITMAP(canvas),
		Left:   left,
		Top:    top,
		Width:  width,
		Height: height,
		Color:  uint64(color),
	})
	return err
}

func (b *pdfiumBackend) RenderPage(canvas canvasHandle, page pageHandle, startX, startY, sizeX, sizeY, rotate int, flags RenderFlag) error {
	ref := references.FPDF_PAGE(page)
	_, err := b.instance.FPDF_RenderPageBitmap(&requests.FPDF_RenderPageBitmap{
		Bitmap: references.FPDF_BITMAP(canvas),
		Page:   requests.Page{ByReference: &ref},
		StartX: startX,
		StartY: startY,
		SizeX:  sizeX,
		SizeY:  sizeY,
		Rotate: enums.FPDF_PAGE_ROTATION(rotate),
		Flags:  enums.FPDF_RENDER_FLAG(flags),
	})
	return err
}

func (b *pdfiumBackend) CanvasBuffer(canvas canvasHandle) ([]byte, error) {
	resp, err := b.instance.FPDFBitmap_GetBuffer(&requests.FPDFBitmap_GetBuffer{
		Bitmap: references.FPDF_BITMAP(canvas),
	})
	if err != nil {
		return nil, err
	}
	return resp.Buffer, nil
}

func (b *pdfiumBackend) DestroyCanvas(canvas canvasHandle) error {
	_, err := b.instance.FPDFBitmap_Destroy(&requests.FPDFBitmap_Destroy{
		Bitmap: references.FPDF_BITMAP(canvas),
	})
	return err
}

func (b *pdfiumBackend) Close() error {
	if b.instance != nil {
		b.instance.Close()
		b.instance = nil
	}
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	return nil
}
