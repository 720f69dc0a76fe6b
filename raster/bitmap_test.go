package raster

import (
	"bytes"
	"image"
	"testing"
)

func TestSwapBGRA(t *testing.T) {
	pix := []byte{0x10, 0x20, 0x30, 0xFF, 0x01, 0x02, 0x03, 0x04}
	swapBGRA(pix)

	want := []byte{0x30, 0x20, 0x10, 0xFF, 0x03, 0x02, 0x01, 0x04}
	if !bytes.Equal(pix, want) {
		t.Errorf("Expected %v, got %v", want, pix)
	}
}

func TestSwapBGRALeavesPartialPixelAlone(t *testing.T) {
	pix := []byte{0x10, 0x20, 0x30, 0xFF, 0xAA, 0xBB}
	swapBGRA(pix)

	want := []byte{0x30, 0x20, 0x10, 0xFF, 0xAA, 0xBB}
	if !bytes.Equal(pix, want) {
		t.Errorf("Expected trailing bytes untouched, got %v", pix)
	}
}

func TestBitmapImage(t *testing.T) {
	bmp := &Bitmap{
		Data:   make([]byte, 2*2*4),
		Width:  2,
		Height: 2,
		Stride: 8,
	}

	img := bmp.Image()
	if img.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Errorf("Expected 2x2 bounds, got %v", img.Bounds())
	}
	if img.Stride != 8 {
		t.Errorf("Expected stride 8, got %d", img.Stride)
	}

	// The image shares the bitmap's memory rather than copying it.
	bmp.Data[0] = 0x7F
	if img.Pix[0] != 0x7F {
		t.Error("Expected image to share pixel memory with the bitmap")
	}
}

func TestNilBitmapImage(t *testing.T) {
	var bmp *Bitmap
	if img := bmp.Image(); img != nil {
		t.Errorf("Expected nil image from nil bitmap, got %v", img)
	}
}
