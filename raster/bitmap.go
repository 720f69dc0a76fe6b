package raster

import "image"

// Bitmap is an owned, tightly packed RGBA pixel buffer. Stride is always
// Width*4 and len(Data) is always Stride*Height. The memory belongs to the
// caller; dropping the Bitmap releases it.
type Bitmap struct {
	Data   []byte
	Width  int
	Height int
	Stride int
}

// Image returns the bitmap as a standard RGBA image sharing the same pixel
// memory. Safe on a nil receiver, which yields nil.
func (b *Bitmap) Image() *image.RGBA {
	if b == nil {
		return nil
	}
	return &image.RGBA{
		Pix:    b.Data,
		Stride: b.Stride,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// swapBGRA converts engine-native BGRA pixels to RGBA in place by swapping
// bytes 0 and 2 of every 4-byte pixel. Trailing bytes that do not form a
// whole pixel are left untouched.
func swapBGRA(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
