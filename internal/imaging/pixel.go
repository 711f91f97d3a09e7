// Package imaging decodes raster inputs (BMP, GIF, PNG) into one canonical
// RGBA pixel buffer and re-encodes that buffer as PNG for embedding in a PDF.
//
// Canonical layout: 4 bytes per pixel in R, G, B, A order, non-premultiplied,
// rows top-to-bottom. BMP files store B, G, R[, A]; the decoder always maps
// them to R, G, B, A and assigns alpha 255 when the file carries no alpha mask.
package imaging

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// ErrEmptyImage is returned for images with a zero width or height.
var ErrEmptyImage = errors.New("image has no pixels")

// PixelBuffer is a flat RGBA pixel buffer.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixelBuffer allocates a zeroed (fully transparent) buffer.
func NewPixelBuffer(width, height int) *PixelBuffer {
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// Validate checks the length invariant len(Pix) == Width*Height*4.
func (b *PixelBuffer) Validate() error {
	if b == nil || b.Width <= 0 || b.Height <= 0 {
		return ErrEmptyImage
	}
	if want := b.Width * b.Height * 4; len(b.Pix) != want {
		return fmt.Errorf("pixel buffer length %d, want %d for %dx%d", len(b.Pix), want, b.Width, b.Height)
	}
	return nil
}

// At returns the RGBA quadruple at (x, y).
func (b *PixelBuffer) At(x, y int) [4]byte {
	off := (y*b.Width + x) * 4
	return [4]byte{b.Pix[off], b.Pix[off+1], b.Pix[off+2], b.Pix[off+3]}
}

// Image wraps the buffer as an *image.NRGBA without copying.
func (b *PixelBuffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// FromImage converts any decoded image into a canonical buffer whose origin
// is the image's top-left corner.
func FromImage(img image.Image) (*PixelBuffer, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, bounds.Min, xdraw.Src)
	return &PixelBuffer{Width: bounds.Dx(), Height: bounds.Dy(), Pix: dst.Pix}, nil
}
