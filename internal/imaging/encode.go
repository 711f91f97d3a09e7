package imaging

import (
	"bytes"
	"fmt"
	"image/png"
)

// EncodePNG serializes a buffer as a lossless PNG with the same dimensions.
// RGBA values are passed through unchanged.
func EncodePNG(b *PixelBuffer) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, b.Image()); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}
