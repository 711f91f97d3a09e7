package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
)

// Format tags accepted by Decode.
const (
	FormatBMP  = "bmp"
	FormatGIF  = "gif"
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// RGB is one color-table entry.
type RGB struct {
	R, G, B uint8
}

// GifFrame is one frame of a GIF as stored in the file: a sub-rectangle of
// the logical screen with one palette index per pixel.
type GifFrame struct {
	Width       int
	Height      int
	Left        int
	Top         int
	Indices     []byte
	Palette     []RGB
	Transparent int // -1 when the frame has no transparent index
}

// Frame pairs a GIF frame with its expanded pixels.
type Frame struct {
	GifFrame
	Pixels *PixelBuffer
}

// Decode decodes data according to the declared format tag and returns one
// frame per output page. BMP and PNG always yield exactly one frame. JPEG is
// not handled here: it is embedded as-is, see ProbeJPEG.
func Decode(data []byte, format string) ([]Frame, error) {
	var (
		pb  *PixelBuffer
		err error
	)
	switch format {
	case FormatGIF:
		return DecodeGIF(data)
	case FormatBMP:
		pb, err = DecodeBMP(data)
	case FormatPNG:
		pb, err = DecodePNG(data)
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return []Frame{{
		GifFrame: GifFrame{Width: pb.Width, Height: pb.Height, Transparent: -1},
		Pixels:   pb,
	}}, nil
}

// DecodeBMP decodes a Windows bitmap into a canonical buffer.
func DecodeBMP(data []byte) (*PixelBuffer, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bmp decode: %w", err)
	}
	return FromImage(img)
}

// DecodePNG decodes a PNG of any bit depth or interlacing into a canonical
// 8-bit buffer.
func DecodePNG(data []byte) (*PixelBuffer, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("png decode: %w", err)
	}
	return FromImage(img)
}

// ProbeJPEG returns the pixel dimensions of a JPEG without decoding it.
func ProbeJPEG(data []byte) (width, height int, err error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("jpeg decode: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, ErrEmptyImage
	}
	return cfg.Width, cfg.Height, nil
}

// DecodeGIF decodes every frame of a GIF. Frames are returned in file order,
// each sized to its own sub-rectangle; frames are not composited onto the
// logical screen.
func DecodeGIF(data []byte) ([]Frame, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gif decode: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("gif decode: no frames")
	}

	frames := make([]Frame, 0, len(g.Image))
	for i, p := range g.Image {
		gf, err := frameFromPaletted(p)
		if err != nil {
			return nil, fmt.Errorf("gif frame %d: %w", i+1, err)
		}
		pb, err := gf.Expand()
		if err != nil {
			return nil, fmt.Errorf("gif frame %d: %w", i+1, err)
		}
		frames = append(frames, Frame{GifFrame: gf, Pixels: pb})
	}
	return frames, nil
}

// frameFromPaletted copies a decoded paletted frame into a GifFrame. The
// standard decoder replaces the transparent color-table entry with a fully
// transparent color, which is how the transparent index is recovered.
func frameFromPaletted(p *image.Paletted) (GifFrame, error) {
	r := p.Bounds()
	if r.Empty() {
		return GifFrame{}, ErrEmptyImage
	}
	gf := GifFrame{
		Width:       r.Dx(),
		Height:      r.Dy(),
		Left:        r.Min.X,
		Top:         r.Min.Y,
		Indices:     make([]byte, r.Dx()*r.Dy()),
		Palette:     make([]RGB, len(p.Palette)),
		Transparent: -1,
	}
	for i, c := range p.Palette {
		cr, cg, cb, ca := c.RGBA()
		if ca == 0 && gf.Transparent < 0 {
			gf.Transparent = i
		}
		gf.Palette[i] = RGB{R: uint8(cr >> 8), G: uint8(cg >> 8), B: uint8(cb >> 8)}
	}
	for y := 0; y < gf.Height; y++ {
		src := p.Pix[y*p.Stride : y*p.Stride+gf.Width]
		copy(gf.Indices[y*gf.Width:], src)
	}
	return gf, nil
}

// Expand maps palette indices to RGBA. Pixels at the transparent index get
// alpha 0, every other pixel alpha 255.
func (f GifFrame) Expand() (*PixelBuffer, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, ErrEmptyImage
	}
	if len(f.Indices) != f.Width*f.Height {
		return nil, fmt.Errorf("index buffer length %d, want %d", len(f.Indices), f.Width*f.Height)
	}
	pb := NewPixelBuffer(f.Width, f.Height)
	for i, idx := range f.Indices {
		if int(idx) >= len(f.Palette) {
			return nil, fmt.Errorf("palette index %d outside color table of %d entries", idx, len(f.Palette))
		}
		c := f.Palette[idx]
		off := i * 4
		pb.Pix[off] = c.R
		pb.Pix[off+1] = c.G
		pb.Pix[off+2] = c.B
		if int(idx) == f.Transparent {
			pb.Pix[off+3] = 0
		} else {
			pb.Pix[off+3] = 255
		}
	}
	return pb, nil
}
