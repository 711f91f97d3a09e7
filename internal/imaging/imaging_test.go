package imaging

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

// rawBMP24 builds an uncompressed bottom-up 24-bit BMP. rows are given
// top-to-bottom, each pixel as stored on disk (B, G, R).
func rawBMP24(t *testing.T, width int, rows [][][3]byte) []byte {
	t.Helper()
	rowSize := (width*3 + 3) &^ 3
	height := len(rows)
	var buf bytes.Buffer
	le := binary.LittleEndian

	buf.WriteString("BM")
	binary.Write(&buf, le, uint32(54+rowSize*height))
	binary.Write(&buf, le, uint32(0))
	binary.Write(&buf, le, uint32(54))

	binary.Write(&buf, le, uint32(40))
	binary.Write(&buf, le, int32(width))
	binary.Write(&buf, le, int32(height))
	binary.Write(&buf, le, uint16(1))
	binary.Write(&buf, le, uint16(24))
	binary.Write(&buf, le, uint32(0))
	binary.Write(&buf, le, uint32(rowSize*height))
	binary.Write(&buf, le, int32(2835))
	binary.Write(&buf, le, int32(2835))
	binary.Write(&buf, le, uint32(0))
	binary.Write(&buf, le, uint32(0))

	for y := height - 1; y >= 0; y-- {
		row := make([]byte, rowSize)
		for x, px := range rows[y] {
			copy(row[x*3:], px[:])
		}
		buf.Write(row)
	}
	return buf.Bytes()
}

func TestDecodeBMP_ChannelMapping(t *testing.T) {
	data := rawBMP24(t, 1, [][][3]byte{
		{{0x10, 0x20, 0x30}},
	})
	pb, err := DecodeBMP(data)
	require.NoError(t, err)
	require.NoError(t, pb.Validate())
	assert.Equal(t, [4]byte{0x30, 0x20, 0x10, 0xFF}, pb.At(0, 0))
}

func TestDecodeBMP_RowsTopToBottom(t *testing.T) {
	data := rawBMP24(t, 2, [][][3]byte{
		{{0, 0, 255}, {0, 255, 0}},
		{{255, 0, 0}, {255, 255, 255}},
	})
	pb, err := DecodeBMP(data)
	require.NoError(t, err)
	assert.Equal(t, 2, pb.Width)
	assert.Equal(t, 2, pb.Height)
	assert.Equal(t, [4]byte{255, 0, 0, 255}, pb.At(0, 0), "top-left is red")
	assert.Equal(t, [4]byte{0, 255, 0, 255}, pb.At(1, 0), "top-right is green")
	assert.Equal(t, [4]byte{0, 0, 255, 255}, pb.At(0, 1), "bottom-left is blue")
}

func TestDecodeBMP_RoundTripThroughEncoder(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 80), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, src))

	pb, err := DecodeBMP(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 4, pb.Width)
	require.Equal(t, 3, pb.Height)
	assert.Equal(t, [4]byte{120, 160, 200, 255}, pb.At(2, 2))
}

func TestDecodeBMP_Garbage(t *testing.T) {
	_, err := DecodeBMP([]byte("definitely not a bitmap"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bmp decode")
}

func twoFrameGIF(t *testing.T) []byte {
	t.Helper()
	pal1 := color.Palette{
		color.RGBA{R: 255, A: 255},
		color.RGBA{},
	}
	f1 := image.NewPaletted(image.Rect(0, 0, 4, 3), pal1)
	for i := range f1.Pix {
		f1.Pix[i] = 0
	}
	f1.SetColorIndex(1, 1, 1)

	pal2 := color.Palette{
		color.RGBA{G: 255, A: 255},
		color.RGBA{B: 255, A: 255},
	}
	f2 := image.NewPaletted(image.Rect(2, 1, 4, 3), pal2)
	f2.SetColorIndex(2, 1, 0)
	f2.SetColorIndex(3, 1, 1)
	f2.SetColorIndex(2, 2, 1)
	f2.SetColorIndex(3, 2, 0)

	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, &gif.GIF{
		Image:  []*image.Paletted{f1, f2},
		Delay:  []int{10, 10},
		Config: image.Config{Width: 4, Height: 3},
	})
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDecodeGIF_FramesKeepSubRectangles(t *testing.T) {
	frames, err := DecodeGIF(twoFrameGIF(t))
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, 4, frames[0].Width)
	assert.Equal(t, 3, frames[0].Height)
	assert.Equal(t, 4, frames[0].Pixels.Width)
	assert.Equal(t, 3, frames[0].Pixels.Height)

	second := frames[1]
	assert.Equal(t, 2, second.Width)
	assert.Equal(t, 2, second.Height)
	assert.Equal(t, 2, second.Left)
	assert.Equal(t, 1, second.Top)
	assert.Equal(t, 2, second.Pixels.Width)
	assert.Equal(t, 2, second.Pixels.Height)
	assert.Equal(t, [4]byte{0, 255, 0, 255}, second.Pixels.At(0, 0))
	assert.Equal(t, [4]byte{0, 0, 255, 255}, second.Pixels.At(1, 0))
}

func TestDecodeGIF_TransparentIndexGetsZeroAlpha(t *testing.T) {
	frames, err := DecodeGIF(twoFrameGIF(t))
	require.NoError(t, err)

	first := frames[0]
	assert.Equal(t, 1, first.Transparent)
	assert.Equal(t, uint8(0), first.Pixels.At(1, 1)[3])
	assert.Equal(t, [4]byte{255, 0, 0, 255}, first.Pixels.At(0, 0))
	assert.Equal(t, -1, frames[1].Transparent)
}

func TestGifFrameExpand(t *testing.T) {
	f := GifFrame{
		Width:       2,
		Height:      1,
		Indices:     []byte{0, 2},
		Palette:     []RGB{{R: 1, G: 2, B: 3}, {}, {R: 9, G: 8, B: 7}},
		Transparent: 2,
	}
	pb, err := f.Expand()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 255, 9, 8, 7, 0}, pb.Pix)
}

func TestGifFrameExpand_IndexOutsidePalette(t *testing.T) {
	f := GifFrame{Width: 1, Height: 1, Indices: []byte{5}, Palette: []RGB{{}}, Transparent: -1}
	_, err := f.Expand()
	require.Error(t, err)
}

func TestDecodeGIF_Garbage(t *testing.T) {
	_, err := DecodeGIF([]byte("GIF89a but not really"))
	require.Error(t, err)
}

func TestDecode_DispatchesByFormat(t *testing.T) {
	frames, err := Decode(twoFrameGIF(t), FormatGIF)
	require.NoError(t, err)
	assert.Len(t, frames, 2)

	bmpData := rawBMP24(t, 1, [][][3]byte{{{1, 2, 3}}})
	frames, err = Decode(bmpData, FormatBMP)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].Width)

	_, err = Decode(bmpData, "tiff")
	require.Error(t, err)
}

func TestDecodePNG_Normalizes16Bit(t *testing.T) {
	src := image.NewNRGBA64(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.NRGBA64{R: 0xFFFF, G: 0, B: 0, A: 0x8080})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	pb, err := DecodePNG(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, pb.Width)
	assert.Equal(t, 2, pb.Height)
	px := pb.At(0, 0)
	assert.Equal(t, uint8(0xFF), px[0])
	assert.Equal(t, uint8(0x80), px[3])
}

func TestProbeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 17, 9)), nil))
	w, h, err := ProbeJPEG(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 17, w)
	assert.Equal(t, 9, h)

	_, _, err = ProbeJPEG([]byte{0xFF, 0xD8, 0x00})
	assert.Error(t, err)
}

func TestEncodePNG_PreservesPixels(t *testing.T) {
	pb := NewPixelBuffer(2, 2)
	copy(pb.Pix, []byte{
		10, 20, 30, 255, 40, 50, 60, 0,
		70, 80, 90, 128, 1, 2, 3, 4,
	})
	data, err := EncodePNG(pb)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	nrgba, ok := img.(*image.NRGBA)
	require.True(t, ok, "expected an 8-bit RGBA png, got %T", img)
	assert.Equal(t, image.Rect(0, 0, 2, 2), nrgba.Bounds())
	assert.Equal(t, pb.Pix, nrgba.Pix)
}

func TestEncodePNG_RejectsBrokenBuffer(t *testing.T) {
	_, err := EncodePNG(&PixelBuffer{Width: 2, Height: 2, Pix: make([]byte, 3)})
	require.Error(t, err)
	_, err = EncodePNG(&PixelBuffer{})
	assert.ErrorIs(t, err, ErrEmptyImage)
}
