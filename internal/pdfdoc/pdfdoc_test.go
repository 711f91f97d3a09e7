package pdfdoc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"pdfdesk/internal/layout"
)

func newDoc(t *testing.T) *Document {
	t.Helper()
	d, err := New(Font{Family: "GoRegular", Data: goregular.TTF}, layout.DefaultGeometry())
	require.NoError(t, err)
	return d
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func pageSizes(t *testing.T, data []byte) [][2]float64 {
	t.Helper()
	conf := model.NewDefaultConfiguration()
	dims, err := api.PageDims(bytes.NewReader(data), conf)
	require.NoError(t, err)
	out := make([][2]float64, len(dims))
	for i, d := range dims {
		out[i] = [2]float64{d.Width, d.Height}
	}
	return out
}

func pageCount(t *testing.T, data []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	return n
}

func TestDocument_ImagePagesUsePixelSize(t *testing.T) {
	d := newDoc(t)
	require.NoError(t, d.AddImagePage(ImagePNG, pngBytes(t, 40, 30), 40, 30))
	require.NoError(t, d.AddImagePage(ImageJPEG, jpegBytes(t, 64, 16), 64, 16))
	assert.Equal(t, 2, d.PageCount())

	out, err := d.Bytes()
	require.NoError(t, err)
	sizes := pageSizes(t, out)
	require.Len(t, sizes, 2)
	assert.InDelta(t, 40, sizes[0][0], 0.01)
	assert.InDelta(t, 30, sizes[0][1], 0.01)
	assert.InDelta(t, 64, sizes[1][0], 0.01)
	assert.InDelta(t, 16, sizes[1][1], 0.01)
}

func TestDocument_TextPages(t *testing.T) {
	d := newDoc(t)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	text = strings.Repeat(text+"\n", 6)
	pages := layout.Paginate(text, d.Measurer(), d.Geometry())
	require.Greater(t, len(pages), 1)

	require.NoError(t, d.AddTextPages(pages))
	out, err := d.Bytes()
	require.NoError(t, err)
	assert.Equal(t, len(pages), pageCount(t, out))

	g := layout.DefaultGeometry()
	for _, s := range pageSizes(t, out) {
		assert.InDelta(t, g.Width, s[0], 0.01)
		assert.InDelta(t, g.Height, s[1], 0.01)
	}
}

func TestEncodableText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"plain", "plain"},
		{"你好 世界", "你好 世界"},
		{"Launch 🚀 plan", "Launch  plan"},
		{"🚀", ""},
		{"a\U0001F600b\U00020000c", "abc"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EncodableText(tc.in), "%q", tc.in)
	}
}

func TestDocument_TextPagesWithAstralRunes(t *testing.T) {
	d := newDoc(t)
	g := d.Geometry()
	page := layout.Page{Lines: []layout.Line{
		{Text: "Launch 🚀 plan", X: g.Margin, Y: g.Margin + g.LineHeight},
	}}
	require.NoError(t, d.AddTextPages([]layout.Page{page}))
	out, err := d.Bytes()
	require.NoError(t, err)
	assert.Equal(t, 1, pageCount(t, out))
}

func TestDocument_MeasurerUsesFontSize(t *testing.T) {
	d := newDoc(t)
	m := d.Measurer()
	short, long := m.Width("iii"), m.Width("WWWWWW")
	assert.Greater(t, short, 0.0)
	assert.Greater(t, long, short)
	assert.InDelta(t, m.Width("ab")+m.Width("cd"), m.Width("abcd"), 0.5)
}

func TestDocument_NoPages(t *testing.T) {
	_, err := newDoc(t).Bytes()
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestDocument_BadImage(t *testing.T) {
	d := newDoc(t)
	err := d.AddImagePage(ImagePNG, []byte("not a png"), 10, 10)
	assert.Error(t, err)
}

func TestDocument_BadFont(t *testing.T) {
	_, err := New(Font{Family: "Broken", Data: []byte("nope")}, layout.DefaultGeometry())
	assert.Error(t, err)
}

// imagePDF builds a PDF whose pages have the given sizes.
func imagePDF(t *testing.T, sizes ...[2]float64) []byte {
	t.Helper()
	d := newDoc(t)
	for _, s := range sizes {
		require.NoError(t, d.AddImagePage(ImagePNG, pngBytes(t, 4, 4), s[0], s[1]))
	}
	out, err := d.Bytes()
	require.NoError(t, err)
	return out
}

func TestMerge_ConcatenatesInOrder(t *testing.T) {
	a := imagePDF(t, [2]float64{100, 200})
	b := imagePDF(t, [2]float64{300, 150}, [2]float64{120, 120})

	n, err := PageCount(b)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out, err := Merge([]Source{{Name: "a.pdf", Data: a}, {Name: "b.pdf", Data: b}})
	require.NoError(t, err)
	sizes := pageSizes(t, out)
	require.Len(t, sizes, 3)
	want := [][2]float64{{100, 200}, {300, 150}, {120, 120}}
	for i := range want {
		assert.InDelta(t, want[i][0], sizes[i][0], 0.01, "page %d width", i+1)
		assert.InDelta(t, want[i][1], sizes[i][1], 0.01, "page %d height", i+1)
	}
}

func TestMerge_TooFewInputs(t *testing.T) {
	_, err := Merge(nil)
	assert.ErrorIs(t, err, ErrTooFewInputs)
	_, err = Merge([]Source{{Name: "only.pdf", Data: imagePDF(t, [2]float64{10, 10})}})
	assert.ErrorIs(t, err, ErrTooFewInputs)
}

func TestMerge_InvalidInputNamesFile(t *testing.T) {
	good := imagePDF(t, [2]float64{10, 10})
	_, err := Merge([]Source{{Name: "good.pdf", Data: good}, {Name: "notes.txt", Data: []byte("hello")}})
	require.Error(t, err)

	var inv *InvalidSourceError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "notes.txt", inv.Name)
}

func TestPageCount_RejectsNonPDF(t *testing.T) {
	_, err := PageCount([]byte("%PDX-1.4"))
	assert.Error(t, err)
	_, err = PageCount(nil)
	assert.Error(t, err)
}
