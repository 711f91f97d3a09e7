// Package pdfdoc builds output PDFs: new documents made of image pages and
// paginated text pages, and merges of existing PDFs.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"pdfdesk/internal/layout"
)

// ErrNoPages is returned by Bytes for a document without pages.
var ErrNoPages = errors.New("document has no pages")

// ImageKind is the embedded image encoding.
type ImageKind string

const (
	ImagePNG  ImageKind = "PNG"
	ImageJPEG ImageKind = "JPG"
)

// Font is the TrueType face used for text pages.
type Font struct {
	Family string
	Data   []byte
}

// Document is an output PDF under construction. Pages are only ever
// appended; the document is serialized once by Bytes.
type Document struct {
	pdf    *gofpdf.Fpdf
	geom   layout.Geometry
	pages  int
	images int
	out    []byte
}

// New starts an empty document. Text is set in font at g.FontSize; all
// coordinates are in points.
func New(font Font, g layout.Geometry) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("register font %s: %v", font.Family, r)
		}
	}()

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)
	pdf.SetCreator("pdfdesk", true)

	pdf.AddUTF8FontFromBytes(font.Family, "", font.Data)
	pdf.SetFont(font.Family, "", g.FontSize)
	if pdf.Err() {
		return nil, fmt.Errorf("register font %s: %w", font.Family, pdf.Error())
	}
	return &Document{pdf: pdf, geom: g}, nil
}

// Measurer reports string widths in the document font at the text size.
func (d *Document) Measurer() layout.Measurer {
	return layout.MeasureFunc(d.pdf.GetStringWidth)
}

// Geometry returns the geometry text pages are laid out with.
func (d *Document) Geometry() layout.Geometry { return d.geom }

// PageCount returns the number of pages appended so far.
func (d *Document) PageCount() int { return d.pages }

// AddImagePage appends a page of exactly width x height points with the
// image drawn over the full page.
func (d *Document) AddImagePage(kind ImageKind, data []byte, width, height float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("embed image: %v", r)
		}
	}()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("image page size %.0fx%.0f", width, height)
	}
	d.images++
	name := fmt.Sprintf("img%d", d.images)
	opts := gofpdf.ImageOptions{ImageType: string(kind), ReadDpi: false}

	d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if d.pdf.Err() {
		return fmt.Errorf("embed image: %w", d.pdf.Error())
	}
	d.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: width, Ht: height})
	d.pdf.ImageOptions(name, 0, 0, width, height, false, opts, 0, "")
	if d.pdf.Err() {
		return fmt.Errorf("draw image: %w", d.pdf.Error())
	}
	d.pages++
	return nil
}

// EncodableText drops runes outside the Basic Multilingual Plane. The font
// subset written for text pages only maps code points up to U+FFFF, so text
// must pass through here before it is measured or drawn.
func EncodableText(s string) string {
	for i, r := range s {
		if r > maxEncodableRune {
			return s[:i] + strings.Map(func(r rune) rune {
				if r > maxEncodableRune {
					return -1
				}
				return r
			}, s[i:])
		}
	}
	return s
}

const maxEncodableRune = 0xFFFF

// AddTextPages appends one page per laid out page. Lines are expected to be
// EncodableText already.
func (d *Document) AddTextPages(pages []layout.Page) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write text page: %v", r)
		}
	}()

	size := gofpdf.SizeType{Wd: d.geom.Width, Ht: d.geom.Height}
	for _, pg := range pages {
		d.pdf.AddPageFormat("P", size)
		for _, l := range pg.Lines {
			d.pdf.Text(l.X, l.Y, EncodableText(l.Text))
		}
		if d.pdf.Err() {
			return fmt.Errorf("write text page: %w", d.pdf.Error())
		}
		d.pages++
	}
	return nil
}

// Bytes serializes the document.
func (d *Document) Bytes() (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("serialize pdf: %v", r)
		}
	}()

	if d.out != nil {
		return d.out, nil
	}
	if d.pages == 0 {
		return nil, ErrNoPages
	}
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("serialize pdf: %w", err)
	}
	d.out = buf.Bytes()
	return d.out, nil
}
