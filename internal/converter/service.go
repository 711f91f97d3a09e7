// Package converter orchestrates merge and convert requests: it dispatches
// every input by media type, assembles the output PDF and maps failures to a
// small error taxonomy.
package converter

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pdfdesk/internal/fontcheck"
	"pdfdesk/internal/imaging"
	"pdfdesk/internal/layout"
	"pdfdesk/internal/parser"
	"pdfdesk/internal/pdfdoc"
)

const (
	msgMergeTooFew   = "Please upload at least two PDFs to merge."
	msgConvertNoFile = "Please upload at least one file to convert."
)

// InputFile is one uploaded file. It is owned by the request.
type InputFile struct {
	Name      string
	MediaType string
	Data      []byte
}

// Operation names a request type.
type Operation string

const (
	OpMerge   Operation = "merge"
	OpConvert Operation = "convert"
)

// Output is a produced PDF.
type Output struct {
	PDF   []byte
	Pages int
}

// TextExtractor extracts plain text from office documents.
type TextExtractor interface {
	Parse(data []byte, fileType string) (*parser.ParseResult, error)
}

// FontSource supplies the text font.
type FontSource interface {
	Load() (*fontcheck.Font, error)
}

// Service runs merge and convert requests. It holds no per-request state
// and is safe for concurrent use.
type Service struct {
	Extractor TextExtractor
	Font      FontSource
	Geometry  layout.Geometry
}

// NewService returns a Service using the default parser.
func NewService(font FontSource, g layout.Geometry) *Service {
	return &Service{
		Extractor: &parser.DocumentParser{},
		Font:      font,
		Geometry:  g,
	}
}

// Merge concatenates the pages of two or more PDFs in order.
func (s *Service) Merge(files []InputFile) ([]byte, error) {
	out, err := s.Run(OpMerge, files)
	return out.PDF, err
}

// Convert turns images and office documents into one PDF, one or more pages
// per input, in input order.
func (s *Service) Convert(files []InputFile) ([]byte, error) {
	out, err := s.Run(OpConvert, files)
	return out.PDF, err
}

// Run executes op and also reports the page count of the result.
func (s *Service) Run(op Operation, files []InputFile) (Output, error) {
	start := time.Now()
	var (
		out Output
		err error
	)
	switch op {
	case OpMerge:
		out, err = s.merge(files)
	case OpConvert:
		out, err = s.convert(files)
	default:
		err = &Error{Kind: KindInternal, Err: fmt.Errorf("unknown operation %q", op)}
	}
	tag := "[Convert]"
	if op == OpMerge {
		tag = "[Merge]"
	}
	if err != nil {
		log.Printf("%s failed after %v: %v", tag, time.Since(start), err)
		return Output{}, err
	}
	log.Printf("%s %d files -> %d pages (%d bytes) in %v", tag, len(files), out.Pages, len(out.PDF), time.Since(start))
	return out, nil
}

func (s *Service) merge(files []InputFile) (Output, error) {
	if len(files) < 2 {
		return Output{}, validationError(msgMergeTooFew)
	}
	// Declared types are checked before any file is parsed. Untyped files
	// are left to content validation.
	for _, f := range files {
		if mt := DetectMediaType(f.Name, f.MediaType); mt != MediaPDF && mt != mediaOctetStream {
			return Output{}, &Error{Kind: KindUnsupported, File: f.Name, Err: errNotPDF}
		}
	}

	sources := make([]pdfdoc.Source, len(files))
	pages := 0
	for i, f := range files {
		n, err := pdfdoc.PageCount(f.Data)
		if err != nil {
			return Output{}, &Error{Kind: KindFormat, File: f.Name, Err: err}
		}
		pages += n
		sources[i] = pdfdoc.Source{Name: f.Name, Data: f.Data}
	}

	pdf, err := pdfdoc.Merge(sources)
	if err != nil {
		var inv *pdfdoc.InvalidSourceError
		if errors.As(err, &inv) {
			return Output{}, &Error{Kind: KindFormat, File: inv.Name, Err: inv.Err}
		}
		return Output{}, &Error{Kind: KindInternal, Err: err}
	}
	return Output{PDF: pdf, Pages: pages}, nil
}

func (s *Service) convert(files []InputFile) (Output, error) {
	if len(files) == 0 {
		return Output{}, validationError(msgConvertNoFile)
	}
	types := make([]string, len(files))
	for i, f := range files {
		types[i] = DetectMediaType(f.Name, f.MediaType)
		if !Supported(types[i]) {
			return Output{}, &Error{Kind: KindUnsupported, File: f.Name}
		}
	}

	font, err := s.Font.Load()
	if err != nil {
		return Output{}, &Error{Kind: KindInternal, Err: fmt.Errorf("text font unavailable: %w", err)}
	}
	doc, err := pdfdoc.New(pdfdoc.Font{Family: font.Family, Data: font.Data}, s.Geometry)
	if err != nil {
		return Output{}, &Error{Kind: KindInternal, Err: err}
	}

	for i, f := range files {
		before := doc.PageCount()
		if isImage(types[i]) {
			err = s.addImage(doc, f, types[i])
		} else {
			err = s.addDocument(doc, f, officeTypes[types[i]])
		}
		if err != nil {
			return Output{}, err
		}
		log.Printf("[Convert] %s (%s): %d pages", f.Name, types[i], doc.PageCount()-before)
	}

	if doc.PageCount() == 0 {
		return Output{}, &Error{Kind: KindEmpty}
	}
	pdf, err := doc.Bytes()
	if err != nil {
		return Output{}, &Error{Kind: KindInternal, Err: err}
	}
	return Output{PDF: pdf, Pages: doc.PageCount()}, nil
}

// addImage appends one page per image frame, sized to the frame's pixel
// dimensions in points. JPEG data is embedded unchanged; every other format
// is decoded and re-encoded as PNG.
func (s *Service) addImage(doc *pdfdoc.Document, f InputFile, mediaType string) error {
	formatErr := func(err error) error {
		return &Error{Kind: KindFormat, File: f.Name, Err: err}
	}

	if mediaType == MediaJPEG {
		w, h, err := imaging.ProbeJPEG(f.Data)
		if err != nil {
			return formatErr(err)
		}
		if err := doc.AddImagePage(pdfdoc.ImageJPEG, f.Data, float64(w), float64(h)); err != nil {
			return formatErr(err)
		}
		return nil
	}

	var format string
	switch mediaType {
	case MediaPNG:
		format = imaging.FormatPNG
	case MediaBMP:
		format = imaging.FormatBMP
	case MediaGIF:
		format = imaging.FormatGIF
	}
	frames, err := imaging.Decode(f.Data, format)
	if err != nil {
		return formatErr(err)
	}
	for _, fr := range frames {
		png, err := imaging.EncodePNG(fr.Pixels)
		if err != nil {
			return formatErr(err)
		}
		w, h := float64(fr.Pixels.Width), float64(fr.Pixels.Height)
		if err := doc.AddImagePage(pdfdoc.ImagePNG, png, w, h); err != nil {
			return formatErr(err)
		}
	}
	return nil
}

// addDocument extracts the text of an office document and lays it out on
// fresh pages.
func (s *Service) addDocument(doc *pdfdoc.Document, f InputFile, fileType string) error {
	res, err := s.Extractor.Parse(f.Data, fileType)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedType) {
			return &Error{Kind: KindUnsupported, File: f.Name}
		}
		return &Error{Kind: KindFormat, File: f.Name, Err: err}
	}
	if res == nil {
		return &Error{Kind: KindEmpty, File: f.Name}
	}
	text := pdfdoc.EncodableText(res.Text)
	if strings.TrimSpace(text) == "" {
		return &Error{Kind: KindEmpty, File: f.Name}
	}
	pages := layout.Paginate(text, doc.Measurer(), doc.Geometry())
	if err := doc.AddTextPages(pages); err != nil {
		return &Error{Kind: KindInternal, Err: err}
	}
	return nil
}

// Result is the JSON response of a merge or convert request.
type Result struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DataURI encodes a PDF as a data: URI.
func DataURI(pdf []byte) string {
	return "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf)
}

// NewResult builds the response for a finished request.
func NewResult(pdf []byte, err error) Result {
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, DownloadURL: DataURI(pdf)}
}
