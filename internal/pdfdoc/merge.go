package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"

	gopdf "github.com/VantageDataChat/GoPDF2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrTooFewInputs is returned by Merge for fewer than two sources.
var ErrTooFewInputs = errors.New("at least two PDFs are required")

func init() {
	// Keep pdfcpu from creating its config directory under the user's home.
	api.DisableConfigDir()
}

// Source is one named PDF input.
type Source struct {
	Name string
	Data []byte
}

// InvalidSourceError reports the input that could not be read as a PDF.
type InvalidSourceError struct {
	Name string
	Err  error
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *InvalidSourceError) Unwrap() error { return e.Err }

// PageCount validates data as a PDF and returns its page count.
func PageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n = 0
			err = fmt.Errorf("pdf read error: %v", r)
		}
	}()

	if len(data) < 5 || string(data[:5]) != "%PDF-" {
		return 0, errors.New("not a PDF file")
	}
	n, err = gopdf.GetSourcePDFPageCountFromBytes(data)
	if err != nil {
		return 0, fmt.Errorf("pdf read error: %w", err)
	}
	if n <= 0 {
		return 0, errors.New("pdf has no pages")
	}
	return n, nil
}

// Merge concatenates the pages of every source in input order. Every source
// is validated first; one invalid source fails the whole merge.
func Merge(sources []Source) ([]byte, error) {
	if len(sources) < 2 {
		return nil, ErrTooFewInputs
	}

	readers := make([]io.ReadSeeker, 0, len(sources))
	total := 0
	for _, src := range sources {
		n, err := PageCount(src.Data)
		if err != nil {
			return nil, &InvalidSourceError{Name: src.Name, Err: err}
		}
		total += n
		readers = append(readers, bytes.NewReader(src.Data))
	}

	var out bytes.Buffer
	conf := model.NewDefaultConfiguration()
	if err := api.MergeRaw(readers, &out, false, conf); err != nil {
		return nil, fmt.Errorf("merge pdfs: %w", err)
	}
	log.Printf("[Merge] %d files, %d pages, %d bytes", len(sources), total, out.Len())
	return out.Bytes(), nil
}
