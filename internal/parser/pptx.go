package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	goppt "github.com/VantageDataChat/GoPPT"
)

const (
	// SlidePlaceholder replaces the text of a slide no extractor could read.
	SlidePlaceholder = "Slide content could not be extracted."
	// NoPresentationText is returned when no slide yields any text.
	NoPresentationText = "No text content was extracted from this presentation."

	defaultSlideWorkers = 4
	maxSlidePartSize    = 16 << 20
	drawingMLNamespace  = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type slidePart struct {
	number int
	file   *zip.File
}

// slideParts returns the slide parts of a presentation package ordered by
// their slide number.
func slideParts(zr *zip.Reader) []slidePart {
	var parts []slidePart
	for _, f := range zr.File {
		m := slidePartRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		parts = append(parts, slidePart{number: n, file: f})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].number < parts[j].number })
	return parts
}

// slideText collects the a:t text runs of one slide part, joined by single
// spaces.
func slideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxSlidePartSize))
	var runs []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "t" || se.Name.Space != drawingMLNamespace {
			continue
		}
		var run string
		if err := dec.DecodeElement(&run, &se); err != nil {
			return "", err
		}
		if run = strings.TrimSpace(run); run != "" {
			runs = append(runs, run)
		}
	}
	return strings.Join(runs, " "), nil
}

type slideResult struct {
	index int
	text  string
	err   error
}

// extractSlides parses every slide concurrently, bounded by workers, and
// returns the results ordered by slide index.
func extractSlides(parts []slidePart, workers int) []slideResult {
	resultCh := make(chan slideResult, len(parts))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, p := range parts {
		wg.Add(1)
		go func(idx int, f *zip.File) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := slideText(f)
			resultCh <- slideResult{index: idx, text: text, err: err}
		}(i, p.file)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	collected := make([]slideResult, 0, len(parts))
	for r := range resultCh {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].index < collected[j].index
	})
	return collected
}

// fallbackSlideTexts asks goppt for the text of every slide, keyed by slide
// part number. goppt lists slides in presentation order, so its texts are
// only usable when that order can be read from the package. It returns nil
// otherwise or when goppt cannot read the package.
func fallbackSlideTexts(data []byte, zr *zip.Reader) (texts map[int]string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[PPT] goppt fallback panic: %v", r)
			texts = nil
		}
	}()

	order := presentationSlideNumbers(zr)
	if order == nil {
		log.Printf("[PPT] goppt fallback skipped: presentation order unreadable")
		return nil
	}

	pres, err := goppt.ReadFrom(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Printf("[PPT] goppt fallback failed: %v", err)
		return nil
	}
	defer pres.Close()

	var ordered []string
	for _, slide := range pres.Slides() {
		ordered = append(ordered, slide.ExtractText())
	}
	return matchSlideNumbers(order, ordered)
}

// matchSlideNumbers pairs texts listed in presentation order with the slide
// part numbers of that order. Mismatched lengths give nil.
func matchSlideNumbers(order []int, texts []string) map[int]string {
	if len(order) != len(texts) {
		return nil
	}
	m := make(map[int]string, len(order))
	for i, n := range order {
		m[n] = texts[i]
	}
	return m
}

// presentationSlideNumbers returns the slide part numbers in the order
// ppt/presentation.xml lists them, or nil when that order cannot be read.
func presentationSlideNumbers(zr *zip.Reader) []int {
	var pres struct {
		Slides []struct {
			RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
		} `xml:"sldIdLst>sldId"`
	}
	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := readXMLPart(zr, "ppt/presentation.xml", &pres); err != nil {
		return nil
	}
	if err := readXMLPart(zr, "ppt/_rels/presentation.xml.rels", &rels); err != nil {
		return nil
	}

	targets := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		targets[r.ID] = r.Target
	}
	order := make([]int, 0, len(pres.Slides))
	for _, sl := range pres.Slides {
		target, ok := targets[sl.RelID]
		if !ok {
			return nil
		}
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("ppt", target)
		}
		m := slidePartRe.FindStringSubmatch(target)
		if m == nil {
			return nil
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		order = append(order, n)
	}
	return order
}

func readXMLPart(zr *zip.Reader, name string, v interface{}) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		return xml.NewDecoder(io.LimitReader(rc, maxSlidePartSize)).Decode(v)
	}
	return fmt.Errorf("%s not found", name)
}

// parsePPT extracts slide text from .pptx data. Slides whose XML cannot be
// parsed are retried through goppt and, failing that, replaced by
// SlidePlaceholder.
func (dp *DocumentParser) parsePPT(data []byte) (result *ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("ppt parse error: %v", r)
		}
	}()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("ppt parse error: %w", err)
	}

	parts := slideParts(zr)
	workers := dp.SlideWorkers
	if workers <= 0 {
		workers = defaultSlideWorkers
	}
	log.Printf("[PPT] %d slides, %d workers", len(parts), workers)

	results := extractSlides(parts, workers)

	var fallback map[int]string
	fallbackTried := false
	failed := 0
	texts := make([]string, 0, len(results))
	for _, r := range results {
		text := r.text
		if r.err != nil {
			failed++
			log.Printf("[PPT] slide %d: %v", parts[r.index].number, r.err)
			if !fallbackTried {
				fallback = fallbackSlideTexts(data, zr)
				fallbackTried = true
			}
			text = SlidePlaceholder
			if ft := strings.TrimSpace(fallback[parts[r.index].number]); ft != "" {
				text = ft
			}
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}

	text := CleanText(strings.Join(texts, "\n\n"))
	if text == "" {
		text = NoPresentationText
	}

	return &ParseResult{
		Text: text,
		Metadata: map[string]string{
			"type":          TypePPT,
			"slide_count":   fmt.Sprintf("%d", len(parts)),
			"failed_slides": fmt.Sprintf("%d", failed),
		},
	}, nil
}
