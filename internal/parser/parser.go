// Package parser extracts plain text from Word, Excel and PowerPoint files,
// in both the XML-zipped and the legacy OLE2 binary formats.
// It uses the VantageDataChat libraries (goword, goexcel, goppt) for the
// zipped formats and mscfb / xlsReader for the binary ones.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	goexcel "github.com/VantageDataChat/GoExcel"
	goword "github.com/VantageDataChat/GoWord"
	"github.com/VantageDataChat/GoWord/document"
)

// File type tags accepted by Parse.
const (
	TypeWord        = "word"
	TypeWordLegacy  = "word_legacy"
	TypeExcel       = "excel"
	TypeExcelLegacy = "excel_legacy"
	TypePPT         = "ppt"
	TypePPTLegacy   = "ppt_legacy"
)

// ErrUnsupportedType is wrapped by Parse for unknown file type tags.
var ErrUnsupportedType = errors.New("unsupported file type")

// DocumentParser handles parsing of the supported office formats.
type DocumentParser struct {
	// SlideWorkers bounds the number of slides parsed concurrently.
	// Zero means defaultSlideWorkers.
	SlideWorkers int
}

// ParseResult holds the extracted text and metadata from a parsed document.
type ParseResult struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Parse dispatches to the correct parser based on fileType.
func (dp *DocumentParser) Parse(fileData []byte, fileType string) (*ParseResult, error) {
	switch strings.ToLower(fileType) {
	case TypeWord:
		return dp.parseWord(fileData)
	case TypeWordLegacy:
		return dp.parseWordLegacy(fileData)
	case TypeExcel:
		return dp.parseExcel(fileData)
	case TypeExcelLegacy:
		return dp.parseXLSLegacy(fileData)
	case TypePPT:
		return dp.parsePPT(fileData)
	case TypePPTLegacy:
		return dp.parsePPTLegacy(fileData)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

// parseWord extracts paragraph text from .docx data using goword.
func (dp *DocumentParser) parseWord(data []byte) (result *ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("word parse error: %v", r)
		}
	}()

	doc, err := goword.OpenFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("word parse error: %w", err)
	}

	text := filterWordFieldCodes(paragraphText(doc))
	return &ParseResult{
		Text: CleanText(text),
		Metadata: map[string]string{
			"type":  TypeWord,
			"title": doc.Properties.Title,
		},
	}, nil
}

// paragraphText collects the body paragraphs of every section in document
// order, one per line. Tables, headers and footers are skipped.
func paragraphText(doc *goword.Document) string {
	var sb strings.Builder
	for _, sec := range doc.Sections {
		for _, elem := range sec.Elements {
			writeParagraphs(&sb, elem)
		}
	}
	return sb.String()
}

func writeParagraphs(sb *strings.Builder, elem document.Element) {
	switch e := elem.(type) {
	case *goword.Paragraph:
		for _, run := range e.Runs {
			if run.Break {
				sb.WriteString("\n")
			}
			sb.WriteString(run.Text)
		}
		sb.WriteString("\n")
	case *goword.TextRun:
		for _, child := range e.Elements {
			writeParagraphs(sb, child)
		}
	case *goword.Hyperlink:
		sb.WriteString(e.Text)
	case *goword.ListItem:
		sb.WriteString(e.Text)
		sb.WriteString("\n")
	}
}

// sheetWriter renders workbook contents as one "Sheet: <name>" section per
// sheet, each followed by one line per non-empty row with the row's cell
// values joined by " | ". Sections are separated by a blank line.
type sheetWriter struct {
	sb   strings.Builder
	rows []string
}

func (w *sheetWriter) startSheet(name string) {
	w.flush()
	if w.sb.Len() > 0 {
		w.sb.WriteString("\n\n")
	}
	w.sb.WriteString("Sheet: ")
	w.sb.WriteString(name)
}

func (w *sheetWriter) addRow(values []string) {
	if len(values) == 0 {
		return
	}
	w.rows = append(w.rows, strings.Join(values, " | "))
}

func (w *sheetWriter) flush() {
	for _, r := range w.rows {
		w.sb.WriteString("\n")
		w.sb.WriteString(r)
	}
	w.rows = w.rows[:0]
}

func (w *sheetWriter) String() string {
	w.flush()
	return w.sb.String()
}

// parseExcel extracts cell content from .xlsx data using goexcel.
func (dp *DocumentParser) parseExcel(data []byte) (result *ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("excel parse error: %v", r)
		}
	}()

	reader := goexcel.NewXLSXReader()
	wb, err := reader.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("excel parse error: %w", err)
	}

	var w sheetWriter
	sheetNames := wb.GetSheetNames()
	for _, name := range sheetNames {
		w.startSheet(name)
		sheet, err := wb.GetSheetByName(name)
		if err != nil {
			continue
		}
		rows, err := sheet.RowIterator()
		if err != nil {
			continue
		}
		for _, row := range rows {
			var values []string
			for _, cell := range row {
				if cell == nil || cell.IsEmpty() {
					continue
				}
				if val := strings.TrimSpace(cell.GetFormattedValue()); val != "" {
					values = append(values, val)
				}
			}
			w.addRow(values)
		}
	}

	return &ParseResult{
		Text: CleanText(w.String()),
		Metadata: map[string]string{
			"type":        TypeExcel,
			"sheet_count": fmt.Sprintf("%d", len(sheetNames)),
		},
	}, nil
}

var (
	controlCharRe  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	multiSpaceRe   = regexp.MustCompile(`[ \t]+`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// CleanText removes control characters (except newlines and tabs), collapses
// runs of spaces and tabs, trims every line and collapses three or more
// consecutive newlines into two.
func CleanText(text string) string {
	text = controlCharRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpaceRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
