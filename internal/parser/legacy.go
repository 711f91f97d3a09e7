package parser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"github.com/shakinm/xlsReader/xls"
)

// parseXLSLegacy extracts cell text from BIFF .xls data using xlsReader.
func (dp *DocumentParser) parseXLSLegacy(data []byte) (result *ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("xls parse error: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xls parse error: %w", err)
	}

	var w sheetWriter
	numSheets := wb.GetNumberSheets()
	for i := 0; i < numSheets; i++ {
		sheet, err := wb.GetSheet(i)
		if err != nil {
			continue
		}
		w.startSheet(sheet.GetName())
		for rowIdx := 0; rowIdx < sheet.GetNumberRows(); rowIdx++ {
			row, err := sheet.GetRow(rowIdx)
			if err != nil || row == nil {
				continue
			}
			var values []string
			for _, cell := range row.GetCols() {
				if val := strings.TrimSpace(cell.GetString()); val != "" {
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
			"format":      TypeExcelLegacy,
			"sheet_count": fmt.Sprintf("%d", numSheets),
		},
	}, nil
}

// readOLEStreams returns the named streams of an OLE2 compound file. Streams
// not listed in want are skipped.
func readOLEStreams(data []byte, want ...string) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	streams := make(map[string][]byte, len(want))
	for {
		entry, err := doc.Next()
		if err != nil {
			break
		}
		for _, name := range want {
			if entry.Name != name {
				continue
			}
			if _, seen := streams[name]; seen {
				break
			}
			b, err := io.ReadAll(entry)
			if err != nil {
				return nil, fmt.Errorf("read %s stream: %w", name, err)
			}
			streams[name] = b
		}
	}
	return streams, nil
}

// parseWordLegacy extracts text from .doc data. The text is located through
// the piece table of the table stream named by the FIB, falling back to a
// scan of the WordDocument stream for printable runs.
func (dp *DocumentParser) parseWordLegacy(data []byte) (result *ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("doc parse error: %v", r)
		}
	}()

	streams, err := readOLEStreams(data, "WordDocument", "0Table", "1Table")
	if err != nil {
		return nil, fmt.Errorf("doc parse error: %w", err)
	}
	wordDoc := streams["WordDocument"]
	if len(wordDoc) == 0 {
		return nil, fmt.Errorf("doc parse error: WordDocument stream not found")
	}

	table := streams[fibTableStream(wordDoc)]
	if len(table) == 0 {
		table = streams["1Table"]
		if len(table) == 0 {
			table = streams["0Table"]
		}
	}

	text := ""
	if len(table) > 0 {
		text = piecesText(wordDoc, table)
	}
	if text == "" {
		text = printableRuns(wordDoc)
	}

	return &ParseResult{
		Text: CleanText(filterWordFieldCodes(text)),
		Metadata: map[string]string{
			"type":   TypeWord,
			"format": TypeWordLegacy,
		},
	}, nil
}

// fibTableStream reads fWhichTblStm from the FIB flags at offset 0x0A.
func fibTableStream(wordDoc []byte) string {
	if len(wordDoc) < 0x0C {
		return ""
	}
	if binary.LittleEndian.Uint16(wordDoc[0x0A:0x0C])&(1<<9) != 0 {
		return "1Table"
	}
	return "0Table"
}

const (
	fibClxOffset  = 0x01A2
	pcdSize       = 8
	maxPieceChars = 1_000_000
)

// piece is one entry of the PlcPcd: a character range and where its text
// lives in the WordDocument stream.
type piece struct {
	chars      uint32
	offset     uint32
	compressed bool
}

// readPieceTable locates the Pcdt inside the CLX described by the FIB and
// decodes its PlcPcd.
func readPieceTable(wordDoc, table []byte) []piece {
	if len(wordDoc) < fibClxOffset+8 {
		return nil
	}
	fcClx := binary.LittleEndian.Uint32(wordDoc[fibClxOffset:])
	lcbClx := binary.LittleEndian.Uint32(wordDoc[fibClxOffset+4:])
	if fcClx == 0 || lcbClx == 0 || uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) {
		return nil
	}
	clx := table[fcClx : fcClx+lcbClx]

	// Skip Prc entries (0x01) up to the Pcdt marker (0x02).
	pos := 0
	for pos < len(clx) && clx[pos] == 0x01 {
		if pos+3 > len(clx) {
			return nil
		}
		pos += 3 + int(binary.LittleEndian.Uint16(clx[pos+1:pos+3]))
	}
	if pos >= len(clx) || clx[pos] != 0x02 || pos+5 > len(clx) {
		return nil
	}
	lcb := int(binary.LittleEndian.Uint32(clx[pos+1 : pos+5]))
	pos += 5
	if lcb < 4+4+pcdSize || pos+lcb > len(clx) {
		return nil
	}
	plc := clx[pos : pos+lcb]

	n := (lcb - 4) / (4 + pcdSize)
	cpBytes := (n + 1) * 4
	pieces := make([]piece, 0, n)
	for i := 0; i < n; i++ {
		cpStart := binary.LittleEndian.Uint32(plc[i*4:])
		cpEnd := binary.LittleEndian.Uint32(plc[(i+1)*4:])
		if cpEnd <= cpStart || cpEnd-cpStart > maxPieceChars {
			continue
		}
		fc := binary.LittleEndian.Uint32(plc[cpBytes+i*pcdSize+2:])
		p := piece{chars: cpEnd - cpStart, compressed: fc&0x40000000 != 0}
		p.offset = fc & 0x3FFFFFFF
		if p.compressed {
			p.offset /= 2
		}
		pieces = append(pieces, p)
	}
	return pieces
}

// piecesText concatenates the text of every piece. Paragraph and line marks
// become newlines and cell marks become tabs.
func piecesText(wordDoc, table []byte) string {
	var sb strings.Builder
	emit := func(r rune) {
		switch {
		case r == 0x0D || r == 0x0B:
			sb.WriteByte('\n')
		case r == 0x07:
			sb.WriteByte('\t')
		case r >= 0x20 || r == 0x09:
			sb.WriteRune(r)
		}
	}

	for _, p := range readPieceTable(wordDoc, table) {
		if p.compressed {
			end := uint64(p.offset) + uint64(p.chars)
			if end > uint64(len(wordDoc)) {
				continue
			}
			for _, b := range wordDoc[p.offset:end] {
				emit(rune(b))
			}
			continue
		}
		end := uint64(p.offset) + 2*uint64(p.chars)
		if end > uint64(len(wordDoc)) {
			continue
		}
		chunk := wordDoc[p.offset:end]
		u16s := make([]uint16, p.chars)
		for j := range u16s {
			u16s[j] = binary.LittleEndian.Uint16(chunk[j*2:])
		}
		for _, r := range utf16.Decode(u16s) {
			emit(r)
		}
	}
	return sb.String()
}

// printableRuns scans a stream for runs of printable ASCII, one run per line.
func printableRuns(b []byte) string {
	var sb strings.Builder
	inRun := false
	for _, c := range b {
		printable := (c >= 0x20 && c < 0x7F) || c == '\t' || c == '\n' || c == '\r'
		if printable {
			if c == '\r' {
				c = '\n'
			}
			sb.WriteByte(c)
			inRun = true
			continue
		}
		if inRun {
			sb.WriteByte('\n')
			inRun = false
		}
	}
	return sb.String()
}

var wordFieldCodePatterns = []string{
	"HYPERLINK",
	"PAGEREF",
	"MERGEFORMAT",
	`TOC \o`,
	`TOC \h`,
	`\l "`,
	` \h`,
}

// filterWordFieldCodes drops lines carrying Word field instructions.
func filterWordFieldCodes(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !isFieldCodeLine(strings.TrimSpace(line)) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func isFieldCodeLine(line string) bool {
	if line == "" {
		return false
	}
	for _, pat := range wordFieldCodePatterns {
		if strings.Contains(line, pat) {
			return true
		}
	}
	return false
}

// parsePPTLegacy extracts text atoms from the "PowerPoint Document" stream of
// a .ppt file.
func (dp *DocumentParser) parsePPTLegacy(data []byte) (result *ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("ppt parse error: %v", r)
		}
	}()

	streams, err := readOLEStreams(data, "PowerPoint Document")
	if err != nil {
		return nil, fmt.Errorf("ppt parse error: %w", err)
	}
	stream := streams["PowerPoint Document"]
	if len(stream) == 0 {
		return nil, fmt.Errorf("ppt parse error: PowerPoint Document stream not found")
	}

	text := CleanText(strings.Join(pptTextAtoms(stream), "\n"))
	if text == "" {
		text = NoPresentationText
	}
	return &ParseResult{
		Text: text,
		Metadata: map[string]string{
			"type":   TypePPT,
			"format": TypePPTLegacy,
		},
	}, nil
}

// Master slide placeholder text that leaks into the document stream.
var (
	pptNoiseContains = []string{
		"Click to edit Master title style",
		"Click to edit Master text styles",
		"Click to edit Master subtitle style",
		"单击此处编辑母版",
	}
	pptNoiseExact = map[string]bool{
		"*":            true,
		"Second level": true,
		"Third level":  true,
		"Fourth level": true,
		"Fifth level":  true,
	}
)

func isPPTNoise(text string) bool {
	if pptNoiseExact[text] {
		return true
	}
	for _, pat := range pptNoiseContains {
		if strings.Contains(text, pat) {
			return true
		}
	}
	return false
}

const (
	recTextCharsAtom = 0x0FA0
	recTextBytesAtom = 0x0FA8
	recContainer     = 0x0F
)

// pptTextAtoms walks the record tree of a PowerPoint document stream and
// returns the text of every TextCharsAtom (UTF-16LE) and TextBytesAtom
// (Latin-1) in stream order. Containers are descended into.
func pptTextAtoms(data []byte) []string {
	var out []string
	pos := 0
	for pos+8 <= len(data) {
		verInst := binary.LittleEndian.Uint16(data[pos:])
		recType := binary.LittleEndian.Uint16(data[pos+2:])
		recLen := int(binary.LittleEndian.Uint32(data[pos+4:]))
		pos += 8
		if recLen < 0 || recLen > len(data)-pos {
			break
		}

		var text string
		switch {
		case recType == recTextCharsAtom:
			u16s := make([]uint16, recLen/2)
			for i := range u16s {
				u16s[i] = binary.LittleEndian.Uint16(data[pos+i*2:])
			}
			text = string(utf16.Decode(u16s))
		case recType == recTextBytesAtom:
			runes := make([]rune, recLen)
			for i, b := range data[pos : pos+recLen] {
				runes[i] = rune(b)
			}
			text = string(runes)
		case verInst&0x0F == recContainer:
			continue
		}
		pos += recLen

		if text = strings.TrimSpace(text); text != "" && !isPPTNoise(text) {
			out = append(out, text)
		}
	}
	return out
}
