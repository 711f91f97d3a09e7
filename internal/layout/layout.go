// Package layout breaks extracted plain text into positioned lines on fixed
// size pages.
package layout

import "strings"

// Geometry describes the page and text metrics in points. The origin is the
// top-left corner of the page.
type Geometry struct {
	Width      float64
	Height     float64
	Margin     float64
	FontSize   float64
	LineHeight float64
}

// DefaultGeometry is an A4 page with a 50pt margin and 12pt text on 18pt lines.
func DefaultGeometry() Geometry {
	return Geometry{
		Width:      595.28,
		Height:     841.89,
		Margin:     50,
		FontSize:   12,
		LineHeight: 18,
	}
}

// TextWidth is the horizontal budget available to one line.
func (g Geometry) TextWidth() float64 {
	return g.Width - 2*g.Margin
}

// Measurer reports the rendered width of a string at the geometry's font size.
type Measurer interface {
	Width(s string) float64
}

// MeasureFunc adapts a plain function to Measurer.
type MeasureFunc func(s string) float64

func (f MeasureFunc) Width(s string) float64 { return f(s) }

// Line is one drawn line. Y is the baseline.
type Line struct {
	Text  string
	X     float64
	Y     float64
	Width float64
}

// Page holds the lines placed on one page, top to bottom.
type Page struct {
	Lines []Line
}

// Paginate wraps text greedily into lines no wider than g.TextWidth() and
// distributes them over as many pages as needed. Paragraphs are separated by
// '\n'; a blank paragraph advances the cursor by one line. A single word that
// does not fit the budget is placed alone on its line and overflows.
//
// Empty text yields one page without lines.
func Paginate(text string, m Measurer, g Geometry) []Page {
	p := paginator{m: m, g: g, budget: g.TextWidth()}
	p.newPage()

	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			p.y += g.LineHeight
			continue
		}
		line := ""
		for _, w := range words {
			candidate := w
			if line != "" {
				candidate = line + " " + w
			}
			if line == "" || m.Width(candidate) <= p.budget {
				line = candidate
				continue
			}
			p.emit(line)
			line = w
		}
		p.emit(line)
	}
	return p.pages
}

type paginator struct {
	m      Measurer
	g      Geometry
	budget float64
	pages  []Page
	y      float64
}

func (p *paginator) newPage() {
	p.pages = append(p.pages, Page{})
	p.y = p.g.Margin + p.g.LineHeight
}

// emit draws s at the cursor, breaking the page first when the baseline
// would fall below the bottom margin.
func (p *paginator) emit(s string) {
	if p.y > p.g.Height-p.g.Margin {
		p.newPage()
	}
	cur := &p.pages[len(p.pages)-1]
	cur.Lines = append(cur.Lines, Line{
		Text:  s,
		X:     p.g.Margin,
		Y:     p.y,
		Width: p.m.Width(s),
	})
	p.y += p.g.LineHeight
}

// LineCount returns the total number of lines over all pages.
func LineCount(pages []Page) int {
	n := 0
	for _, pg := range pages {
		n += len(pg.Lines)
	}
	return n
}
