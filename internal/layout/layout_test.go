package layout

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func monospace(perRune float64) Measurer {
	return MeasureFunc(func(s string) float64 {
		return float64(utf8.RuneCountInString(s)) * perRune
	})
}

var tinyPage = Geometry{Width: 100, Height: 100, Margin: 10, FontSize: 10, LineHeight: 20}

func TestPaginate_WrapsAndBreaksPages(t *testing.T) {
	got := Paginate("aaa bbb ccc\n\ndddddddddddd e", monospace(10), tinyPage)
	want := []Page{
		{Lines: []Line{
			{Text: "aaa bbb", X: 10, Y: 30, Width: 70},
			{Text: "ccc", X: 10, Y: 50, Width: 30},
			{Text: "dddddddddddd", X: 10, Y: 90, Width: 120},
		}},
		{Lines: []Line{
			{Text: "e", X: 10, Y: 30, Width: 10},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Paginate mismatch (-want +got):\n%s", diff)
	}
}

func TestPaginate_EmptyTextIsOneBlankPage(t *testing.T) {
	got := Paginate("", monospace(6), DefaultGeometry())
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Lines)
	assert.Equal(t, 0, LineCount(got))
}

func TestPaginate_OversizedWordStandsAlone(t *testing.T) {
	got := Paginate("a supercalifragilistic b", monospace(10), tinyPage)
	require.Len(t, got, 1)
	texts := make([]string, 0, len(got[0].Lines))
	for _, l := range got[0].Lines {
		texts = append(texts, l.Text)
	}
	assert.Equal(t, []string{"a", "supercalifragilistic", "b"}, texts)
}

func TestPaginate_CursorResetsOnNewPage(t *testing.T) {
	text := strings.Repeat("word\n", 10)
	g := tinyPage
	pages := Paginate(text, monospace(10), g)
	require.Greater(t, len(pages), 1)
	for i, pg := range pages {
		require.NotEmpty(t, pg.Lines, "page %d", i)
		assert.Equal(t, g.Margin+g.LineHeight, pg.Lines[0].Y, "page %d first baseline", i)
	}
	assert.Equal(t, 10, LineCount(pages))
}

func TestDefaultGeometry(t *testing.T) {
	g := DefaultGeometry()
	assert.InDelta(t, 495.28, g.TextWidth(), 1e-9)
	assert.Equal(t, 12.0, g.FontSize)
	assert.Equal(t, 18.0, g.LineHeight)
}

func genText(t *rapid.T) string {
	paras := rapid.SliceOfN(
		rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z]{1,14}`), 0, 25),
		1, 12,
	).Draw(t, "paragraphs")
	lines := make([]string, len(paras))
	for i, words := range paras {
		lines[i] = strings.Join(words, " ")
	}
	return strings.Join(lines, "\n")
}

func genGeometry(t *rapid.T) Geometry {
	return Geometry{
		Width:      rapid.Float64Range(200, 800).Draw(t, "width"),
		Height:     rapid.Float64Range(200, 1000).Draw(t, "height"),
		Margin:     rapid.Float64Range(10, 60).Draw(t, "margin"),
		FontSize:   12,
		LineHeight: rapid.Float64Range(8, 30).Draw(t, "lineHeight"),
	}
}

func TestPaginate_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := genText(t)
		g := genGeometry(t)
		m := monospace(rapid.Float64Range(3, 9).Draw(t, "perRune"))
		first := Paginate(text, m, g)
		second := Paginate(text, m, g)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("two runs differ:\n%s", diff)
		}
	})
}

func TestPaginate_LinesFitBudgetAndPage(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := genText(t)
		g := genGeometry(t)
		m := monospace(rapid.Float64Range(3, 9).Draw(t, "perRune"))
		for pi, pg := range Paginate(text, m, g) {
			for li, l := range pg.Lines {
				if strings.Contains(l.Text, " ") && l.Width > g.TextWidth() {
					t.Fatalf("page %d line %d %q is %.2f wide, budget %.2f", pi, li, l.Text, l.Width, g.TextWidth())
				}
				if l.Y > g.Height-g.Margin {
					t.Fatalf("page %d line %d baseline %.2f below bottom margin", pi, li, l.Y)
				}
				if l.X != g.Margin {
					t.Fatalf("page %d line %d starts at %.2f", pi, li, l.X)
				}
			}
		}
	})
}

func TestPaginate_PreservesWordOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := genText(t)
		g := genGeometry(t)
		var got []string
		for _, pg := range Paginate(text, monospace(6), g) {
			for _, l := range pg.Lines {
				got = append(got, strings.Fields(l.Text)...)
			}
		}
		want := strings.Fields(text)
		if len(want) == 0 {
			want = nil
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("words changed (-want +got):\n%s", diff)
		}
	})
}
