package render

import (
	"math"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"tterm/pkg/terminal"
)

// Highlight is an inclusive column range drawn as selected. To < From means
// nothing is highlighted.
type Highlight struct {
	From, To int
}

// NoHighlight selects nothing
var NoHighlight = Highlight{From: 0, To: -1}

// Empty reports whether the range is empty
func (h Highlight) Empty() bool {
	return h.To < h.From
}

// Contains reports whether column lies in the range
func (h Highlight) Contains(column int) bool {
	return column >= h.From && column <= h.To
}

// Line is the published content of one surface row
type Line struct {
	Content   terminal.FormattedLine
	Highlight Highlight
}

// LineArena holds one handle per published row. It is only touched on the
// render loop.
type LineArena struct {
	lines     []Line
	cellWidth float64
}

// NewLineArena creates an empty arena
func NewLineArena() *LineArena {
	return &LineArena{}
}

// Resize grows the arena by appending blank handles or shrinks it from the tail
func (a *LineArena) Resize(n int) {
	if n < 0 {
		n = 0
	}
	if n <= len(a.lines) {
		for i := n; i < len(a.lines); i++ {
			a.lines[i] = Line{}
		}
		a.lines = a.lines[:n]
		return
	}
	for len(a.lines) < n {
		a.lines = append(a.lines, Line{Highlight: NoHighlight})
	}
}

// Set assigns the content of row. Rows outside the arena are ignored.
func (a *LineArena) Set(row int, line Line) {
	if row < 0 || row >= len(a.lines) {
		return
	}
	a.lines[row] = line
}

// At returns the content of row
func (a *LineArena) At(row int) (Line, bool) {
	if row < 0 || row >= len(a.lines) {
		return Line{}, false
	}
	return a.lines[row], true
}

// SetCellWidth sets the pixel width of one column used by ColumnAt
func (a *LineArena) SetCellWidth(width float64) {
	a.cellWidth = width
}

// LineCount returns the number of published rows
func (a *LineArena) LineCount() int {
	return len(a.lines)
}

// ColumnAt returns the column under the pixel offset x in row. A position on
// the right half of a wide cluster resolves to the cluster's first column.
// Positions past the end of the text continue at one column per cell width.
func (a *LineArena) ColumnAt(row int, x float64) int {
	if a.cellWidth <= 0 || x <= 0 {
		return 0
	}
	target := int(math.Floor(x / a.cellWidth))

	line, ok := a.At(row)
	if !ok {
		return target
	}

	column := 0
	for _, run := range line.Content {
		g := uniseg.NewGraphemes(run.Text)
		for g.Next() {
			width := runewidth.StringWidth(g.Str())
			if width == 0 {
				continue
			}
			width = min(width, 2)
			if target < column+width {
				return column
			}
			column += width
		}
	}
	return target
}
