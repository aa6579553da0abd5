package render

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"tterm/pkg/terminal"
)

// TcellSurface draws published lines onto a tcell screen starting at the
// top-left corner
type TcellSurface struct {
	screen  tcell.Screen
	palette *Palette
	style   tcell.Style
	lines   int
}

// NewTcellSurface creates a surface over screen. A nil palette selects the default.
func NewTcellSurface(screen tcell.Screen, palette *Palette) *TcellSurface {
	if palette == nil {
		palette = DefaultPalette()
	}
	return &TcellSurface{
		screen:  screen,
		palette: palette,
		style:   tcell.StyleDefault.Background(tcell.ColorReset).Foreground(tcell.ColorReset),
	}
}

// SetPalette replaces the palette used by later draws
func (s *TcellSurface) SetPalette(palette *Palette) {
	if palette != nil {
		s.palette = palette
	}
}

// SetLineCount blanks rows that are no longer published
func (s *TcellSurface) SetLineCount(n int) {
	width, _ := s.screen.Size()
	for y := n; y < s.lines; y++ {
		for x := 0; x < width; x++ {
			s.screen.SetContent(x, y, ' ', nil, s.style)
		}
	}
	s.lines = n
}

// SetLine draws row, reversing the highlighted columns
func (s *TcellSurface) SetLine(row int, line terminal.FormattedLine, highlight Highlight) {
	width, height := s.screen.Size()
	if row < 0 || row >= height {
		return
	}

	x := 0
	for _, run := range line {
		style := s.styleFor(run.Attributes)
		g := uniseg.NewGraphemes(run.Text)
		for g.Next() && x < width {
			cluster := g.Runes()
			w := min(runewidth.StringWidth(g.Str()), 2)
			if w == 0 {
				continue
			}
			s.screen.SetContent(x, row, cluster[0], cluster[1:], s.highlight(style, highlight, x))
			x += w
		}
	}

	for ; x < width; x++ {
		s.screen.SetContent(x, row, ' ', nil, s.highlight(s.style, highlight, x))
	}
}

func (s *TcellSurface) highlight(style tcell.Style, h Highlight, column int) tcell.Style {
	if !h.Contains(column) {
		return style
	}
	_, _, attrs := style.Decompose()
	return style.Reverse(attrs&tcell.AttrReverse == 0)
}

func (s *TcellSurface) styleFor(attrs terminal.CellAttributes) tcell.Style {
	style := s.style.
		Foreground(s.palette.Color(attrs.Foreground)).
		Background(s.palette.Color(attrs.Background))

	if attrs.Has(terminal.AttrBold) {
		style = style.Bold(true)
	}
	if attrs.Has(terminal.AttrItalic) {
		style = style.Italic(true)
	}
	if attrs.Has(terminal.AttrUnderline) {
		style = style.Underline(true)
	}
	if attrs.Has(terminal.AttrReverse) {
		style = style.Reverse(true)
	}
	return style
}

// SetCursor places or hides the cursor
func (s *TcellSurface) SetCursor(row, column int, visible bool) {
	if !visible {
		s.screen.HideCursor()
		return
	}
	width, _ := s.screen.Size()
	s.screen.ShowCursor(min(column, width-1), row)
}

// Clear blanks the screen
func (s *TcellSurface) Clear() {
	s.screen.Clear()
	s.screen.HideCursor()
	s.lines = 0
}

// Show flushes pending changes to the terminal
func (s *TcellSurface) Show() {
	s.screen.Show()
}
