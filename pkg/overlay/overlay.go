// Package overlay draws transient boxes over the terminal view and restores
// what was underneath when they close
package overlay

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"tterm/pkg/geometry"
	"tterm/pkg/input"
)

// DefaultHintDuration is how long the resize hint stays up
const DefaultHintDuration = time.Second

type savedCell struct {
	mainc rune
	combc []rune
	style tcell.Style
}

// Overlay is a centered box drawn over a tcell screen. It is not safe for
// concurrent use; the host drives it from its UI loop.
type Overlay struct {
	screen tcell.Screen
	style  tcell.Style

	saved   [][]savedCell
	lines   []string
	x, y    int
	w, h    int
	visible bool
}

// New creates a hidden overlay on screen
func New(screen tcell.Screen) *Overlay {
	return &Overlay{
		screen: screen,
		style:  tcell.StyleDefault.Reverse(true),
	}
}

// SetStyle changes the box style
func (o *Overlay) SetStyle(style tcell.Style) {
	o.style = style
}

// Visible reports whether a box is on screen
func (o *Overlay) Visible() bool {
	return o.visible
}

// Show draws lines in a bordered box centered on the screen, replacing any
// box already shown
func (o *Overlay) Show(lines []string) {
	o.restore()

	width := 0
	for _, line := range lines {
		width = max(width, runewidth.StringWidth(line))
	}
	boxW, boxH := width+4, len(lines)+2

	screenW, screenH := o.screen.Size()
	boxW = min(boxW, screenW)
	boxH = min(boxH, screenH)
	if boxW < 3 || boxH < 3 {
		return
	}
	o.x = (screenW - boxW) / 2
	o.y = (screenH - boxH) / 2
	o.w, o.h = boxW, boxH
	o.lines = lines

	o.save(boxW, boxH)
	o.draw()
	o.visible = true
	o.screen.Show()
}

// Redraw paints the box again after the view was redrawn underneath it.
// The caller shows the screen.
func (o *Overlay) Redraw() {
	if o.visible {
		o.draw()
	}
}

func (o *Overlay) draw() {
	o.drawBorder(o.w, o.h)
	for i, line := range o.lines {
		if i+1 >= o.h-1 {
			break
		}
		o.drawText(o.x+2, o.y+1+i, o.w-4, line)
	}
}

// Hide restores the cells under the box
func (o *Overlay) Hide() {
	if !o.visible {
		return
	}
	o.restore()
	o.screen.Show()
}

func (o *Overlay) save(w, h int) {
	o.saved = make([][]savedCell, h)
	for dy := range h {
		o.saved[dy] = make([]savedCell, w)
		for dx := range w {
			mainc, combc, style, _ := o.screen.GetContent(o.x+dx, o.y+dy)
			o.saved[dy][dx] = savedCell{mainc: mainc, combc: combc, style: style}
		}
	}
}

func (o *Overlay) restore() {
	for dy, row := range o.saved {
		for dx, cell := range row {
			o.screen.SetContent(o.x+dx, o.y+dy, cell.mainc, cell.combc, cell.style)
		}
	}
	o.saved = nil
	o.visible = false
}

func (o *Overlay) drawBorder(w, h int) {
	for dy := range h {
		for dx := range w {
			r := ' '
			switch {
			case dy == 0 && dx == 0:
				r = tcell.RuneULCorner
			case dy == 0 && dx == w-1:
				r = tcell.RuneURCorner
			case dy == h-1 && dx == 0:
				r = tcell.RuneLLCorner
			case dy == h-1 && dx == w-1:
				r = tcell.RuneLRCorner
			case dy == 0 || dy == h-1:
				r = tcell.RuneHLine
			case dx == 0 || dx == w-1:
				r = tcell.RuneVLine
			}
			o.screen.SetContent(o.x+dx, o.y+dy, r, nil, o.style)
		}
	}
}

func (o *Overlay) drawText(x, y, width int, text string) {
	col := 0
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if col+w > width {
			break
		}
		o.screen.SetContent(x+col, y, r, nil, o.style)
		col += w
	}
}

// ResizeHint returns the text shown while the grid is being resized
func ResizeHint(size geometry.GridSize) []string {
	return []string{fmt.Sprintf("%dx%d", size.Columns, size.Rows)}
}

// HelpText lists the enabled shortcuts
func HelpText(shortcuts []input.Shortcut) []string {
	lines := []string{"Shortcuts", ""}
	for _, s := range shortcuts {
		if !s.Enabled {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-10s %s", keyName(s), s.Description))
	}
	lines = append(lines, "", "Press any key to continue")
	return lines
}

func keyName(s input.Shortcut) string {
	var parts []string
	if s.Mods&tcell.ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if s.Mods&tcell.ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if s.Mods&tcell.ModShift != 0 {
		parts = append(parts, "Shift")
	}

	switch {
	case s.Key == tcell.KeyRune:
		parts = append(parts, string(s.Char))
	case s.Key >= tcell.KeyCtrlA && s.Key <= tcell.KeyCtrlZ:
		parts = append(parts, string(rune('A'+s.Key-tcell.KeyCtrlA)))
	default:
		parts = append(parts, tcell.KeyNames[s.Key])
	}
	return strings.Join(parts, "+")
}
