// Package selection tracks an anchored text selection over buffer cells
package selection

import (
	"strings"
	"sync/atomic"

	"tterm/pkg/geometry"
)

// Mode selects how the region between anchor and cursor is interpreted
type Mode int

const (
	// Stream follows reading order, wrapping at line ends
	Stream Mode = iota
	// Block covers the rectangle spanned by the two points
	Block
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case Stream:
		return "stream"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Selection is an immutable snapshot of a selection. Both endpoints are inclusive.
type Selection struct {
	Mode   Mode
	Anchor geometry.CellPoint
	Cursor geometry.CellPoint
}

// Normalized returns the endpoints ordered so that start precedes end. In
// block mode the points are the top-left and bottom-right corners.
func (s Selection) Normalized() (start, end geometry.CellPoint) {
	if s.Mode == Block {
		return geometry.CellPoint{Column: min(s.Anchor.Column, s.Cursor.Column), Row: min(s.Anchor.Row, s.Cursor.Row)},
			geometry.CellPoint{Column: max(s.Anchor.Column, s.Cursor.Column), Row: max(s.Anchor.Row, s.Cursor.Row)}
	}

	if s.Cursor.Before(s.Anchor) {
		return s.Cursor, s.Anchor
	}
	return s.Anchor, s.Cursor
}

// Contains reports whether p lies inside the selection
func (s Selection) Contains(p geometry.CellPoint) bool {
	start, end := s.Normalized()
	if p.Row < start.Row || p.Row > end.Row {
		return false
	}

	if s.Mode == Block {
		return p.Column >= start.Column && p.Column <= end.Column
	}

	if p.Row == start.Row && p.Column < start.Column {
		return false
	}
	if p.Row == end.Row && p.Column > end.Column {
		return false
	}
	return true
}

// Span returns the inclusive column range selected on row for a line of the
// given width. ok is false when nothing on the row is selected.
func (s Selection) Span(row, width int) (from, to int, ok bool) {
	start, end := s.Normalized()
	if row < start.Row || row > end.Row || width <= 0 {
		return 0, 0, false
	}

	if s.Mode == Block {
		from, to = start.Column, end.Column
	} else {
		from, to = 0, width-1
		if row == start.Row {
			from = start.Column
		}
		if row == end.Row {
			to = end.Column
		}
	}

	if from < 0 {
		from = 0
	}
	if to > width-1 {
		to = width - 1
	}
	if from > to {
		return 0, 0, false
	}
	return from, to, true
}

// LineSource returns the cells of a buffer row. Each entry is the grapheme
// cluster in that cell; the trailing half of a wide cluster is empty.
type LineSource interface {
	LineCells(row int) []string
}

// Text extracts the selected text. Rows are joined with newlines and trailing
// blanks are trimmed from each row.
func (s Selection) Text(lines LineSource) string {
	start, end := s.Normalized()

	var b strings.Builder
	for row := start.Row; row <= end.Row; row++ {
		cells := lines.LineCells(row)
		width := len(cells)

		var text string
		if s.Mode == Block {
			// Block rows are padded so columns past the line end still count
			width = max(width, end.Column+1)
		}
		if from, to, ok := s.Span(row, width); ok {
			text = sliceCells(cells, from, to)
		}

		b.WriteString(strings.TrimRight(text, " "))
		if row < end.Row {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func sliceCells(cells []string, from, to int) string {
	if from >= len(cells) {
		return ""
	}
	if to >= len(cells) {
		to = len(cells) - 1
	}
	return strings.Join(cells[from:to+1], "")
}

// Model holds the current selection. Readers never observe a torn pair of
// endpoints because every change swaps in a new Selection value.
type Model struct {
	current atomic.Pointer[Selection]
}

// NewModel creates a model with no selection
func NewModel() *Model {
	return &Model{}
}

// Start begins a selection at p. Block mode is chosen when alt is held. It
// returns false if a selection already exists.
func (m *Model) Start(p geometry.CellPoint, alt bool) bool {
	mode := Stream
	if alt {
		mode = Block
	}
	return m.current.CompareAndSwap(nil, &Selection{Mode: mode, Anchor: p, Cursor: p})
}

// Extend moves the cursor of the active selection to p. The mode chosen at
// Start is kept. It returns false if no selection is active.
func (m *Model) Extend(p geometry.CellPoint) bool {
	for {
		cur := m.current.Load()
		if cur == nil {
			return false
		}
		next := &Selection{Mode: cur.Mode, Anchor: cur.Anchor, Cursor: p}
		if m.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Clear drops the selection. It returns false if there was none.
func (m *Model) Clear() bool {
	return m.current.Swap(nil) != nil
}

// Current returns the active selection, or nil
func (m *Model) Current() *Selection {
	return m.current.Load()
}

// Active reports whether a selection exists
func (m *Model) Active() bool {
	return m.current.Load() != nil
}
