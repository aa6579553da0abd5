// Package terminal defines the buffer and session boundary consumed by the
// front-end, and provides ScreenBuffer, a compact scrollback buffer
package terminal

import (
	"strings"

	"tterm/pkg/geometry"
	"tterm/pkg/selection"
)

// ColorID indexes the 16-entry palette. ColorDefault uses the surface default.
type ColorID int

const (
	ColorDefault ColorID = -1

	ColorBlack ColorID = iota - 1
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightBlack
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightMagenta
	ColorBrightCyan
	ColorBrightWhite
)

var colorNames = [...]string{
	"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
	"bright-black", "bright-red", "bright-green", "bright-yellow",
	"bright-blue", "bright-magenta", "bright-cyan", "bright-white",
}

// String returns the string representation of the color
func (c ColorID) String() string {
	if c == ColorDefault {
		return "default"
	}
	if c >= 0 && int(c) < len(colorNames) {
		return colorNames[c]
	}
	return "unknown"
}

// AttrFlags is the set of text style flags
type AttrFlags uint8

const (
	AttrBold AttrFlags = 1 << iota
	AttrItalic
	AttrUnderline
	AttrReverse
)

// CellAttributes is the style of a run of text
type CellAttributes struct {
	Foreground ColorID
	Background ColorID
	Flags      AttrFlags
}

// DefaultAttributes uses the surface colors and no flags
func DefaultAttributes() CellAttributes {
	return CellAttributes{Foreground: ColorDefault, Background: ColorDefault}
}

// Has reports whether all bits of f are set
func (a CellAttributes) Has(f AttrFlags) bool {
	return a.Flags&f == f
}

// Run is a span of text sharing one style
type Run struct {
	Text       string
	Attributes CellAttributes
}

// FormattedLine is one buffer row as styled runs
type FormattedLine []Run

// String returns the line text without styles
func (l FormattedLine) String() string {
	var b strings.Builder
	for _, run := range l {
		b.WriteString(run.Text)
	}
	return b.String()
}

// Buffer is the grid a session writes to. All methods are safe for
// concurrent use.
type Buffer interface {
	Size() geometry.GridSize
	// SetSize reflows the buffer to a new grid size
	SetSize(size geometry.GridSize)
	// WindowTop is the absolute row at the top of the visible window. Rows
	// below zero are scrollback.
	WindowTop() int
	SetWindowTop(row int)
	Scroll(offset int)
	CursorRow() int
	CursorColumn() int
	// FormattedLine returns the absolute row. It must not mutate the buffer.
	FormattedLine(row int) FormattedLine
	Selection() *selection.Selection
	SetSelection(sel *selection.Selection)
	// CopySelection returns the text of the current selection
	CopySelection() string
}

// EventType identifies a session notification
type EventType int

const (
	EventOutput EventType = iota
	EventResize
	EventExit
)

// String returns the string representation of EventType
func (e EventType) String() string {
	switch e {
	case EventOutput:
		return "output"
	case EventResize:
		return "resize"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is a session notification. Err is set on EventExit when the session
// ended abnormally.
type Event struct {
	Type EventType
	Err  error
}

// Listener receives session notifications on the session's I/O goroutine.
// Listeners must not block.
type Listener func(Event)

// Session is a connected process or device
type Session interface {
	ID() string
	Name() string
	Buffer() Buffer
	// Write sends encoded input
	Write(text string) error
	// Paste sends clipboard text
	Paste(text string) error
	Subscribe(listener Listener) (unsubscribe func())
	Close() error
}

// Logger is used for debug output
type Logger interface {
	Debugf(format string, args ...interface{})
}
