package terminal

import (
	"sync"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"tterm/pkg/geometry"
	"tterm/pkg/selection"
)

// DefaultScrollback is the number of lines kept above the screen
const DefaultScrollback = 1000

// tabWidth is the distance between tab stops
const tabWidth = 8

// Cell is one grid position. Text holds a grapheme cluster; the trailing
// cell of a wide cluster has empty Text.
type Cell struct {
	Text       string
	Attributes CellAttributes
}

func blankCell(attrs CellAttributes) Cell {
	return Cell{Text: " ", Attributes: attrs}
}

func blankRow(columns int, attrs CellAttributes) []Cell {
	row := make([]Cell, columns)
	for i := range row {
		row[i] = blankCell(attrs)
	}
	return row
}

// ScreenBuffer is a Buffer holding a live screen and a bounded scrollback.
// Absolute row 0 is the top of the live screen; scrollback rows are negative.
type ScreenBuffer struct {
	mu sync.RWMutex

	size          geometry.GridSize
	screen        [][]Cell
	scrollback    [][]Cell
	maxScrollback int

	cursorX, cursorY int
	attrs            CellAttributes
	windowTop        int
	selection        *selection.Selection

	parser   parser
	onResize func(geometry.GridSize)
	logger   Logger
}

// NewScreenBuffer creates a blank buffer of the given size
func NewScreenBuffer(size geometry.GridSize, maxScrollback int) *ScreenBuffer {
	if size.Columns < 1 {
		size.Columns = 1
	}
	if size.Rows < 1 {
		size.Rows = 1
	}
	if maxScrollback < 0 {
		maxScrollback = 0
	}

	b := &ScreenBuffer{
		size:          size,
		maxScrollback: maxScrollback,
		attrs:         DefaultAttributes(),
	}
	b.screen = make([][]Cell, size.Rows)
	for y := range b.screen {
		b.screen[y] = blankRow(size.Columns, b.attrs)
	}
	return b
}

// SetLogger sets the debug logger
func (b *ScreenBuffer) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// OnResize registers a function called after the size changes. It runs
// without the buffer lock held.
func (b *ScreenBuffer) OnResize(fn func(geometry.GridSize)) {
	b.mu.Lock()
	b.onResize = fn
	b.mu.Unlock()
}

// Size returns the grid size
func (b *ScreenBuffer) Size() geometry.GridSize {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// SetSize resizes the screen. Rows removed from the top while shrinking move
// into scrollback so the cursor stays on screen.
func (b *ScreenBuffer) SetSize(size geometry.GridSize) {
	if size.Columns < 1 || size.Rows < 1 {
		return
	}

	b.mu.Lock()
	if size == b.size {
		b.mu.Unlock()
		return
	}

	for y, row := range b.screen {
		b.screen[y] = resizeRow(row, size.Columns, b.attrs)
	}

	if excess := len(b.screen) - size.Rows; excess > 0 {
		shift := min(excess, b.cursorY)
		for _, row := range b.screen[:shift] {
			b.pushScrollbackLocked(row)
		}
		b.screen = b.screen[shift : shift+size.Rows]
		b.cursorY -= shift
	} else {
		for len(b.screen) < size.Rows {
			b.screen = append(b.screen, blankRow(size.Columns, b.attrs))
		}
	}

	b.size = size
	b.cursorX = clamp(b.cursorX, 0, size.Columns-1)
	b.cursorY = clamp(b.cursorY, 0, size.Rows-1)
	b.windowTop = clamp(b.windowTop, -len(b.scrollback), 0)
	fn, logger := b.onResize, b.logger
	b.mu.Unlock()

	if logger != nil {
		logger.Debugf("buffer resized to %s", size)
	}
	if fn != nil {
		fn(size)
	}
}

func resizeRow(row []Cell, columns int, attrs CellAttributes) []Cell {
	if len(row) >= columns {
		row = row[:columns]
		// A wide cluster cut in half becomes a blank
		if columns > 0 && runewidth.StringWidth(row[columns-1].Text) > 1 {
			row[columns-1] = blankCell(row[columns-1].Attributes)
		}
		return row
	}
	for len(row) < columns {
		row = append(row, blankCell(attrs))
	}
	return row
}

// WindowTop returns the absolute row shown at the top of the window
func (b *ScreenBuffer) WindowTop() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.windowTop
}

// SetWindowTop moves the window, clamped to the available scrollback
func (b *ScreenBuffer) SetWindowTop(row int) {
	b.mu.Lock()
	b.windowTop = clamp(row, -len(b.scrollback), 0)
	b.mu.Unlock()
}

// Scroll moves the window by offset rows. Negative offsets scroll back.
func (b *ScreenBuffer) Scroll(offset int) {
	b.mu.Lock()
	b.windowTop = clamp(b.windowTop+offset, -len(b.scrollback), 0)
	b.mu.Unlock()
}

// ScrollbackLen returns the number of rows above the screen
func (b *ScreenBuffer) ScrollbackLen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.scrollback)
}

// CursorRow returns the cursor row on the live screen
func (b *ScreenBuffer) CursorRow() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursorY
}

// CursorColumn returns the cursor column
func (b *ScreenBuffer) CursorColumn() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursorX
}

// FormattedLine returns row as styled runs. Rows outside the buffer are empty.
func (b *ScreenBuffer) FormattedLine(row int) FormattedLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cells := b.rowLocked(row)
	if len(cells) == 0 {
		return nil
	}

	var line FormattedLine
	for _, cell := range cells {
		if cell.Text == "" {
			continue
		}
		if n := len(line); n > 0 && line[n-1].Attributes == cell.Attributes {
			line[n-1].Text += cell.Text
			continue
		}
		line = append(line, Run{Text: cell.Text, Attributes: cell.Attributes})
	}
	return line
}

// LineCells returns the grapheme in each cell of row
func (b *ScreenBuffer) LineCells(row int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lineCellsLocked(row)
}

func (b *ScreenBuffer) lineCellsLocked(row int) []string {
	cells := b.rowLocked(row)
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = cell.Text
	}
	return out
}

func (b *ScreenBuffer) rowLocked(row int) []Cell {
	switch {
	case row >= 0 && row < len(b.screen):
		return b.screen[row]
	case row < 0 && -row <= len(b.scrollback):
		return b.scrollback[len(b.scrollback)+row]
	default:
		return nil
	}
}

// Selection returns the selection shown in the buffer
func (b *ScreenBuffer) Selection() *selection.Selection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selection
}

// SetSelection replaces the selection
func (b *ScreenBuffer) SetSelection(sel *selection.Selection) {
	b.mu.Lock()
	b.selection = sel
	b.mu.Unlock()
}

// CopySelection returns the selected text, or "" without a selection
func (b *ScreenBuffer) CopySelection() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.selection == nil {
		return ""
	}
	return b.selection.Text(lockedLines{b})
}

type lockedLines struct{ b *ScreenBuffer }

func (l lockedLines) LineCells(row int) []string { return l.b.lineCellsLocked(row) }

// Write feeds process output into the buffer
func (b *ScreenBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.parser.feed(b, data)
	return len(data), nil
}

// Reset clears the screen and scrollback
func (b *ScreenBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *ScreenBuffer) resetLocked() {
	b.attrs = DefaultAttributes()
	for y := range b.screen {
		b.screen[y] = blankRow(b.size.Columns, b.attrs)
	}
	b.scrollback = nil
	b.cursorX, b.cursorY = 0, 0
	b.windowTop = 0
	b.parser = parser{}
}

// print writes printable text at the cursor, one grapheme cluster per cell
// or two for wide clusters
func (b *ScreenBuffer) print(text string) {
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		cluster := g.Str()
		width := runewidth.StringWidth(cluster)
		if width == 0 {
			b.appendCombining(cluster)
			continue
		}
		if width > 2 {
			width = 2
		}
		if width > b.size.Columns {
			width = 1
		}

		if b.cursorX+width > b.size.Columns {
			b.cursorX = 0
			b.lineFeed()
		}

		row := b.screen[b.cursorY]
		clearWide(row, b.cursorX)
		row[b.cursorX] = Cell{Text: cluster, Attributes: b.attrs}
		if width == 2 {
			clearWide(row, b.cursorX+1)
			row[b.cursorX+1] = Cell{Attributes: b.attrs}
		}
		b.cursorX += width
		if b.cursorX >= b.size.Columns {
			// Pending wrap: stay on the last column until the next cluster
			b.cursorX = b.size.Columns
		}
	}
}

// clearWide blanks the other half of a wide cluster about to be overwritten at x
func clearWide(row []Cell, x int) {
	if row[x].Text == "" && x > 0 {
		row[x-1] = blankCell(row[x-1].Attributes)
	} else if runewidth.StringWidth(row[x].Text) > 1 && x+1 < len(row) {
		row[x+1] = blankCell(row[x+1].Attributes)
	}
}

// appendCombining attaches a zero-width cluster to the previous cell
func (b *ScreenBuffer) appendCombining(cluster string) {
	row := b.screen[b.cursorY]
	for x := min(b.cursorX, len(row)) - 1; x >= 0; x-- {
		if row[x].Text != "" {
			row[x].Text += cluster
			return
		}
	}
}

func (b *ScreenBuffer) lineFeed() {
	if b.cursorY < b.size.Rows-1 {
		b.cursorY++
		return
	}

	b.pushScrollbackLocked(b.screen[0])
	copy(b.screen, b.screen[1:])
	b.screen[len(b.screen)-1] = blankRow(b.size.Columns, b.attrs)

	// Keep a scrolled-back window on the same content
	if b.windowTop < 0 {
		b.windowTop = clamp(b.windowTop-1, -len(b.scrollback), 0)
	}
}

func (b *ScreenBuffer) pushScrollbackLocked(row []Cell) {
	if b.maxScrollback == 0 {
		return
	}
	b.scrollback = append(b.scrollback, row)
	if over := len(b.scrollback) - b.maxScrollback; over > 0 {
		b.scrollback = b.scrollback[over:]
	}
}

func (b *ScreenBuffer) carriageReturn() {
	b.cursorX = 0
}

func (b *ScreenBuffer) backspace() {
	if b.cursorX >= b.size.Columns {
		b.cursorX = b.size.Columns - 1
	}
	if b.cursorX > 0 {
		b.cursorX--
	}
}

func (b *ScreenBuffer) tab() {
	next := (b.cursorX/tabWidth + 1) * tabWidth
	b.cursorX = min(next, b.size.Columns-1)
}

func (b *ScreenBuffer) moveCursor(x, y int) {
	b.cursorX = clamp(x, 0, b.size.Columns-1)
	b.cursorY = clamp(y, 0, b.size.Rows-1)
}

// eraseLine clears part of the cursor row: 0 to the end, 1 to the start, 2 all
func (b *ScreenBuffer) eraseLine(mode int) {
	row := b.screen[b.cursorY]
	x := min(b.cursorX, b.size.Columns-1)

	from, to := x, len(row)
	switch mode {
	case 1:
		from, to = 0, x+1
	case 2:
		from, to = 0, len(row)
	}
	for i := from; i < to; i++ {
		row[i] = blankCell(b.attrs)
	}
}

// eraseDisplay clears part of the screen: 0 below, 1 above, 2 all, 3 all plus scrollback
func (b *ScreenBuffer) eraseDisplay(mode int) {
	switch mode {
	case 0:
		b.eraseLine(0)
		for y := b.cursorY + 1; y < len(b.screen); y++ {
			b.screen[y] = blankRow(b.size.Columns, b.attrs)
		}
	case 1:
		b.eraseLine(1)
		for y := 0; y < b.cursorY; y++ {
			b.screen[y] = blankRow(b.size.Columns, b.attrs)
		}
	case 2, 3:
		for y := range b.screen {
			b.screen[y] = blankRow(b.size.Columns, b.attrs)
		}
		if mode == 3 {
			b.scrollback = nil
			b.windowTop = 0
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
