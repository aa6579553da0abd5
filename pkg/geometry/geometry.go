// Package geometry maps between pixel space and terminal cell space
package geometry

import (
	"fmt"
	"math"
	"sync"
)

// Default minimum grid dimensions
const (
	DefaultMinColumns = 58
	DefaultMinRows    = 4
)

// epsilon absorbs float error when a pixel extent is an exact multiple of the cell size
const epsilon = 1e-6

// GridSize is the number of columns and rows of the visible grid
type GridSize struct {
	Columns int `json:"columns" yaml:"columns"`
	Rows    int `json:"rows" yaml:"rows"`
}

// String returns the grid size as "COLSxROWS"
func (g GridSize) String() string {
	return fmt.Sprintf("%dx%d", g.Columns, g.Rows)
}

// Clamp returns g with each dimension raised to at least min
func (g GridSize) Clamp(min GridSize) GridSize {
	if g.Columns < min.Columns {
		g.Columns = min.Columns
	}
	if g.Rows < min.Rows {
		g.Rows = min.Rows
	}
	return g
}

// CellPoint is a buffer-space coordinate
type CellPoint struct {
	Column int
	Row    int
}

// Before reports whether p comes before other in reading order
func (p CellPoint) Before(other CellPoint) bool {
	if p.Row != other.Row {
		return p.Row < other.Row
	}
	return p.Column < other.Column
}

// PixelSize is a size in screen space
type PixelSize struct {
	Width  float64
	Height float64
}

// PixelPoint is a position in screen space, relative to the top left of the surface
type PixelPoint struct {
	X float64
	Y float64
}

// CellSize is the pixel footprint of one character cell
type CellSize struct {
	Width  float64
	Height float64
}

// Valid reports whether both dimensions are strictly positive
func (c CellSize) Valid() bool {
	return c.Width > 0 && c.Height > 0 && !math.IsNaN(c.Width) && !math.IsNaN(c.Height) &&
		!math.IsInf(c.Width, 0) && !math.IsInf(c.Height, 0)
}

// RenderedLines is the currently published set of lines on the surface
type RenderedLines interface {
	LineCount() int
	// ColumnAt returns the cell column under the horizontal offset x within row
	ColumnAt(row int, x float64) int
}

// CellSource supplies the current cell size
type CellSource interface {
	CellSize() (CellSize, error)
}

// Mapper converts between pixel geometry and grid coordinates
type Mapper struct {
	mu      sync.RWMutex
	cells   CellSource
	minimum GridSize
	padding PixelSize
}

// NewMapper creates a mapper using the given cell source and the default minimum grid size
func NewMapper(cells CellSource) *Mapper {
	return &Mapper{
		cells:   cells,
		minimum: GridSize{Columns: DefaultMinColumns, Rows: DefaultMinRows},
	}
}

// SetMinimum sets the minimum grid size. Negative values are treated as zero.
func (m *Mapper) SetMinimum(min GridSize) {
	if min.Columns < 0 {
		min.Columns = 0
	}
	if min.Rows < 0 {
		min.Rows = 0
	}

	m.mu.Lock()
	m.minimum = min
	m.mu.Unlock()
}

// Minimum returns the minimum grid size
func (m *Mapper) Minimum() GridSize {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minimum
}

// SetPadding sets the fixed chrome padding around the grid
func (m *Mapper) SetPadding(padding PixelSize) {
	m.mu.Lock()
	m.padding = padding
	m.mu.Unlock()
}

// Padding returns the chrome padding
func (m *Mapper) Padding() PixelSize {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.padding
}

// WindowSizeToGrid converts a surface size to the number of whole cells that fit in it
func (m *Mapper) WindowSizeToGrid(size PixelSize) (GridSize, error) {
	cell, err := m.cells.CellSize()
	if err != nil {
		return GridSize{}, err
	}

	m.mu.RLock()
	padding, minimum := m.padding, m.minimum
	m.mu.RUnlock()

	width := math.Max(0, size.Width-padding.Width)
	height := math.Max(0, size.Height-padding.Height)

	grid := GridSize{
		Columns: int(math.Floor(width/cell.Width + epsilon)),
		Rows:    int(math.Floor(height/cell.Height + epsilon)),
	}
	return grid.Clamp(minimum), nil
}

// GridToWindowSize converts a grid size to the smallest surface size holding it
func (m *Mapper) GridToWindowSize(grid GridSize) (PixelSize, error) {
	cell, err := m.cells.CellSize()
	if err != nil {
		return PixelSize{}, err
	}

	m.mu.RLock()
	padding := m.padding
	m.mu.RUnlock()

	return PixelSize{
		Width:  math.Ceil(float64(grid.Columns)*cell.Width-epsilon) + padding.Width,
		Height: math.Ceil(float64(grid.Rows)*cell.Height-epsilon) + padding.Height,
	}, nil
}

// PixelToCell resolves a pointer position to an absolute buffer cell.
// It returns false when the pointer is outside the rendered lines.
func (m *Mapper) PixelToCell(p PixelPoint, viewportTop int, lines RenderedLines) (CellPoint, bool) {
	if lines == nil || p.X < 0 || p.Y < 0 {
		return CellPoint{}, false
	}

	cell, err := m.cells.CellSize()
	if err != nil {
		return CellPoint{}, false
	}

	row := int(math.Floor(p.Y / cell.Height))
	if row >= lines.LineCount() {
		return CellPoint{}, false
	}

	return CellPoint{
		Column: lines.ColumnAt(row, p.X),
		Row:    row + viewportTop,
	}, true
}
