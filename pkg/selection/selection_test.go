package selection

import (
	"sync"
	"testing"

	"tterm/pkg/geometry"
)

type textLines map[int]string

func (l textLines) LineCells(row int) []string {
	var cells []string
	for _, r := range l[row] {
		cells = append(cells, string(r))
	}
	return cells
}

func pt(col, row int) geometry.CellPoint {
	return geometry.CellPoint{Column: col, Row: row}
}

func TestSelection_BlockCoversRectangle(t *testing.T) {
	s := Selection{Mode: Block, Anchor: pt(2, 1), Cursor: pt(5, 3)}

	for row := 0; row <= 4; row++ {
		for col := 0; col <= 8; col++ {
			want := row >= 1 && row <= 3 && col >= 2 && col <= 5
			if got := s.Contains(pt(col, row)); got != want {
				t.Errorf("Contains(%d,%d) = %v, want %v", col, row, got, want)
			}
		}
	}

	for _, width := range []int{6, 20, 80} {
		for row := 1; row <= 3; row++ {
			from, to, ok := s.Span(row, width)
			if !ok || from != 2 || to != 5 {
				t.Errorf("Span(%d, %d) = %d, %d, %v, want 2, 5, true", row, width, from, to, ok)
			}
		}
	}
}

func TestSelection_BlockIndependentOfDirection(t *testing.T) {
	corners := []Selection{
		{Mode: Block, Anchor: pt(2, 1), Cursor: pt(5, 3)},
		{Mode: Block, Anchor: pt(5, 3), Cursor: pt(2, 1)},
		{Mode: Block, Anchor: pt(5, 1), Cursor: pt(2, 3)},
		{Mode: Block, Anchor: pt(2, 3), Cursor: pt(5, 1)},
	}

	for _, s := range corners {
		start, end := s.Normalized()
		if start != pt(2, 1) || end != pt(5, 3) {
			t.Errorf("Normalized(%v) = %v, %v, want (2,1), (5,3)", s, start, end)
		}
	}
}

func TestSelection_StreamMonotonic(t *testing.T) {
	tests := []struct {
		name   string
		anchor geometry.CellPoint
		cursor geometry.CellPoint
	}{
		{"forward", pt(3, 1), pt(4, 3)},
		{"backward", pt(4, 3), pt(3, 1)},
		{"same row backward", pt(7, 2), pt(1, 2)},
		{"single cell", pt(5, 5), pt(5, 5)},
	}

	const width = 10
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Selection{Mode: Stream, Anchor: tt.anchor, Cursor: tt.cursor}
			start, end := s.Normalized()
			if end.Before(start) {
				t.Fatalf("Normalized() = %v, %v, start after end", start, end)
			}

			// Selected cells in reading order must form one contiguous run
			// from start to end.
			prev := -1
			inRun, done := false, false
			for row := 0; row < 8; row++ {
				for col := 0; col < width; col++ {
					idx := row*width + col
					if s.Contains(pt(col, row)) {
						if done {
							t.Fatalf("cell (%d,%d) selected after run ended", col, row)
						}
						if inRun && idx != prev+1 {
							t.Fatalf("gap before (%d,%d)", col, row)
						}
						inRun, prev = true, idx
					} else if inRun {
						done = true
					}
				}
			}
			if first, last := start.Row*width+start.Column, end.Row*width+end.Column; prev != last || !s.Contains(start) {
				t.Errorf("run = ..%d, want %d..%d", prev, first, last)
			}
		})
	}
}

func TestSelection_StreamSpan(t *testing.T) {
	s := Selection{Mode: Stream, Anchor: pt(6, 3), Cursor: pt(2, 1)}

	tests := []struct {
		row      int
		from, to int
		ok       bool
	}{
		{0, 0, 0, false},
		{1, 2, 9, true},
		{2, 0, 9, true},
		{3, 0, 6, true},
		{4, 0, 0, false},
	}

	for _, tt := range tests {
		from, to, ok := s.Span(tt.row, 10)
		if from != tt.from || to != tt.to || ok != tt.ok {
			t.Errorf("Span(%d) = %d, %d, %v, want %d, %d, %v", tt.row, from, to, ok, tt.from, tt.to, tt.ok)
		}
	}
}

func TestSelection_Text(t *testing.T) {
	lines := textLines{
		0: "hello world",
		1: "second line",
		2: "abc",
	}

	tests := []struct {
		name string
		sel  Selection
		want string
	}{
		{"stream single row", Selection{Stream, pt(6, 0), pt(10, 0)}, "world"},
		{"stream across rows", Selection{Stream, pt(6, 0), pt(5, 1)}, "world\nsecond"},
		{"stream reversed", Selection{Stream, pt(5, 1), pt(6, 0)}, "world\nsecond"},
		{"block", Selection{Block, pt(1, 0), pt(3, 2)}, "ell\neco\nbc"},
		{"block past line end", Selection{Block, pt(5, 1), pt(8, 2)}, "d li\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sel.Text(lines); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModel_Lifecycle(t *testing.T) {
	m := NewModel()
	if m.Active() || m.Current() != nil {
		t.Fatalf("new model is active")
	}

	if m.Extend(pt(1, 1)) {
		t.Errorf("Extend() without selection = true, want false")
	}

	if !m.Start(pt(2, 1), true) {
		t.Fatalf("Start() = false, want true")
	}
	if m.Start(pt(9, 9), false) {
		t.Errorf("Start() with existing selection = true, want false")
	}

	first := m.Current()
	if !m.Extend(pt(5, 3)) {
		t.Fatalf("Extend() = false, want true")
	}
	got := m.Current()

	if got == first {
		t.Errorf("Extend() mutated the selection in place")
	}
	if first.Cursor != pt(2, 1) {
		t.Errorf("previous snapshot cursor = %v, want (2,1)", first.Cursor)
	}
	want := Selection{Mode: Block, Anchor: pt(2, 1), Cursor: pt(5, 3)}
	if *got != want {
		t.Errorf("Current() = %v, want %v", *got, want)
	}

	if !m.Clear() {
		t.Errorf("Clear() = false, want true")
	}
	if m.Clear() {
		t.Errorf("second Clear() = true, want false")
	}
	if m.Active() {
		t.Errorf("Active() after Clear() = true")
	}
}

func TestModel_ModeLockedAtStart(t *testing.T) {
	m := NewModel()
	m.Start(pt(0, 0), false)
	m.Extend(pt(3, 3))

	if got := m.Current().Mode; got != Stream {
		t.Errorf("Mode = %v, want %v", got, Stream)
	}
}

func TestModel_ConcurrentExtend(t *testing.T) {
	m := NewModel()
	m.Start(pt(0, 0), false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Extend(pt(j, i))
				if s := m.Current(); s != nil && s.Anchor != pt(0, 0) {
					t.Errorf("anchor changed to %v", s.Anchor)
				}
			}
		}(i)
	}
	wg.Wait()
}
