package control

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tterm/pkg/font"
	"tterm/pkg/geometry"
	"tterm/pkg/input"
	"tterm/pkg/render"
	"tterm/pkg/selection"
	"tterm/pkg/terminal"
)

type fakeSession struct {
	buf *terminal.ScreenBuffer

	mu        sync.Mutex
	written   []string
	pasted    []string
	listeners map[int]terminal.Listener
	next      int
}

func newFakeSession(cols, rows int) *fakeSession {
	return &fakeSession{
		buf:       terminal.NewScreenBuffer(geometry.GridSize{Columns: cols, Rows: rows}, terminal.DefaultScrollback),
		listeners: map[int]terminal.Listener{},
	}
}

func (s *fakeSession) ID() string              { return "fake" }
func (s *fakeSession) Name() string            { return "fake session" }
func (s *fakeSession) Buffer() terminal.Buffer { return s.buf }
func (s *fakeSession) Close() error            { return nil }

func (s *fakeSession) Write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, text)
	return nil
}

func (s *fakeSession) Paste(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pasted = append(s.pasted, text)
	return nil
}

func (s *fakeSession) Subscribe(l terminal.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *fakeSession) emit(ev terminal.Event) {
	s.mu.Lock()
	listeners := make([]terminal.Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

func (s *fakeSession) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) ReadText() (string, error) { return c.text, c.err }
func (c *fakeClipboard) WriteText(text string) error {
	c.text = text
	return c.err
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeTicker struct{ enabled bool }

func (t *fakeTicker) Enable()  { t.enabled = true }
func (t *fakeTicker) Disable() { t.enabled = false }

type countingSurface struct {
	lines  int
	clears int
}

func (s *countingSurface) SetLineCount(n int)                                    { s.lines = n }
func (s *countingSurface) SetLine(int, terminal.FormattedLine, render.Highlight) {}
func (s *countingSurface) SetCursor(int, int, bool)                              {}
func (s *countingSurface) Clear()                                                { s.clears++ }
func (s *countingSurface) Show()                                                 {}

// scaledMeasurer gives a 10x20 cell at 14pt, growing by one pixel per point
var scaledMeasurer = font.MeasurerFunc(func(cfg font.Config) (geometry.CellSize, error) {
	return geometry.CellSize{Width: cfg.Size - 4, Height: cfg.Size + 6}, nil
})

type harness struct {
	control   *Control
	loop      *render.Loop
	surface   *countingSurface
	clipboard *fakeClipboard
	clock     *fakeClock
	grids     []geometry.GridSize
	exits     []error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		loop:      render.NewLoop(),
		surface:   &countingSurface{},
		clipboard: &fakeClipboard{},
		clock:     &fakeClock{now: time.Unix(1000, 0)},
	}
	c, err := New(Options{
		Measurer:     scaledMeasurer,
		Loop:         h.loop,
		Surface:      h.surface,
		Clipboard:    h.clipboard,
		MinimumGrid:  geometry.GridSize{Columns: 10, Rows: 2},
		AutoSize:     true,
		OnGridChange: func(g geometry.GridSize) { h.grids = append(h.grids, g) },
		OnExit:       func(err error) { h.exits = append(h.exits, err) },
		Clock:        h.clock,
		Ticker:       &fakeTicker{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.control = c
	return h
}

// attach resizes the surface to 20x5 cells and attaches a session showing text
func (h *harness) attach(t *testing.T, text string) *fakeSession {
	t.Helper()
	if err := h.control.OnSurfaceResize(geometry.PixelSize{Width: 200, Height: 100}); err != nil {
		t.Fatalf("OnSurfaceResize() error = %v", err)
	}
	s := newFakeSession(20, 5)
	s.buf.Write([]byte(text))
	h.control.Attach(s)
	h.loop.Drain()
	return s
}

func TestNew_Errors(t *testing.T) {
	loop := render.NewLoop()
	surface := &countingSurface{}

	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{
			name:    "zero size measurement",
			opts:    Options{Loop: loop, Surface: surface, Measurer: font.Fixed(geometry.CellSize{})},
			wantErr: font.ErrInvalidMetrics,
		},
		{
			name: "font unavailable",
			opts: Options{Loop: loop, Surface: surface, Measurer: font.MeasurerFunc(func(font.Config) (geometry.CellSize, error) {
				return geometry.CellSize{}, font.ErrFontUnavailable
			})},
			wantErr: font.ErrFontUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := New(Options{Surface: surface}); err == nil {
		t.Errorf("New() without loop should fail")
	}
}

func TestControl_SurfaceResize(t *testing.T) {
	h := newHarness(t)
	s := h.attach(t, "")

	want := geometry.GridSize{Columns: 20, Rows: 5}
	if got := h.control.GridSize(); got != want {
		t.Errorf("GridSize() = %v, want %v", got, want)
	}
	if got := s.buf.Size(); got != want {
		t.Errorf("buffer size = %v, want %v", got, want)
	}
	if got, err := h.control.GetPreferredWindowSize(); err != nil || got != (geometry.PixelSize{Width: 200, Height: 100}) {
		t.Errorf("GetPreferredWindowSize() = %v, %v", got, err)
	}

	// Below the minimum footprint the grid stays at the minimum
	h.control.OnSurfaceResize(geometry.PixelSize{Width: 30, Height: 10})
	if got := h.control.GridSize(); got != (geometry.GridSize{Columns: 10, Rows: 2}) {
		t.Errorf("GridSize() = %v, want minimum", got)
	}

	// Same grid again is not a change
	h.control.OnSurfaceResize(geometry.PixelSize{Width: 31, Height: 11})
	if len(h.grids) != 2 {
		t.Errorf("OnGridChange calls = %d, want 2", len(h.grids))
	}

	if err := h.control.SetMinimumGridSize(geometry.GridSize{Columns: 12, Rows: 3}); err != nil {
		t.Fatalf("SetMinimumGridSize() error = %v", err)
	}
	if got := h.control.GridSize(); got != (geometry.GridSize{Columns: 12, Rows: 3}) {
		t.Errorf("GridSize() after SetMinimumGridSize = %v", got)
	}
}

func TestControl_SelectAndCopy(t *testing.T) {
	h := newHarness(t)
	s := h.attach(t, "hello\r\nworld")

	h.control.OnPointerDown(geometry.PixelPoint{X: 15, Y: 5}, ButtonLeft, 0)
	h.control.OnPointerDrag(geometry.PixelPoint{X: 45, Y: 25})
	h.control.OnPointerUp()

	sel := s.buf.Selection()
	if sel == nil {
		t.Fatal("buffer has no selection")
	}
	want := selection.Selection{
		Mode:   selection.Stream,
		Anchor: geometry.CellPoint{Column: 1, Row: 0},
		Cursor: geometry.CellPoint{Column: 4, Row: 1},
	}
	if *sel != want {
		t.Errorf("selection = %+v, want %+v", *sel, want)
	}

	// Drags after release do nothing
	h.control.OnPointerDrag(geometry.PixelPoint{X: 5, Y: 5})
	if got := s.buf.Selection().Cursor; got != want.Cursor {
		t.Errorf("cursor moved after release to %v", got)
	}

	h.control.OnPointerDown(geometry.PixelPoint{X: 5, Y: 5}, ButtonRight, 0)
	if h.clipboard.text != "ello\nworld" {
		t.Errorf("clipboard = %q, want %q", h.clipboard.text, "ello\nworld")
	}
	if s.buf.Selection() != nil || h.control.Selection() != nil {
		t.Errorf("selection not cleared after copy")
	}
	if len(s.pasted) != 0 {
		t.Errorf("copy also pasted %v", s.pasted)
	}
}

func TestControl_BlockSelection(t *testing.T) {
	h := newHarness(t)
	s := h.attach(t, "abcdefgh\r\nijklmnop\r\nqrstuvwx\r\nyz")

	h.control.OnPointerDown(geometry.PixelPoint{X: 55, Y: 65}, ButtonLeft, input.ModAlt)
	h.control.OnPointerDrag(geometry.PixelPoint{X: 25, Y: 25})
	h.control.OnPointerUp()

	sel := s.buf.Selection()
	if sel == nil || sel.Mode != selection.Block {
		t.Fatalf("selection = %+v, want block", sel)
	}
	if got := s.buf.CopySelection(); got != "klmn\nstuv\n" {
		t.Errorf("CopySelection() = %q, want %q", got, "klmn\nstuv\n")
	}
}

func TestControl_PointerOutsideLines(t *testing.T) {
	h := newHarness(t)
	s := h.attach(t, "text")

	h.control.OnPointerDown(geometry.PixelPoint{X: 15, Y: 500}, ButtonLeft, 0)
	if s.buf.Selection() != nil {
		t.Errorf("selection started below the rendered lines")
	}
}

func TestControl_PasteWithoutSelection(t *testing.T) {
	h := newHarness(t)
	s := h.attach(t, "")
	h.clipboard.text = "pasted"

	h.control.OnPointerDown(geometry.PixelPoint{X: 5, Y: 5}, ButtonMiddle, 0)
	if len(s.pasted) != 1 || s.pasted[0] != "pasted" {
		t.Errorf("pasted = %v, want [pasted]", s.pasted)
	}

	h.clipboard.err = errors.New("no clipboard")
	h.control.Paste()
	if len(s.pasted) != 1 {
		t.Errorf("paste with clipboard error sent %v", s.pasted)
	}
}

func TestControl_FocusGuard(t *testing.T) {
	h := newHarness(t)
	s := h.attach(t, "hello")

	h.control.OnFocus()
	h.clock.now = h.clock.now.Add(50 * time.Millisecond)
	h.control.OnPointerDown(geometry.PixelPoint{X: 5, Y: 5}, ButtonLeft, 0)
	if s.buf.Selection() != nil {
		t.Errorf("click inside the focus guard started a selection")
	}

	h.clock.now = h.clock.now.Add(100 * time.Millisecond)
	h.control.OnPointerDown(geometry.PixelPoint{X: 5, Y: 5}, ButtonLeft, 0)
	if s.buf.Selection() == nil {
		t.Errorf("click after the focus guard did not start a selection")
	}
}

func TestControl_OnKey(t *testing.T) {
	h := newHarness(t)

	if h.control.OnKey(input.KeyUp, 0) {
		t.Errorf("OnKey() without session = true")
	}

	s := h.attach(t, "hello")

	tests := []struct {
		name      string
		selecting bool
		key       input.Key
		mods      input.Modifiers
		handled   bool
		written   string
		keepsSel  bool
	}{
		{name: "up", key: input.KeyUp, handled: true, written: "\x1bOA"},
		{name: "ctrl delete", key: input.KeyDelete, mods: input.ModCtrl, handled: true, written: "\x1b[3;5~"},
		{name: "unmapped", key: input.KeyNone, handled: false},
		{name: "escape clears selection", selecting: true, key: input.KeyEscape, handled: true},
		{name: "key clears selection and writes", selecting: true, key: input.KeyReturn, handled: true, written: "\r"},
		{name: "alt keeps selection", selecting: true, key: input.KeyLeft, mods: input.ModAlt, handled: true, written: "\x1b[1;3D", keepsSel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.written = nil
			if tt.selecting {
				h.control.OnPointerDown(geometry.PixelPoint{X: 5, Y: 5}, ButtonLeft, 0)
				h.control.OnPointerUp()
			}

			if got := h.control.OnKey(tt.key, tt.mods); got != tt.handled {
				t.Errorf("OnKey() = %v, want %v", got, tt.handled)
			}

			var written string
			if len(s.written) > 0 {
				written = s.written[0]
			}
			if written != tt.written {
				t.Errorf("written = %q, want %q", written, tt.written)
			}
			if tt.selecting && (s.buf.Selection() != nil) != tt.keepsSel {
				t.Errorf("selection kept = %v, want %v", s.buf.Selection() != nil, tt.keepsSel)
			}
			h.control.selection.Clear()
			s.buf.SetSelection(nil)
		})
	}

	h.control.OnText("ls\n")
	if got := s.written[len(s.written)-1]; got != "ls\n" {
		t.Errorf("OnText wrote %q", got)
	}
}

func TestControl_OnWheel(t *testing.T) {
	h := newHarness(t)
	s := h.attach(t, "")
	for i := 0; i < 20; i++ {
		s.buf.Write([]byte("line\r\n"))
	}

	h.control.OnWheel(1, geometry.PixelPoint{}, 0)
	if got := s.buf.WindowTop(); got != -3 {
		t.Errorf("WindowTop() after wheel up = %d, want -3", got)
	}
	h.control.OnWheel(2, geometry.PixelPoint{}, 0)
	if got := s.buf.WindowTop(); got != -9 {
		t.Errorf("WindowTop() after wheel up = %d, want -9", got)
	}

	// Crossing the live top snaps to it
	h.control.OnWheel(-5, geometry.PixelPoint{}, 0)
	if got := s.buf.WindowTop(); got != 0 {
		t.Errorf("WindowTop() after wheel down = %d, want 0", got)
	}

	// Other modifiers are ignored
	h.control.OnWheel(1, geometry.PixelPoint{}, input.ModShift)
	if got := s.buf.WindowTop(); got != 0 {
		t.Errorf("WindowTop() after shift wheel = %d, want 0", got)
	}
}

func TestControl_WheelZoom(t *testing.T) {
	h := newHarness(t)
	h.attach(t, "")

	if err := h.control.OnWheel(1, geometry.PixelPoint{}, input.ModCtrl); err != nil {
		t.Fatalf("OnWheel() error = %v", err)
	}
	if got := h.control.Font().Size; got != 16 {
		t.Errorf("font size = %v, want 16", got)
	}
	if cell, _ := h.control.CellSize(); cell != (geometry.CellSize{Width: 12, Height: 22}) {
		t.Errorf("CellSize() = %v", cell)
	}
	// 200x100 pixels at 12x22 per cell
	if got := h.control.GridSize(); got != (geometry.GridSize{Columns: 16, Rows: 4}) {
		t.Errorf("GridSize() after zoom = %v, want 16x4", got)
	}

	for i := 0; i < 30; i++ {
		h.control.OnWheel(-1, geometry.PixelPoint{}, input.ModCtrl)
	}
	if got := h.control.Font().Size; got != font.MinSize {
		t.Errorf("font size = %v, want %v", got, font.MinSize)
	}
}

func TestControl_SetFontKeepsPreviousOnError(t *testing.T) {
	h := newHarness(t)
	if err := h.control.SetFont(font.Config{Family: "x", Size: 100, DPI: 96}); err == nil {
		t.Errorf("SetFont() with size 100 should fail")
	}
	if got := h.control.Font().Size; got != font.DefaultSize {
		t.Errorf("font size = %v, want %v", got, font.DefaultSize)
	}
}

func TestControl_SessionEvents(t *testing.T) {
	h := newHarness(t)
	s := h.attach(t, "hello")

	// A request long after the last publish renders immediately
	h.clock.now = h.clock.now.Add(time.Second)
	s.emit(terminal.Event{Type: terminal.EventOutput})
	if got := h.loop.Len(); got != 1 {
		t.Errorf("queued after output = %d, want 1", got)
	}
	h.loop.Drain()

	exitErr := errors.New("process exited")
	s.emit(terminal.Event{Type: terminal.EventExit, Err: exitErr})
	h.loop.Drain()

	if h.control.Session() != nil {
		t.Errorf("session still attached after exit")
	}
	if s.subscribers() != 0 {
		t.Errorf("subscribers = %d after exit, want 0", s.subscribers())
	}
	if len(h.exits) != 1 || !errors.Is(h.exits[0], exitErr) {
		t.Errorf("exits = %v", h.exits)
	}
	if h.surface.clears == 0 || h.surface.lines != 0 {
		t.Errorf("surface not cleared: clears=%d lines=%d", h.surface.clears, h.surface.lines)
	}

	// Input without a session is a no-op
	h.control.OnText("x")
	h.control.OnPointerDown(geometry.PixelPoint{}, ButtonLeft, 0)
}

func TestButton_String(t *testing.T) {
	tests := []struct {
		button Button
		want   string
	}{
		{ButtonLeft, "left"},
		{ButtonMiddle, "middle"},
		{ButtonRight, "right"},
		{Button(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.button.String(); got != tt.want {
			t.Errorf("Button.String() = %q, want %q", got, tt.want)
		}
	}
}
