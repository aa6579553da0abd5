// Package control composes cell metrics, coordinate mapping, selection,
// update scheduling, rendering and input encoding into one terminal view
// bound to a session.
//
// Pointer, key, focus and resize handlers must be called on the render loop.
// RequestRender and ForceRender are safe from any goroutine.
package control

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tterm/pkg/font"
	"tterm/pkg/geometry"
	"tterm/pkg/input"
	"tterm/pkg/render"
	"tterm/pkg/scheduler"
	"tterm/pkg/selection"
	"tterm/pkg/terminal"
)

// Defaults for Options left zero
const (
	DefaultScrollLines = 3
	DefaultFocusGuard  = 100 * time.Millisecond
)

// Button identifies a pointer button
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// String returns the string representation of the button
func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	default:
		return "unknown"
	}
}

// Clipboard is the system clipboard
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// Logger is used for debug output
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Options configures a Control
type Options struct {
	Font     font.Config
	Measurer font.Measurer

	Loop      *render.Loop
	Surface   render.Surface
	Clipboard Clipboard

	Scheduler   scheduler.Config
	MinimumGrid geometry.GridSize
	Padding     geometry.PixelSize
	ScrollLines int
	FocusGuard  time.Duration
	// AutoSize resizes the buffer to fit the surface. When false the grid
	// stays at whatever the session chose.
	AutoSize bool

	// SurfaceSize reports the current surface size in pixels. When nil the
	// size from the latest OnSurfaceResize is used to refit after a font change.
	SurfaceSize func() geometry.PixelSize
	// OnGridChange is called after the grid is resized to fit the surface
	OnGridChange func(geometry.GridSize)
	// OnExit is called on the render loop when the attached session ends
	OnExit func(err error)

	Clock  scheduler.Clock
	Ticker scheduler.Ticker
	Logger Logger
}

// Control is a terminal view bound to at most one session
type Control struct {
	opts Options

	metrics   *font.Metrics
	mapper    *geometry.Mapper
	selection *selection.Model
	scheduler *scheduler.Scheduler
	pipeline  *render.Pipeline
	loop      *render.Loop
	ticker    scheduler.Ticker

	mu          sync.RWMutex
	session     terminal.Session
	unsubscribe func()
	surface     geometry.PixelSize
	focusedAt   time.Time

	grid     atomic.Pointer[geometry.GridSize]
	dragging atomic.Bool
}

// New creates a control. It fails when the font cannot be measured.
func New(opts Options) (*Control, error) {
	if opts.Loop == nil {
		return nil, errors.New("render loop is required")
	}
	if opts.Surface == nil {
		return nil, errors.New("surface is required")
	}
	if opts.Measurer == nil {
		opts.Measurer = font.NewOpenTypeMeasurer()
	}
	if opts.Font == (font.Config{}) {
		opts.Font = font.DefaultConfig()
	}
	if err := opts.Font.Validate(); err != nil {
		return nil, fmt.Errorf("invalid font config: %w", err)
	}
	if opts.ScrollLines <= 0 {
		opts.ScrollLines = DefaultScrollLines
	}
	if opts.FocusGuard <= 0 {
		opts.FocusGuard = DefaultFocusGuard
	}
	if opts.Clock == nil {
		opts.Clock = scheduler.SystemClock
	}
	if opts.Scheduler == (scheduler.Config{}) {
		opts.Scheduler = scheduler.DefaultConfig()
	}

	c := &Control{
		opts:      opts,
		metrics:   font.NewMetrics(opts.Measurer, opts.Font),
		selection: selection.NewModel(),
		loop:      opts.Loop,
	}

	cell, err := c.metrics.CellSize()
	if err != nil {
		return nil, err
	}

	c.mapper = geometry.NewMapper(c.metrics)
	if opts.MinimumGrid != (geometry.GridSize{}) {
		c.mapper.SetMinimum(opts.MinimumGrid)
	}
	c.mapper.SetPadding(opts.Padding)

	c.pipeline = render.NewPipeline(c.loop, opts.Surface, c.buffer)
	c.pipeline.Lines().SetCellWidth(cell.Width)
	if opts.Logger != nil {
		c.pipeline.SetLogger(opts.Logger)
	}

	schedOpts := []scheduler.Option{
		scheduler.WithClock(opts.Clock),
		scheduler.WithSelecting(c.selecting),
	}
	if opts.Logger != nil {
		schedOpts = append(schedOpts, scheduler.WithLogger(opts.Logger))
	}
	c.scheduler = scheduler.New(opts.Scheduler, c.pipeline, schedOpts...)

	c.ticker = opts.Ticker
	if c.ticker == nil {
		c.ticker = scheduler.NewIntervalTicker(c.scheduler.Config().Interval, c.loop, c.scheduler.Tick)
	}
	c.scheduler.SetTicker(c.ticker)
	c.pipeline.OnPublished(c.scheduler.MarkRendered)

	grid := c.mapper.Minimum()
	c.grid.Store(&grid)
	return c, nil
}

// Close detaches the session and stops the coalescing ticker
func (c *Control) Close() {
	c.Detach()
	c.ticker.Disable()
}

func (c *Control) debugf(format string, args ...interface{}) {
	if c.opts.Logger != nil {
		c.opts.Logger.Debugf(format, args...)
	}
}

func (c *Control) selecting() bool {
	return c.dragging.Load() && c.selection.Active()
}

// Session returns the attached session, or nil
func (c *Control) Session() terminal.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Control) buffer() terminal.Buffer {
	if s := c.Session(); s != nil {
		return s.Buffer()
	}
	return nil
}

// Attach binds s to the control, replacing any attached session
func (c *Control) Attach(s terminal.Session) {
	if s == nil {
		c.Detach()
		return
	}
	c.Detach()

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	unsubscribe := s.Subscribe(func(ev terminal.Event) {
		c.handleEvent(s, ev)
	})

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	if c.opts.AutoSize {
		s.Buffer().SetSize(c.GridSize())
	}
	c.debugf("attached session %s (%s)", s.ID(), s.Name())
	c.ForceRender()
}

// Detach unbinds the attached session. The surface is cleared.
func (c *Control) Detach() {
	c.mu.Lock()
	s, unsubscribe := c.session, c.unsubscribe
	c.session, c.unsubscribe = nil, nil
	c.mu.Unlock()

	if s == nil {
		return
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	c.selection.Clear()
	c.dragging.Store(false)
	c.debugf("detached session %s", s.ID())
	c.ForceRender()
}

// handleEvent runs on the session's I/O goroutine
func (c *Control) handleEvent(s terminal.Session, ev terminal.Event) {
	switch ev.Type {
	case terminal.EventOutput, terminal.EventResize:
		c.RequestRender()
	case terminal.EventExit:
		c.loop.Post(func() {
			if c.Session() != s {
				return
			}
			c.Detach()
			if c.opts.OnExit != nil {
				c.opts.OnExit(ev.Err)
			}
		})
	}
}

// RequestRender asks the scheduler for a render
func (c *Control) RequestRender() {
	c.scheduler.Request()
}

// ForceRender renders without throttling
func (c *Control) ForceRender() {
	c.pipeline.ForceRender()
}

// CursorRow returns the cursor row of the last published frame
func (c *Control) CursorRow() int {
	return c.pipeline.CursorRow()
}

// Selection returns the current selection, or nil
func (c *Control) Selection() *selection.Selection {
	return c.selection.Current()
}

// GridSize returns the current grid size
func (c *Control) GridSize() geometry.GridSize {
	return *c.grid.Load()
}

// CellSize returns the measured cell size of the active font
func (c *Control) CellSize() (geometry.CellSize, error) {
	return c.metrics.CellSize()
}

// Font returns the active font configuration
func (c *Control) Font() font.Config {
	return c.metrics.Config()
}

// SetMinimumGridSize changes the minimum grid size and refits the grid
func (c *Control) SetMinimumGridSize(min geometry.GridSize) error {
	c.mapper.SetMinimum(min)
	return c.refit()
}

// GetPreferredWindowSize returns the pixel size that fits the current grid exactly
func (c *Control) GetPreferredWindowSize() (geometry.PixelSize, error) {
	return c.mapper.GridToWindowSize(c.GridSize())
}

// SetFont switches to cfg and refits the grid. The previous font stays
// active when cfg cannot be measured.
func (c *Control) SetFont(cfg font.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid font config: %w", err)
	}

	previous := c.metrics.Config()
	if !c.metrics.SetConfig(cfg) {
		return nil
	}

	cell, err := c.metrics.CellSize()
	if err != nil {
		c.metrics.SetConfig(previous)
		return err
	}
	c.pipeline.Lines().SetCellWidth(cell.Width)
	c.debugf("font set to %s %vpt, cell %vx%v", cfg.Family, cfg.Size, cell.Width, cell.Height)

	return c.refit()
}

// Zoom changes the font size by steps of font.ZoomStep
func (c *Control) Zoom(steps int) error {
	return c.SetFont(c.metrics.Config().Zoom(float64(steps * font.ZoomStep)))
}

// OnSurfaceResize fits the grid to a new surface size
func (c *Control) OnSurfaceResize(size geometry.PixelSize) error {
	c.mu.Lock()
	c.surface = size
	c.mu.Unlock()

	return c.fit(size)
}

func (c *Control) refit() error {
	size := c.surfaceSize()
	if size == (geometry.PixelSize{}) {
		return nil
	}
	return c.fit(size)
}

func (c *Control) surfaceSize() geometry.PixelSize {
	if c.opts.SurfaceSize != nil {
		return c.opts.SurfaceSize()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.surface
}

func (c *Control) fit(size geometry.PixelSize) error {
	grid, err := c.mapper.WindowSizeToGrid(size)
	if err != nil {
		return fmt.Errorf("failed to fit grid: %w", err)
	}
	if !c.opts.AutoSize || grid == c.GridSize() {
		return nil
	}

	c.grid.Store(&grid)
	if buf := c.buffer(); buf != nil {
		buf.SetSize(grid)
	}
	c.debugf("grid resized to %s", grid)
	if c.opts.OnGridChange != nil {
		c.opts.OnGridChange(grid)
	}
	c.ForceRender()
	return nil
}

// OnFocus records when the view gained focus
func (c *Control) OnFocus() {
	c.mu.Lock()
	c.focusedAt = c.opts.Clock.Now()
	c.mu.Unlock()
}

// withinFocusGuard reports whether a click would be the one that focused the view
func (c *Control) withinFocusGuard() bool {
	c.mu.RLock()
	focusedAt := c.focusedAt
	c.mu.RUnlock()

	return !focusedAt.IsZero() && c.opts.Clock.Now().Sub(focusedAt) < c.opts.FocusGuard
}

// cellAt maps a pointer position to a buffer cell
func (c *Control) cellAt(buf terminal.Buffer, p geometry.PixelPoint) (geometry.CellPoint, bool) {
	return c.mapper.PixelToCell(p, buf.WindowTop(), c.pipeline.Lines())
}

// OnPointerDown starts a selection with the left button. Middle and right
// copy an existing selection, or paste when there is none.
func (c *Control) OnPointerDown(p geometry.PixelPoint, button Button, mods input.Modifiers) {
	if c.withinFocusGuard() {
		return
	}
	s := c.Session()
	if s == nil {
		return
	}
	buf := s.Buffer()

	switch button {
	case ButtonLeft:
		cell, ok := c.cellAt(buf, p)
		if !ok {
			return
		}
		c.selection.Clear()
		c.selection.Start(cell, mods.Has(input.ModAlt))
		c.dragging.Store(true)
		buf.SetSelection(c.selection.Current())
		c.ForceRender()

	case ButtonMiddle, ButtonRight:
		if c.selection.Active() {
			c.copySelection(buf)
			return
		}
		c.paste(s)
	}
}

// OnPointerDrag extends the selection while the left button is held
func (c *Control) OnPointerDrag(p geometry.PixelPoint) {
	if !c.dragging.Load() {
		return
	}
	s := c.Session()
	if s == nil {
		return
	}
	buf := s.Buffer()

	cell, ok := c.cellAt(buf, p)
	if !ok || !c.selection.Extend(cell) {
		return
	}
	buf.SetSelection(c.selection.Current())
	c.ForceRender()
}

// OnPointerUp ends a drag. The selection stays until cleared.
func (c *Control) OnPointerUp() {
	c.dragging.Store(false)
}

// OnWheel scrolls by lines notches, positive meaning back into scrollback.
// With Ctrl held it zooms the font instead.
func (c *Control) OnWheel(lines int, p geometry.PixelPoint, mods input.Modifiers) error {
	if lines == 0 {
		return nil
	}
	if mods == input.ModCtrl {
		if lines > 0 {
			return c.Zoom(1)
		}
		return c.Zoom(-1)
	}
	if mods != 0 {
		return nil
	}

	s := c.Session()
	if s == nil {
		return nil
	}
	buf := s.Buffer()

	offset := -lines * c.opts.ScrollLines
	if top := buf.WindowTop(); top+offset > 0 {
		offset = -top
	}
	buf.Scroll(offset)

	if c.selecting() {
		if cell, ok := c.cellAt(buf, p); ok && c.selection.Extend(cell) {
			buf.SetSelection(c.selection.Current())
		}
	}
	c.ForceRender()
	return nil
}

// OnKey encodes key and writes it to the session. A key pressed without Alt
// clears an existing selection, and Escape used that way is consumed. It
// returns false when the key is not handled.
func (c *Control) OnKey(key input.Key, mods input.Modifiers) bool {
	s := c.Session()
	if s == nil {
		return false
	}

	if c.selection.Active() && !mods.Has(input.ModAlt) {
		c.clearSelection(s.Buffer())
		if key == input.KeyEscape {
			return true
		}
	}

	seq, ok := input.Encode(key, mods)
	if !ok {
		return false
	}
	if err := s.Write(seq); err != nil {
		c.debugf("write %s failed: %v", key, err)
	}
	return true
}

// OnText writes typed text verbatim
func (c *Control) OnText(text string) {
	s := c.Session()
	if s == nil || text == "" {
		return
	}
	if err := s.Write(input.EncodeText(text)); err != nil {
		c.debugf("write text failed: %v", err)
	}
}

// Copy copies the selection to the clipboard and clears it. It returns false
// when there is no selection.
func (c *Control) Copy() bool {
	s := c.Session()
	if s == nil || !c.selection.Active() {
		return false
	}
	c.copySelection(s.Buffer())
	return true
}

// Paste sends the clipboard text to the session
func (c *Control) Paste() {
	if s := c.Session(); s != nil {
		c.paste(s)
	}
}

func (c *Control) copySelection(buf terminal.Buffer) {
	text := buf.CopySelection()
	if c.opts.Clipboard != nil && text != "" {
		if err := c.opts.Clipboard.WriteText(text); err != nil {
			c.debugf("clipboard write failed: %v", err)
		}
	}
	c.clearSelection(buf)
}

func (c *Control) paste(s terminal.Session) {
	if c.opts.Clipboard == nil {
		return
	}
	text, err := c.opts.Clipboard.ReadText()
	if err != nil {
		c.debugf("clipboard read failed: %v", err)
		return
	}
	if text == "" {
		return
	}
	if err := s.Paste(text); err != nil {
		c.debugf("paste failed: %v", err)
	}
}

func (c *Control) clearSelection(buf terminal.Buffer) {
	c.selection.Clear()
	c.dragging.Store(false)
	buf.SetSelection(nil)
	c.ForceRender()
}
