package render

import (
	"sync"
	"sync/atomic"

	"tterm/pkg/scheduler"
	"tterm/pkg/selection"
	"tterm/pkg/terminal"
)

// Surface is the display the pipeline publishes to. Its methods are only
// called on the render loop.
type Surface interface {
	SetLineCount(n int)
	SetLine(row int, line terminal.FormattedLine, highlight Highlight)
	SetCursor(row, column int, visible bool)
	Clear()
	Show()
}

// Logger is used for debug output
type Logger interface {
	Debugf(format string, args ...interface{})
}

// frame is a snapshot of the visible window taken off the render loop
type frame struct {
	lines     []terminal.FormattedLine
	columns   int
	windowTop int
	cursorRow int
	cursorCol int
	selection *selection.Selection
	clear     bool
	seq       uint64
}

// Pipeline stages the visible buffer window and publishes it to a Surface
type Pipeline struct {
	poster  scheduler.Poster
	surface Surface
	arena   *LineArena
	buffer  func() terminal.Buffer

	mu     sync.Mutex
	staged *frame
	posted bool
	// seq numbers snapshots in the order they start; newest is the highest
	// sequence staged so far
	seq    uint64
	newest uint64

	cursorRow   atomic.Int64
	onPublished func()
	logger      Logger
}

// NewPipeline creates a pipeline. buffer returns the attached session's
// buffer, or nil when no session is attached.
func NewPipeline(poster scheduler.Poster, surface Surface, buffer func() terminal.Buffer) *Pipeline {
	return &Pipeline{
		poster:  poster,
		surface: surface,
		arena:   NewLineArena(),
		buffer:  buffer,
	}
}

// SetLogger sets the debug logger
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// OnPublished registers a function run on the render loop after each publish
func (p *Pipeline) OnPublished(fn func()) {
	p.onPublished = fn
}

// Lines returns the published rows
func (p *Pipeline) Lines() *LineArena {
	return p.arena
}

// CursorRow returns the cursor row recorded by the last publish
func (p *Pipeline) CursorRow() int {
	return int(p.cursorRow.Load())
}

// ForceRender snapshots the visible window and schedules a publish. Only the
// newest snapshot is kept, and at most one publish is queued at a time. It is
// safe to call from any goroutine: a snapshot that started before one already
// staged is dropped.
func (p *Pipeline) ForceRender() {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	f := p.snapshot()
	f.seq = seq

	p.mu.Lock()
	if seq < p.newest {
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.Debugf("dropped snapshot %d, %d is newer", seq, p.newest)
		}
		return
	}
	p.newest = seq
	p.staged = f
	if p.posted {
		p.mu.Unlock()
		return
	}
	p.posted = true
	p.mu.Unlock()

	p.poster.Post(p.publish)
}

func (p *Pipeline) snapshot() *frame {
	var buf terminal.Buffer
	if p.buffer != nil {
		buf = p.buffer()
	}
	if buf == nil {
		return &frame{clear: true}
	}

	size := buf.Size()
	top := buf.WindowTop()
	f := &frame{
		lines:     make([]terminal.FormattedLine, size.Rows),
		columns:   size.Columns,
		windowTop: top,
		cursorRow: buf.CursorRow(),
		cursorCol: buf.CursorColumn(),
		selection: buf.Selection(),
	}
	for row := range f.lines {
		f.lines[row] = buf.FormattedLine(top + row)
	}
	return f
}

// publish runs on the render loop
func (p *Pipeline) publish() {
	p.mu.Lock()
	f := p.staged
	p.staged = nil
	p.posted = false
	p.mu.Unlock()

	if f == nil {
		return
	}

	if f.clear {
		p.arena.Resize(0)
		p.surface.SetLineCount(0)
		p.surface.Clear()
		p.surface.Show()
		if p.logger != nil {
			p.logger.Debugf("no session, surface cleared")
		}
		p.published()
		return
	}

	p.cursorRow.Store(int64(f.cursorRow))

	p.arena.Resize(len(f.lines))
	p.surface.SetLineCount(len(f.lines))
	for row, content := range f.lines {
		line := Line{Content: content, Highlight: NoHighlight}
		if f.selection != nil {
			if from, to, ok := f.selection.Span(f.windowTop+row, f.columns); ok {
				line.Highlight = Highlight{From: from, To: to}
			}
		}
		p.arena.Set(row, line)
		p.surface.SetLine(row, line.Content, line.Highlight)
	}

	visible := f.cursorRow - f.windowTop
	p.surface.SetCursor(visible, f.cursorCol, visible >= 0 && visible < len(f.lines))
	p.surface.Show()
	p.published()
}

func (p *Pipeline) published() {
	if p.onPublished != nil {
		p.onPublished()
	}
}
