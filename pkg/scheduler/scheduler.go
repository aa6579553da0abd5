// Package scheduler decides whether a render request is served immediately or
// coalesced onto a fixed-interval ticker, based on how densely requests arrive.
package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Default tuning values
const (
	DefaultSamples  = 5
	DefaultTrigger  = 50 * time.Millisecond
	DefaultInterval = 50 * time.Millisecond
)

// Config holds the scheduler tuning values
type Config struct {
	// Samples is the number of recent request gaps kept
	Samples int `json:"samples" yaml:"samples"`
	// Trigger is the aggregate gap below which load is considered heavy
	Trigger time.Duration `json:"trigger" yaml:"trigger"`
	// Interval is the coalescing ticker period under heavy load
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// DefaultConfig returns 5 samples, a 50ms trigger and a 50ms interval
func DefaultConfig() Config {
	return Config{
		Samples:  DefaultSamples,
		Trigger:  DefaultTrigger,
		Interval: DefaultInterval,
	}
}

// Validate checks if the scheduler configuration is valid
func (c Config) Validate() error {
	if c.Samples < 1 {
		return fmt.Errorf("samples must be at least 1, got: %d", c.Samples)
	}
	if c.Trigger <= 0 {
		return fmt.Errorf("trigger must be positive, got: %v", c.Trigger)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got: %v", c.Interval)
	}
	return nil
}

// Renderer performs an unthrottled render
type Renderer interface {
	ForceRender()
}

// RendererFunc adapts a function to the Renderer interface
type RendererFunc func()

// ForceRender calls f()
func (f RendererFunc) ForceRender() { f() }

// Clock returns the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Ticker is a periodic wakeup that calls Scheduler.Tick while enabled.
// Enable and Disable must be idempotent. Disable is called with the
// scheduler locked, so it must not wait for a tick in progress.
type Ticker interface {
	Enable()
	Disable()
}

// Logger is used for debug output
type Logger interface {
	Debugf(format string, args ...interface{})
}

// IntervalWindow is a fixed-capacity ring of the most recent request gaps.
// Slots that were never written count as zero.
type IntervalWindow struct {
	gaps  []time.Duration
	index int
	count int
}

// NewIntervalWindow creates a window holding n gaps
func NewIntervalWindow(n int) *IntervalWindow {
	if n < 1 {
		n = 1
	}
	return &IntervalWindow{gaps: make([]time.Duration, n)}
}

// Record stores gap in the next slot, overwriting the oldest
func (w *IntervalWindow) Record(gap time.Duration) {
	w.gaps[w.index] = gap
	w.index = (w.index + 1) % len(w.gaps)
	if w.count < len(w.gaps) {
		w.count++
	}
}

// Sum returns the aggregate of all slots
func (w *IntervalWindow) Sum() time.Duration {
	var sum time.Duration
	for _, gap := range w.gaps {
		sum += gap
	}
	return sum
}

// Len returns the number of slots written so far, up to the capacity
func (w *IntervalWindow) Len() int {
	return w.count
}

// Cap returns the capacity
func (w *IntervalWindow) Cap() int {
	return len(w.gaps)
}

// Scheduler is a self-tuning debounce in front of a Renderer
type Scheduler struct {
	config    Config
	renderer  Renderer
	clock     Clock
	ticker    Ticker
	selecting func() bool
	logger    Logger

	pending atomic.Int64

	mu          sync.Mutex
	window      *IntervalWindow
	lastRequest time.Time
	heavy       bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithTicker sets the coalescing ticker
func WithTicker(ticker Ticker) Option {
	return func(s *Scheduler) { s.ticker = ticker }
}

// WithSelecting sets the predicate reporting whether a selection drag is in progress
func WithSelecting(selecting func() bool) Option {
	return func(s *Scheduler) { s.selecting = selecting }
}

// WithLogger sets the debug logger
func WithLogger(logger Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a scheduler rendering through renderer. An invalid config is
// replaced by the defaults.
func New(config Config, renderer Renderer, opts ...Option) *Scheduler {
	if config.Validate() != nil {
		config = DefaultConfig()
	}

	s := &Scheduler{
		config:    config,
		renderer:  renderer,
		clock:     SystemClock,
		ticker:    nopTicker{},
		selecting: func() bool { return false },
		window:    NewIntervalWindow(config.Samples),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the scheduler configuration
func (s *Scheduler) Config() Config {
	return s.config
}

// SetTicker replaces the coalescing ticker. The previous ticker is disabled.
func (s *Scheduler) SetTicker(ticker Ticker) {
	s.mu.Lock()
	old := s.ticker
	s.ticker = ticker
	s.mu.Unlock()

	old.Disable()
}

// Request asks for a render. It is safe to call from any goroutine.
func (s *Scheduler) Request() {
	s.pending.Add(1)

	s.mu.Lock()
	now := s.clock.Now()
	gap := now.Sub(s.lastRequest)
	// A zero lastRequest or a clock jump produces a huge or negative gap. Both
	// are clamped so the sum cannot overflow.
	if gap < 0 {
		gap = 0
	}
	if gap > s.config.Trigger {
		gap = s.config.Trigger
	}
	s.window.Record(gap)
	s.lastRequest = now
	load := s.window.Sum()

	heavy := load < s.config.Trigger && !s.selecting()
	s.heavy = heavy
	ticker := s.ticker
	s.mu.Unlock()

	if heavy {
		ticker.Enable()
		return
	}

	ticker.Disable()
	s.Flush()
}

// Flush takes and clears the pending flag and renders if it was set.
// It returns true if a render happened.
func (s *Scheduler) Flush() bool {
	if s.pending.Swap(0) <= 0 {
		return false
	}
	s.renderer.ForceRender()
	return true
}

// Tick is called by the ticker on each period. When nothing was pending the
// burst is over and the ticker is disabled.
func (s *Scheduler) Tick() {
	if s.Flush() {
		return
	}

	// Request bumps pending before it takes mu, so a request racing the empty
	// flush above is either seen here or classified after the ticker is off.
	s.mu.Lock()
	if s.pending.Load() > 0 {
		s.mu.Unlock()
		s.Flush()
		return
	}
	s.heavy = false
	s.ticker.Disable()
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debugf("scheduler idle, coalescing ticker disabled")
	}
}

// MarkRendered records the completion of a publish as the latest request time
func (s *Scheduler) MarkRendered() {
	s.mu.Lock()
	s.lastRequest = s.clock.Now()
	s.mu.Unlock()
}

// HeavyLoad reports the classification of the latest request
func (s *Scheduler) HeavyLoad() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heavy
}

// Pending reports whether a render is owed
func (s *Scheduler) Pending() bool {
	return s.pending.Load() > 0
}

type nopTicker struct{}

func (nopTicker) Enable()  {}
func (nopTicker) Disable() {}
