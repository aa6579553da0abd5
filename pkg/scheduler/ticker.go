package scheduler

import (
	"sync"
	"time"
)

// Poster hands a function to the goroutine that owns the display
type Poster interface {
	Post(fn func())
}

// IntervalTicker is a Ticker backed by time.Ticker. Each period it posts tick
// onto the UI loop instead of calling it directly.
type IntervalTicker struct {
	interval time.Duration
	poster   Poster
	tick     func()

	mu      sync.Mutex
	stop    chan struct{}
	enabled bool
}

// NewIntervalTicker creates a disabled ticker
func NewIntervalTicker(interval time.Duration, poster Poster, tick func()) *IntervalTicker {
	return &IntervalTicker{
		interval: interval,
		poster:   poster,
		tick:     tick,
	}
}

// Enable starts the ticker if it is not already running
func (t *IntervalTicker) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enabled {
		return
	}
	t.enabled = true
	t.stop = make(chan struct{})
	go t.run(t.stop)
}

// Disable stops the ticker if it is running
func (t *IntervalTicker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}
	t.enabled = false
	close(t.stop)
}

// Enabled reports whether the ticker is running
func (t *IntervalTicker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *IntervalTicker) run(stop <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.poster.Post(t.tick)
		}
	}
}
