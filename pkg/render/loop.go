// Package render publishes the visible window of a terminal buffer onto a
// display surface. All surface mutation happens on a single Loop.
package render

import (
	"context"
	"sync"
)

// Loop is a single-consumer queue of functions. Everything posted runs in
// order on the goroutine that calls Run or Drain.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	signal chan struct{}
}

// NewLoop creates an empty loop
func NewLoop() *Loop {
	return &Loop{signal: make(chan struct{}, 1)}
}

// Post queues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of queued functions
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs everything queued so far, including functions queued while
// draining, and returns how many ran.
func (l *Loop) Drain() int {
	ran := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			fn()
		}
		ran += len(batch)
	}
}

// Run processes the queue until ctx is done
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.signal:
			l.Drain()
		}
	}
}
