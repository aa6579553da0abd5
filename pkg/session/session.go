// Package session connects a ScreenBuffer to a local shell or a serial device
package session

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tterm/pkg/history"
	"tterm/pkg/terminal"
)

// ErrClosed is returned when writing to a session that has ended
var ErrClosed = errors.New("session is closed")

const readBufferSize = 4096

// Stats are the transfer counters of a session
type Stats struct {
	StartTime time.Time
	EndTime   *time.Time
	BytesSent int64
	BytesRecv int64
}

// Duration returns how long the session ran, or has run so far
func (s Stats) Duration() time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// base holds what every transport shares: the buffer, the listeners and
// the counters
type base struct {
	id     string
	name   string
	buffer *terminal.ScreenBuffer
	out    io.Writer

	mu        sync.RWMutex
	listeners map[int]terminal.Listener
	nextID    int
	stats     Stats
	closed    bool
	logger    terminal.Logger
	recorder  *history.Recorder

	done chan struct{}
}

func newBase(name string, buffer *terminal.ScreenBuffer, out io.Writer) *base {
	return &base{
		id:        uuid.NewString(),
		name:      name,
		buffer:    buffer,
		out:       out,
		listeners: make(map[int]terminal.Listener),
		stats:     Stats{StartTime: time.Now()},
		done:      make(chan struct{}),
	}
}

// ID returns the unique session id
func (s *base) ID() string { return s.id }

// Name returns a human readable description
func (s *base) Name() string { return s.name }

// Buffer returns the buffer the session writes to
func (s *base) Buffer() terminal.Buffer { return s.buffer }

// ScreenBuffer returns the concrete buffer
func (s *base) ScreenBuffer() *terminal.ScreenBuffer { return s.buffer }

// SetLogger sets the debug logger
func (s *base) SetLogger(logger terminal.Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// SetRecorder records the traffic from now on. nil stops recording.
func (s *base) SetRecorder(r *history.Recorder) {
	s.mu.Lock()
	s.recorder = r
	s.mu.Unlock()
}

func (s *base) record(data []byte, direction history.Direction) {
	s.mu.RLock()
	r := s.recorder
	s.mu.RUnlock()
	if r != nil {
		r.Record(data, direction)
	}
}

func (s *base) logDebug(format string, args ...interface{}) {
	s.mu.RLock()
	logger := s.logger
	s.mu.RUnlock()
	if logger != nil {
		logger.Debugf(format, args...)
	}
}

// Subscribe registers a listener. The returned function removes it.
func (s *base) Subscribe(listener terminal.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *base) emit(ev terminal.Event) {
	s.mu.RLock()
	listeners := make([]terminal.Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

// Write sends encoded input to the process or device
func (s *base) Write(text string) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	n, err := io.WriteString(s.out, text)
	s.mu.Lock()
	s.stats.BytesSent += int64(n)
	s.mu.Unlock()
	if n > 0 {
		s.record([]byte(text[:n]), history.DirectionInput)
	}
	if err != nil {
		return fmt.Errorf("failed to write to session: %w", err)
	}
	return nil
}

// Paste sends clipboard text with line endings turned into carriage returns
func (s *base) Paste(text string) error {
	return s.Write(pasteText(text))
}

func pasteText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\r")
	return strings.ReplaceAll(text, "\n", "\r")
}

// Stats returns a snapshot of the counters
func (s *base) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Done is closed once the session has ended and EventExit was delivered
func (s *base) Done() <-chan struct{} {
	return s.done
}

// markClosed reports whether this call closed the session
func (s *base) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *base) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// readLoop copies r into the buffer until r fails. A zero-byte read without
// an error is a read timeout and is skipped.
func (s *base) readLoop(r io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.buffer.Write(buf[:n])
			s.mu.Lock()
			s.stats.BytesRecv += int64(n)
			s.mu.Unlock()
			s.record(buf[:n], history.DirectionOutput)
			s.emit(terminal.Event{Type: terminal.EventOutput})
		}
		if err != nil {
			return err
		}
	}
}

func (s *base) onBufferResize() {
	s.emit(terminal.Event{Type: terminal.EventResize})
}

// finish records the end time, notifies listeners and closes Done
func (s *base) finish(err error) {
	now := time.Now()
	s.mu.Lock()
	s.closed = true
	s.stats.EndTime = &now
	s.mu.Unlock()

	if err != nil {
		s.logDebug("session %s ended: %v", s.name, err)
	} else {
		s.logDebug("session %s ended", s.name)
	}
	s.emit(terminal.Event{Type: terminal.EventExit, Err: err})
	close(s.done)
}
