// Package history records the traffic of a session so it can be saved as a
// transcript when the session ends
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes bounds a recorder created with a non-positive limit
const DefaultMaxBytes = 4 * 1024 * 1024

// Direction represents the direction of data flow
type Direction int

const (
	// DirectionInput is data sent to the session
	DirectionInput Direction = iota
	// DirectionOutput is data received from the session
	DirectionOutput
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "unknown"
	}
}

// MarshalJSON writes the direction by name
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// FileFormat selects how a transcript is written
type FileFormat int

const (
	// FormatPlainText writes the received bytes only
	FormatPlainText FileFormat = iota
	// FormatTimestamped writes one line per chunk in both directions
	FormatTimestamped
	FormatJSON
)

// String returns the string representation of FileFormat
func (f FileFormat) String() string {
	switch f {
	case FormatPlainText:
		return "plain"
	case FormatTimestamped:
		return "timestamped"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// FormatForPath picks a format from the file extension: .json is JSON,
// .raw is plain text and anything else is timestamped
func FormatForPath(path string) FileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".raw":
		return FormatPlainText
	default:
		return FormatTimestamped
	}
}

// Entry is one chunk of traffic
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	Data      []byte    `json:"data"`
}

// Stats summarizes what a recorder holds
type Stats struct {
	Entries       int `json:"entries"`
	InputBytes    int `json:"input_bytes"`
	OutputBytes   int `json:"output_bytes"`
	DroppedChunks int `json:"dropped_chunks"`
}

// Recorder keeps the most recent traffic up to a byte limit, dropping the
// oldest chunks first. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	entries  []Entry
	size     int
	maxBytes int
	dropped  int
	now      func() time.Time
}

// NewRecorder creates a recorder holding at most maxBytes of traffic
func NewRecorder(maxBytes int) *Recorder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Recorder{maxBytes: maxBytes, now: time.Now}
}

// Record copies data into the transcript. Chunks larger than the limit keep
// only their tail.
func (r *Recorder) Record(data []byte, direction Direction) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(data) > r.maxBytes {
		data = data[len(data)-r.maxBytes:]
	}
	for r.size+len(data) > r.maxBytes && len(r.entries) > 0 {
		r.size -= len(r.entries[0].Data)
		r.entries[0] = Entry{}
		r.entries = r.entries[1:]
		r.dropped++
	}

	r.entries = append(r.entries, Entry{
		Timestamp: r.now(),
		Direction: direction,
		Data:      append([]byte(nil), data...),
	})
	r.size += len(data)
}

// Size returns the number of bytes held
func (r *Recorder) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Entries returns a copy of the held chunks, oldest first
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Stats returns byte counts per direction
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{Entries: len(r.entries), DroppedChunks: r.dropped}
	for _, e := range r.entries {
		if e.Direction == DirectionInput {
			stats.InputBytes += len(e.Data)
		} else {
			stats.OutputBytes += len(e.Data)
		}
	}
	return stats
}

// Clear drops everything recorded
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.size = 0
	r.dropped = 0
}

// Export writes the transcript to w in format
func (r *Recorder) Export(w io.Writer, format FileFormat) error {
	entries := r.Entries()
	switch format {
	case FormatPlainText:
		return writePlainText(w, entries)
	case FormatTimestamped:
		return writeTimestamped(w, entries)
	case FormatJSON:
		return writeJSON(w, entries)
	default:
		return fmt.Errorf("unsupported format: %v", format)
	}
}

// Save writes the transcript to path, replacing it atomically
func (r *Recorder) Save(path string, format FileFormat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := r.Export(file, format); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return os.Rename(tmp, path)
}

func writePlainText(w io.Writer, entries []Entry) error {
	for _, entry := range entries {
		if entry.Direction != DirectionOutput {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
	}
	return nil
}

func writeTimestamped(w io.Writer, entries []Entry) error {
	for _, entry := range entries {
		direction := "<<"
		if entry.Direction == DirectionOutput {
			direction = ">>"
		}

		line := fmt.Sprintf("[%s] %s %q\n",
			entry.Timestamp.Format("2006-01-02 15:04:05.000"),
			direction,
			entry.Data)

		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("failed to write timestamped data: %w", err)
		}
	}
	return nil
}

func writeJSON(w io.Writer, entries []Entry) error {
	type jsonEntry struct {
		Timestamp time.Time `json:"timestamp"`
		Direction Direction `json:"direction"`
		Text      string    `json:"text"`
	}

	out := struct {
		Entries []jsonEntry `json:"entries"`
		Count   int         `json:"count"`
	}{
		Entries: make([]jsonEntry, 0, len(entries)),
		Count:   len(entries),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, jsonEntry{Timestamp: e.Timestamp, Direction: e.Direction, Text: string(e.Data)})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
