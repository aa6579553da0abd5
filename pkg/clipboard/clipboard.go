// Package clipboard reads and writes the system clipboard through the
// platform's command-line tools
package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// ErrUnsupported is returned when no clipboard tool is available
var ErrUnsupported = errors.New("clipboard not supported")

// command is a program and its arguments
type command struct {
	name string
	args []string
}

// tools holds the copy and paste commands for one platform
type tools struct {
	copy  command
	paste command
}

// detect picks clipboard tools for goos. wayland reports whether a Wayland
// session is running.
func detect(goos string, wayland bool) (tools, bool) {
	switch goos {
	case "darwin":
		return tools{copy: command{name: "pbcopy"}, paste: command{name: "pbpaste"}}, true
	case "linux", "freebsd", "openbsd", "netbsd":
		if wayland {
			return tools{
				copy:  command{name: "wl-copy"},
				paste: command{name: "wl-paste", args: []string{"--no-newline"}},
			}, true
		}
		return tools{
			copy:  command{name: "xclip", args: []string{"-selection", "clipboard"}},
			paste: command{name: "xclip", args: []string{"-selection", "clipboard", "-o"}},
		}, true
	case "windows":
		return tools{
			copy:  command{name: "clip"},
			paste: command{name: "powershell", args: []string{"-NoProfile", "-Command", "Get-Clipboard -Raw"}},
		}, true
	default:
		return tools{}, false
	}
}

// System is the platform clipboard
type System struct {
	tools tools
	ok    bool
}

// NewSystem detects the clipboard tools for the running platform
func NewSystem() *System {
	t, ok := detect(runtime.GOOS, os.Getenv("WAYLAND_DISPLAY") != "")
	return &System{tools: t, ok: ok}
}

// Available reports whether the copy tool can be found on PATH
func (s *System) Available() bool {
	if !s.ok {
		return false
	}
	_, err := exec.LookPath(s.tools.copy.name)
	return err == nil
}

// WriteText copies text to the clipboard
func (s *System) WriteText(text string) error {
	if !s.ok {
		return fmt.Errorf("%w on %s", ErrUnsupported, runtime.GOOS)
	}

	c := exec.Command(s.tools.copy.name, s.tools.copy.args...)
	c.Stdin = strings.NewReader(text)
	if err := c.Run(); err != nil {
		return fmt.Errorf("failed to run %s: %w", s.tools.copy.name, err)
	}
	return nil
}

// ReadText returns the clipboard text
func (s *System) ReadText() (string, error) {
	if !s.ok {
		return "", fmt.Errorf("%w on %s", ErrUnsupported, runtime.GOOS)
	}

	var out bytes.Buffer
	c := exec.Command(s.tools.paste.name, s.tools.paste.args...)
	c.Stdout = &out
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("failed to run %s: %w", s.tools.paste.name, err)
	}
	return out.String(), nil
}

// Memory is an in-process clipboard used when no system tool is available
type Memory struct {
	mu   sync.Mutex
	text string
}

// WriteText stores text
func (m *Memory) WriteText(text string) error {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
	return nil
}

// ReadText returns the stored text
func (m *Memory) ReadText() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

// Clipboard is implemented by System and Memory
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// Default returns the system clipboard when its tools are installed and an
// in-process one otherwise
func Default() Clipboard {
	if s := NewSystem(); s.Available() {
		return s
	}
	return &Memory{}
}
