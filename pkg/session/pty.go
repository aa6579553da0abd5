package session

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/creack/pty"
	"tterm/pkg/geometry"
	"tterm/pkg/terminal"
)

// ShellConfig describes the process run inside a PTY session
type ShellConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"cwd"`
	Env     []string `yaml:"env"`
}

// DefaultShell returns $SHELL, falling back to /bin/sh
func DefaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	return "/bin/sh"
}

// PTYSession runs a process on a pseudo terminal
type PTYSession struct {
	*base
	cmd  *exec.Cmd
	ptmx *os.File
}

// StartPTY starts the configured process sized to the buffer
func StartPTY(config ShellConfig, buffer *terminal.ScreenBuffer) (*PTYSession, error) {
	command := config.Command
	if command == "" {
		command = DefaultShell()
	}

	cmd := exec.Command(command, config.Args...)
	cmd.Dir = config.Dir
	cmd.Env = append(os.Environ(), "TERM=vt100")
	cmd.Env = append(cmd.Env, config.Env...)

	ptmx, err := pty.StartWithSize(cmd, winsize(buffer.Size()))
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}

	s := &PTYSession{
		base: newBase(filepath.Base(command), buffer, ptmx),
		cmd:  cmd,
		ptmx: ptmx,
	}
	buffer.OnResize(s.resize)

	go s.run()
	return s, nil
}

func winsize(size geometry.GridSize) *pty.Winsize {
	return &pty.Winsize{Rows: uint16(size.Rows), Cols: uint16(size.Columns)}
}

func (s *PTYSession) resize(size geometry.GridSize) {
	if s.isClosed() {
		return
	}
	if err := pty.Setsize(s.ptmx, winsize(size)); err != nil {
		s.logDebug("pty resize to %s failed: %v", size, err)
	}
	s.onBufferResize()
}

func (s *PTYSession) run() {
	if err := s.readLoop(s.ptmx); err != nil {
		s.logDebug("pty read ended: %v", err)
	}
	err := s.cmd.Wait()
	if s.isClosed() {
		err = nil
	}
	s.finish(err)
}

// Pid returns the process id of the child
func (s *PTYSession) Pid() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Close kills the child and closes the pseudo terminal
func (s *PTYSession) Close() error {
	if !s.markClosed() {
		return nil
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	if err := s.ptmx.Close(); err != nil {
		return fmt.Errorf("failed to close pty: %w", err)
	}
	return nil
}
