package session

import (
	"tterm/pkg/geometry"
	"tterm/pkg/serial"
	"tterm/pkg/terminal"
)

// SerialSession exchanges bytes with a serial device
type SerialSession struct {
	*base
	port   serial.Port
	config serial.SerialConfig
}

// NewSerial starts reading port into buffer. The session owns the port.
func NewSerial(port serial.Port, config serial.SerialConfig, buffer *terminal.ScreenBuffer) *SerialSession {
	s := &SerialSession{
		base:   newBase(config.String(), buffer, port),
		port:   port,
		config: config,
	}
	// the device has no notion of a window size
	buffer.OnResize(func(geometry.GridSize) { s.onBufferResize() })

	go s.run()
	return s
}

func (s *SerialSession) run() {
	err := s.readLoop(s.port)
	if s.isClosed() {
		err = nil
	}
	s.finish(err)
}

// Config returns the line settings
func (s *SerialSession) Config() serial.SerialConfig {
	return s.config
}

// Close closes the port, which ends the read loop
func (s *SerialSession) Close() error {
	if !s.markClosed() {
		return nil
	}
	return s.port.Close()
}
