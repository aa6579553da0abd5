// Package serial opens and enumerates serial ports for serial sessions
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ValidBaudRates lists the supported line speeds
var ValidBaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// ValidParities lists the supported parity names
var ValidParities = []string{"none", "odd", "even", "mark", "space"}

// ErrNotOpen is returned by operations on a closed port
var ErrNotOpen = errors.New("serial port is not open")

// SerialConfig defines the line settings of a serial session
type SerialConfig struct {
	Port     string        `json:"port" yaml:"port"`
	BaudRate int           `json:"baud_rate" yaml:"baud_rate"`
	DataBits int           `json:"data_bits" yaml:"data_bits"`
	StopBits int           `json:"stop_bits" yaml:"stop_bits"`
	Parity   string        `json:"parity" yaml:"parity"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// Validate checks the port name and the line settings
func (c SerialConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	return c.ValidateLine()
}

// ValidateLine checks everything except the port name
func (c SerialConfig) ValidateLine() error {
	if !slices.Contains(ValidBaudRates, c.BaudRate) {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("data bits must be between 5 and 8, got: %d", c.DataBits)
	}
	if c.StopBits < 1 || c.StopBits > 2 {
		return fmt.Errorf("stop bits must be 1 or 2, got: %d", c.StopBits)
	}
	if !slices.Contains(ValidParities, c.Parity) {
		return fmt.Errorf("invalid parity: %s", c.Parity)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// String returns the settings in the usual 115200 8N1 notation
func (c SerialConfig) String() string {
	parity := "N"
	if c.Parity != "" {
		parity = strings.ToUpper(c.Parity[:1])
	}
	return fmt.Sprintf("%s %d %d%s%d", c.Port, c.BaudRate, c.DataBits, parity, c.StopBits)
}

// DefaultConfig returns 115200 8N1 with no port selected
func DefaultConfig() SerialConfig {
	return SerialConfig{
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  time.Second,
	}
}

// Port is an open serial line
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens a port for a configuration
type Opener func(config SerialConfig) (Port, error)

// Device is a Port backed by go.bug.st/serial. It is safe for one reader
// and one writer at a time.
type Device struct {
	mu     sync.RWMutex
	port   serial.Port
	config SerialConfig
}

// Open opens the device named by config.Port
func Open(config SerialConfig) (Port, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: convertStopBits(config.StopBits),
		Parity:   convertParity(config.Parity),
	}

	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, NewSerialError("open", config.Port, err)
	}

	if config.Timeout > 0 {
		if err := port.SetReadTimeout(config.Timeout); err != nil {
			port.Close()
			return nil, NewSerialError("set timeout", config.Port, err)
		}
	}

	return &Device{port: port, config: config}, nil
}

func (d *Device) current() (serial.Port, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.port == nil {
		return nil, ErrNotOpen
	}
	return d.port, nil
}

// Read reads from the line. It returns 0, nil when the read timeout expires.
func (d *Device) Read(buffer []byte) (int, error) {
	port, err := d.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Read(buffer)
	if err != nil {
		return n, NewSerialError("read", d.config.Port, err)
	}
	return n, nil
}

// Write writes to the line
func (d *Device) Write(data []byte) (int, error) {
	port, err := d.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Write(data)
	if err != nil {
		return n, NewSerialError("write", d.config.Port, err)
	}
	return n, nil
}

// SetReadTimeout changes the read timeout
func (d *Device) SetReadTimeout(timeout time.Duration) error {
	port, err := d.current()
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return NewSerialError("set timeout", d.config.Port, err)
	}
	d.mu.Lock()
	d.config.Timeout = timeout
	d.mu.Unlock()
	return nil
}

// Config returns the settings the device was opened with
func (d *Device) Config() SerialConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Close closes the device. Closing twice returns ErrNotOpen.
func (d *Device) Close() error {
	d.mu.Lock()
	port := d.port
	d.port = nil
	d.mu.Unlock()

	if port == nil {
		return ErrNotOpen
	}
	if err := port.Close(); err != nil {
		return NewSerialError("close", d.config.Port, err)
	}
	return nil
}

func convertStopBits(stopBits int) serial.StopBits {
	switch stopBits {
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

func convertParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

// PortInfo describes a serial port found on the system
type PortInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// ListPorts returns the names of the serial ports on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get ports list: %w", err)
	}
	return ports, nil
}

// GetDetailedPortsList returns the serial ports with their USB details
func GetDetailedPortsList() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get ports list: %w", err)
	}

	infos := make([]PortInfo, 0, len(details))
	for _, d := range details {
		infos = append(infos, portInfo(d))
	}
	return infos, nil
}

func portInfo(d *enumerator.PortDetails) PortInfo {
	info := PortInfo{Name: d.Name, IsUSB: d.IsUSB}
	if d.IsUSB {
		info.VID = d.VID
		info.PID = d.PID
		info.SerialNumber = d.SerialNumber
		info.Description = d.Product
	}
	return info
}

// IsPortAvailable checks if a port with the given name exists
func IsPortAvailable(name string) bool {
	ports, err := serial.GetPortsList()
	if err != nil {
		return false
	}
	return slices.Contains(ports, name)
}

// SerialError is a failed operation on a named port
type SerialError struct {
	Operation string
	Port      string
	Cause     error
}

// Error implements the error interface
func (e *SerialError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serial %s operation failed on port %s: %v", e.Operation, e.Port, e.Cause)
	}
	return fmt.Sprintf("serial %s operation failed on port %s", e.Operation, e.Port)
}

// Unwrap returns the underlying error
func (e *SerialError) Unwrap() error {
	return e.Cause
}

// NewSerialError creates a new serial error
func NewSerialError(operation, port string, cause error) *SerialError {
	return &SerialError{
		Operation: operation,
		Port:      port,
		Cause:     cause,
	}
}

// RetryConfig controls how often opening a busy or missing port is retried
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
	MaxInterval   time.Duration `json:"max_interval" yaml:"max_interval"`
}

// DefaultRetryConfig returns three retries starting at one second
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		RetryInterval: time.Second,
		BackoffFactor: 2.0,
		MaxInterval:   time.Second * 10,
	}
}

// Validate checks if the retry configuration is valid
func (r RetryConfig) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if r.RetryInterval < 0 {
		return fmt.Errorf("retry interval cannot be negative")
	}
	if r.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff factor must be >= 1.0")
	}
	if r.MaxInterval < r.RetryInterval {
		return fmt.Errorf("max interval cannot be less than retry interval")
	}
	return nil
}

// OpenWithRetry opens a port, retrying with exponential backoff while the
// failure looks transient
func OpenWithRetry(ctx context.Context, config SerialConfig, retry RetryConfig, open Opener) (Port, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry configuration: %w", err)
	}
	if open == nil {
		open = Open
	}

	var lastErr error
	interval := retry.RetryInterval
	attempts := 0

	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			interval = min(time.Duration(float64(interval)*retry.BackoffFactor), retry.MaxInterval)
		}

		attempts++
		port, err := open(config)
		if err == nil {
			return port, nil
		}
		lastErr = err

		if !isRecoverableError(err) {
			break
		}
	}

	return nil, fmt.Errorf("failed to open serial port after %d attempts: %w", attempts, lastErr)
}

// recoverablePatterns are error texts that usually clear up on their own
var recoverablePatterns = []string{
	"device busy",
	"resource temporarily unavailable",
	"timeout",
	"connection refused",
	"no such device",
}

func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, pattern := range recoverablePatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}
