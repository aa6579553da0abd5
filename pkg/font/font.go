// Package font measures the pixel footprint of a monospace character cell
package font

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/opentype"

	"tterm/pkg/geometry"
)

// Font size limits and zoom step
const (
	MinSize  = 8
	MaxSize  = 54
	ZoomStep = 2

	DefaultFamily = "Go Mono"
	DefaultSize   = 14
	DefaultDPI    = 96
)

var (
	// ErrFontUnavailable is returned when the configured face cannot be loaded
	ErrFontUnavailable = errors.New("font unavailable")

	// ErrInvalidMetrics is returned when a face measures to a non-positive cell
	ErrInvalidMetrics = errors.New("invalid cell metrics")
)

// Config selects a font face
type Config struct {
	Family string  `json:"family" yaml:"family"`
	Size   float64 `json:"size" yaml:"size"`
	DPI    float64 `json:"dpi" yaml:"dpi"`
	Bold   bool    `json:"bold" yaml:"bold"`
	Italic bool    `json:"italic" yaml:"italic"`
}

// DefaultConfig returns the embedded Go Mono face at 14pt, 96 DPI
func DefaultConfig() Config {
	return Config{
		Family: DefaultFamily,
		Size:   DefaultSize,
		DPI:    DefaultDPI,
	}
}

// Validate checks if the font configuration is usable
func (c Config) Validate() error {
	if c.Family == "" {
		return fmt.Errorf("font family cannot be empty")
	}
	if c.Size < MinSize || c.Size > MaxSize {
		return fmt.Errorf("font size must be between %d and %d, got: %v", MinSize, MaxSize, c.Size)
	}
	if c.DPI <= 0 {
		return fmt.Errorf("font dpi must be positive, got: %v", c.DPI)
	}
	return nil
}

// Zoom returns c with its size changed by delta and clamped to the allowed range
func (c Config) Zoom(delta float64) Config {
	c.Size = math.Max(MinSize, math.Min(MaxSize, c.Size+delta))
	return c
}

// Measurer measures one cell of a font face
type Measurer interface {
	Measure(cfg Config) (geometry.CellSize, error)
}

// MeasurerFunc adapts a function to the Measurer interface
type MeasurerFunc func(cfg Config) (geometry.CellSize, error)

// Measure calls f(cfg)
func (f MeasurerFunc) Measure(cfg Config) (geometry.CellSize, error) {
	return f(cfg)
}

// Fixed returns a measurer that reports the same cell size for every config
func Fixed(size geometry.CellSize) Measurer {
	return MeasurerFunc(func(Config) (geometry.CellSize, error) {
		return size, nil
	})
}

// OpenTypeMeasurer measures faces with golang.org/x/image/font/opentype
type OpenTypeMeasurer struct {
	mu    sync.Mutex
	fonts map[string]*opentype.Font
}

// NewOpenTypeMeasurer creates a measurer with an empty parsed-font cache
func NewOpenTypeMeasurer() *OpenTypeMeasurer {
	return &OpenTypeMeasurer{
		fonts: make(map[string]*opentype.Font),
	}
}

// Measure returns the advance of a space and the floored line height
func (m *OpenTypeMeasurer) Measure(cfg Config) (geometry.CellSize, error) {
	f, err := m.load(cfg)
	if err != nil {
		return geometry.CellSize{}, err
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    cfg.Size,
		DPI:     cfg.DPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return geometry.CellSize{}, fmt.Errorf("%w: %s: %v", ErrFontUnavailable, cfg.Family, err)
	}
	defer face.Close()

	advance, ok := face.GlyphAdvance(' ')
	if !ok {
		return geometry.CellSize{}, fmt.Errorf("%w: %s has no space glyph", ErrFontUnavailable, cfg.Family)
	}

	return geometry.CellSize{
		Width:  float64(advance) / 64,
		Height: math.Floor(float64(face.Metrics().Height) / 64),
	}, nil
}

func (m *OpenTypeMeasurer) load(cfg Config) (*opentype.Font, error) {
	key := fmt.Sprintf("%s/%t/%t", cfg.Family, cfg.Bold, cfg.Italic)

	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.fonts[key]; ok {
		return f, nil
	}

	src, err := source(cfg)
	if err != nil {
		return nil, err
	}

	f, err := opentype.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFontUnavailable, cfg.Family, err)
	}

	m.fonts[key] = f
	return f, nil
}

// source returns the font file contents for cfg. Go Mono is embedded; any other
// family is read from disk.
func source(cfg Config) ([]byte, error) {
	if cfg.Family == DefaultFamily {
		switch {
		case cfg.Bold && cfg.Italic:
			return gomonobolditalic.TTF, nil
		case cfg.Bold:
			return gomonobold.TTF, nil
		case cfg.Italic:
			return gomonoitalic.TTF, nil
		default:
			return gomono.TTF, nil
		}
	}

	data, err := os.ReadFile(cfg.Family)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}
	return data, nil
}

// Metrics caches the cell size of the active font configuration
type Metrics struct {
	mu       sync.Mutex
	measurer Measurer
	config   Config
	size     geometry.CellSize
	valid    bool
}

// NewMetrics creates a metrics cache for cfg
func NewMetrics(measurer Measurer, cfg Config) *Metrics {
	return &Metrics{
		measurer: measurer,
		config:   cfg,
	}
}

// Config returns the active font configuration
func (m *Metrics) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// SetConfig replaces the font configuration. The cached size is dropped when
// any field changes. Returns true if the configuration changed.
func (m *Metrics) SetConfig(cfg Config) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg == m.config {
		return false
	}
	m.config = cfg
	m.valid = false
	return true
}

// CellSize returns the measured cell size, measuring on first use after a change
func (m *Metrics) CellSize() (geometry.CellSize, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		return m.size, nil
	}

	size, err := m.measurer.Measure(m.config)
	if err != nil {
		return geometry.CellSize{}, fmt.Errorf("failed to measure cell: %w", err)
	}
	if !size.Valid() || size.Width < 1 || size.Height < 1 {
		return geometry.CellSize{}, fmt.Errorf("%w: %vx%v for %s %vpt", ErrInvalidMetrics, size.Width, size.Height, m.config.Family, m.config.Size)
	}

	m.size = size
	m.valid = true
	return size, nil
}
