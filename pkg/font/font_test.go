package font

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"tterm/pkg/geometry"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"empty family", Config{Size: 14, DPI: 96}, true},
		{"too small", Config{Family: DefaultFamily, Size: 4, DPI: 96}, true},
		{"too large", Config{Family: DefaultFamily, Size: 60, DPI: 96}, true},
		{"zero dpi", Config{Family: DefaultFamily, Size: 14}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Zoom(t *testing.T) {
	tests := []struct {
		name  string
		size  float64
		delta float64
		want  float64
	}{
		{"grow", 14, ZoomStep, 16},
		{"shrink", 14, -ZoomStep, 12},
		{"clamp high", 53, ZoomStep, MaxSize},
		{"clamp low", 9, -ZoomStep, MinSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Size = tt.size
			if got := cfg.Zoom(tt.delta).Size; got != tt.want {
				t.Errorf("Zoom() size = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenTypeMeasurer_GoMono(t *testing.T) {
	m := NewOpenTypeMeasurer()

	for _, style := range []struct{ bold, italic bool }{{false, false}, {true, false}, {false, true}, {true, true}} {
		cfg := DefaultConfig()
		cfg.Bold, cfg.Italic = style.bold, style.italic

		size, err := m.Measure(cfg)
		if err != nil {
			t.Fatalf("Measure(%+v) error = %v", cfg, err)
		}
		if !size.Valid() {
			t.Errorf("Measure(%+v) = %v, want positive size", cfg, size)
		}
		if size.Height != math.Floor(size.Height) {
			t.Errorf("Measure(%+v) height = %v, want whole pixels", cfg, size.Height)
		}
	}
}

func TestOpenTypeMeasurer_LargerSizeIsWider(t *testing.T) {
	m := NewOpenTypeMeasurer()

	small, err := m.Measure(DefaultConfig())
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}
	large, err := m.Measure(DefaultConfig().Zoom(10))
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}

	if large.Width <= small.Width || large.Height <= small.Height {
		t.Errorf("Measure() larger face = %v, smaller face = %v", large, small)
	}
}

func TestOpenTypeMeasurer_MissingFile(t *testing.T) {
	m := NewOpenTypeMeasurer()
	cfg := DefaultConfig()
	cfg.Family = filepath.Join(t.TempDir(), "missing.ttf")

	if _, err := m.Measure(cfg); !errors.Is(err, ErrFontUnavailable) {
		t.Errorf("Measure() error = %v, want ErrFontUnavailable", err)
	}
}

func TestMetrics_Caches(t *testing.T) {
	calls := 0
	measurer := MeasurerFunc(func(cfg Config) (geometry.CellSize, error) {
		calls++
		return geometry.CellSize{Width: cfg.Size / 2, Height: cfg.Size}, nil
	})

	m := NewMetrics(measurer, DefaultConfig())

	for i := 0; i < 3; i++ {
		if _, err := m.CellSize(); err != nil {
			t.Fatalf("CellSize() error = %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("measure calls = %d, want 1", calls)
	}

	if m.SetConfig(DefaultConfig()) {
		t.Errorf("SetConfig() with same config = true, want false")
	}
	if !m.SetConfig(DefaultConfig().Zoom(ZoomStep)) {
		t.Errorf("SetConfig() with new size = false, want true")
	}

	size, err := m.CellSize()
	if err != nil {
		t.Fatalf("CellSize() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("measure calls = %d, want 2", calls)
	}
	if want := (geometry.CellSize{Width: 8, Height: 16}); size != want {
		t.Errorf("CellSize() = %v, want %v", size, want)
	}
}

func TestMetrics_InvalidMeasurement(t *testing.T) {
	tests := []struct {
		name string
		size geometry.CellSize
	}{
		{"zero", geometry.CellSize{}},
		{"negative width", geometry.CellSize{Width: -1, Height: 10}},
		{"sub pixel", geometry.CellSize{Width: 0.5, Height: 10}},
		{"nan", geometry.CellSize{Width: math.NaN(), Height: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics(Fixed(tt.size), DefaultConfig())
			if _, err := m.CellSize(); !errors.Is(err, ErrInvalidMetrics) {
				t.Errorf("CellSize() error = %v, want ErrInvalidMetrics", err)
			}
		})
	}
}

func TestMetrics_MeasureError(t *testing.T) {
	m := NewMetrics(MeasurerFunc(func(Config) (geometry.CellSize, error) {
		return geometry.CellSize{}, ErrFontUnavailable
	}), DefaultConfig())

	if _, err := m.CellSize(); !errors.Is(err, ErrFontUnavailable) {
		t.Errorf("CellSize() error = %v, want ErrFontUnavailable", err)
	}
}
