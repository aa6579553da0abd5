// Package config loads, validates and saves the tterm settings file
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"tterm/pkg/font"
	"tterm/pkg/geometry"
	"tterm/pkg/logging"
	"tterm/pkg/render"
	"tterm/pkg/scheduler"
	"tterm/pkg/serial"
	"tterm/pkg/session"
)

// Defaults that are not owned by another package
const (
	DefaultMinColumns  = 58
	DefaultMinRows     = 4
	DefaultPadding     = 2
	DefaultScrollLines = 3
	DefaultFocusGuard  = 100 * time.Millisecond
	DefaultScrollback  = 10000
)

// GridSettings is the smallest grid the view will shrink to
type GridSettings struct {
	MinColumns int `yaml:"min_columns"`
	MinRows    int `yaml:"min_rows"`
}

// PaddingSettings is the pixel padding around the grid
type PaddingSettings struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// InputSettings tunes pointer handling
type InputSettings struct {
	ScrollLines int           `yaml:"scroll_lines"`
	FocusGuard  time.Duration `yaml:"focus_guard"`
}

// LogSettings selects the debug log and the session transcript
type LogSettings struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
	// Transcript is written when the session ends. The extension picks the
	// format: .json, .raw or timestamped text.
	Transcript string `yaml:"transcript,omitempty"`
}

// Profile is a named serial configuration
type Profile struct {
	Serial      serial.SerialConfig `yaml:"serial"`
	Description string              `yaml:"description,omitempty"`
	CreatedAt   time.Time           `yaml:"created_at"`
	LastUsedAt  time.Time           `yaml:"last_used_at"`
}

// Settings is the whole settings file
type Settings struct {
	Font       font.Config         `yaml:"font"`
	Grid       GridSettings        `yaml:"grid"`
	Padding    PaddingSettings     `yaml:"padding"`
	Scheduler  scheduler.Config    `yaml:"scheduler"`
	Input      InputSettings       `yaml:"input"`
	Palette    []string            `yaml:"palette"`
	Scrollback int                 `yaml:"scrollback"`
	AutoSize   bool                `yaml:"auto_size"`
	Shell      session.ShellConfig `yaml:"shell"`
	Serial     serial.SerialConfig `yaml:"serial"`
	Retry      serial.RetryConfig  `yaml:"retry"`
	Log        LogSettings         `yaml:"log"`
	Profiles   map[string]Profile  `yaml:"profiles,omitempty"`
}

// Default returns the built-in settings
func Default() Settings {
	return Settings{
		Font:       font.DefaultConfig(),
		Grid:       GridSettings{MinColumns: DefaultMinColumns, MinRows: DefaultMinRows},
		Padding:    PaddingSettings{Width: DefaultPadding},
		Scheduler:  scheduler.DefaultConfig(),
		Input:      InputSettings{ScrollLines: DefaultScrollLines, FocusGuard: DefaultFocusGuard},
		Palette:    append([]string(nil), render.TangoPalette...),
		Scrollback: DefaultScrollback,
		AutoSize:   true,
		Serial:     serial.DefaultConfig(),
		Retry:      serial.DefaultRetryConfig(),
		Log:        LogSettings{Level: "info"},
	}
}

// MinimumGrid returns the grid settings as a GridSize
func (s Settings) MinimumGrid() geometry.GridSize {
	return geometry.GridSize{Columns: s.Grid.MinColumns, Rows: s.Grid.MinRows}
}

// PaddingSize returns the padding as a PixelSize
func (s Settings) PaddingSize() geometry.PixelSize {
	return geometry.PixelSize{Width: float64(s.Padding.Width), Height: float64(s.Padding.Height)}
}

// ValidationError names the setting that failed validation
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Reason: err.Error()}
}

// Validate checks every section. The serial port may be empty since it is
// usually given on the command line.
func (s Settings) Validate() error {
	if err := s.Font.Validate(); err != nil {
		return invalid("font", err)
	}
	if s.Grid.MinColumns < 1 || s.Grid.MinRows < 1 {
		return &ValidationError{Field: "grid", Reason: "minimum columns and rows must be positive"}
	}
	if s.Padding.Width < 0 || s.Padding.Height < 0 {
		return &ValidationError{Field: "padding", Reason: "padding cannot be negative"}
	}
	if err := s.Scheduler.Validate(); err != nil {
		return invalid("scheduler", err)
	}
	if s.Input.ScrollLines < 1 {
		return &ValidationError{Field: "input.scroll_lines", Reason: "must be at least 1"}
	}
	if s.Input.FocusGuard < 0 {
		return &ValidationError{Field: "input.focus_guard", Reason: "cannot be negative"}
	}
	if _, err := render.NewPalette(s.Palette); err != nil {
		return invalid("palette", err)
	}
	if s.Scrollback < 0 {
		return &ValidationError{Field: "scrollback", Reason: "cannot be negative"}
	}
	if err := s.Serial.ValidateLine(); err != nil {
		return invalid("serial", err)
	}
	if err := s.Retry.Validate(); err != nil {
		return invalid("retry", err)
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return invalid("log.level", err)
	}
	for name, p := range s.Profiles {
		if err := p.Serial.Validate(); err != nil {
			return invalid("profiles."+name, err)
		}
	}
	return nil
}

// DefaultPath returns ~/.config/tterm/config.yaml, or the platform's
// equivalent user config directory
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "tterm", "config.yaml"), nil
}

// Load reads the settings at path over the defaults. A missing file yields
// the defaults.
func Load(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Default(), fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Default(), err
	}
	return settings, nil
}

// Save writes settings to path through a temporary file and a rename
func Save(path string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary config file: %w", err)
	}
	return nil
}

// SaveProfile stores config under name, keeping the creation time and
// description of an existing profile
func (s *Settings) SaveProfile(name string, config serial.SerialConfig, now time.Time) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if s.Profiles == nil {
		s.Profiles = make(map[string]Profile)
	}

	profile := Profile{Serial: config, CreatedAt: now, LastUsedAt: now}
	if existing, ok := s.Profiles[name]; ok {
		profile.CreatedAt = existing.CreatedAt
		profile.Description = existing.Description
	}
	s.Profiles[name] = profile
	return nil
}

// UseProfile returns the named profile and records it as used
func (s *Settings) UseProfile(name string, now time.Time) (Profile, error) {
	profile, ok := s.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile '%s' not found", name)
	}
	profile.LastUsedAt = now
	s.Profiles[name] = profile
	return profile, nil
}

// DeleteProfile removes the named profile
func (s *Settings) DeleteProfile(name string) error {
	if _, ok := s.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}
	delete(s.Profiles, name)
	return nil
}

// ProfileNames returns the profile names in order
func (s Settings) ProfileNames() []string {
	names := make([]string, 0, len(s.Profiles))
	for name := range s.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
