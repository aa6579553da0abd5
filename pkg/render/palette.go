package render

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"

	"tterm/pkg/terminal"
)

// PaletteSize is the number of indexed colors
const PaletteSize = 16

// TangoPalette is the default color scheme
var TangoPalette = []string{
	"#2e3436", "#cc0000", "#4e9a06", "#c4a000",
	"#3465a4", "#75507b", "#06989a", "#d3d7cf",
	"#555753", "#ef2929", "#8ae234", "#fce94f",
	"#729fcf", "#ad7fa8", "#34e2e2", "#eeeeec",
}

// Palette resolves ColorIDs to tcell colors
type Palette struct {
	hex    [PaletteSize]string
	colors [PaletteSize]tcell.Color
}

// NewPalette parses 16 hex colors. An empty list selects TangoPalette.
func NewPalette(entries []string) (*Palette, error) {
	if len(entries) == 0 {
		entries = TangoPalette
	}
	if len(entries) != PaletteSize {
		return nil, fmt.Errorf("palette must have %d entries, got %d", PaletteSize, len(entries))
	}

	p := &Palette{}
	for i, entry := range entries {
		c, err := colorful.Hex(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid palette entry %d %q: %w", i, entry, err)
		}
		r, g, b := c.RGB255()
		p.hex[i] = c.Hex()
		p.colors[i] = tcell.NewRGBColor(int32(r), int32(g), int32(b))
	}
	return p, nil
}

// DefaultPalette returns the Tango palette
func DefaultPalette() *Palette {
	p, err := NewPalette(TangoPalette)
	if err != nil {
		panic(err)
	}
	return p
}

// Color returns the tcell color for id. ColorDefault and unknown ids use the
// terminal's own default.
func (p *Palette) Color(id terminal.ColorID) tcell.Color {
	if id < 0 || int(id) >= PaletteSize {
		return tcell.ColorReset
	}
	return p.colors[id]
}

// Hex returns the normalized hex string of entry id
func (p *Palette) Hex(id terminal.ColorID) string {
	if id < 0 || int(id) >= PaletteSize {
		return ""
	}
	return p.hex[id]
}
