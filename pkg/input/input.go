// Package input encodes key presses into the byte sequences expected by the
// process on the other side of a terminal session
package input

import (
	"strconv"

	"github.com/gdamore/tcell/v2"
)

// Control bytes
const (
	esc = "\x1b"
	csi = esc + "["
	ss3 = esc + "O"
)

// Key identifies a non-text key
type Key int

const (
	KeyNone Key = iota
	KeyEscape
	KeyBackspace
	KeyDelete
	KeyInsert
	KeyTab
	KeyUp
	KeyDown
	KeyRight
	KeyLeft
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyReturn
	KeySpace
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

var keyNames = map[Key]string{
	KeyNone:      "none",
	KeyEscape:    "escape",
	KeyBackspace: "backspace",
	KeyDelete:    "delete",
	KeyInsert:    "insert",
	KeyTab:       "tab",
	KeyUp:        "up",
	KeyDown:      "down",
	KeyRight:     "right",
	KeyLeft:      "left",
	KeyHome:      "home",
	KeyEnd:       "end",
	KeyPageUp:    "pageup",
	KeyPageDown:  "pagedown",
	KeyReturn:    "return",
	KeySpace:     "space",
	KeyF1:        "f1",
	KeyF2:        "f2",
	KeyF3:        "f3",
	KeyF4:        "f4",
	KeyF5:        "f5",
	KeyF6:        "f6",
	KeyF7:        "f7",
	KeyF8:        "f8",
	KeyF9:        "f9",
	KeyF10:       "f10",
	KeyF11:       "f11",
	KeyF12:       "f12",
}

// String returns the lower-case key name
func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return "unknown"
}

// Modifiers is the xterm modifier bitmask
type Modifiers int

const (
	ModShift Modifiers = 1 << iota
	ModAlt
	ModCtrl
	ModMeta
)

// Has reports whether all bits of mod are set
func (m Modifiers) Has(mod Modifiers) bool {
	return m&mod == mod
}

// param returns the modifier parameter used in CSI sequences
func (m Modifiers) param() string {
	return strconv.Itoa(int(m) + 1)
}

// cursorFinals maps keys encoded as SS3 <final> or CSI 1;m <final>
var cursorFinals = map[Key]byte{
	KeyUp:    'A',
	KeyDown:  'B',
	KeyRight: 'C',
	KeyLeft:  'D',
	KeyHome:  'H',
	KeyEnd:   'F',
	KeyF1:    'P',
	KeyF2:    'Q',
	KeyF3:    'R',
	KeyF4:    'S',
}

// tildeCodes maps keys encoded as CSI code ~ or CSI code;m ~
var tildeCodes = map[Key]int{
	KeyInsert: 2,
	KeyDelete: 3,
	KeyF5:     15,
	KeyF6:     17,
	KeyF7:     18,
	KeyF8:     19,
	KeyF9:     20,
	KeyF10:    21,
	KeyF11:    23,
	KeyF12:    24,
}

// Encode returns the sequence for key with the given modifiers. ok is false
// for keys that have no encoding, which callers should leave unhandled.
func Encode(key Key, mods Modifiers) (string, bool) {
	if final, ok := cursorFinals[key]; ok {
		if mods == 0 {
			return ss3 + string(final), true
		}
		return csi + "1;" + mods.param() + string(final), true
	}

	if code, ok := tildeCodes[key]; ok {
		if mods == 0 {
			return csi + strconv.Itoa(code) + "~", true
		}
		return csi + strconv.Itoa(code) + ";" + mods.param() + "~", true
	}

	switch key {
	case KeyEscape:
		return esc + esc + esc, true
	case KeyBackspace:
		if mods.Has(ModShift) {
			return "\b", true
		}
		return "\x7f", true
	case KeyTab:
		if mods.Has(ModShift) {
			return csi + "Z", true
		}
		return "\t", true
	case KeyPageUp:
		return csi + "5~", true
	case KeyPageDown:
		return csi + "6~", true
	case KeyReturn:
		return "\r", true
	case KeySpace:
		return " ", true
	}

	return "", false
}

// EncodeText returns composed text unchanged
func EncodeText(text string) string {
	return text
}

// Event is a host key event reduced to either a key or text
type Event struct {
	Key  Key
	Mods Modifiers
	Text string
}

// IsText reports whether the event carries literal text
func (e Event) IsText() bool {
	return e.Key == KeyNone && e.Text != ""
}

var tcellKeys = map[tcell.Key]Key{
	tcell.KeyEscape:     KeyEscape,
	tcell.KeyBackspace:  KeyBackspace,
	tcell.KeyBackspace2: KeyBackspace,
	tcell.KeyDelete:     KeyDelete,
	tcell.KeyInsert:     KeyInsert,
	tcell.KeyTab:        KeyTab,
	tcell.KeyUp:         KeyUp,
	tcell.KeyDown:       KeyDown,
	tcell.KeyRight:      KeyRight,
	tcell.KeyLeft:       KeyLeft,
	tcell.KeyHome:       KeyHome,
	tcell.KeyEnd:        KeyEnd,
	tcell.KeyPgUp:       KeyPageUp,
	tcell.KeyPgDn:       KeyPageDown,
	tcell.KeyEnter:      KeyReturn,
	tcell.KeyF1:         KeyF1,
	tcell.KeyF2:         KeyF2,
	tcell.KeyF3:         KeyF3,
	tcell.KeyF4:         KeyF4,
	tcell.KeyF5:         KeyF5,
	tcell.KeyF6:         KeyF6,
	tcell.KeyF7:         KeyF7,
	tcell.KeyF8:         KeyF8,
	tcell.KeyF9:         KeyF9,
	tcell.KeyF10:        KeyF10,
	tcell.KeyF11:        KeyF11,
	tcell.KeyF12:        KeyF12,
}

// FromTcellMods converts a tcell modifier mask
func FromTcellMods(mods tcell.ModMask) Modifiers {
	var m Modifiers
	if mods&tcell.ModShift != 0 {
		m |= ModShift
	}
	if mods&tcell.ModAlt != 0 {
		m |= ModAlt
	}
	if mods&tcell.ModCtrl != 0 {
		m |= ModCtrl
	}
	if mods&tcell.ModMeta != 0 {
		m |= ModMeta
	}
	return m
}

// FromTcell converts a tcell key event
func FromTcell(ev *tcell.EventKey) Event {
	mods := FromTcellMods(ev.Modifiers())

	switch ev.Key() {
	case tcell.KeyRune:
		r := ev.Rune()
		if r == ' ' && mods&^ModShift == 0 {
			return Event{Key: KeySpace, Mods: mods}
		}
		if mods.Has(ModAlt) {
			// Alt+char sends ESC followed by char
			return Event{Text: esc + string(r), Mods: mods}
		}
		return Event{Text: string(r), Mods: mods}
	case tcell.KeyBacktab:
		return Event{Key: KeyTab, Mods: mods | ModShift}
	case tcell.KeyBackspace:
		// 0x08 with Ctrl is Ctrl+H, not the backspace key
		if mods.Has(ModCtrl) {
			return Event{Text: "\b", Mods: mods}
		}
	}

	if key, ok := tcellKeys[ev.Key()]; ok {
		return Event{Key: key, Mods: mods}
	}

	// Remaining tcell keys below 0x20 are control characters
	if k := ev.Key(); k >= tcell.KeyCtrlSpace && k <= tcell.KeyCtrlUnderscore {
		return Event{Text: string(rune(k)), Mods: mods}
	}

	return Event{}
}
