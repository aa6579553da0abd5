package input

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// ShortcutAction represents the host action bound to a shortcut
type ShortcutAction int

const (
	ActionExit ShortcutAction = iota
	ActionCopy
	ActionPaste
	ActionZoomIn
	ActionZoomOut
	ActionHelp
	ActionCustom
)

// String returns the string representation of ShortcutAction
func (sa ShortcutAction) String() string {
	switch sa {
	case ActionExit:
		return "exit"
	case ActionCopy:
		return "copy"
	case ActionPaste:
		return "paste"
	case ActionZoomIn:
		return "zoom-in"
	case ActionZoomOut:
		return "zoom-out"
	case ActionHelp:
		return "help"
	case ActionCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Shortcut binds a key combination to a host action. Shortcuts are checked
// before a key reaches the encoder.
type Shortcut struct {
	Name        string
	Key         tcell.Key
	Char        rune
	Mods        tcell.ModMask
	Action      ShortcutAction
	Handler     func() error
	Description string
	Enabled     bool
}

// Matches checks if the given key event matches this shortcut
func (s *Shortcut) Matches(key tcell.Key, char rune, mods tcell.ModMask) bool {
	if !s.Enabled || s.Mods != mods {
		return false
	}

	if s.Key != tcell.KeyRune {
		return s.Key == key
	}
	return key == tcell.KeyRune && s.Char == char
}

// Execute runs the shortcut handler
func (s *Shortcut) Execute() error {
	if !s.Enabled {
		return fmt.Errorf("shortcut %s is disabled", s.Name)
	}
	if s.Handler == nil {
		return fmt.Errorf("no handler defined for shortcut %s", s.Name)
	}
	return s.Handler()
}

// ShortcutManager holds the host shortcuts
type ShortcutManager struct {
	mu        sync.RWMutex
	shortcuts map[string]*Shortcut
}

// NewShortcutManager creates a manager with the default shortcuts, all without handlers
func NewShortcutManager() *ShortcutManager {
	sm := &ShortcutManager{
		shortcuts: make(map[string]*Shortcut),
	}

	sm.AddShortcut(&Shortcut{
		Name:        "exit",
		Key:         tcell.KeyCtrlQ,
		Mods:        tcell.ModCtrl,
		Action:      ActionExit,
		Description: "Exit",
		Enabled:     true,
	})
	sm.AddShortcut(&Shortcut{
		Name:        "copy",
		Key:         tcell.KeyRune,
		Char:        'c',
		Mods:        tcell.ModAlt,
		Action:      ActionCopy,
		Description: "Copy selection to clipboard",
		Enabled:     true,
	})
	sm.AddShortcut(&Shortcut{
		Name:        "paste",
		Key:         tcell.KeyRune,
		Char:        'v',
		Mods:        tcell.ModAlt,
		Action:      ActionPaste,
		Description: "Paste clipboard",
		Enabled:     true,
	})
	sm.AddShortcut(&Shortcut{
		Name:        "zoom-in",
		Key:         tcell.KeyRune,
		Char:        '=',
		Mods:        tcell.ModAlt,
		Action:      ActionZoomIn,
		Description: "Increase font size",
		Enabled:     true,
	})
	sm.AddShortcut(&Shortcut{
		Name:        "zoom-out",
		Key:         tcell.KeyRune,
		Char:        '-',
		Mods:        tcell.ModAlt,
		Action:      ActionZoomOut,
		Description: "Decrease font size",
		Enabled:     true,
	})
	sm.AddShortcut(&Shortcut{
		Name:        "help",
		Key:         tcell.KeyRune,
		Char:        'h',
		Mods:        tcell.ModAlt,
		Action:      ActionHelp,
		Description: "Show shortcuts",
		Enabled:     true,
	})

	return sm
}

// AddShortcut adds or replaces a shortcut by name
func (sm *ShortcutManager) AddShortcut(shortcut *Shortcut) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shortcuts[shortcut.Name] = shortcut
}

// SetHandler attaches a handler to the named shortcut
func (sm *ShortcutManager) SetHandler(name string, handler func() error) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.shortcuts[name]
	if !ok {
		return fmt.Errorf("shortcut %s not found", name)
	}
	s.Handler = handler
	return nil
}

// Process runs the first shortcut matching the event. handled is false when
// no enabled shortcut with a handler matches.
func (sm *ShortcutManager) Process(ev *tcell.EventKey) (handled bool, err error) {
	sm.mu.RLock()
	var match *Shortcut
	for _, name := range sm.namesLocked() {
		s := sm.shortcuts[name]
		if s.Handler != nil && s.Matches(ev.Key(), ev.Rune(), ev.Modifiers()) {
			match = s
			break
		}
	}
	sm.mu.RUnlock()

	if match == nil {
		return false, nil
	}
	return true, match.Execute()
}

// List returns the shortcuts sorted by name
func (sm *ShortcutManager) List() []Shortcut {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]Shortcut, 0, len(sm.shortcuts))
	for _, name := range sm.namesLocked() {
		out = append(out, *sm.shortcuts[name])
	}
	return out
}

func (sm *ShortcutManager) namesLocked() []string {
	names := make([]string, 0, len(sm.shortcuts))
	for name := range sm.shortcuts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
