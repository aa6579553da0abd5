package terminal

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCharset
	stateCSI
	stateOSC
	stateOSCEscape
)

// parser is a small state machine covering text, C0 controls, SGR, erase
// and cursor movement. Any other sequence is consumed and dropped.
type parser struct {
	state   parserState
	params  []byte
	pending []byte // incomplete UTF-8 sequence from the previous write
	text    []byte
}

func (p *parser) feed(b *ScreenBuffer, data []byte) {
	if len(p.pending) > 0 {
		data = append(p.pending, data...)
		p.pending = nil
	}

	for i := 0; i < len(data); i++ {
		c := data[i]

		switch p.state {
		case stateGround:
			switch {
			case c == 0x1b:
				p.flush(b)
				p.state = stateEscape
			case c < 0x20 || c == 0x7f:
				p.flush(b)
				p.control(b, c)
			default:
				if c >= 0x80 && !utf8.FullRune(data[i:]) {
					p.flush(b)
					p.pending = append(p.pending, data[i:]...)
					return
				}
				p.text = append(p.text, c)
			}

		case stateEscape:
			switch c {
			case '[':
				p.params = p.params[:0]
				p.state = stateCSI
			case ']':
				p.state = stateOSC
			case '(', ')', '*', '+':
				p.state = stateCharset
			case 'c':
				b.resetLocked()
				p.state = stateGround
			default:
				p.state = stateGround
			}

		case stateCharset:
			p.state = stateGround

		case stateCSI:
			if c >= 0x40 && c <= 0x7e {
				p.csi(b, c)
				p.state = stateGround
			} else {
				p.params = append(p.params, c)
			}

		case stateOSC:
			switch c {
			case 0x07:
				p.state = stateGround
			case 0x1b:
				p.state = stateOSCEscape
			}

		case stateOSCEscape:
			// ESC \ ends the string; anything else is treated the same way
			p.state = stateGround
		}
	}

	p.flush(b)
}

func (p *parser) flush(b *ScreenBuffer) {
	if len(p.text) == 0 {
		return
	}
	b.print(string(p.text))
	p.text = p.text[:0]
}

func (p *parser) control(b *ScreenBuffer, c byte) {
	switch c {
	case '\r':
		b.carriageReturn()
	case '\n', '\v', '\f':
		b.lineFeed()
	case '\b':
		b.backspace()
	case '\t':
		b.tab()
	}
}

// csi executes a control sequence with the given final byte
func (p *parser) csi(b *ScreenBuffer, final byte) {
	raw := string(p.params)
	if strings.HasPrefix(raw, "?") || strings.HasPrefix(raw, ">") {
		// private modes are not tracked
		return
	}
	params := parseParams(raw)

	switch final {
	case 'm':
		b.attrs = applySGR(b.attrs, params)
	case 'K':
		b.eraseLine(param(params, 0, 0))
	case 'J':
		b.eraseDisplay(param(params, 0, 0))
	case 'H', 'f':
		b.moveCursor(param(params, 1, 1)-1, param(params, 0, 1)-1)
	case 'A':
		b.moveCursor(b.cursorX, b.cursorY-param(params, 0, 1))
	case 'B':
		b.moveCursor(b.cursorX, b.cursorY+param(params, 0, 1))
	case 'C':
		b.moveCursor(b.cursorX+param(params, 0, 1), b.cursorY)
	case 'D':
		b.moveCursor(b.cursorX-param(params, 0, 1), b.cursorY)
	case 'G':
		b.moveCursor(param(params, 0, 1)-1, b.cursorY)
	}
}

func parseParams(raw string) []int {
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ':' })
	params := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			n = 0
		}
		params = append(params, n)
	}
	return params
}

// param returns params[i], or def when missing or zero
func param(params []int, i, def int) int {
	if i < len(params) && params[i] > 0 {
		return params[i]
	}
	return def
}

func applySGR(attrs CellAttributes, params []int) CellAttributes {
	if len(params) == 0 {
		return DefaultAttributes()
	}

	for i := 0; i < len(params); i++ {
		n := params[i]
		switch {
		case n == 0:
			attrs = DefaultAttributes()
		case n == 1:
			attrs.Flags |= AttrBold
		case n == 3:
			attrs.Flags |= AttrItalic
		case n == 4:
			attrs.Flags |= AttrUnderline
		case n == 7:
			attrs.Flags |= AttrReverse
		case n == 22:
			attrs.Flags &^= AttrBold
		case n == 23:
			attrs.Flags &^= AttrItalic
		case n == 24:
			attrs.Flags &^= AttrUnderline
		case n == 27:
			attrs.Flags &^= AttrReverse
		case n >= 30 && n <= 37:
			attrs.Foreground = ColorID(n - 30)
		case n == 39:
			attrs.Foreground = ColorDefault
		case n >= 40 && n <= 47:
			attrs.Background = ColorID(n - 40)
		case n == 49:
			attrs.Background = ColorDefault
		case n >= 90 && n <= 97:
			attrs.Foreground = ColorID(n - 90 + 8)
		case n >= 100 && n <= 107:
			attrs.Background = ColorID(n - 100 + 8)
		case n == 38 || n == 48:
			color, skip := extendedColor(params[i+1:])
			if color != nil {
				if n == 38 {
					attrs.Foreground = *color
				} else {
					attrs.Background = *color
				}
			}
			i += skip
		}
	}
	return attrs
}

// extendedColor reads the arguments of SGR 38/48. Only 256-colour indexes
// inside the 16-colour palette are kept.
func extendedColor(args []int) (*ColorID, int) {
	if len(args) == 0 {
		return nil, 0
	}
	switch args[0] {
	case 5:
		if len(args) < 2 {
			return nil, len(args)
		}
		if args[1] >= 0 && args[1] < 16 {
			c := ColorID(args[1])
			return &c, 2
		}
		return nil, 2
	case 2:
		return nil, min(4, len(args))
	default:
		return nil, 1
	}
}
