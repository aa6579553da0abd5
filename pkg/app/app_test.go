package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"tterm/pkg/clipboard"
	"tterm/pkg/serial"
)

type fakePort struct {
	chunks chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written strings.Builder
}

func newFakePort() *fakePort {
	return &fakePort{chunks: make(chan []byte, 8), closed: make(chan struct{})}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case chunk := <-p.chunks:
		return copy(buf, chunk), nil
	case <-p.closed:
		return 0, serial.ErrNotOpen
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(data)
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

type harness struct {
	app       *Application
	screen    tcell.SimulationScreen
	port      *fakePort
	clipboard *clipboard.Memory
	done      chan error
}

func startApp(t *testing.T, opts ...func(*AppConfig)) *harness {
	t.Helper()

	h := &harness{
		screen:    tcell.NewSimulationScreen("UTF-8"),
		port:      newFakePort(),
		clipboard: &clipboard.Memory{},
		done:      make(chan error, 1),
	}

	cfg := DefaultAppConfig()
	cfg.Mode = ModeSerial
	cfg.Serial.Port = "/dev/ttyTEST0"
	cfg.Screen = h.screen
	cfg.Clipboard = h.clipboard
	cfg.Opener = func(serial.SerialConfig) (serial.Port, error) {
		return h.port, nil
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}
	h.app = app

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Errorf("Run() did not return after cancel")
		}
	})

	waitUntil(t, "session attached", func() bool { return app.Session() != nil })
	return h
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) row(y int) string {
	w, _ := h.screen.Size()
	var b strings.Builder
	for x := range w {
		mainc, _, _, _ := h.screen.GetContent(x, y)
		b.WriteRune(mainc)
	}
	return b.String()
}

func (h *harness) screenText() string {
	_, rows := h.screen.Size()
	lines := make([]string, rows)
	for y := range rows {
		lines[y] = h.row(y)
	}
	return strings.Join(lines, "\n")
}

// post queues ev behind the injected events, waiting while the queue is full
func (h *harness) post(t *testing.T, ev tcell.Event) {
	t.Helper()
	waitUntil(t, "event queued", func() bool {
		return h.screen.PostEvent(ev) == nil
	})
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return")
		return nil
	}
}

func TestApplication_Output(t *testing.T) {
	h := startApp(t)
	h.port.chunks <- []byte("hello\r\nworld")

	waitUntil(t, "output on screen", func() bool {
		return strings.HasPrefix(h.row(0), "hello") && strings.HasPrefix(h.row(1), "world")
	})

	if got := h.app.Session().Name(); !strings.HasPrefix(got, "/dev/ttyTEST0") {
		t.Errorf("Session().Name() = %q", got)
	}
}

func TestApplication_Typing(t *testing.T) {
	h := startApp(t)

	h.screen.InjectKey(tcell.KeyRune, 'a', tcell.ModNone)
	h.screen.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)

	waitUntil(t, "keys written", func() bool { return h.port.Written() == "a\r" })
}

func TestApplication_SelectAndCopy(t *testing.T) {
	h := startApp(t)
	h.port.chunks <- []byte("hello world")
	waitUntil(t, "output on screen", func() bool { return strings.HasPrefix(h.row(0), "hello") })

	h.screen.InjectMouse(0, 0, tcell.Button1, tcell.ModNone)
	h.screen.InjectMouse(4, 0, tcell.Button1, tcell.ModNone)
	h.screen.InjectMouse(4, 0, tcell.ButtonNone, tcell.ModNone)
	h.screen.InjectKey(tcell.KeyRune, 'c', tcell.ModAlt)

	waitUntil(t, "clipboard write", func() bool {
		text, _ := h.clipboard.ReadText()
		return text == "hello"
	})
	if got := h.port.Written(); got != "" {
		t.Errorf("copy shortcut reached the session: %q", got)
	}
}

func TestApplication_Paste(t *testing.T) {
	h := startApp(t)
	h.clipboard.WriteText("ls\nexit\n")

	h.screen.InjectKey(tcell.KeyRune, 'v', tcell.ModAlt)

	waitUntil(t, "paste written", func() bool { return h.port.Written() == "ls\rexit\r" })
}

func TestApplication_BracketedPaste(t *testing.T) {
	h := startApp(t)

	h.post(t, tcell.NewEventPaste(true))
	for _, r := range "if x {" {
		h.screen.InjectKey(tcell.KeyRune, r, tcell.ModNone)
	}
	h.screen.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	h.screen.InjectKey(tcell.KeyTab, 0, tcell.ModNone)
	h.screen.InjectKey(tcell.KeyRune, 'y', tcell.ModNone)
	h.screen.InjectKey(tcell.KeyCtrlD, 0, tcell.ModCtrl)
	h.post(t, tcell.NewEventPaste(false))

	waitUntil(t, "paste written", func() bool { return h.port.Written() == "if x {\r\ty\x04" })
}

func TestApplication_Help(t *testing.T) {
	h := startApp(t)

	h.screen.InjectKey(tcell.KeyRune, 'h', tcell.ModAlt)
	waitUntil(t, "help shown", func() bool {
		return strings.Contains(h.screenText(), "Show shortcuts")
	})

	// the key closing help is not sent
	h.screen.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	waitUntil(t, "help hidden", func() bool {
		return !strings.Contains(h.screenText(), "Show shortcuts")
	})

	h.screen.InjectKey(tcell.KeyRune, 'y', tcell.ModNone)
	waitUntil(t, "key written", func() bool { return h.port.Written() == "y" })
}

func TestApplication_ExitShortcut(t *testing.T) {
	h := startApp(t)

	h.screen.InjectKey(tcell.KeyCtrlQ, 0, tcell.ModCtrl)

	if err := h.wait(t); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if h.app.IsRunning() {
		t.Errorf("IsRunning() = true after exit")
	}
}

func TestApplication_Transcript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	h := startApp(t, func(c *AppConfig) { c.Transcript = path })

	h.port.chunks <- []byte("hi")
	waitUntil(t, "output on screen", func() bool { return strings.HasPrefix(h.row(0), "hi") })
	h.screen.InjectKey(tcell.KeyRune, 'a', tcell.ModNone)
	waitUntil(t, "key written", func() bool { return h.port.Written() == "a" })

	h.screen.InjectKey(tcell.KeyCtrlQ, 0, tcell.ModCtrl)
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("transcript not written: %v", err)
	}
	for _, want := range []string{`>> "hi"`, `<< "a"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("transcript missing %s:\n%s", want, data)
		}
	}
}

func TestApplication_DeviceLost(t *testing.T) {
	h := startApp(t)

	h.port.Close()

	err := h.wait(t)
	if !IsErrorType(err, ErrorTypeSession) {
		t.Fatalf("Run() error = %v, want session error", err)
	}
	if !errors.Is(err, serial.ErrNotOpen) {
		t.Errorf("Run() error = %v, want it to wrap ErrNotOpen", err)
	}
}

func TestApplication_OpenFailure(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Mode = ModeSerial
	cfg.Serial.Port = "/dev/ttyTEST0"
	cfg.Retry.MaxRetries = 0
	cfg.Screen = tcell.NewSimulationScreen("UTF-8")
	cfg.Clipboard = &clipboard.Memory{}
	cfg.Opener = func(serial.SerialConfig) (serial.Port, error) {
		return nil, errors.New("no such device")
	}

	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}
	err = app.Run(context.Background())
	if !IsErrorType(err, ErrorTypeSession) {
		t.Errorf("Run() error = %v, want session error", err)
	}
}

func TestApplication_RunTwice(t *testing.T) {
	h := startApp(t)
	if err := h.app.Run(context.Background()); err == nil {
		t.Errorf("second Run() should fail while running")
	}
}

func TestNewApplication_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *AppConfig)
	}{
		{"settings", func(c *AppConfig) { c.Settings.Grid.MinColumns = 0 }},
		{"serial without port", func(c *AppConfig) { c.Mode = ModeSerial }},
		{"serial line", func(c *AppConfig) {
			c.Mode = ModeSerial
			c.Serial.Port = "/dev/ttyTEST0"
			c.Serial.DataBits = 4
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.modify(&cfg)
			_, err := NewApplication(cfg)
			if !IsErrorType(err, ErrorTypeConfig) {
				t.Errorf("NewApplication() error = %v, want config error", err)
			}
		})
	}
}

func TestDefaultAppConfig(t *testing.T) {
	cfg := DefaultAppConfig()
	if cfg.Mode != ModeShell {
		t.Errorf("Mode = %v, want shell", cfg.Mode)
	}
	if err := cfg.Settings.Validate(); err != nil {
		t.Errorf("Settings.Validate() error = %v", err)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("Serial.BaudRate = %d, want 115200", cfg.Serial.BaudRate)
	}
}

func TestAppError(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{"with cause", NewAppError(ErrorTypeSession, "session ended", cause), "session error: session ended: boom"},
		{"without cause", NewAppError(ErrorTypeConfig, "bad", nil), "config error: bad"},
		{"unknown type", NewAppError(ErrorType(42), "odd", nil), "unknown error: odd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	wrapped := NewAppError(ErrorTypeSession, "x", cause)
	if !errors.Is(wrapped, cause) {
		t.Errorf("errors.Is() = false, want true")
	}
	if IsErrorType(cause, ErrorTypeSession) {
		t.Errorf("IsErrorType() on a plain error = true")
	}
}

func TestMode_String(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeShell, "shell"},
		{ModeSerial, "serial"},
		{Mode(9), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.mode.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
