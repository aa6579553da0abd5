// Package app runs a terminal view in a text terminal: it owns the tcell
// screen, the render loop and the session, and feeds screen events to the
// control
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"tterm/pkg/clipboard"
	"tterm/pkg/config"
	"tterm/pkg/control"
	"tterm/pkg/geometry"
	"tterm/pkg/history"
	"tterm/pkg/input"
	"tterm/pkg/logging"
	"tterm/pkg/overlay"
	"tterm/pkg/render"
	"tterm/pkg/serial"
	"tterm/pkg/session"
	"tterm/pkg/terminal"
)

// Mode selects the session transport
type Mode int

const (
	ModeShell Mode = iota
	ModeSerial
)

// String returns the string representation of Mode
func (m Mode) String() string {
	switch m {
	case ModeShell:
		return "shell"
	case ModeSerial:
		return "serial"
	default:
		return "unknown"
	}
}

// Session is what the host needs from a running session
type Session interface {
	terminal.Session
	Stats() session.Stats
	Done() <-chan struct{}
	ScreenBuffer() *terminal.ScreenBuffer
}

// AppConfig contains application configuration
type AppConfig struct {
	Settings config.Settings
	// ConfigPath is watched for changes when set
	ConfigPath string

	Mode   Mode
	Serial serial.SerialConfig
	Retry  serial.RetryConfig
	// Opener opens the serial port. Defaults to serial.Open.
	Opener serial.Opener

	// Screen defaults to the controlling terminal
	Screen    tcell.Screen
	Clipboard control.Clipboard
	Logger    *logging.Logger
	// Transcript overrides Settings.Log.Transcript
	Transcript string
}

// DefaultAppConfig returns a shell session with the default settings
func DefaultAppConfig() AppConfig {
	settings := config.Default()
	return AppConfig{
		Settings: settings,
		Mode:     ModeShell,
		Serial:   settings.Serial,
		Retry:    settings.Retry,
	}
}

// Application represents the main application controller
type Application struct {
	config AppConfig
	logger *logging.Logger

	screen    tcell.Screen
	loop      *render.Loop
	surface   *render.TcellSurface
	control   *control.Control
	shortcuts *input.ShortcutManager
	overlay   *overlay.Overlay
	recorder  *history.Recorder

	mu        sync.RWMutex
	session   Session
	isRunning bool
	cancel    context.CancelFunc
	exitErr   error

	// touched only on the render loop
	buttons     tcell.ButtonMask
	helpVisible bool
	hintGen     int
	pasting     bool
	pasted      strings.Builder
}

// NewApplication creates the application. Nothing is started until Run.
func NewApplication(config AppConfig) (*Application, error) {
	if err := config.Settings.Validate(); err != nil {
		return nil, NewAppError(ErrorTypeConfig, "invalid settings", err)
	}
	if config.Mode == ModeSerial {
		if err := config.Serial.Validate(); err != nil {
			return nil, NewAppError(ErrorTypeConfig, "invalid serial configuration", err)
		}
	}
	if config.Opener == nil {
		config.Opener = serial.Open
	}
	if config.Clipboard == nil {
		config.Clipboard = clipboard.Default()
	}
	if config.Transcript == "" {
		config.Transcript = config.Settings.Log.Transcript
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Application{
		config:    config,
		logger:    logger.With("app"),
		loop:      render.NewLoop(),
		shortcuts: input.NewShortcutManager(),
	}, nil
}

// Run starts the screen and the session and blocks until the session ends,
// the exit shortcut is pressed or ctx is done
func (app *Application) Run(ctx context.Context) error {
	app.mu.Lock()
	if app.isRunning {
		app.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	app.isRunning = true
	ctx, app.cancel = context.WithCancel(ctx)
	app.mu.Unlock()

	defer func() {
		app.mu.Lock()
		app.isRunning = false
		app.cancel()
		app.mu.Unlock()
	}()

	if err := app.initScreen(); err != nil {
		return err
	}
	defer app.screen.Fini()

	if err := app.initControl(); err != nil {
		return err
	}
	defer app.control.Close()

	sess, err := app.startSession(ctx)
	if err != nil {
		return err
	}
	if app.recorder != nil {
		defer app.saveTranscript()
	}
	defer sess.Close()

	app.setupShortcuts()
	app.control.Attach(sess)
	app.mu.Lock()
	app.session = sess
	app.mu.Unlock()
	app.logger.Infof("session %s started (%s)", sess.Name(), app.config.Mode)

	select {
	case <-sess.Done():
		// ended before the control subscribed
		app.Stop()
	default:
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.loop.Run(gctx)
	})
	g.Go(func() error {
		return app.pollEvents(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		// wake PollEvent
		app.screen.PostEvent(tcell.NewEventInterrupt(nil))
		return nil
	})
	if app.config.ConfigPath != "" {
		g.Go(func() error {
			w := &config.Watcher{
				Path: app.config.ConfigPath,
				OnChange: func(s config.Settings) {
					app.loop.Post(func() { app.applySettings(s) })
				},
				OnError: func(err error) {
					app.logger.Warnf("config reload failed: %v", err)
				},
			}
			if err := w.Run(gctx); err != nil {
				app.logger.Warnf("config watch stopped: %v", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return NewAppError(ErrorTypeScreen, "event loop failed", err)
	}

	app.mu.RLock()
	exitErr := app.exitErr
	app.mu.RUnlock()
	if exitErr != nil {
		return NewAppError(ErrorTypeSession, "session ended", exitErr)
	}
	return nil
}

func (app *Application) initScreen() error {
	screen := app.config.Screen
	if screen == nil {
		var err error
		screen, err = tcell.NewScreen()
		if err != nil {
			return NewAppError(ErrorTypeScreen, "failed to create screen", err)
		}
	}
	if err := screen.Init(); err != nil {
		return NewAppError(ErrorTypeScreen, "failed to initialize screen", err)
	}
	screen.EnableMouse(tcell.MouseButtonEvents | tcell.MouseDragEvents)
	screen.EnablePaste()
	screen.EnableFocus()
	screen.Clear()

	app.screen = screen
	app.overlay = overlay.New(screen)
	return nil
}

func (app *Application) initControl() error {
	s := app.config.Settings

	palette, err := render.NewPalette(s.Palette)
	if err != nil {
		return NewAppError(ErrorTypeConfig, "invalid palette", err)
	}
	app.surface = render.NewTcellSurface(app.screen, palette)

	ctl, err := control.New(control.Options{
		Font:         s.Font,
		Loop:         app.loop,
		Surface:      &hostSurface{TcellSurface: app.surface, overlay: app.overlay},
		Clipboard:    app.config.Clipboard,
		Scheduler:    s.Scheduler,
		MinimumGrid:  s.MinimumGrid(),
		Padding:      s.PaddingSize(),
		ScrollLines:  s.Input.ScrollLines,
		FocusGuard:   s.Input.FocusGuard,
		AutoSize:     s.AutoSize,
		SurfaceSize:  app.surfaceSize,
		OnGridChange: app.showResizeHint,
		OnExit:       app.onSessionExit,
		Logger:       app.logger.With("control"),
	})
	if err != nil {
		return NewAppError(ErrorTypeFont, "failed to create terminal view", err)
	}
	app.control = ctl

	if err := ctl.OnSurfaceResize(app.surfaceSize()); err != nil {
		return NewAppError(ErrorTypeFont, "failed to fit grid", err)
	}
	return nil
}

func (app *Application) startSession(ctx context.Context) (Session, error) {
	buffer := terminal.NewScreenBuffer(app.control.GridSize(), app.config.Settings.Scrollback)
	buffer.SetLogger(app.logger.With("buffer"))
	if app.config.Transcript != "" {
		app.recorder = history.NewRecorder(history.DefaultMaxBytes)
	}

	switch app.config.Mode {
	case ModeSerial:
		port, err := serial.OpenWithRetry(ctx, app.config.Serial, app.config.Retry, app.config.Opener)
		if err != nil {
			return nil, NewAppError(ErrorTypeSession, "failed to open serial port", err)
		}
		s := session.NewSerial(port, app.config.Serial, buffer)
		s.SetLogger(app.logger.With("session"))
		s.SetRecorder(app.recorder)
		return s, nil
	default:
		s, err := session.StartPTY(app.config.Settings.Shell, buffer)
		if err != nil {
			return nil, NewAppError(ErrorTypeSession, "failed to start shell", err)
		}
		s.SetLogger(app.logger.With("session"))
		s.SetRecorder(app.recorder)
		return s, nil
	}
}

// saveTranscript runs after the session closed
func (app *Application) saveTranscript() {
	path := app.config.Transcript
	if err := app.recorder.Save(path, history.FormatForPath(path)); err != nil {
		app.logger.Warnf("failed to save transcript: %v", err)
		return
	}
	stats := app.recorder.Stats()
	app.logger.Infof("transcript saved to %s (%d chunks)", path, stats.Entries)
}

// setupShortcuts binds the host shortcuts. Handlers run on the render loop.
func (app *Application) setupShortcuts() {
	app.shortcuts.SetHandler("exit", func() error {
		app.Stop()
		return nil
	})
	app.shortcuts.SetHandler("copy", func() error {
		app.control.Copy()
		return nil
	})
	app.shortcuts.SetHandler("paste", func() error {
		app.control.Paste()
		return nil
	})
	app.shortcuts.SetHandler("zoom-in", func() error {
		return app.control.Zoom(1)
	})
	app.shortcuts.SetHandler("zoom-out", func() error {
		return app.control.Zoom(-1)
	})
	app.shortcuts.SetHandler("help", func() error {
		app.showHelp()
		return nil
	})
}

// Stop ends Run. It is safe to call from any goroutine.
func (app *Application) Stop() {
	app.mu.RLock()
	cancel := app.cancel
	app.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// IsRunning returns whether the application is running
func (app *Application) IsRunning() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.isRunning
}

// Session returns the current session, or nil before Run
func (app *Application) Session() Session {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.session
}

// onSessionExit runs on the render loop after the control detached
func (app *Application) onSessionExit(err error) {
	app.logger.Infof("session exited: %v", err)
	app.mu.Lock()
	app.exitErr = err
	app.mu.Unlock()
	app.Stop()
}

func (app *Application) pollEvents(ctx context.Context) error {
	for {
		ev := app.screen.PollEvent()
		if ev == nil {
			// screen finalized underneath us
			app.Stop()
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		app.loop.Post(func() { app.handleEvent(ev) })
	}
}

// handleEvent runs on the render loop
func (app *Application) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		app.handleResize()
	case *tcell.EventKey:
		app.handleKeyEvent(ev)
	case *tcell.EventMouse:
		app.handleMouseEvent(ev)
	case *tcell.EventPaste:
		app.handlePaste(ev)
	case *tcell.EventFocus:
		if ev.Focused {
			app.control.OnFocus()
		}
	}
}

func (app *Application) handleResize() {
	app.screen.Sync()
	if err := app.control.OnSurfaceResize(app.surfaceSize()); err != nil {
		app.logger.Warnf("resize failed: %v", err)
	}
	app.control.ForceRender()
}

func (app *Application) handleKeyEvent(ev *tcell.EventKey) {
	if app.pasting {
		switch k := ev.Key(); {
		case k == tcell.KeyRune:
			app.pasted.WriteRune(ev.Rune())
		case k == tcell.KeyEnter:
			app.pasted.WriteByte('\n')
		case k <= tcell.KeyUS || k == tcell.KeyDEL:
			// tabs and other control characters arrive as keys
			app.pasted.WriteByte(byte(k))
		}
		return
	}

	if app.helpVisible {
		app.hideOverlay()
		app.helpVisible = false
		return
	}

	handled, err := app.shortcuts.Process(ev)
	if err != nil {
		app.logger.Warnf("shortcut failed: %v", err)
	}
	if handled {
		return
	}

	e := input.FromTcell(ev)
	switch {
	case e.IsText():
		app.control.OnText(e.Text)
	case e.Key != input.KeyNone:
		app.control.OnKey(e.Key, e.Mods)
	default:
		app.logger.Debugf("unmapped key %s", ev.Name())
	}
}

func (app *Application) handlePaste(ev *tcell.EventPaste) {
	if ev.Start() {
		app.pasting = true
		app.pasted.Reset()
		return
	}
	app.pasting = false
	text := app.pasted.String()
	app.pasted.Reset()
	if s := app.control.Session(); s != nil && text != "" {
		if err := s.Paste(text); err != nil {
			app.logger.Warnf("paste failed: %v", err)
		}
	}
}

const pointerButtons = tcell.Button1 | tcell.Button2 | tcell.Button3

func (app *Application) handleMouseEvent(ev *tcell.EventMouse) {
	x, y := ev.Position()
	p := app.pixel(x, y)
	mods := input.FromTcellMods(ev.Modifiers())
	buttons := ev.Buttons()

	switch {
	case buttons&tcell.WheelUp != 0:
		app.wheel(1, p, mods)
	case buttons&tcell.WheelDown != 0:
		app.wheel(-1, p, mods)
	}

	pressed := buttons & pointerButtons
	previous := app.buttons
	app.buttons = pressed
	down := pressed &^ previous

	switch {
	case down&tcell.Button1 != 0:
		app.control.OnPointerDown(p, control.ButtonLeft, mods)
	case down&tcell.Button3 != 0:
		app.control.OnPointerDown(p, control.ButtonMiddle, mods)
	case down&tcell.Button2 != 0:
		app.control.OnPointerDown(p, control.ButtonRight, mods)
	case pressed&tcell.Button1 != 0:
		app.control.OnPointerDrag(p)
	case previous&tcell.Button1 != 0:
		app.control.OnPointerUp()
	}
}

func (app *Application) wheel(lines int, p geometry.PixelPoint, mods input.Modifiers) {
	if err := app.control.OnWheel(lines, p, mods); err != nil {
		app.logger.Warnf("wheel failed: %v", err)
	}
}

// pixel returns the center of screen cell (x, y) in surface pixels
func (app *Application) pixel(x, y int) geometry.PixelPoint {
	cell, err := app.control.CellSize()
	if err != nil {
		return geometry.PixelPoint{X: -1, Y: -1}
	}
	return geometry.PixelPoint{
		X: (float64(x) + 0.5) * cell.Width,
		Y: (float64(y) + 0.5) * cell.Height,
	}
}

// surfaceSize reports the screen as pixels of the current cell size, so
// the grid always matches the screen whatever the font
func (app *Application) surfaceSize() geometry.PixelSize {
	w, h := app.screen.Size()
	cell, err := app.control.CellSize()
	if err != nil {
		return geometry.PixelSize{}
	}
	padding := app.config.Settings.PaddingSize()
	return geometry.PixelSize{
		Width:  float64(w)*cell.Width + padding.Width,
		Height: float64(h)*cell.Height + padding.Height,
	}
}

// showResizeHint shows the new grid size for a moment
func (app *Application) showResizeHint(grid geometry.GridSize) {
	if app.helpVisible || app.Session() == nil {
		return
	}
	app.overlay.Show(overlay.ResizeHint(grid))
	app.hintGen++
	gen := app.hintGen
	time.AfterFunc(overlay.DefaultHintDuration, func() {
		app.loop.Post(func() {
			if gen == app.hintGen && !app.helpVisible {
				app.hideOverlay()
			}
		})
	})
}

func (app *Application) showHelp() {
	app.overlay.Show(overlay.HelpText(app.shortcuts.List()))
	app.helpVisible = true
}

// hideOverlay removes the box and repaints the view from the buffer
func (app *Application) hideOverlay() {
	if !app.overlay.Visible() {
		return
	}
	app.overlay.Hide()
	app.surface.Clear()
	app.control.ForceRender()
}

// applySettings runs on the render loop after the settings file changed
func (app *Application) applySettings(s config.Settings) {
	if err := app.control.SetFont(s.Font); err != nil {
		app.logger.Warnf("font change rejected: %v", err)
	}
	if palette, err := render.NewPalette(s.Palette); err == nil {
		app.surface.SetPalette(palette)
	}
	if err := app.control.SetMinimumGridSize(s.MinimumGrid()); err != nil {
		app.logger.Warnf("minimum grid change rejected: %v", err)
	}
	app.control.ForceRender()
	app.logger.Infof("settings reloaded")
}

// hostSurface keeps the overlay on top of every published frame
type hostSurface struct {
	*render.TcellSurface
	overlay *overlay.Overlay
}

func (s *hostSurface) Show() {
	s.overlay.Redraw()
	s.TcellSurface.Show()
}

// ErrorType classifies application errors
type ErrorType int

const (
	ErrorTypeConfig ErrorType = iota
	ErrorTypeSession
	ErrorTypeScreen
	ErrorTypeFont
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeConfig:
		return "config"
	case ErrorTypeSession:
		return "session"
	case ErrorTypeScreen:
		return "screen"
	case ErrorTypeFont:
		return "font"
	default:
		return "unknown"
	}
}

// AppError is a host failure with its category
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errorType, Message: message, Cause: cause}
}

// IsErrorType reports whether err is an AppError of type t
func IsErrorType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}
