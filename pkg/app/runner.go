package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Runner runs an Application until it stops or the process is signalled,
// then prints a session summary
type Runner struct {
	app    *Application
	config AppConfig
	out    io.Writer
}

// NewRunner creates a new application runner
func NewRunner(config AppConfig) (*Runner, error) {
	app, err := NewApplication(config)
	if err != nil {
		return nil, err
	}
	return &Runner{app: app, config: config, out: os.Stdout}, nil
}

// SetOutput redirects the banner and summary
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// Application returns the wrapped application
func (r *Runner) Application() *Application {
	return r.app
}

// Run starts the application and blocks until it's stopped
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := r.app.Run(ctx)
	r.printSessionSummary()
	return err
}

// Stop stops the running application
func (r *Runner) Stop() {
	r.app.Stop()
}

func (r *Runner) printSessionSummary() {
	s := r.app.Session()
	if s == nil {
		return
	}
	stats := s.Stats()

	fmt.Fprintf(r.out, "\n=== Session Summary ===\n")
	fmt.Fprintf(r.out, "Session: %s (%s)\n", s.Name(), r.config.Mode)
	fmt.Fprintf(r.out, "Duration: %v\n", stats.Duration().Round(time.Millisecond))
	fmt.Fprintf(r.out, "Bytes Sent: %d\n", stats.BytesSent)
	fmt.Fprintf(r.out, "Bytes Received: %d\n", stats.BytesRecv)
	fmt.Fprintf(r.out, "=======================\n")
}
