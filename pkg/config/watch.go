package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for writes to settle
const DefaultDebounce = 150 * time.Millisecond

// Watcher reloads the settings file when it changes
type Watcher struct {
	Path     string
	Debounce time.Duration
	// OnChange receives settings that loaded and validated
	OnChange func(Settings)
	// OnError receives load failures. The previous settings stay in effect.
	OnError func(error)
}

// Watch blocks until ctx is done, calling fn with the reloaded settings after
// each change to path
func Watch(ctx context.Context, path string, fn func(Settings)) error {
	w := &Watcher{Path: path, OnChange: fn}
	return w.Run(ctx)
}

// Run watches the directory holding Path so that editors replacing the file
// by rename are noticed
func (w *Watcher) Run(ctx context.Context) error {
	path, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.report(err)

		case <-timer.C:
			settings, err := Load(path)
			if err != nil {
				w.report(err)
				continue
			}
			if w.OnChange != nil {
				w.OnChange(settings)
			}
		}
	}
}

func (w *Watcher) report(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}
