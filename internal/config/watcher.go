package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"argus/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of events editors emit on save.
const reloadDebounce = 150 * time.Millisecond

// debouncer runs fn once after d has passed without another call.
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
}

func (d *debouncer) debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Watch reloads the config at path whenever it changes and hands the result
// to onChange. Invalid files are logged and skipped. The parent directory is
// watched so atomic-rename saves are seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	d := &debouncer{duration: reloadDebounce}
	defer d.cancel()

	reload := func() {
		cfg, err := Load(target)
		if err != nil {
			logging.ConfigWarn("reload skipped: %v", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logging.ConfigWarn("reload skipped: %v", err)
			return
		}
		logging.Config("reloaded %s", target)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				d.debounce(reload)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.ConfigWarn("watcher error: %v", err)
		}
	}
}
