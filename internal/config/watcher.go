package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentpane/paneboard/internal/logging"
)

var watcherLog = logging.ForComponent(logging.CompCore)

// Watcher watches the settings file for external edits and reloads it,
// calling onChange with the freshly-parsed Settings. The data-version
// polling in internal/sync handles cross-instance database changes on its
// own cadence (spec.md §4.5); this is the faster, editor-driven path for a
// human hand-editing the TOML file, grounded on the teacher's
// internal/session hook status watcher (same debounce-then-reload shape,
// applied here to one file instead of a directory of them).
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(Settings)

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher builds a Watcher for the settings file at path. Start must be
// called in its own goroutine; Stop releases the underlying fsnotify handle.
func NewWatcher(path string, onChange func(Settings)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the containing directory rather than the file itself: editors
	// commonly replace a file via rename-into-place, which would silently
	// stop a direct watch on the old inode.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		watcher:  fw,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the debounced watch loop until Stop is called.
func (w *Watcher) Start() {
	var debounce *time.Timer
	const settleDelay = 150 * time.Millisecond

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(settleDelay, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			watcherLog.Warn("config_watch_error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	settings, err := Load()
	if err != nil {
		watcherLog.Warn("config_reload_failed", "err", err)
		return
	}
	watcherLog.Debug("config_reloaded")
	w.onChange(settings)
}

// Stop shuts down the watch loop and closes the fsnotify handle.
func (w *Watcher) Stop() {
	w.closeOnce.Do(func() { close(w.done) })
	_ = w.watcher.Close()
}
