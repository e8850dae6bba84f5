// Package config implements the ambient configuration layer of spec.md
// §6/§9: a TOML settings file plus XDG-based path resolution for the
// config file, database file, and log directory. Grounded on the
// teacher's internal/session/userconfig.go (TOML load/save, atomic write)
// generalized from the teacher's sprawling per-tool settings schema to
// the small, domain-specific settings this spec names.
package config

import (
	"fmt"
	"sync"

	"github.com/adrg/xdg"
)

// appNameRelease and appNameDev are the two XDG subdirectory names spec.md
// §6 requires ("dev and release builds use distinct directory names to
// avoid clobber"). A build built with the dev tag uses appNameDev so a
// developer's working tree never corrupts their real database.
const (
	appNameRelease = "paneboard"
	appNameDev     = "paneboard-dev"
)

// ConfigFileName is the settings file within the config directory.
const ConfigFileName = "config.toml"

// DatabaseFileName is the database file within the data directory.
const DatabaseFileName = "paneboard.db"

// PathStrategy resolves the three filesystem locations paneboard needs.
// The production implementation (xdgPathStrategy) is the only one shipped;
// tests substitute a fixed-directory strategy via WithPathStrategy.
type PathStrategy interface {
	ConfigPath() (string, error)
	DatabasePath() (string, error)
	LogDir() (string, error)
}

// xdgPathStrategy resolves paths via github.com/adrg/xdg, namespaced under
// appName.
type xdgPathStrategy struct {
	appName string
}

func (s xdgPathStrategy) ConfigPath() (string, error) {
	p, err := xdg.ConfigFile(s.appName + "/" + ConfigFileName)
	if err != nil {
		return "", fmt.Errorf("config: resolve config path: %w", err)
	}
	return p, nil
}

func (s xdgPathStrategy) DatabasePath() (string, error) {
	p, err := xdg.DataFile(s.appName + "/" + DatabaseFileName)
	if err != nil {
		return "", fmt.Errorf("config: resolve database path: %w", err)
	}
	return p, nil
}

func (s xdgPathStrategy) LogDir() (string, error) {
	// xdg.DataFile creates the parent directories of its argument, so a
	// sentinel file name under the directory we actually want is enough
	// to force creation; we then strip it back off.
	p, err := xdg.DataFile(s.appName + "/logs/.keep")
	if err != nil {
		return "", fmt.Errorf("config: resolve log dir: %w", err)
	}
	return p[:len(p)-len("/.keep")], nil
}

// defaultStrategy is the production XDG strategy for release builds.
// DevStrategy returns the dev variant for local development binaries.
func defaultStrategy() PathStrategy { return xdgPathStrategy{appName: appNameRelease} }

// DevStrategy returns the path strategy a dev build should use, so a
// developer iterating on paneboard never touches their real database
// (spec.md §6).
func DevStrategy() PathStrategy { return xdgPathStrategy{appName: appNameDev} }

// overrideMu guards the single process-wide path-strategy override. This
// is the one piece of process state spec.md §9 allows ("Avoid global
// mutable singletons... can be overridden per-thread for tests via a
// thread-local strategy with an RAII guard that restores on drop"); Go has
// no true thread-locals, so the override is process-wide and tests using
// it must not run in parallel with each other.
var (
	overrideMu sync.Mutex
	override   PathStrategy
)

// WithPathStrategy installs ps as the active path strategy and returns a
// guard that restores the previous strategy. Intended for tests:
//
//	restore := config.WithPathStrategy(fixedDirStrategy{dir: t.TempDir()})
//	defer restore()
func WithPathStrategy(ps PathStrategy) (restore func()) {
	overrideMu.Lock()
	defer overrideMu.Unlock()
	prev := override
	override = ps
	return func() {
		overrideMu.Lock()
		defer overrideMu.Unlock()
		override = prev
	}
}

func currentStrategy() PathStrategy {
	overrideMu.Lock()
	defer overrideMu.Unlock()
	if override != nil {
		return override
	}
	return defaultStrategy()
}

// ConfigPath returns the path to the settings TOML file, creating parent
// directories as needed.
func ConfigPath() (string, error) { return currentStrategy().ConfigPath() }

// DatabasePath returns the path to the SQLite database file, creating
// parent directories as needed.
func DatabasePath() (string, error) { return currentStrategy().DatabasePath() }

// LogDir returns the directory paneboard writes rotated logs into,
// creating it if necessary.
func LogDir() (string, error) { return currentStrategy().LogDir() }
