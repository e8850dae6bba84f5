package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/agentpane/paneboard/internal/backend"
	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/sync"
)

// Settings is the static, user-editable configuration of spec.md §6: the
// mux binary location, the sync engine's polling
// cadence, the tombstone retention window, and the default agent
// permission mode. Grounded on the teacher's UserConfig (TOML tags, zero
// value meaning "use the default"), trimmed to the handful of settings
// this spec actually names rather than the teacher's many tool/theme/MCP
// sections.
type Settings struct {
	// Mux holds the settings for locating and validating the multiplexer
	// binary.
	Mux MuxSettings `toml:"mux"`

	// SyncPollIntervalMS is the sync engine's polling cadence in
	// milliseconds. Zero uses sync.DefaultPollInterval.
	SyncPollIntervalMS int `toml:"sync_poll_interval_ms"`

	// TombstoneTTLSeconds is how long a tombstoned session survives before
	// the primary instance hard-deletes it. Zero uses
	// sync.DefaultTombstoneTTL.
	TombstoneTTLSeconds int `toml:"tombstone_ttl_seconds"`

	// DefaultPermissionMode seeds SessionConfig.PermissionMode for every
	// new session; a role's own permission mode is not applied at spawn.
	// Empty uses backend.DefaultPermissionMode.
	DefaultPermissionMode string `toml:"default_permission_mode"`
}

// MuxSettings locates the multiplexer binary. The minimum accepted version
// is fixed in internal/backend, not configured here.
type MuxSettings struct {
	// BinaryPath is the mux executable to invoke. Empty means "look up
	// `tmux` on PATH".
	BinaryPath string `toml:"binary_path"`
}

// PollInterval returns the configured sync poll interval, or the engine's
// default if unset.
func (s Settings) PollInterval() time.Duration {
	if s.SyncPollIntervalMS <= 0 {
		return sync.DefaultPollInterval
	}
	return time.Duration(s.SyncPollIntervalMS) * time.Millisecond
}

// TombstoneTTL returns the configured tombstone retention window, or the
// engine's default if unset.
func (s Settings) TombstoneTTL() time.Duration {
	if s.TombstoneTTLSeconds <= 0 {
		return sync.DefaultTombstoneTTL
	}
	return time.Duration(s.TombstoneTTLSeconds) * time.Second
}

// PermissionMode returns the configured default permission mode, or the
// backend's built-in default if unset.
func (s Settings) PermissionMode() string {
	if s.DefaultPermissionMode == "" {
		return backend.DefaultPermissionMode
	}
	return s.DefaultPermissionMode
}

// Load reads settings from the resolved config path. A missing file is not
// an error: it returns the zero Settings (every field resolves to its
// built-in default via the accessor methods above), matching the teacher's
// "no file yet" behavior in LoadUserConfig.
func Load() (Settings, error) {
	path, err := ConfigPath()
	if err != nil {
		return Settings{}, errs.NewStartupError("config.Load", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Settings{}, nil
	}

	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to the resolved config path using a write-temp-then-rename
// sequence so a crash mid-write never leaves a truncated config file
// (grounded on the teacher's SaveUserConfig atomic-write pattern).
func Save(s Settings) error {
	path, err := ConfigPath()
	if err != nil {
		return errs.NewStartupError("config.Save", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("config: finalize write: %w", err)
	}
	return nil
}

// EnsureDatabaseDir resolves the database path and guarantees its parent
// directory exists, returning the path for store.Open.
func EnsureDatabaseDir() (string, error) {
	path, err := DatabasePath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("config: create database directory: %w", err)
	}
	return path, nil
}
