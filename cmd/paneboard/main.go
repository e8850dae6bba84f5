// Command paneboard is the TUI entrypoint: it wires internal/config,
// internal/store, internal/backend, internal/sync and internal/core
// together behind a thin bubbletea shell (spec.md §6 "UI surface (consumed,
// not defined here)"). Grounded on the teacher's cmd/agent-deck/main.go
// bootstrap sequence (color profile, tool-availability check, structured
// logging, signal handling, tea.NewProgram), generalized from the
// teacher's sprawling subcommand dispatch to the handful of flags this
// spec's single TUI entrypoint needs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/agentpane/paneboard/internal/backend"
	"github.com/agentpane/paneboard/internal/config"
	"github.com/agentpane/paneboard/internal/core"
	"github.com/agentpane/paneboard/internal/logging"
	"github.com/agentpane/paneboard/internal/store"
	syncengine "github.com/agentpane/paneboard/internal/sync"
)

// devBuildTag marks a development build (spec.md §6: "distinct dev and
// release names to avoid clobber" for both the database path and the mux
// session name). Set via -ldflags "-X main.devBuildTag=1" in dev builds.
var devBuildTag string

func isDevBuild() bool { return devBuildTag != "" }

func muxSessionName() string {
	if isDevBuild() {
		return "paneboard-dev"
	}
	return "paneboard"
}

func main() {
	initColorProfile()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "paneboard: error: stdin is not a terminal")
		os.Exit(1)
	}

	if isDevBuild() {
		restore := config.WithPathStrategy(config.DevStrategy())
		defer restore()
	}

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "paneboard: error: %v\n", err)
		os.Exit(1)
	}

	be := backend.NewLocalMuxBackend(settings.Mux.BinaryPath, muxSessionName())
	if err := be.CheckAvailable(); err != nil {
		fmt.Fprintf(os.Stderr, "paneboard: error: %v\n", err)
		os.Exit(1)
	}

	if err := setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "paneboard: warning: logging setup failed: %v\n", err)
	} else {
		defer logging.Shutdown()
	}

	dbPath, err := config.EnsureDatabaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "paneboard: error: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(dbPath, uuid.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "paneboard: error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctrl := core.New(st, be,
		core.WithSyncOptions(
			syncengine.WithPollInterval(settings.PollInterval()),
			syncengine.WithTombstoneTTL(settings.TombstoneTTL()),
		),
		core.WithDefaultPermissionMode(settings.PermissionMode()),
	)
	if err := ctrl.Rehydrate(); err != nil {
		fmt.Fprintf(os.Stderr, "paneboard: error: rehydration failed: %v\n", err)
		os.Exit(1)
	}

	if err := ctrl.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "paneboard: error: failed to start sync engine: %v\n", err)
		os.Exit(1)
	}

	if cfgWatcher, err := startConfigWatcher(ctrl); err != nil {
		fmt.Fprintf(os.Stderr, "paneboard: warning: config watch disabled: %v\n", err)
	} else {
		defer cfgWatcher.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		ctrl.Shutdown()
		os.Exit(0)
	}()

	p := tea.NewProgram(newTUIModel(ctrl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		ctrl.Shutdown()
		fmt.Fprintf(os.Stderr, "paneboard: error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging wires internal/logging per spec.md §9 ("logging setup" is
// out of scope as an external collaborator's concern, but the orchestrator
// still configures its own structured logger the way the teacher's
// main.go does).
func setupLogging() error {
	logDir, err := config.LogDir()
	if err != nil {
		return err
	}

	debugMode := os.Getenv("PANEBOARD_DEBUG") != ""
	logging.Init(logging.Config{
		LogDir:                logDir,
		Level:                 "info",
		Format:                "json",
		MaxSizeMB:             10,
		MaxBackups:            5,
		MaxAgeDays:            10,
		Compress:              true,
		RingBufferSize:        10 * 1024 * 1024,
		AggregateIntervalSecs: 30,
		Debug:                 debugMode,
	})

	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(logDir, "crash-dump.jsonl")
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				logging.ForComponent(logging.CompCore).Error("crash_dump_failed", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// startConfigWatcher reloads config.toml on external edits and applies
// the subset that can change without a restart (spec.md §9 "config
// hot-reload"); the mux binary path and database path take effect only on
// next launch, so only the permission mode is pushed live today.
func startConfigWatcher(ctrl *core.AppController) (*config.Watcher, error) {
	path, err := config.ConfigPath()
	if err != nil {
		return nil, err
	}
	w, err := config.NewWatcher(path, func(s config.Settings) {
		ctrl.SetDefaultPermissionMode(s.PermissionMode())
	})
	if err != nil {
		return nil, err
	}
	go w.Start()
	return w, nil
}

// initColorProfile configures lipgloss's color profile, honoring an
// explicit override before falling back to terminal-capability detection
// (grounded on the teacher's main.go initColorProfile).
func initColorProfile() {
	switch strings.ToLower(os.Getenv("PANEBOARD_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	if os.Getenv("COLORTERM") == "truecolor" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	lipgloss.SetColorProfile(termenv.ANSI256)
}
