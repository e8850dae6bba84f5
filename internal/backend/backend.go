package backend

import "io"

// PaneHandle is what spawn/adopt hand back to the caller (spec.md §4.3).
type PaneHandle struct {
	BackendID          string
	Reader             io.ReadCloser
	Writer             io.Writer
	InitialScreenBytes []byte
}

// DiscoveredPane is one entry of Backend.Discover (spec.md §4.3, reserved
// `tb-` window-name prefix).
type DiscoveredPane struct {
	BackendID string
	Name      string
	IsAlive   bool
}

// Backend is the capability set Session holds by interface, so future
// non-local backends (SSH, container) can be added without modifying
// Session (spec.md §9 "Polymorphic backend").
type Backend interface {
	// CheckAvailable is a static precondition check (binary present,
	// version acceptable).
	CheckAvailable() error

	// EnsureReady creates the long-lived mux session (idempotent) on
	// first use and starts the control-mode client.
	EnsureReady() error

	// Spawn opens a new pane running command+args in cwd, with the given
	// initial geometry, inside a window named with the reserved `tb-`
	// prefix.
	Spawn(windowName, command string, args []string, cwd string, rows, cols int) (*PaneHandle, error)

	// Adopt reconnects to an existing pane, capturing its current
	// scrollback best-effort to seed the caller's screen parser, and
	// forces a repaint (spec.md §4.3 "Adopt must force a repaint").
	Adopt(backendID string, rows, cols int) (*PaneHandle, error)

	// Discover enumerates panes whose window names begin with `tb-`.
	Discover() ([]DiscoveredPane, error)

	// Resize changes a pane's geometry.
	Resize(backendID string, rows, cols int) error

	// Kill destroys a pane outright.
	Kill(backendID string) error

	// Detach disables output monitoring for a pane and drops our
	// receiver, leaving the pane alive for a later Adopt.
	Detach(backendID string) error

	// IsDead reports whether the backend's underlying connection has
	// died (e.g. the mux process exited).
	IsDead() bool
}
