package backend

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/creack/pty"

	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/logging"
	"github.com/agentpane/paneboard/internal/mux"
)

var backendLog = logging.ForComponent(logging.CompBackend)

// windowPrefix is the reserved prefix every window this orchestrator
// creates carries, so Discover can distinguish our panes from the user's
// own (spec.md §4.3, §6 "Multiplexer socket").
const windowPrefix = "tb-"

// minMuxMajor, minMuxMinor gate CheckAvailable (spec.md §4.2 "Version/
// availability gate"); tmux 3.2 introduced the -e flag on capture-pane this
// backend relies on for Adopt's scrollback capture.
const (
	minMuxMajor = 3
	minMuxMinor = 2
)

// LocalMuxBackend implements Backend over one internal/mux.Client, i.e. one
// local tmux control-mode session (spec.md §4.3, §9 "Polymorphic backend":
// the only shipped implementation of the Backend capability set).
type LocalMuxBackend struct {
	binary      string
	sessionName string

	mu     sync.Mutex
	client *mux.Client

	readersMu sync.Mutex
	readers   map[string]*mux.PaneReader // backendID -> open reader, for Detach
}

// NewLocalMuxBackend constructs a backend bound to sessionName; EnsureReady
// must be called before Spawn/Adopt/Discover.
func NewLocalMuxBackend(binary, sessionName string) *LocalMuxBackend {
	if binary == "" {
		binary = "tmux"
	}
	return &LocalMuxBackend{
		binary:      binary,
		sessionName: sessionName,
		readers:     make(map[string]*mux.PaneReader),
	}
}

func (b *LocalMuxBackend) CheckAvailable() error {
	return mux.CheckAvailable(b.binary, minMuxMajor, minMuxMinor)
}

func (b *LocalMuxBackend) EnsureReady() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil && !b.client.IsDead() {
		return nil
	}
	c, err := mux.NewClient(b.binary, b.sessionName, true)
	if err != nil {
		return errs.NewStartupError("backend.EnsureReady", err)
	}
	b.client = c
	backendLog.Debug("mux_session_ready", "session", b.sessionName)
	return nil
}

func (b *LocalMuxBackend) clientOrDead() (*mux.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil, errs.NewBackendError("backend", fmt.Errorf("not ready"))
	}
	return b.client, nil
}

// Spawn opens a new window named with the reserved prefix, running
// command+args in cwd, and returns its pane id plus I/O adapters (spec.md
// §4.3).
func (b *LocalMuxBackend) Spawn(windowName, command string, args []string, cwd string, rows, cols int) (*PaneHandle, error) {
	c, err := b.clientOrDead()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(windowName, windowPrefix) {
		windowName = windowPrefix + windowName
	}

	line := ShellJoin(append([]string{command}, args...))
	cmd := fmt.Sprintf(
		"new-window -P -F '#{pane_id}' -t %s -n %s -c %s -- %s",
		ShellEscape(b.sessionName), ShellEscape(windowName), ShellEscape(cwd), line,
	)
	out, err := c.SendCommand(cmd)
	if err != nil {
		return nil, errs.NewSpawnError("backend.Spawn", err)
	}
	if len(out) == 0 {
		return nil, errs.NewSpawnError("backend.Spawn", fmt.Errorf("no pane id returned"))
	}
	paneID := strings.TrimSpace(out[0])

	if err := b.resize(c, paneID, rows, cols); err != nil {
		backendLog.Warn("spawn_resize_failed", "pane", paneID, "err", err)
	}

	return b.openHandle(c, paneID, nil), nil
}

// Adopt reconnects to an existing pane, captures its scrollback
// best-effort, and force-resizes twice to trigger a full redraw (spec.md
// §4.3, §7 "Adopt of an already-sized pane still triggers a redraw").
func (b *LocalMuxBackend) Adopt(backendID string, rows, cols int) (*PaneHandle, error) {
	c, err := b.clientOrDead()
	if err != nil {
		return nil, err
	}

	captureCmd := fmt.Sprintf("capture-pane -p -e -t %s", ShellEscape(backendID))
	lines, err := c.SendCommand(captureCmd)
	if err != nil {
		backendLog.Warn("adopt_capture_failed", "pane", backendID, "err", err)
		lines = nil
	}
	initial := []byte(strings.Join(lines, "\n"))

	wrongRows, wrongCols := rows+1, cols
	if err := b.resize(c, backendID, wrongRows, wrongCols); err != nil {
		return nil, errs.NewBackendError("backend.Adopt", err)
	}
	if err := b.resize(c, backendID, rows, cols); err != nil {
		return nil, errs.NewBackendError("backend.Adopt", err)
	}

	return b.openHandle(c, backendID, initial), nil
}

func (b *LocalMuxBackend) openHandle(c *mux.Client, paneID string, initial []byte) *PaneHandle {
	reader := c.OpenPaneReader(paneID)
	b.readersMu.Lock()
	b.readers[paneID] = reader
	b.readersMu.Unlock()

	return &PaneHandle{
		BackendID:          paneID,
		Reader:             reader,
		Writer:             c.OpenPaneWriter(paneID),
		InitialScreenBytes: initial,
	}
}

// Discover enumerates panes in this mux session whose window name starts
// with the reserved prefix.
func (b *LocalMuxBackend) Discover() ([]DiscoveredPane, error) {
	c, err := b.clientOrDead()
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("list-panes -s -t %s -F '#{window_name} #{pane_id} #{pane_dead}'", ShellEscape(b.sessionName))
	lines, err := c.SendCommand(cmd)
	if err != nil {
		return nil, errs.NewBackendError("backend.Discover", err)
	}

	var out []DiscoveredPane
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 3 || !strings.HasPrefix(fields[0], windowPrefix) {
			continue
		}
		dead, _ := strconv.Atoi(fields[2])
		out = append(out, DiscoveredPane{Name: fields[0], BackendID: fields[1], IsAlive: dead == 0})
	}
	return out, nil
}

// paneGeometry validates rows/cols and packs them into a pty.Winsize, the
// field width tmux's own pane dimensions share (uint16 rows/cols). Reusing
// that struct to range-check catches a negative or overflowed value from a
// misbehaving UI layer before it becomes a malformed control-mode command
// line.
func paneGeometry(rows, cols int) (pty.Winsize, error) {
	if rows < 0 || rows > math.MaxUint16 || cols < 0 || cols > math.MaxUint16 {
		return pty.Winsize{}, fmt.Errorf("backend: invalid pane size %dx%d", cols, rows)
	}
	return pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}, nil
}

func (b *LocalMuxBackend) resize(c *mux.Client, backendID string, rows, cols int) error {
	ws, err := paneGeometry(rows, cols)
	if err != nil {
		return err
	}

	cmd := fmt.Sprintf("resize-pane -t %s -x %d -y %d", ShellEscape(backendID), ws.Cols, ws.Rows)
	_, err = c.SendCommand(cmd)
	return err
}

func (b *LocalMuxBackend) Resize(backendID string, rows, cols int) error {
	c, err := b.clientOrDead()
	if err != nil {
		return err
	}
	if err := b.resize(c, backendID, rows, cols); err != nil {
		return errs.NewBackendError("backend.Resize", err)
	}
	return nil
}

func (b *LocalMuxBackend) Kill(backendID string) error {
	c, err := b.clientOrDead()
	if err != nil {
		return err
	}
	if _, err := c.SendCommand(fmt.Sprintf("kill-pane -t %s", ShellEscape(backendID))); err != nil {
		return errs.NewBackendError("backend.Kill", err)
	}
	b.forgetReader(backendID)
	return nil
}

// Detach disables output monitoring for a pane (closes our reader
// subscription) without killing the pane, so a later Adopt can reconnect
// (spec.md §4.3 "Shutdown policies").
func (b *LocalMuxBackend) Detach(backendID string) error {
	b.forgetReader(backendID)
	return nil
}

func (b *LocalMuxBackend) forgetReader(backendID string) {
	b.readersMu.Lock()
	defer b.readersMu.Unlock()
	if r, ok := b.readers[backendID]; ok {
		_ = r.Close()
		delete(b.readers, backendID)
	}
}

func (b *LocalMuxBackend) IsDead() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client == nil || b.client.IsDead()
}
