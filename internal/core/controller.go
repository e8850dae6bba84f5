package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/agentpane/paneboard/internal/backend"
	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/logging"
	"github.com/agentpane/paneboard/internal/metrics"
	"github.com/agentpane/paneboard/internal/model"
	"github.com/agentpane/paneboard/internal/session"
	"github.com/agentpane/paneboard/internal/store"
	syncengine "github.com/agentpane/paneboard/internal/sync"
)

var coreLog = logging.ForComponent(logging.CompCore)

// LivenessStatus classifies a session by how recently its pane produced
// output, for the UI's Busy/Waiting/Idle indicator (spec.md §4.3, silent on
// exact thresholds; chosen here and recorded in DESIGN.md).
type LivenessStatus int

const (
	StatusIdle LivenessStatus = iota
	StatusWaiting
	StatusBusy
)

const (
	busyThreshold    = 2 * time.Second
	waitingThreshold = 30 * time.Second
)

func livenessStatus(sinceLastOutputMs int64) LivenessStatus {
	switch {
	case sinceLastOutputMs < busyThreshold.Milliseconds():
		return StatusBusy
	case sinceLastOutputMs < waitingThreshold.Milliseconds():
		return StatusWaiting
	default:
		return StatusIdle
	}
}

// sessionEntry pairs a session's durable metadata with its live pane
// handle, if this instance currently has one adopted (spec.md §3
// "A Session is a view onto a pane; multiple instances may simultaneously
// view the same pane").
type sessionEntry struct {
	meta   model.Session
	live   *session.Session
	status LivenessStatus
}

// AppController composes C1-C5 behind the message contract of spec.md §6.
// All exported mutating methods (HandleKey, HandleResize, Tick) must be
// called from a single goroutine — the owning event loop — matching
// spec.md §4.6's "runs single-threaded cooperatively on the event loop".
// No internal locking is used; this constraint is structural, not enforced
// at runtime, exactly as the teacher's own bubbletea Update function is
// never called concurrently with itself.
type AppController struct {
	store   *store.Store
	backend backend.Backend
	engine  *syncengine.Engine

	termRows, termCols int

	projects        []model.Project
	sessions        []sessionEntry
	selectedProject int
	selectedSession int // index within the active project's session list

	focus  Focus
	modal  Modal
	quit   bool
	status string

	pendingDeltas chan syncengine.Delta

	defaultPermissionMode string

	// syncNowLimiter throttles the user-initiated ^r "sync now" key so
	// mashing it can't fire HasExternalChanges/loadSnapshot faster than the
	// store can usefully answer (grounded on the teacher's
	// internal/session/global_search.go rate.Limiter field).
	syncNowLimiter *rate.Limiter
}

// Option configures an AppController at construction time, the seam
// internal/config's settings attach to without this package importing
// config directly (spec.md §9 "Avoid global mutable singletons").
type Option func(*controllerOptions)

type controllerOptions struct {
	syncOpts              []syncengine.Option
	defaultPermissionMode string
}

// WithSyncOptions passes options through to the underlying sync.Engine
// (e.g. internal/config's poll interval and tombstone TTL settings).
func WithSyncOptions(opts ...syncengine.Option) Option {
	return func(o *controllerOptions) { o.syncOpts = append(o.syncOpts, opts...) }
}

// WithDefaultPermissionMode overrides backend.DefaultPermissionMode for
// every session spawned by this controller. Spawned sessions carry no
// role, so no role-level permission mode is applied.
func WithDefaultPermissionMode(mode string) Option {
	return func(o *controllerOptions) { o.defaultPermissionMode = mode }
}

// New constructs a controller over st and be. Call Rehydrate once at
// startup, then Start to begin the background sync engine, before driving
// Tick/HandleKey/HandleResize from the UI event loop.
func New(st *store.Store, be backend.Backend, opts ...Option) *AppController {
	var co controllerOptions
	for _, opt := range opts {
		opt(&co)
	}

	c := &AppController{
		store:                 st,
		backend:               be,
		termRows:              24,
		termCols:              80,
		pendingDeltas:         make(chan syncengine.Delta, 32),
		defaultPermissionMode: co.defaultPermissionMode,
		syncNowLimiter:        rate.NewLimiter(rate.Every(time.Second), 1),
	}
	c.engine = syncengine.New(st, func(d syncengine.Delta) { c.pendingDeltas <- d }, co.syncOpts...)
	return c
}

// Start begins the background sync engine. Call after Rehydrate.
func (c *AppController) Start() error { return c.engine.Start() }

// SetDefaultPermissionMode updates the permission mode applied to sessions
// spawned from now on, without requiring a restart. Used by the config
// hot-reload watcher (cmd/paneboard) when the on-disk settings file changes;
// sessions already running are unaffected.
func (c *AppController) SetDefaultPermissionMode(mode string) {
	c.defaultPermissionMode = mode
}

// Shutdown stops the sync engine and detaches (never kills) every locally
// live session, leaving their panes for the next instance to adopt
// (spec.md §4.3 "Shutdown policies").
func (c *AppController) Shutdown() {
	c.engine.Stop()
	for i := range c.sessions {
		if c.sessions[i].live != nil {
			_ = c.sessions[i].live.Detach()
		}
	}
}

// Rehydrate implements spec.md §4.4: load active sessions and projects,
// discover live panes, adopt matches, and mark the rest terminated without
// resurrecting the agent. Soft-deleted sessions are never considered (see
// DESIGN.md "Open Question resolutions").
func (c *AppController) Rehydrate() error {
	if err := c.backend.EnsureReady(); err != nil {
		return err
	}

	projects, err := c.store.ListActiveProjects()
	if err != nil {
		return err
	}
	c.projects = make([]model.Project, len(projects))
	for i, p := range projects {
		c.projects[i] = *p
	}

	sessions, err := c.store.ListActiveSessions()
	if err != nil {
		return err
	}

	discovered, err := c.backend.Discover()
	if err != nil {
		return err
	}
	byBackendID := make(map[string]backend.DiscoveredPane, len(discovered))
	for _, d := range discovered {
		byBackendID[d.BackendID] = d
	}

	c.sessions = make([]sessionEntry, 0, len(sessions))
	for _, sPtr := range sessions {
		s := *sPtr
		pane, found := byBackendID[s.BackendID]
		if s.BackendID != "" && found && pane.IsAlive {
			handle, err := c.backend.Adopt(s.BackendID, c.termRows, c.termCols)
			if err != nil {
				coreLog.Warn("rehydrate_adopt_failed", "session", s.ID.String(), "err", err)
				c.markTerminated(&s, true)
				c.sessions = append(c.sessions, sessionEntry{meta: s})
				continue
			}
			live := session.New(s.ID, c.backend, handle, nil)
			c.sessions = append(c.sessions, sessionEntry{meta: s, live: live})
			metrics.SessionsAdopted.Inc()
			continue
		}
		c.markTerminated(&s, true)
		c.sessions = append(c.sessions, sessionEntry{meta: s})
	}

	coreLog.Debug("rehydrated", "projects", len(c.projects), "sessions", len(c.sessions))
	return nil
}

// markTerminated records that this instance found no live pane for s. If
// persist is true, it also clears the stored backend_id so other instances
// converge on the same conclusion (spec.md §4.4 "update its stored backend
// state").
func (c *AppController) markTerminated(s *model.Session, persist bool) {
	s.Terminated = true
	if !persist {
		return
	}
	s.BackendID = ""
	if err := c.store.UpsertSession(s); err != nil {
		coreLog.Warn("mark_terminated_persist_failed", "session", s.ID.String(), "err", err)
	}
}

// Tick runs one iteration of the controller's cooperative loop: drain any
// sync deltas computed in the background, refresh liveness status, and
// reap sessions whose pane died on its own (spec.md §4.6 "run a tick").
func (c *AppController) Tick() {
	c.drainDeltas()
	c.refreshLiveness()
	c.reapExited()
}

func (c *AppController) drainDeltas() {
	for {
		select {
		case d := <-c.pendingDeltas:
			c.applyDelta(d)
		default:
			return
		}
	}
}

func (c *AppController) refreshLiveness() {
	for i := range c.sessions {
		if c.sessions[i].live == nil {
			continue
		}
		c.sessions[i].status = livenessStatus(c.sessions[i].live.MillisSinceLastOutput())
	}
}

func (c *AppController) reapExited() {
	for i := range c.sessions {
		e := &c.sessions[i]
		if e.live == nil || !e.live.HasExited() {
			continue
		}
		coreLog.Debug("session_reaped", "session", e.meta.ID.String())
		e.live = nil
		c.markTerminated(&e.meta, true)
	}
}

// applyDelta folds one SyncEngine delta into the local model (spec.md
// §4.5 "Applied to local model...").
func (c *AppController) applyDelta(d syncengine.Delta) {
	for _, p := range d.Projects.Added {
		c.upsertProjectLocal(p)
	}
	for _, p := range d.Projects.Updated {
		c.upsertProjectLocal(p)
	}
	for _, id := range d.Projects.Removed {
		c.removeProjectLocal(id)
	}

	for _, s := range d.Sessions.Added {
		c.adoptOrTrackSession(s)
	}
	for _, s := range d.Sessions.Updated {
		c.updateSessionLocal(s)
	}
	for _, id := range d.Sessions.Removed {
		c.removeSessionLocal(id)
	}
}

func (c *AppController) upsertProjectLocal(p model.Project) {
	for i := range c.projects {
		if c.projects[i].ID == p.ID {
			c.projects[i] = p
			return
		}
	}
	c.projects = append(c.projects, p)
}

func (c *AppController) removeProjectLocal(id uuid.UUID) {
	for i := range c.projects {
		if c.projects[i].ID == id {
			c.projects = append(c.projects[:i], c.projects[i+1:]...)
			if c.selectedProject >= len(c.projects) && c.selectedProject > 0 {
				c.selectedProject--
			}
			return
		}
	}
}

func (c *AppController) sessionIndex(id uuid.UUID) int {
	for i := range c.sessions {
		if c.sessions[i].meta.ID == id {
			return i
		}
	}
	return -1
}

// adoptOrTrackSession handles a session this instance just learned about
// from another instance: adopt its pane if alive, otherwise track it as
// terminated locally without writing back (this instance's failure to
// adopt does not mean the session is actually dead elsewhere).
func (c *AppController) adoptOrTrackSession(meta model.Session) {
	if idx := c.sessionIndex(meta.ID); idx >= 0 {
		c.sessions[idx].meta = meta
		return
	}
	if meta.BackendID == "" {
		c.sessions = append(c.sessions, sessionEntry{meta: meta})
		return
	}
	handle, err := c.backend.Adopt(meta.BackendID, c.termRows, c.termCols)
	if err != nil {
		coreLog.Debug("sync_adopt_failed", "session", meta.ID.String(), "err", err)
		meta.Terminated = true
		c.sessions = append(c.sessions, sessionEntry{meta: meta})
		return
	}
	live := session.New(meta.ID, c.backend, handle, nil)
	c.sessions = append(c.sessions, sessionEntry{meta: meta, live: live})
	metrics.SessionsAdopted.Inc()
}

func (c *AppController) updateSessionLocal(meta model.Session) {
	idx := c.sessionIndex(meta.ID)
	if idx < 0 {
		c.adoptOrTrackSession(meta)
		return
	}
	live := c.sessions[idx].live
	if live != nil && live.BackendID() != meta.BackendID {
		_ = live.Detach()
		live = nil
	}
	c.sessions[idx].meta = meta
	c.sessions[idx].live = live
}

// removeSessionLocal tears down the local view of a session another
// instance deleted. It detaches rather than kills: whichever instance
// issued the delete already killed the pane (spec.md §4.5 "Removed ...
// Applied by tearing down the local view; any currently-focused session
// falls back to the nearest sibling").
func (c *AppController) removeSessionLocal(id uuid.UUID) {
	idx := c.sessionIndex(id)
	if idx < 0 {
		return
	}
	if c.sessions[idx].live != nil {
		_ = c.sessions[idx].live.Detach()
	}
	c.removeSessionAt(idx)
}

func (c *AppController) removeSessionAt(idx int) {
	c.sessions = append(c.sessions[:idx], c.sessions[idx+1:]...)
	if c.selectedSession >= len(c.sessionsInActiveProject()) && c.selectedSession > 0 {
		c.selectedSession--
	}
}

// sessionsInActiveProject returns indices into c.sessions whose ProjectID
// matches the active project, preserving order.
func (c *AppController) sessionsInActiveProject() []int {
	proj, ok := c.ActiveProject()
	if !ok {
		return nil
	}
	var out []int
	for i := range c.sessions {
		if c.sessions[i].meta.ProjectID == proj.ID {
			out = append(out, i)
		}
	}
	return out
}

// --- bounds-safe accessors (spec.md §4.6: "direct index access is not
// permitted") ---

// ProjectAt returns the project at i, or false if i is out of range.
func (c *AppController) ProjectAt(i int) (*model.Project, bool) {
	if i < 0 || i >= len(c.projects) {
		return nil, false
	}
	return &c.projects[i], true
}

// ActiveProject returns the currently selected project.
func (c *AppController) ActiveProject() (*model.Project, bool) {
	return c.ProjectAt(c.selectedProject)
}

// SessionsForActiveProject returns a snapshot of sessions scoped to the
// active project (spec.md §6 "the session list scoped to the active
// project").
func (c *AppController) SessionsForActiveProject() []model.Session {
	idxs := c.sessionsInActiveProject()
	out := make([]model.Session, len(idxs))
	for i, idx := range idxs {
		out[i] = c.sessions[idx].meta
	}
	return out
}

// ActiveSession returns the selected session within the active project, if
// any.
func (c *AppController) ActiveSession() (*model.Session, bool) {
	idxs := c.sessionsInActiveProject()
	if c.selectedSession < 0 || c.selectedSession >= len(idxs) {
		return nil, false
	}
	return &c.sessions[idxs[c.selectedSession]].meta, true
}

// ActiveSessionHandle returns the live pane wrapper for the selected
// session, the seam the UI attaches its screen parser to (spec.md §6 "the
// active session's screen parser for rendering"; the parser itself is out
// of scope).
func (c *AppController) ActiveSessionHandle() (*session.Session, bool) {
	idxs := c.sessionsInActiveProject()
	if c.selectedSession < 0 || c.selectedSession >= len(idxs) {
		return nil, false
	}
	e := c.sessions[idxs[c.selectedSession]]
	if e.live == nil {
		return nil, false
	}
	return e.live, true
}

// ActiveSessionStatus reports the liveness classification of the selected
// session.
func (c *AppController) ActiveSessionStatus() (LivenessStatus, bool) {
	idxs := c.sessionsInActiveProject()
	if c.selectedSession < 0 || c.selectedSession >= len(idxs) {
		return StatusIdle, false
	}
	return c.sessions[idxs[c.selectedSession]].status, true
}

// Focus returns the panel that currently receives focus-specific input.
func (c *AppController) Focus() Focus { return c.focus }

// CurrentModal returns the active modal, or nil.
func (c *AppController) CurrentModal() Modal { return c.modal }

// StatusMessage returns the optional info-panel payload (spec.md §6).
func (c *AppController) StatusMessage() string { return c.status }

// ShouldQuit reports whether the controller's loop should terminate.
func (c *AppController) ShouldQuit() bool { return c.quit }

// OpenModal opens m. Panics if a modal is already open: the invariant is
// that this can never happen by correct construction (spec.md §4.6).
func (c *AppController) OpenModal(m Modal) {
	if c.modal != nil {
		panic("core: OpenModal called while a modal is already open")
	}
	c.modal = m
}

// CloseModal dismisses the active modal, if any.
func (c *AppController) CloseModal() { c.modal = nil }

// HandleKey dispatches one key event. When a modal is open, all input
// routes to it. Otherwise global shortcuts (new, close, focus cycle, sync,
// help) are processed before focus-specific handlers (spec.md §4.6).
func (c *AppController) HandleKey(k KeyEvent) {
	if c.modal != nil {
		c.handleModalKey(k)
		return
	}
	if c.handleGlobalKey(k) {
		return
	}
	switch c.focus {
	case FocusProjectList:
		c.handleProjectListKey(k)
	case FocusSessionList:
		c.handleSessionListKey(k)
	case FocusTerminal:
		c.handleTerminalKey(k)
	}
}

// HandleResize records the new viewport and resizes the pane backing the
// active session to match, if one is adopted.
func (c *AppController) HandleResize(r ResizeEvent) {
	c.termRows, c.termCols = r.Rows, r.Cols
	handle, ok := c.ActiveSessionHandle()
	if !ok {
		return
	}
	if err := c.backend.Resize(handle.BackendID(), r.Rows, r.Cols); err != nil {
		coreLog.Debug("resize_failed", "session", handle.BackendID(), "err", err)
	}
}

func isCtrl(k KeyEvent, r rune) bool {
	return k.Mods.Has(ModCtrl) && (k.Rune == r || k.Rune == r-('a'-'A'))
}

// handleGlobalKey processes shortcuts that apply regardless of focus. It
// reports whether it consumed the event.
func (c *AppController) handleGlobalKey(k KeyEvent) bool {
	switch {
	case isCtrl(k, 'q'):
		c.quit = true
	case isCtrl(k, 'n'):
		c.requestNewSession()
	case isCtrl(k, 'w'):
		c.closeFocusedSession()
	case k.Special == KeyTab:
		c.cycleFocus()
	case isCtrl(k, 'r'):
		if c.syncNowLimiter.Allow() {
			c.engine.TriggerPoll()
		}
	case isCtrl(k, 'h'):
		c.OpenModal(HelpModal{})
	default:
		return false
	}
	return true
}

func (c *AppController) cycleFocus() {
	switch c.focus {
	case FocusProjectList:
		c.focus = FocusSessionList
	case FocusSessionList:
		c.focus = FocusTerminal
	case FocusTerminal:
		c.focus = FocusProjectList
	}
}

func (c *AppController) handleModalKey(k KeyEvent) {
	switch m := c.modal.(type) {
	case *ConfirmModal:
		if k.Special == KeyEnter || k.Special == KeyEsc {
			c.CloseModal()
		}
	case *InputModal:
		switch k.Special {
		case KeyEsc:
			c.CloseModal()
		case KeyEnter:
			value := m.Value
			c.CloseModal()
			c.createSessionWithName(value)
		case KeyBackspace:
			if len(m.Value) > 0 {
				m.Value = m.Value[:len(m.Value)-1]
			}
		case KeyNone:
			if k.Rune != 0 {
				m.Value += string(k.Rune)
			}
		}
	case *ErrorModal:
		if k.Special == KeyEnter || k.Special == KeyEsc {
			c.CloseModal()
		}
	case HelpModal:
		c.CloseModal()
	}
}

func (c *AppController) handleProjectListKey(k KeyEvent) {
	switch k.Special {
	case KeyUp:
		if c.selectedProject > 0 {
			c.selectedProject--
		}
	case KeyDown:
		if c.selectedProject < len(c.projects)-1 {
			c.selectedProject++
		}
	case KeyEnter:
		c.selectedSession = 0
		c.focus = FocusSessionList
	}
}

func (c *AppController) handleSessionListKey(k KeyEvent) {
	n := len(c.sessionsInActiveProject())
	switch k.Special {
	case KeyUp:
		if c.selectedSession > 0 {
			c.selectedSession--
		}
	case KeyDown:
		if c.selectedSession < n-1 {
			c.selectedSession++
		}
	case KeyEsc:
		c.focus = FocusProjectList
	case KeyEnter:
		if n > 0 {
			c.focus = FocusTerminal
		}
	}
}

func (c *AppController) handleTerminalKey(k KeyEvent) {
	if k.Special == KeyEsc {
		c.focus = FocusSessionList
		return
	}
	handle, ok := c.ActiveSessionHandle()
	if !ok {
		return
	}
	if k.Special == KeyNone && k.Rune != 0 {
		handle.Write([]byte(string(k.Rune)))
	}
}

func (c *AppController) requestNewSession() {
	if _, ok := c.ActiveProject(); !ok {
		c.OpenModal(&ErrorModal{Message: "no project selected"})
		return
	}
	c.OpenModal(&InputModal{Prompt: "New session name"})
}

func (c *AppController) createSessionWithName(name string) {
	proj, ok := c.ActiveProject()
	if !ok {
		return
	}
	if err := c.spawnSession(proj.ID, name); err != nil {
		c.OpenModal(&ErrorModal{Message: err.Error()})
	}
}

// closeFocusedSession kills the selected session's pane and tombstones its
// row. Unlike removeSessionLocal (used for deletions observed from other
// instances), this instance is the one issuing the kill.
func (c *AppController) closeFocusedSession() {
	idxs := c.sessionsInActiveProject()
	if c.selectedSession < 0 || c.selectedSession >= len(idxs) {
		return
	}
	idx := idxs[c.selectedSession]
	entry := c.sessions[idx]
	if entry.live != nil {
		_ = entry.live.Kill()
	}
	if err := c.store.SoftDeleteSession(entry.meta.ID); err != nil {
		coreLog.Warn("soft_delete_failed", "session", entry.meta.ID.String(), "err", err)
	}
	c.removeSessionAt(idx)
}

func (c *AppController) projectByID(id uuid.UUID) (*model.Project, bool) {
	for i := range c.projects {
		if c.projects[i].ID == id {
			return &c.projects[i], true
		}
	}
	return nil, false
}

// spawnSession launches a new agent pane for projectID and tracks it
// locally. An empty name is replaced with "Session N", N taken from the
// store's single session counter shared by all projects.
func (c *AppController) spawnSession(projectID uuid.UUID, name string) error {
	proj, ok := c.projectByID(projectID)
	if !ok {
		return fmt.Errorf("core: unknown project %s", projectID)
	}
	if name == "" {
		n, err := c.store.NextSessionCounter()
		if err != nil {
			return err
		}
		name = fmt.Sprintf("Session %d", n)
	}

	cwd := ""
	if len(proj.RepoPaths) > 0 {
		cwd = proj.RepoPaths[0]
	}

	sessID := model.NewSessionID()
	argv := backend.BuildArgv(backend.SessionConfig{
		SessionID:      sessID.String(),
		PermissionMode: c.defaultPermissionMode,
	})
	windowName := "tb-" + sessID.String()[:8]

	handle, err := c.backend.Spawn(windowName, "claude", argv, cwd, c.termRows, c.termCols)
	if err != nil {
		return errs.NewSpawnError("spawn_session", err)
	}

	meta := model.Session{
		ID:          sessID,
		DisplayName: name,
		ProjectID:   projectID,
		BackendID:   handle.BackendID,
		BackendType: "local-mux",
		Cwd:         cwd,
	}
	if err := c.store.UpsertSession(&meta); err != nil {
		return err
	}
	_ = c.store.RecordSessionCommand(sessID, "claude", argv)

	live := session.New(sessID, c.backend, handle, nil)
	c.sessions = append(c.sessions, sessionEntry{meta: meta, live: live})
	metrics.SessionsSpawned.Inc()
	return nil
}
