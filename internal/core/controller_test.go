package core

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpane/paneboard/internal/backend"
	"github.com/agentpane/paneboard/internal/model"
	"github.com/agentpane/paneboard/internal/store"
	syncengine "github.com/agentpane/paneboard/internal/sync"
)

// fakeBackend is a minimal, fully in-memory backend.Backend for exercising
// AppController without a real tmux control-mode connection.
type fakeBackend struct {
	discovered []backend.DiscoveredPane
	spawnErr   error
	adoptErr   error

	nextPane int
	pipes    []*io.PipeWriter

	killed   []string
	detached []string
	resized  []struct{ id string; rows, cols int }

	spawnedArgs [][]string
}

func (f *fakeBackend) CheckAvailable() error { return nil }
func (f *fakeBackend) EnsureReady() error    { return nil }

func (f *fakeBackend) newHandle() *backend.PaneHandle {
	f.nextPane++
	pr, pw := io.Pipe()
	f.pipes = append(f.pipes, pw)
	return &backend.PaneHandle{
		BackendID: fmt.Sprintf("pane-%d", f.nextPane),
		Reader:    pr,
		Writer:    io.Discard,
	}
}

func (f *fakeBackend) Spawn(windowName, command string, args []string, cwd string, rows, cols int) (*backend.PaneHandle, error) {
	f.spawnedArgs = append(f.spawnedArgs, args)
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	return f.newHandle(), nil
}

func (f *fakeBackend) Adopt(backendID string, rows, cols int) (*backend.PaneHandle, error) {
	if f.adoptErr != nil {
		return nil, f.adoptErr
	}
	h := f.newHandle()
	h.BackendID = backendID
	return h, nil
}

func (f *fakeBackend) Discover() ([]backend.DiscoveredPane, error) { return f.discovered, nil }

func (f *fakeBackend) Resize(backendID string, rows, cols int) error {
	f.resized = append(f.resized, struct {
		id         string
		rows, cols int
	}{backendID, rows, cols})
	return nil
}

func (f *fakeBackend) Kill(backendID string) error {
	f.killed = append(f.killed, backendID)
	return nil
}

func (f *fakeBackend) Detach(backendID string) error {
	f.detached = append(f.detached, backendID)
	return nil
}

func (f *fakeBackend) IsDead() bool { return false }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "paneboard.db")
	st, err := store.Open(dbPath, uuid.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func runeKey(r rune) KeyEvent { return KeyEvent{Rune: r} }
func ctrlKey(r rune) KeyEvent { return KeyEvent{Rune: r, Mods: ModCtrl} }
func specialKey(k SpecialKey) KeyEvent { return KeyEvent{Special: k} }

func TestNew_InitialState(t *testing.T) {
	c := New(newTestStore(t), &fakeBackend{})
	assert.Equal(t, FocusProjectList, c.Focus())
	assert.Nil(t, c.CurrentModal())
	assert.False(t, c.ShouldQuit())
}

func TestRehydrate_AdoptsMatchingAliveSession(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))
	sess := &model.Session{ID: model.NewSessionID(), DisplayName: "Session 1", ProjectID: proj.ID, BackendID: "pane-1", BackendType: "local-mux"}
	require.NoError(t, st.UpsertSession(sess))

	fb := &fakeBackend{discovered: []backend.DiscoveredPane{{BackendID: "pane-1", IsAlive: true}}}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	sessions := c.SessionsForActiveProject()
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Terminated)

	_, ok := c.ActiveSessionHandle()
	assert.True(t, ok)
}

func TestRehydrate_MarksMissingPaneTerminated(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))
	sess := &model.Session{ID: model.NewSessionID(), DisplayName: "Session 1", ProjectID: proj.ID, BackendID: "pane-dead", BackendType: "local-mux"}
	require.NoError(t, st.UpsertSession(sess))

	fb := &fakeBackend{}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	sessions := c.SessionsForActiveProject()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Terminated)

	persisted, err := st.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, persisted.BackendID)

	_, ok := c.ActiveSessionHandle()
	assert.False(t, ok)
}

func TestRehydrate_IgnoresUnmatchedDiscoveredPane(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))

	fb := &fakeBackend{discovered: []backend.DiscoveredPane{{BackendID: "orphan", IsAlive: true}}}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	assert.Empty(t, c.SessionsForActiveProject())
}

func TestOpenModal_PanicsWhenAlreadyOpen(t *testing.T) {
	c := New(newTestStore(t), &fakeBackend{})
	c.OpenModal(&ErrorModal{Message: "first"})
	assert.Panics(t, func() { c.OpenModal(HelpModal{}) })
}

func TestHandleKey_TabCyclesFocus(t *testing.T) {
	c := New(newTestStore(t), &fakeBackend{})
	assert.Equal(t, FocusProjectList, c.Focus())
	c.HandleKey(specialKey(KeyTab))
	assert.Equal(t, FocusSessionList, c.Focus())
	c.HandleKey(specialKey(KeyTab))
	assert.Equal(t, FocusTerminal, c.Focus())
	c.HandleKey(specialKey(KeyTab))
	assert.Equal(t, FocusProjectList, c.Focus())
}

func TestHandleKey_CtrlHTogglesHelpModal(t *testing.T) {
	c := New(newTestStore(t), &fakeBackend{})
	c.HandleKey(ctrlKey('h'))
	require.NotNil(t, c.CurrentModal())
	_, isHelp := c.CurrentModal().(HelpModal)
	assert.True(t, isHelp)

	c.HandleKey(runeKey('x'))
	assert.Nil(t, c.CurrentModal())
}

func TestHandleKey_NewSessionWithNoProjectShowsError(t *testing.T) {
	c := New(newTestStore(t), &fakeBackend{})
	c.HandleKey(ctrlKey('n'))
	_, isErr := c.CurrentModal().(*ErrorModal)
	assert.True(t, isErr)
}

func TestHandleKey_NewSessionFlowSpawnsSession(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))

	fb := &fakeBackend{}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	c.HandleKey(ctrlKey('n'))
	input, ok := c.CurrentModal().(*InputModal)
	require.True(t, ok)
	assert.Equal(t, "New session name", input.Prompt)

	for _, r := range "my session" {
		c.HandleKey(runeKey(r))
	}
	c.HandleKey(specialKey(KeyEnter))

	assert.Nil(t, c.CurrentModal())
	sessions := c.SessionsForActiveProject()
	require.Len(t, sessions, 1)
	assert.Equal(t, "my session", sessions[0].DisplayName)
	assert.Len(t, fb.pipes, 1)
}

func TestHandleKey_CloseFocusedSessionKillsAndSoftDeletes(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))
	sess := &model.Session{ID: model.NewSessionID(), DisplayName: "Session 1", ProjectID: proj.ID, BackendID: "pane-1", BackendType: "local-mux"}
	require.NoError(t, st.UpsertSession(sess))

	fb := &fakeBackend{discovered: []backend.DiscoveredPane{{BackendID: "pane-1", IsAlive: true}}}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	c.HandleKey(ctrlKey('w'))

	assert.Empty(t, c.SessionsForActiveProject())
	assert.Contains(t, fb.killed, "pane-1")

	active, err := st.ListActiveSessions()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTick_ReapsExitedSession(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))
	sess := &model.Session{ID: model.NewSessionID(), DisplayName: "Session 1", ProjectID: proj.ID, BackendID: "pane-1", BackendType: "local-mux"}
	require.NoError(t, st.UpsertSession(sess))

	fb := &fakeBackend{discovered: []backend.DiscoveredPane{{BackendID: "pane-1", IsAlive: true}}}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())
	require.Len(t, fb.pipes, 1)

	fb.pipes[0].Close() // simulate the pane dying: reader observes EOF

	require.Eventually(t, func() bool {
		c.Tick()
		s, ok := c.ActiveSession()
		return ok && s.Terminated
	}, time.Second, 5*time.Millisecond)

	persisted, err := st.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, persisted.BackendID)
}

func TestApplyDelta_RemovedSessionDetachesLocalView(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))
	sess := &model.Session{ID: model.NewSessionID(), DisplayName: "Session 1", ProjectID: proj.ID, BackendID: "pane-1", BackendType: "local-mux"}
	require.NoError(t, st.UpsertSession(sess))

	fb := &fakeBackend{discovered: []backend.DiscoveredPane{{BackendID: "pane-1", IsAlive: true}}}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	c.applyDelta(syncengine.Delta{Sessions: syncengine.SessionDelta{Removed: []uuid.UUID{sess.ID}}})

	assert.Empty(t, c.SessionsForActiveProject())
	assert.Contains(t, fb.detached, "pane-1")
	assert.Empty(t, fb.killed, "a remotely observed deletion must not re-kill the pane")
}

func TestApplyDelta_AddedSessionIsAdopted(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))

	fb := &fakeBackend{}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	newSess := model.Session{ID: model.NewSessionID(), DisplayName: "From elsewhere", ProjectID: proj.ID, BackendID: "pane-7", BackendType: "local-mux"}
	c.applyDelta(syncengine.Delta{Sessions: syncengine.SessionDelta{Added: []model.Session{newSess}}})

	sessions := c.SessionsForActiveProject()
	require.Len(t, sessions, 1)
	assert.Equal(t, "From elsewhere", sessions[0].DisplayName)
	_, ok := c.ActiveSessionHandle()
	assert.True(t, ok)
}

func TestHandleResize_ResizesActiveSessionPane(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))
	sess := &model.Session{ID: model.NewSessionID(), DisplayName: "Session 1", ProjectID: proj.ID, BackendID: "pane-1", BackendType: "local-mux"}
	require.NoError(t, st.UpsertSession(sess))

	fb := &fakeBackend{discovered: []backend.DiscoveredPane{{BackendID: "pane-1", IsAlive: true}}}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	c.HandleResize(ResizeEvent{Cols: 120, Rows: 40})

	require.Len(t, fb.resized, 1)
	assert.Equal(t, "pane-1", fb.resized[0].id)
	assert.Equal(t, 40, fb.resized[0].rows)
	assert.Equal(t, 120, fb.resized[0].cols)
}

func TestHandleKey_CtrlQSetsQuit(t *testing.T) {
	c := New(newTestStore(t), &fakeBackend{})
	assert.False(t, c.ShouldQuit())
	c.HandleKey(ctrlKey('q'))
	assert.True(t, c.ShouldQuit())
}

func TestNew_WithDefaultPermissionModeThreadsIntoSpawnArgv(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))

	fb := &fakeBackend{}
	c := New(st, fb, WithDefaultPermissionMode("plan"))
	require.NoError(t, c.Rehydrate())

	require.NoError(t, c.spawnSession(proj.ID, "s1"))
	require.Len(t, fb.spawnedArgs, 1)
	assert.Contains(t, fb.spawnedArgs[0], "plan")
}

func TestSetDefaultPermissionMode_AppliesToLaterSpawns(t *testing.T) {
	st := newTestStore(t)
	proj := &model.Project{ID: model.NewProjectID("demo"), DisplayName: "demo"}
	require.NoError(t, st.CreateProject(proj))

	fb := &fakeBackend{}
	c := New(st, fb)
	require.NoError(t, c.Rehydrate())

	c.SetDefaultPermissionMode("acceptEdits")
	require.NoError(t, c.spawnSession(proj.ID, "s1"))
	require.Len(t, fb.spawnedArgs, 1)
	assert.Contains(t, fb.spawnedArgs[0], "acceptEdits")
}

func TestNew_WithSyncOptionsForwardsToEngine(t *testing.T) {
	st := newTestStore(t)
	c := New(st, &fakeBackend{}, WithSyncOptions(
		syncengine.WithPollInterval(5*time.Second),
		syncengine.WithTombstoneTTL(10*time.Second),
	))
	require.NoError(t, c.Start())
	defer c.Shutdown()

	// TriggerPoll runs synchronously regardless of pollInterval. The
	// engine's settings are unexported, so this checks only that a
	// controller built with sync options starts, polls and shuts down.
	c.engine.TriggerPoll()
}
