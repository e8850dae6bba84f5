// Package sync implements the SyncEngine of spec.md §4.5: cross-instance
// convergence using internal/store as shared ground truth. Grounded on the
// teacher's scheduling shape (HyphaGroup-oubliette's internal/schedule.Runner:
// context+cancel, a ticker loop that runs once immediately, a WaitGroup for
// clean shutdown) generalized from a cron-schedule executor to a
// change-detection poller, plus the teacher's own
// RegisterInstance/ElectPrimary gating for the tombstone-purge sweep.
package sync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/logging"
	"github.com/agentpane/paneboard/internal/metrics"
	"github.com/agentpane/paneboard/internal/model"
	"github.com/agentpane/paneboard/internal/store"
)

var syncLog = logging.ForComponent(logging.CompSync)

// DefaultPollInterval is the scheduler tick spec.md §4.5 recommends
// ("e.g. every 500 ms").
const DefaultPollInterval = 500 * time.Millisecond

// DefaultTombstoneTTL is the purge horizon spec.md §4.5 recommends
// ("recommended >= 60 s, far exceeding the poll interval").
const DefaultTombstoneTTL = 60 * time.Second

// DefaultPrimaryElectionTimeout bounds how stale a primary's heartbeat may
// be before another instance may claim the role.
const DefaultPrimaryElectionTimeout = 15 * time.Second

// defaultPurgeCronSpec runs the purge sweep once a minute; robfig/cron's
// "@every" syntax needs no external crontab parsing.
const defaultPurgeCronSpec = "@every 1m"

// worktreeFingerprintConcurrency bounds how many worktreeFingerprint
// queries loadSnapshot runs at once; SQLite's WAL mode lets readers overlap,
// but an unbounded fan-out still isn't worth it once session counts get
// large (same reasoning as the teacher's errgroup.SetLimit pool, scaled for
// local reads rather than tmux round trips).
const worktreeFingerprintConcurrency = 8

// DeltaFunc receives each non-empty delta computed by a poll. Implemented
// by the AppController to apply changes to its local view (spec.md §4.5
// "Applied to local model...").
type DeltaFunc func(Delta)

// Engine polls internal/store for external changes and emits deltas
// against the snapshot it last applied (spec.md §4.5).
type Engine struct {
	store                  *store.Store
	pollInterval           time.Duration
	tombstoneTTL           time.Duration
	primaryElectionTimeout time.Duration
	purgeCronSpec          string
	onDelta                DeltaFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cron   *cronlib.Cron

	mu       sync.Mutex
	sessions map[uuid.UUID]sessionSnapshot
	projects map[uuid.UUID]model.Project
}

// Option configures optional Engine fields.
type Option func(*Engine)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option { return func(e *Engine) { e.pollInterval = d } }

// WithTombstoneTTL overrides DefaultTombstoneTTL.
func WithTombstoneTTL(d time.Duration) Option { return func(e *Engine) { e.tombstoneTTL = d } }

// WithPrimaryElectionTimeout overrides DefaultPrimaryElectionTimeout.
func WithPrimaryElectionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.primaryElectionTimeout = d }
}

// WithPurgeCronSpec overrides the cron expression gating the purge sweep.
func WithPurgeCronSpec(spec string) Option { return func(e *Engine) { e.purgeCronSpec = spec } }

// New constructs an Engine bound to st, invoking onDelta on every
// non-empty poll result. Call Start to begin polling.
func New(st *store.Store, onDelta DeltaFunc, opts ...Option) *Engine {
	e := &Engine{
		store:                  st,
		pollInterval:           DefaultPollInterval,
		tombstoneTTL:           DefaultTombstoneTTL,
		primaryElectionTimeout: DefaultPrimaryElectionTimeout,
		purgeCronSpec:          defaultPurgeCronSpec,
		onDelta:                onDelta,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start registers this instance, seeds the baseline snapshot from the
// current database state (so the first poll after rehydration reports no
// changes unless something actually moved in between), and begins the
// poll and purge loops.
func (e *Engine) Start() error {
	if err := e.store.RegisterInstance(false); err != nil {
		return err
	}
	sessions, projects, err := e.loadSnapshot()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.sessions = sessions
	e.projects = projects
	e.mu.Unlock()

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.wg.Add(1)
	go e.pollLoop()

	e.cron = cronlib.New()
	if _, err := e.cron.AddFunc(e.purgeCronSpec, e.runPurgeIfPrimary); err != nil {
		syncLog.Warn("purge_cron_schedule_failed", "spec", e.purgeCronSpec, "err", err)
	} else {
		e.cron.Start()
	}

	syncLog.Debug("sync_engine_started", "poll_interval", e.pollInterval.String())
	return nil
}

// Stop cancels the poll loop, stops the cron scheduler (waiting for any
// in-flight purge), and releases this instance's heartbeat/primary claim.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
	e.wg.Wait()
	_ = e.store.ResignPrimary()
	_ = e.store.UnregisterInstance()
	syncLog.Debug("sync_engine_stopped")
}

// pollLoop runs every pollInterval until Stop is called (spec.md §4.5
// "Polling cadence").
func (e *Engine) pollLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce()
		}
	}
}

// TriggerPoll runs one poll immediately, outside the regular cadence, for
// a user-initiated "sync now" request. Safe to call concurrently with the
// background poll loop; e.mu serializes access to the snapshot state.
func (e *Engine) TriggerPoll() {
	e.pollOnce()
}

// pollOnce checks has_external_changes and, if true, loads the current
// snapshot and diffs it against the last-applied one.
func (e *Engine) pollOnce() {
	changed, err := e.store.HasExternalChanges()
	if err != nil {
		syncLog.Warn("has_external_changes_failed", "err", err)
		return
	}
	if err := e.store.Heartbeat(); err != nil {
		syncLog.Warn("heartbeat_failed", "err", err)
	}
	if !changed {
		return
	}

	sessions, projects, err := e.loadSnapshot()
	if err != nil {
		syncLog.Warn("load_snapshot_failed", "err", err)
		return
	}

	e.mu.Lock()
	delta := Delta{
		Sessions: computeSessionDelta(e.sessions, sessions),
		Projects: computeProjectDelta(e.projects, projects),
	}
	e.sessions = sessions
	e.projects = projects
	e.mu.Unlock()

	if delta.Empty() {
		return
	}
	syncLog.Debug("delta_applied",
		"sessions_added", len(delta.Sessions.Added),
		"sessions_removed", len(delta.Sessions.Removed),
		"sessions_updated", len(delta.Sessions.Updated),
		"projects_added", len(delta.Projects.Added),
		"projects_removed", len(delta.Projects.Removed),
		"projects_updated", len(delta.Projects.Updated),
	)
	recordDeltaMetrics(delta)
	if e.onDelta != nil {
		e.onDelta(delta)
	}
}

// recordDeltaMetrics tallies one applied delta by kind for the admin
// sidecar's optional /metrics scrape (spec.md §9's domain-stack wiring of
// prometheus/client_golang onto C5).
func recordDeltaMetrics(d Delta) {
	metrics.SyncDeltasApplied.WithLabelValues("session_added").Add(float64(len(d.Sessions.Added)))
	metrics.SyncDeltasApplied.WithLabelValues("session_removed").Add(float64(len(d.Sessions.Removed)))
	metrics.SyncDeltasApplied.WithLabelValues("session_updated").Add(float64(len(d.Sessions.Updated)))
	metrics.SyncDeltasApplied.WithLabelValues("project_added").Add(float64(len(d.Projects.Added)))
	metrics.SyncDeltasApplied.WithLabelValues("project_removed").Add(float64(len(d.Projects.Removed)))
	metrics.SyncDeltasApplied.WithLabelValues("project_updated").Add(float64(len(d.Projects.Updated)))
}

// loadSnapshot reads the active (non-tombstoned) session and project sets,
// keyed for delta computation.
func (e *Engine) loadSnapshot() (map[uuid.UUID]sessionSnapshot, map[uuid.UUID]model.Project, error) {
	sessions, err := e.store.ListActiveSessions()
	if err != nil {
		return nil, nil, errs.NewSyncError("sync.loadSnapshot", err)
	}
	fingerprints := make([]string, len(sessions))
	g := new(errgroup.Group)
	g.SetLimit(worktreeFingerprintConcurrency)
	for i, sess := range sessions {
		i, sess := i, sess
		g.Go(func() error {
			fp, err := e.worktreeFingerprint(sess.ID)
			if err != nil {
				return err
			}
			fingerprints[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sm := make(map[uuid.UUID]sessionSnapshot, len(sessions))
	for i, sess := range sessions {
		sm[sess.ID] = sessionSnapshot{Session: *sess, worktreeFingerprint: fingerprints[i]}
	}

	projects, err := e.store.ListActiveProjects()
	if err != nil {
		return nil, nil, errs.NewSyncError("sync.loadSnapshot", err)
	}
	pm := make(map[uuid.UUID]model.Project, len(projects))
	for _, p := range projects {
		pm[p.ID] = *p
	}

	return sm, pm, nil
}

// worktreeFingerprint summarizes a session's active worktree set as a
// stable string, the "worktree set" tracked field of spec.md §4.5.
func (e *Engine) worktreeFingerprint(sessionID uuid.UUID) (string, error) {
	wts, err := e.store.ListWorktreesForSession(sessionID)
	if err != nil {
		return "", errs.NewSyncError("sync.worktreeFingerprint", err)
	}
	parts := make([]string, len(wts))
	for i, w := range wts {
		parts[i] = w.RepoPath + "=" + w.Branch + ":" + w.WorktreePath
	}
	sort.Strings(parts)
	return strings.Join(parts, "|"), nil
}

// runPurgeIfPrimary claims (or confirms) this instance's primary status and
// purges tombstones past the TTL only if it holds it, so N concurrently
// running instances purge once between them rather than N times (spec.md
// §9 "instance heartbeat / primary election").
func (e *Engine) runPurgeIfPrimary() {
	isPrimary, err := e.store.ElectPrimary(e.primaryElectionTimeout)
	if err != nil {
		syncLog.Warn("elect_primary_failed", "err", err)
		return
	}
	if !isPrimary {
		return
	}
	n, err := e.store.PurgeTombstonesOlderThan(e.tombstoneTTL)
	if err != nil {
		syncLog.Warn("purge_tombstones_failed", "err", err)
		return
	}
	if n > 0 {
		syncLog.Debug("tombstones_purged", "count", n)
	}
}
