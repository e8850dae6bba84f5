// Package metrics holds the process-wide Prometheus collectors C2
// (internal/mux), C5 (internal/sync) and C6 (internal/core) record
// against. cmd/paneboard-admin is the only thing that scrapes them, over an
// optional /metrics endpoint; the orchestrator process itself never serves
// HTTP (spec.md §1 "no remote-transport backend").
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsAdopted counts pane adoptions across rehydration and
	// cross-instance delta application (C6).
	SessionsAdopted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paneboard_sessions_adopted_total",
		Help: "Total number of sessions adopted from a discovered or synced pane.",
	})

	// SessionsSpawned counts brand-new agent processes launched.
	SessionsSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paneboard_sessions_spawned_total",
		Help: "Total number of new sessions spawned.",
	})

	// CommandsTimedOut counts control-mode commands that hit their response
	// timeout (mux.DefaultCommandTimeout, or the shorter handshake timeout)
	// waiting for a %begin/%end reply (C2).
	CommandsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paneboard_mux_commands_timed_out_total",
		Help: "Total number of tmux control-mode commands that timed out awaiting a reply.",
	})

	// SyncDeltasApplied counts deltas the sync engine has applied to the
	// local in-memory view, labeled by delta kind (C5).
	SyncDeltasApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paneboard_sync_deltas_applied_total",
		Help: "Total number of cross-instance sync deltas applied, by kind.",
	}, []string{"kind"})

	// ActiveSessionsGauge mirrors the current count of non-deleted
	// sessions (terminated ones included), set on each admin-sidecar scrape tick from the
	// database rather than pushed by the orchestrator (so the admin
	// sidecar stays usable even when no paneboard TUI process is running).
	ActiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paneboard_active_sessions",
		Help: "Current number of active (non-deleted) sessions across all projects.",
	})
)

// Handler returns the Prometheus scrape handler cmd/paneboard-admin mounts
// at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
