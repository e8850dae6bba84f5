package store

import (
	"fmt"
	"time"

	"github.com/agentpane/paneboard/internal/errs"
)

// RegisterInstance records this process as a live paneboard instance,
// grounded on the teacher's RegisterInstance (internal/statedb/statedb.go),
// extended to also store this process's instance UUID so the primary's
// identity can be reported, not just its pid (spec.md §9 "instance
// heartbeat / primary election").
func (s *Store) RegisterInstance(isPrimary bool) error {
	now := time.Now().Unix()
	primary := 0
	if isPrimary {
		primary = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO instance_heartbeats (pid, instance_id, started, heartbeat, is_primary)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(pid) DO UPDATE SET instance_id = excluded.instance_id, heartbeat = excluded.heartbeat, is_primary = excluded.is_primary`,
		s.pid, s.instanceID.String(), now, now, primary,
	)
	if err != nil {
		return errs.NewStorageError("store.RegisterInstance", err)
	}
	return nil
}

// Heartbeat refreshes this process's heartbeat timestamp.
func (s *Store) Heartbeat() error {
	_, err := s.db.Exec(`UPDATE instance_heartbeats SET heartbeat = ? WHERE pid = ?`, time.Now().Unix(), s.pid)
	if err != nil {
		return errs.NewStorageError("store.Heartbeat", err)
	}
	return nil
}

// UnregisterInstance removes this process's heartbeat row on clean shutdown.
func (s *Store) UnregisterInstance() error {
	_, err := s.db.Exec(`DELETE FROM instance_heartbeats WHERE pid = ?`, s.pid)
	if err != nil {
		return errs.NewStorageError("store.UnregisterInstance", err)
	}
	return nil
}

// CleanDeadInstances removes heartbeat rows that have gone stale.
func (s *Store) CleanDeadInstances(timeout time.Duration) error {
	cutoff := time.Now().Add(-timeout).Unix()
	_, err := s.db.Exec(`DELETE FROM instance_heartbeats WHERE heartbeat < ?`, cutoff)
	if err != nil {
		return errs.NewStorageError("store.CleanDeadInstances", err)
	}
	return nil
}

// AliveInstanceCount reports how many instances have heartbeat within the
// last 30 seconds.
func (s *Store) AliveInstanceCount() (int, error) {
	var count int
	cutoff := time.Now().Add(-30 * time.Second).Unix()
	err := s.db.QueryRow(`SELECT COUNT(*) FROM instance_heartbeats WHERE heartbeat >= ?`, cutoff).Scan(&count)
	if err != nil {
		return 0, errs.NewStorageError("store.AliveInstanceCount", err)
	}
	return count, nil
}

// ElectPrimary attempts to make this instance the primary, clearing any
// stale primary claim first, and reports whether this instance now holds
// it. Used to gate the tombstone-purge cron to a single instance so the
// purge sweep does not run redundantly in every open TUI (spec.md §9).
func (s *Store) ElectPrimary(timeout time.Duration) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, errs.NewStorageError("store.ElectPrimary", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := time.Now().Add(-timeout).Unix()

	if _, err := tx.Exec(
		`UPDATE instance_heartbeats SET is_primary = 0 WHERE heartbeat < ? AND is_primary = 1`, cutoff,
	); err != nil {
		return false, errs.NewStorageError("store.ElectPrimary", fmt.Errorf("clear stale: %w", err))
	}

	var existingPID int
	err = tx.QueryRow(
		`SELECT pid FROM instance_heartbeats WHERE is_primary = 1 AND heartbeat >= ? LIMIT 1`, cutoff,
	).Scan(&existingPID)

	if err == nil {
		if err := tx.Commit(); err != nil {
			return false, errs.NewStorageError("store.ElectPrimary", err)
		}
		return existingPID == s.pid, nil
	}

	if _, err := tx.Exec(`UPDATE instance_heartbeats SET is_primary = 1 WHERE pid = ?`, s.pid); err != nil {
		return false, errs.NewStorageError("store.ElectPrimary", fmt.Errorf("claim: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return false, errs.NewStorageError("store.ElectPrimary", err)
	}
	return true, nil
}

// ResignPrimary clears this process's primary claim, e.g. on shutdown.
func (s *Store) ResignPrimary() error {
	_, err := s.db.Exec(`UPDATE instance_heartbeats SET is_primary = 0 WHERE pid = ?`, s.pid)
	if err != nil {
		return errs.NewStorageError("store.ResignPrimary", err)
	}
	return nil
}
