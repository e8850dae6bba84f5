package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentpane/paneboard/internal/errs"
	"github.com/agentpane/paneboard/internal/model"
)

// recordAudit inserts one append-only audit row, stamped with this
// process's instance id (spec.md §4.1 "Audit"). Callers hold no lock; this
// is always invoked from inside the same write path that mutates the row
// it describes, but as a separate statement rather than the same
// transaction — an audit write never fails the entity write.
func (s *Store) recordAudit(entityType model.EntityType, entityID, field, oldValue, newValue string, action model.AuditAction) {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (timestamp, entity_type, entity_id, action, field, old_value, new_value, instance_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), string(entityType), entityID, string(action), field, oldValue, newValue, s.instanceID.String(),
	)
	if err != nil {
		storeLog.Warn("audit_write_failed", "entity_type", entityType, "entity_id", entityID, "err", err)
	}
}

// AuditEntries returns audit rows matching the given filters, newest first.
// An empty entityType or entityID means "any". limit <= 0 means unbounded.
func (s *Store) AuditEntries(entityType model.EntityType, entityID string, limit int) ([]model.AuditEntry, error) {
	query := `SELECT id, timestamp, entity_type, entity_id, action, field, old_value, new_value, instance_id
	          FROM audit_log WHERE 1=1`
	var args []any
	if entityType != "" {
		query += " AND entity_type = ?"
		args = append(args, string(entityType))
	}
	if entityID != "" {
		query += " AND entity_id = ?"
		args = append(args, entityID)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.NewStorageError("store.AuditEntries", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var ts int64
		var instanceStr string
		if err := rows.Scan(&e.ID, &ts, &e.EntityType, &e.EntityID, &e.Action, &e.Field, &e.OldValue, &e.NewValue, &instanceStr); err != nil {
			return nil, errs.NewStorageError("store.AuditEntries", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		if id, err := uuid.Parse(instanceStr); err == nil {
			e.InstanceID = id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
