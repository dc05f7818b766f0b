package localdb

import (
	"time"
)

// syncLogCap bounds the telemetry table; older rows are pruned on insert.
const syncLogCap = 200

// SyncLogEntry is one row of the local sync telemetry log.
type SyncLogEntry struct {
	ID        int64
	Direction string // "push", "pull" or "resolve"
	Outcome   string // "acked", "conflict", "failed", "applied", "error", "kept_mine", "kept_server"
	Entity    string
	EntityID  string
	OpID      string
	Detail    string
	Timestamp time.Time
}

// AppendSyncLog records a sync event and prunes the log to its cap. The log
// is best-effort: callers treat a non-nil error as ignorable.
func (db *DB) AppendSyncLog(direction, outcome, kind, entityID, opID, detail string) error {
	_, err := db.conn.Exec(`
		INSERT INTO sync_log (direction, outcome, entity, entity_id, op_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, direction, outcome, kind, entityID, opID, detail)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		DELETE FROM sync_log WHERE id NOT IN (
			SELECT id FROM sync_log ORDER BY id DESC LIMIT ?
		)
	`, syncLogCap)
	return err
}

// SyncLogTail returns the last N log entries, most recent first.
func (db *DB) SyncLogTail(limit int) ([]SyncLogEntry, error) {
	if limit <= 0 || limit > syncLogCap {
		limit = syncLogCap
	}
	rows, err := db.conn.Query(`
		SELECT id, direction, outcome, entity, entity_id, op_id, detail, timestamp
		FROM sync_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.Direction, &e.Outcome, &e.Entity, &e.EntityID, &e.OpID, &e.Detail, &ts); err != nil {
			return nil, err
		}
		if t, perr := parseTimestamp(ts); perr == nil {
			e.Timestamp = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// parseTimestamp tries common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02T15:04:05Z07:00",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: "2006-01-02 15:04:05", Value: s}
}
