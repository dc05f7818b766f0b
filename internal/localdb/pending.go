package localdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Mutation queue states.
const (
	StatePending    = "pending"
	StateConflicted = "conflicted"
	StateFailed     = "failed"
)

// PendingMutation is a queued local write, in enqueue order by ID.
type PendingMutation struct {
	ID              int64
	OpID            string
	Entity          string
	EntityID        string
	Type            string
	BaseVersion     int64
	UpdatedAtClient string
	Payload         map[string]json.RawMessage
	State           string
	Reason          string
	ServerVersion   *int64
	ServerDoc       json.RawMessage
	CreatedAt       time.Time
}

// Enqueue appends a mutation to the queue.
func (db *DB) Enqueue(opID, kind, entityID, mutType string, baseVersion int64, updatedAt string, payload map[string]json.RawMessage) error {
	var payloadStr sql.NullString
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payloadStr = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.conn.Exec(`
		INSERT INTO pending_mutations (op_id, entity, entity_id, type, base_version, updated_at_client, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, opID, kind, entityID, mutType, baseVersion, updatedAt, payloadStr)
	return err
}

// PendingMutations returns queued mutations in enqueue order, pending state
// only.
func (db *DB) PendingMutations(limit int) ([]PendingMutation, error) {
	return db.mutationsByState(StatePending, limit)
}

// ConflictedMutations returns mutations parked after a version conflict,
// oldest first.
func (db *DB) ConflictedMutations() ([]PendingMutation, error) {
	return db.mutationsByState(StateConflicted, 0)
}

// FailedMutations returns mutations the server rejected outright.
func (db *DB) FailedMutations() ([]PendingMutation, error) {
	return db.mutationsByState(StateFailed, 0)
}

func (db *DB) mutationsByState(state string, limit int) ([]PendingMutation, error) {
	q := `
		SELECT id, op_id, entity, entity_id, type, base_version, updated_at_client,
		       payload, state, reason, server_version, server_doc, created_at
		FROM pending_mutations
		WHERE state = ?
		ORDER BY id`
	args := []any{state}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMutationByOpID returns a queued mutation by its opId, or nil.
func (db *DB) GetMutationByOpID(opID string) (*PendingMutation, error) {
	rows, err := db.conn.Query(`
		SELECT id, op_id, entity, entity_id, type, base_version, updated_at_client,
		       payload, state, reason, server_version, server_doc, created_at
		FROM pending_mutations
		WHERE op_id = ?
	`, opID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	m, err := scanMutation(rows)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMutation(rows *sql.Rows) (PendingMutation, error) {
	var m PendingMutation
	var payload, serverDoc sql.NullString
	var serverVersion sql.NullInt64
	var ts string
	if err := rows.Scan(&m.ID, &m.OpID, &m.Entity, &m.EntityID, &m.Type, &m.BaseVersion,
		&m.UpdatedAtClient, &payload, &m.State, &m.Reason, &serverVersion, &serverDoc, &ts); err != nil {
		return m, err
	}
	if payload.Valid {
		if err := json.Unmarshal([]byte(payload.String), &m.Payload); err != nil {
			return m, fmt.Errorf("decode payload for %s: %w", m.OpID, err)
		}
	}
	if serverVersion.Valid {
		v := serverVersion.Int64
		m.ServerVersion = &v
	}
	if serverDoc.Valid {
		m.ServerDoc = json.RawMessage(serverDoc.String)
	}
	if t, err := parseTimestamp(ts); err == nil {
		m.CreatedAt = t
	}
	return m, nil
}

// MarkAckedTx removes an acknowledged mutation from the queue.
func MarkAckedTx(tx *sql.Tx, opID string) error {
	_, err := tx.Exec(`DELETE FROM pending_mutations WHERE op_id = ?`, opID)
	return err
}

// MarkConflictedTx parks a mutation with the server's side of the conflict.
func MarkConflictedTx(tx *sql.Tx, opID, reason string, serverVersion *int64, serverDoc json.RawMessage) error {
	var sv sql.NullInt64
	if serverVersion != nil {
		sv = sql.NullInt64{Int64: *serverVersion, Valid: true}
	}
	var sd sql.NullString
	if len(serverDoc) > 0 {
		sd = sql.NullString{String: string(serverDoc), Valid: true}
	}
	_, err := tx.Exec(`
		UPDATE pending_mutations
		SET state = ?, reason = ?, server_version = ?, server_doc = ?
		WHERE op_id = ?
	`, StateConflicted, reason, sv, sd, opID)
	return err
}

// MarkFailedTx parks a mutation the server rejected.
func MarkFailedTx(tx *sql.Tx, opID, reason string) error {
	_, err := tx.Exec(`
		UPDATE pending_mutations SET state = ?, reason = ? WHERE op_id = ?
	`, StateFailed, reason, opID)
	return err
}

// DeleteMutation drops a parked mutation, discarding the local write.
func (db *DB) DeleteMutation(opID string) error {
	_, err := db.conn.Exec(`DELETE FROM pending_mutations WHERE op_id = ?`, opID)
	return err
}

// RequeueMutation puts a parked mutation back in the pending queue under a
// fresh opId and base version. Used by conflict resolution: the retry is a
// new write attempt, not a replay of the old one.
func (db *DB) RequeueMutation(oldOpID, newOpID string, baseVersion int64, payload map[string]json.RawMessage) error {
	var payloadStr sql.NullString
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payloadStr = sql.NullString{String: string(b), Valid: true}
	}
	res, err := db.conn.Exec(`
		UPDATE pending_mutations
		SET op_id = ?, base_version = ?, payload = COALESCE(?, payload),
		    state = ?, reason = '', server_version = NULL, server_doc = NULL
		WHERE op_id = ?
	`, newOpID, baseVersion, payloadStr, StatePending, oldOpID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("mutation %s not found", oldOpID)
	}
	return nil
}

// CountPending returns the number of mutations waiting to be pushed.
func (db *DB) CountPending() (int64, error) {
	var n int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM pending_mutations WHERE state = ?`, StatePending).Scan(&n)
	return n, err
}
