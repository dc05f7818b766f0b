package localdb

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shaharnoy/Klettrack-sub002/internal/entity"
)

// LocalRecord is one row of a local mirror table.
type LocalRecord struct {
	ID              string
	Version         int64
	Doc             map[string]json.RawMessage
	UpdatedAtClient string
	IsDeleted       bool
}

// GetRecord returns the local mirror row for an entity, or nil if the device
// has never seen it.
func (db *DB) GetRecord(kind, id string) (*LocalRecord, error) {
	if !entity.IsValid(kind) {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	var rec LocalRecord
	var doc string
	var deleted int
	err := db.conn.QueryRow(fmt.Sprintf(`
		SELECT id, version, doc, updated_at_client, is_deleted
		FROM %s WHERE id = ?
	`, recordTable(kind)), id).Scan(&rec.ID, &rec.Version, &doc, &rec.UpdatedAtClient, &deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(doc), &rec.Doc); err != nil {
		return nil, fmt.Errorf("decode local doc %s/%s: %w", kind, id, err)
	}
	rec.IsDeleted = deleted != 0
	return &rec, nil
}

// ListRecords returns all live (non-tombstoned) local rows of a kind.
func (db *DB) ListRecords(kind string) ([]LocalRecord, error) {
	if !entity.IsValid(kind) {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	rows, err := db.conn.Query(fmt.Sprintf(`
		SELECT id, version, doc, updated_at_client, is_deleted
		FROM %s WHERE is_deleted = 0 ORDER BY id
	`, recordTable(kind)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LocalRecord
	for rows.Next() {
		var rec LocalRecord
		var doc string
		var deleted int
		if err := rows.Scan(&rec.ID, &rec.Version, &doc, &rec.UpdatedAtClient, &deleted); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(doc), &rec.Doc); err != nil {
			return nil, fmt.Errorf("decode local doc %s/%s: %w", kind, rec.ID, err)
		}
		rec.IsDeleted = deleted != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRecords returns the total number of mirrored rows across all entity
// kinds, tombstones included. Zero on a device that has never pulled.
func (db *DB) CountRecords() (int64, error) {
	var total int64
	for _, k := range entity.Kinds {
		var n int64
		if err := db.conn.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", recordTable(k.Name))).Scan(&n); err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// UpsertLocal merges fields into the local mirror row without touching its
// version. This is the optimistic local write that happens the moment the
// user edits something, before any sync.
func (db *DB) UpsertLocal(kind, id string, fields map[string]json.RawMessage, updatedAt string) error {
	rec, err := db.GetRecord(kind, id)
	if err != nil {
		return err
	}

	merged := make(map[string]json.RawMessage)
	if rec != nil {
		for k, v := range rec.Doc {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	doc, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	version := int64(0)
	if rec != nil {
		version = rec.Version
	}
	_, err = db.conn.Exec(fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (id, version, doc, updated_at_client, is_deleted)
		VALUES (?, ?, ?, ?, 0)
	`, recordTable(kind)), id, version, string(doc), updatedAt)
	return err
}

// DeleteLocal tombstones the local mirror row. Missing rows are tombstoned
// too, so a delete of something never pulled still syncs.
func (db *DB) DeleteLocal(kind, id string, updatedAt string) error {
	rec, err := db.GetRecord(kind, id)
	if err != nil {
		return err
	}
	version := int64(0)
	doc := "{}"
	if rec != nil {
		version = rec.Version
		b, merr := json.Marshal(rec.Doc)
		if merr == nil {
			doc = string(b)
		}
	}
	_, err = db.conn.Exec(fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (id, version, doc, updated_at_client, is_deleted)
		VALUES (?, ?, ?, ?, 1)
	`, recordTable(kind)), id, version, doc, updatedAt)
	return err
}

// ApplyServerUpsertTx overwrites the local mirror row with the server's
// authoritative envelope, inside the caller's transaction.
func ApplyServerUpsertTx(tx *sql.Tx, kind, id string, version int64, doc map[string]json.RawMessage, updatedAt string) error {
	if !entity.IsValid(kind) {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = tx.Exec(fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (id, version, doc, updated_at_client, is_deleted)
		VALUES (?, ?, ?, ?, 0)
	`, recordTable(kind)), id, version, string(raw), updatedAt)
	return err
}

// ApplyServerDeleteTx records a server tombstone in the local mirror.
func ApplyServerDeleteTx(tx *sql.Tx, kind, id string) error {
	if !entity.IsValid(kind) {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	_, err := tx.Exec(fmt.Sprintf(`
		INSERT INTO %s (id, version, doc, updated_at_client, is_deleted)
		VALUES (?, 0, '{}', '', 1)
		ON CONFLICT(id) DO UPDATE SET is_deleted = 1
	`, recordTable(kind)), id)
	return err
}

// SetRecordVersionTx pins the local row's version to the server's, used after
// the server acknowledges a push so the next edit carries the right base.
func SetRecordVersionTx(tx *sql.Tx, kind, id string, version int64) error {
	if !entity.IsValid(kind) {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	_, err := tx.Exec(fmt.Sprintf(`
		UPDATE %s SET version = ? WHERE id = ?
	`, recordTable(kind)), version, id)
	return err
}

// ResetMirror wipes every local mirror table and the cursor. Used when the
// server's retention horizon has passed the device's cursor and a full
// re-pull is the only way back.
func (db *DB) ResetMirror() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, k := range entity.Kinds {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", recordTable(k.Name))); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE sync_state SET cursor = '' WHERE id = 1`); err != nil {
		return err
	}
	return tx.Commit()
}
