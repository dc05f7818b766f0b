// Package sync implements the server side of the klettrack sync protocol:
// an owner-scoped record store with per-row optimistic concurrency, a push
// path that classifies each mutation independently, and a cursor-ordered
// pull feed of upserts and tombstones.
package sync

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaharnoy/Klettrack-sub002/internal/entity"
)

// InitRecordStore creates one record table per entity kind plus the global
// write-order sequence. Safe to call on every open.
func InitRecordStore(db *sql.DB) error {
	for _, name := range entity.Names() {
		_, err := db.Exec(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id                 TEXT NOT NULL,
				owner_id           TEXT NOT NULL,
				version            INTEGER NOT NULL DEFAULT 0,
				doc                JSON NOT NULL DEFAULT '{}',
				updated_at_client  TEXT NOT NULL DEFAULT '',
				last_op_id         TEXT NOT NULL DEFAULT '',
				is_deleted         INTEGER NOT NULL DEFAULT 0,
				server_seq         INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (id, owner_id)
			);
			CREATE INDEX IF NOT EXISTS idx_%[1]s_feed ON %[1]s(owner_id, server_seq);
		`, name))
		if err != nil {
			return fmt.Errorf("init record table %s: %w", name, err)
		}
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_sequence (
			id  INTEGER PRIMARY KEY CHECK (id = 1),
			seq INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO sync_sequence (id, seq) VALUES (1, 0);
	`)
	if err != nil {
		return fmt.Errorf("init sync sequence: %w", err)
	}
	return nil
}

// nextSeq advances the global write-order sequence and returns the new value.
func nextSeq(tx *sql.Tx) (int64, error) {
	if _, err := tx.Exec(`UPDATE sync_sequence SET seq = seq + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("advance sequence: %w", err)
	}
	var seq int64
	if err := tx.QueryRow(`SELECT seq FROM sync_sequence WHERE id = 1`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	return seq, nil
}

// CurrentSeq returns the latest assigned write-order sequence.
func CurrentSeq(tx *sql.Tx) (int64, error) {
	var seq int64
	if err := tx.QueryRow(`SELECT seq FROM sync_sequence WHERE id = 1`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	return seq, nil
}

// getRecord fetches the current row for (entityID, ownerID), or nil when the
// record has never been created.
func getRecord(tx *sql.Tx, table, entityID, ownerID string) (*Record, error) {
	rec := &Record{ID: entityID, OwnerID: ownerID}
	var updatedAt string
	var deleted int
	err := tx.QueryRow(
		fmt.Sprintf(`SELECT version, doc, updated_at_client, last_op_id, is_deleted, server_seq
			FROM %s WHERE id = ? AND owner_id = ?`, table),
		entityID, ownerID,
	).Scan(&rec.Version, &rec.Doc, &updatedAt, &rec.LastOpID, &deleted, &rec.ServerSeq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", table, entityID, err)
	}
	rec.IsDeleted = deleted != 0
	if updatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			rec.UpdatedAtClient = ts
		}
	}
	return rec, nil
}

// serverDocEnvelope is the full current server state attached to a conflict,
// so the client can resolve without a follow-up read.
type serverDocEnvelope struct {
	ID              string          `json:"id"`
	Version         int64           `json:"version"`
	IsDeleted       bool            `json:"isDeleted"`
	UpdatedAtClient string          `json:"updatedAtClient,omitempty"`
	Doc             json.RawMessage `json:"doc"`
}

func serverDoc(rec *Record) json.RawMessage {
	env := serverDocEnvelope{
		ID:        rec.ID,
		Version:   rec.Version,
		IsDeleted: rec.IsDeleted,
		Doc:       rec.Doc,
	}
	if !rec.UpdatedAtClient.IsZero() {
		env.UpdatedAtClient = rec.UpdatedAtClient.UTC().Format(time.RFC3339Nano)
	}
	out, err := json.Marshal(env)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return out
}

func formatClientTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ApplyMutations applies a batch of mutations for ownerID within tx.
// Mutations are processed sequentially but independently: one mutation's
// rejection or conflict never aborts the rest of the batch. Replaying a
// mutation whose opId matches the target row's last_op_id is acknowledged
// again without re-applying.
func ApplyMutations(tx *sql.Tx, ownerID string, muts []Mutation) (PushResult, error) {
	var result PushResult

	for _, m := range muts {
		if reason := ValidateMutation(m); reason != "" {
			result.Failed = append(result.Failed, Failure{OpID: m.OpID, Reason: reason})
			continue
		}
		kind, _ := entity.Lookup(m.Entity)

		if m.Type == MutationUpsert {
			reason, err := ValidateParentRefs(tx, ownerID, kind, m.Payload)
			if err != nil {
				slog.Warn("parent check failed", "op", m.OpID, "err", err)
				result.Failed = append(result.Failed, Failure{OpID: m.OpID, Reason: ReasonStorageError})
				continue
			}
			if reason != "" {
				result.Failed = append(result.Failed, Failure{OpID: m.OpID, Reason: reason})
				continue
			}
		}

		rec, err := getRecord(tx, m.Entity, m.EntityID, ownerID)
		if err != nil {
			slog.Warn("record fetch failed", "op", m.OpID, "err", err)
			result.Failed = append(result.Failed, Failure{OpID: m.OpID, Reason: ReasonStorageError})
			continue
		}

		// Idempotent replay: this exact mutation already produced the
		// current state.
		if rec != nil && rec.LastOpID == m.OpID {
			result.AcknowledgedOpIDs = append(result.AcknowledgedOpIDs, m.OpID)
			continue
		}

		if rec == nil {
			if m.BaseVersion != 0 {
				// The client believes a record exists that the server has
				// never seen. Surface as a conflict, not a silent creation.
				result.Conflicts = append(result.Conflicts, Conflict{
					OpID:     m.OpID,
					Entity:   m.Entity,
					EntityID: m.EntityID,
					Reason:   ReasonVersionMismatch,
				})
				continue
			}
			if err := insertRecord(tx, ownerID, m); err != nil {
				slog.Warn("record insert failed", "op", m.OpID, "err", err)
				result.Failed = append(result.Failed, Failure{OpID: m.OpID, Reason: ReasonStorageError})
				continue
			}
			result.AcknowledgedOpIDs = append(result.AcknowledgedOpIDs, m.OpID)
			continue
		}

		if m.BaseVersion != rec.Version {
			v := rec.Version
			result.Conflicts = append(result.Conflicts, Conflict{
				OpID:          m.OpID,
				Entity:        m.Entity,
				EntityID:      m.EntityID,
				Reason:        ReasonVersionMismatch,
				ServerVersion: &v,
				ServerDoc:     serverDoc(rec),
			})
			continue
		}

		if err := updateRecord(tx, ownerID, m, rec); err != nil {
			slog.Warn("record update failed", "op", m.OpID, "err", err)
			result.Failed = append(result.Failed, Failure{OpID: m.OpID, Reason: ReasonStorageError})
			continue
		}
		result.AcknowledgedOpIDs = append(result.AcknowledgedOpIDs, m.OpID)
	}

	seq, err := CurrentSeq(tx)
	if err != nil {
		return result, err
	}
	result.NewCursor = EncodeCursor(seq)
	return result, nil
}

// insertRecord creates a record at version 1. A delete of a never-created
// record with baseVersion 0 inserts a bare tombstone so the op stays
// idempotent and the deletion propagates through the feed.
func insertRecord(tx *sql.Tx, ownerID string, m Mutation) error {
	seq, err := nextSeq(tx)
	if err != nil {
		return err
	}

	doc := json.RawMessage(`{}`)
	deleted := 0
	if m.Type == MutationUpsert {
		doc, err = json.Marshal(m.Payload)
		if err != nil {
			return fmt.Errorf("marshal doc: %w", err)
		}
	} else {
		deleted = 1
	}

	_, err = tx.Exec(
		fmt.Sprintf(`INSERT INTO %s (id, owner_id, version, doc, updated_at_client, last_op_id, is_deleted, server_seq)
			VALUES (?, ?, 1, ?, ?, ?, ?, ?)`, m.Entity),
		m.EntityID, ownerID, string(doc), formatClientTime(m.UpdatedAtClient), m.OpID, deleted, seq,
	)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", m.Entity, m.EntityID, err)
	}
	return nil
}

// updateRecord applies an accepted write on top of rec. Upserts merge
// allow-listed payload fields into the stored doc and clear the tombstone;
// deletes set it. The version WHERE clause is the compare-and-swap guard.
func updateRecord(tx *sql.Tx, ownerID string, m Mutation, rec *Record) error {
	seq, err := nextSeq(tx)
	if err != nil {
		return err
	}

	doc := rec.Doc
	deleted := 0
	if m.Type == MutationUpsert {
		merged := make(map[string]json.RawMessage)
		if len(rec.Doc) > 0 {
			if err := json.Unmarshal(rec.Doc, &merged); err != nil {
				return fmt.Errorf("decode stored doc %s/%s: %w", m.Entity, m.EntityID, err)
			}
		}
		for field, raw := range m.Payload {
			merged[field] = raw
		}
		doc, err = json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal merged doc: %w", err)
		}
	} else {
		deleted = 1
	}

	res, err := tx.Exec(
		fmt.Sprintf(`UPDATE %s SET version = version + 1, doc = ?, updated_at_client = ?, last_op_id = ?, is_deleted = ?, server_seq = ?
			WHERE id = ? AND owner_id = ? AND version = ?`, m.Entity),
		string(doc), formatClientTime(m.UpdatedAtClient), m.OpID, deleted, seq,
		m.EntityID, ownerID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", m.Entity, m.EntityID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update %s/%s: version moved under us", m.Entity, m.EntityID)
	}
	return nil
}

// ChangesSince returns one page of the owner's change feed strictly after
// the given sequence, in server write order. Calling it again with the same
// arguments re-delivers the same page; there is no consumption side effect.
func ChangesSince(tx *sql.Tx, ownerID string, afterSeq int64, limit int) (PullResult, error) {
	result := PullResult{NextCursor: EncodeCursor(afterSeq)}

	var b strings.Builder
	args := make([]any, 0, 2*len(entity.Kinds)+1)
	for i, name := range entity.Names() {
		if i > 0 {
			b.WriteString(" UNION ALL ")
		}
		fmt.Fprintf(&b, `SELECT '%[1]s' AS entity, id, version, doc, updated_at_client, is_deleted, server_seq FROM %[1]s WHERE owner_id = ? AND server_seq > ?`, name)
		args = append(args, ownerID, afterSeq)
	}
	b.WriteString(" ORDER BY server_seq ASC LIMIT ?")
	args = append(args, limit)

	rows, err := tx.Query(b.String(), args...)
	if err != nil {
		return result, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ch Change
		rec := Record{OwnerID: ownerID}
		var updatedAt string
		var deleted int
		if err := rows.Scan(&ch.Entity, &ch.EntityID, &rec.Version, &rec.Doc, &updatedAt, &deleted, &ch.Seq); err != nil {
			return result, fmt.Errorf("scan change: %w", err)
		}
		if deleted != 0 {
			ch.Type = ChangeDelete
		} else {
			rec.ID = ch.EntityID
			if updatedAt != "" {
				if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
					rec.UpdatedAtClient = ts
				}
			}
			ch.Type = ChangeUpsert
			// Full current row, same envelope a conflict carries, so the
			// client learns the authoritative version along with the fields.
			ch.Doc = serverDoc(&rec)
		}
		result.Changes = append(result.Changes, ch)
		result.NextCursor = EncodeCursor(ch.Seq)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("rows iteration: %w", err)
	}

	result.HasMore = len(result.Changes) == limit
	return result, nil
}
