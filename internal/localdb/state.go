package localdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shaharnoy/Klettrack-sub002/internal/entity"
)

// SyncState is the device's position in the server change feed.
type SyncState struct {
	Cursor     string
	LastSyncAt *time.Time
}

// GetSyncState returns the current sync state. A device that has never
// synced gets the empty cursor.
func (db *DB) GetSyncState() (SyncState, error) {
	var s SyncState
	var last sql.NullTime
	err := db.conn.QueryRow(`SELECT cursor, last_sync_at FROM sync_state WHERE id = 1`).
		Scan(&s.Cursor, &last)
	if err == sql.ErrNoRows {
		return SyncState{}, nil
	}
	if err != nil {
		return SyncState{}, err
	}
	if last.Valid {
		s.LastSyncAt = &last.Time
	}
	return s, nil
}

// Owner returns the user id the local store is bound to, or "" if no account
// has claimed it yet.
func (db *DB) Owner() (string, error) {
	var owner string
	err := db.conn.QueryRow(`SELECT owner_user_id FROM sync_state WHERE id = 1`).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

// AdoptOwner binds the local store to an account. Switching accounts wipes
// the mirror, the pending queue and the cursor so one account's queued edits
// never push under another account's key. Returns true when a wipe happened.
func (db *DB) AdoptOwner(userID string) (bool, error) {
	owner, err := db.Owner()
	if err != nil {
		return false, err
	}
	if owner == userID {
		return false, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	reset := owner != ""
	if reset {
		for _, k := range entity.Kinds {
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", recordTable(k.Name))); err != nil {
				return false, err
			}
		}
		if _, err := tx.Exec(`DELETE FROM pending_mutations`); err != nil {
			return false, err
		}
		if _, err := tx.Exec(`UPDATE sync_state SET cursor = '' WHERE id = 1`); err != nil {
			return false, err
		}
	}
	if _, err := tx.Exec(`
		INSERT INTO sync_state (id, cursor, owner_user_id) VALUES (1, '', ?)
		ON CONFLICT(id) DO UPDATE SET owner_user_id = excluded.owner_user_id
	`, userID); err != nil {
		return false, err
	}
	return reset, tx.Commit()
}

// SetCursor persists the cursor after a fully applied pull page.
func (db *DB) SetCursor(cursor string) error {
	_, err := db.conn.Exec(`
		INSERT INTO sync_state (id, cursor, last_sync_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET cursor = excluded.cursor, last_sync_at = CURRENT_TIMESTAMP
	`, cursor)
	return err
}

// SetCursorTx is SetCursor inside the caller's transaction, so the cursor
// only advances if the page it covers was applied.
func SetCursorTx(tx *sql.Tx, cursor string) error {
	_, err := tx.Exec(`
		INSERT INTO sync_state (id, cursor, last_sync_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET cursor = excluded.cursor, last_sync_at = CURRENT_TIMESTAMP
	`, cursor)
	return err
}
