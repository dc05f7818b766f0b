package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// DeviceCursor records the last feed position a device reported, for
// diagnosing sync issues. Clients own their cursors; this is advisory only.
type DeviceCursor struct {
	UserID     string
	DeviceID   string
	LastSeq    int64
	LastSyncAt *time.Time
}

// UpsertDeviceCursor creates or updates the advisory cursor for a
// user/device pair.
func (db *ServerDB) UpsertDeviceCursor(userID, deviceID string, lastSeq int64) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(`
		INSERT INTO device_cursors (user_id, device_id, last_seq, last_sync_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, device_id)
		DO UPDATE SET last_seq = excluded.last_seq, last_sync_at = excluded.last_sync_at
	`, userID, deviceID, lastSeq, now)
	if err != nil {
		return fmt.Errorf("upsert device cursor: %w", err)
	}
	return nil
}

// GetDeviceCursor returns the cursor for a user/device pair, or nil if the
// device has never synced.
func (db *ServerDB) GetDeviceCursor(userID, deviceID string) (*DeviceCursor, error) {
	c := &DeviceCursor{}
	err := db.conn.QueryRow(
		`SELECT user_id, device_id, last_seq, last_sync_at FROM device_cursors WHERE user_id = ? AND device_id = ?`,
		userID, deviceID,
	).Scan(&c.UserID, &c.DeviceID, &c.LastSeq, &c.LastSyncAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device cursor: %w", err)
	}
	return c, nil
}
