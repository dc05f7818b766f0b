package localdb

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/shaharnoy/Klettrack-sub002/internal/entity"
)

// SchemaVersion is the current local database schema version.
const SchemaVersion = 2

// recordTableSchema is the shared shape of every local mirror table. The
// version column is the last server version this device has seen; it feeds
// the baseVersion of the next enqueued mutation.
const recordTableSchema = `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    version INTEGER NOT NULL DEFAULT 0,
    doc TEXT NOT NULL DEFAULT '{}',
    updated_at_client TEXT NOT NULL DEFAULT '',
    is_deleted INTEGER NOT NULL DEFAULT 0
);
`

const schema = `
-- Mutations waiting to be pushed, in enqueue order
CREATE TABLE IF NOT EXISTS pending_mutations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    op_id TEXT NOT NULL UNIQUE,
    entity TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    type TEXT NOT NULL,
    base_version INTEGER NOT NULL DEFAULT 0,
    updated_at_client TEXT NOT NULL DEFAULT '',
    payload TEXT,
    state TEXT NOT NULL DEFAULT 'pending',
    reason TEXT DEFAULT '',
    server_version INTEGER,
    server_doc TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pending_state ON pending_mutations(state, id);
CREATE INDEX IF NOT EXISTS idx_pending_entity ON pending_mutations(entity, entity_id);

-- Single-row cursor into the server change feed
CREATE TABLE IF NOT EXISTS sync_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    cursor TEXT NOT NULL DEFAULT '',
    last_sync_at DATETIME,
    owner_user_id TEXT NOT NULL DEFAULT ''
);

-- Recent sync activity, capped; purely informational
CREATE TABLE IF NOT EXISTS sync_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    direction TEXT NOT NULL,
    outcome TEXT NOT NULL,
    entity TEXT NOT NULL DEFAULT '',
    entity_id TEXT NOT NULL DEFAULT '',
    op_id TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// recordTable maps an entity kind to its local mirror table name.
func recordTable(kind string) string {
	return "local_" + kind
}

func createSchema(conn *sql.DB) error {
	var b strings.Builder
	b.WriteString(schema)
	for _, k := range entity.Kinds {
		b.WriteString(fmt.Sprintf(recordTableSchema, recordTable(k.Name)))
	}
	_, err := conn.Exec(b.String())
	return err
}

// GetSchemaVersion returns the current schema version from the database.
func (db *DB) GetSchemaVersion() (int, error) {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err != nil {
		// Missing row or missing table both mean a fresh database.
		return 0, nil
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v, nil
}

func (db *DB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// RunMigrations creates the schema on a fresh database and applies any
// pending migrations. Returns the number of migrations applied.
func (db *DB) RunMigrations() (int, error) {
	currentVersion, _ := db.GetSchemaVersion()
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	if err := createSchema(db.conn); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}

	applied := 0
	// v2: sync_state learns which account the store belongs to. Fresh
	// databases get the column from createSchema above.
	if currentVersion == 1 {
		if _, err := db.conn.Exec(`ALTER TABLE sync_state ADD COLUMN owner_user_id TEXT NOT NULL DEFAULT ''`); err != nil {
			return applied, fmt.Errorf("migrate to v2: %w", err)
		}
		applied++
	}

	if err := db.setSchemaVersion(SchemaVersion); err != nil {
		return applied, fmt.Errorf("set schema version: %w", err)
	}
	return applied, nil
}
