package localdb

import (
	"encoding/json"
	"fmt"
	"testing"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	db, err := Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("initialize local db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rawPayload(fields map[string]any) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		b, _ := json.Marshal(v)
		out[k] = b
	}
	return out
}

func TestInitializeAndReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Initialize(dir)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := db.Enqueue("op-1", "climbs", "c-1", "upsert", 0, "2026-02-01T10:00:00Z", rawPayload(map[string]any{"grade": "7a"})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	db.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	n, err := db2.CountPending()
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pending after reopen, got %d (err=%v)", n, err)
	}

	v, err := db2.GetSchemaVersion()
	if err != nil || v != SchemaVersion {
		t.Fatalf("expected schema version %d, got %d (err=%v)", SchemaVersion, v, err)
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error opening nonexistent database")
	}
}

func TestPendingQueueOrder(t *testing.T) {
	db := setupDB(t)

	for i := 0; i < 5; i++ {
		opID := fmt.Sprintf("op-%d", i)
		if err := db.Enqueue(opID, "activities", fmt.Sprintf("a-%d", i), "upsert", 0, "", rawPayload(map[string]any{"name": "x"})); err != nil {
			t.Fatalf("enqueue %s: %v", opID, err)
		}
	}

	muts, err := db.PendingMutations(0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(muts) != 5 {
		t.Fatalf("expected 5 pending, got %d", len(muts))
	}
	for i, m := range muts {
		if m.OpID != fmt.Sprintf("op-%d", i) {
			t.Fatalf("queue out of order at %d: %s", i, m.OpID)
		}
	}

	limited, err := db.PendingMutations(2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 with limit, got %d (err=%v)", len(limited), err)
	}
}

func TestEnqueueDuplicateOpID(t *testing.T) {
	db := setupDB(t)

	if err := db.Enqueue("op-1", "plans", "p-1", "upsert", 0, "", rawPayload(map[string]any{"name": "a"})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.Enqueue("op-1", "plans", "p-1", "upsert", 0, "", rawPayload(map[string]any{"name": "b"})); err == nil {
		t.Fatal("expected unique constraint error on duplicate op_id")
	}
}

func TestConflictParkAndRequeue(t *testing.T) {
	db := setupDB(t)

	if err := db.Enqueue("op-1", "plans", "p-1", "upsert", 0, "", rawPayload(map[string]any{"name": "mine"})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	tx, err := db.Conn().Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	v := int64(3)
	if err := MarkConflictedTx(tx, "op-1", "version_mismatch", &v, json.RawMessage(`{"version":3}`)); err != nil {
		t.Fatalf("mark conflicted: %v", err)
	}
	tx.Commit()

	conflicts, err := db.ConflictedMutations()
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d (err=%v)", len(conflicts), err)
	}
	c := conflicts[0]
	if c.Reason != "version_mismatch" || c.ServerVersion == nil || *c.ServerVersion != 3 {
		t.Fatalf("conflict not recorded: %+v", c)
	}

	// keep-mine: same payload, fresh opId, rebased on the server version.
	if err := db.RequeueMutation("op-1", "op-2", 3, nil); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	pending, err := db.PendingMutations(0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending after requeue, got %d (err=%v)", len(pending), err)
	}
	m := pending[0]
	if m.OpID != "op-2" || m.BaseVersion != 3 || m.ServerVersion != nil {
		t.Fatalf("requeued mutation wrong: %+v", m)
	}
	if string(m.Payload["name"]) != `"mine"` {
		t.Fatalf("payload not preserved: %s", m.Payload["name"])
	}
}

func TestMarkAckedRemovesMutation(t *testing.T) {
	db := setupDB(t)

	db.Enqueue("op-1", "climbs", "c-1", "upsert", 0, "", rawPayload(map[string]any{"grade": "6b"}))

	tx, _ := db.Conn().Begin()
	if err := MarkAckedTx(tx, "op-1"); err != nil {
		t.Fatalf("mark acked: %v", err)
	}
	tx.Commit()

	n, _ := db.CountPending()
	if n != 0 {
		t.Fatalf("expected empty queue after ack, got %d", n)
	}
}

func TestLocalUpsertMergesFields(t *testing.T) {
	db := setupDB(t)

	if err := db.UpsertLocal("climbs", "c-1", rawPayload(map[string]any{"grade": "7b", "route_name": "La Rose"}), "2026-02-01T10:00:00Z"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertLocal("climbs", "c-1", rawPayload(map[string]any{"attempts": 4}), "2026-02-01T11:00:00Z"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rec, err := db.GetRecord("climbs", "c-1")
	if err != nil || rec == nil {
		t.Fatalf("get record: %v", err)
	}
	if string(rec.Doc["grade"]) != `"7b"` || string(rec.Doc["attempts"]) != "4" {
		t.Fatalf("fields not merged: %v", rec.Doc)
	}
}

func TestDeleteLocalTombstones(t *testing.T) {
	db := setupDB(t)

	db.UpsertLocal("plans", "p-1", rawPayload(map[string]any{"name": "block one"}), "")
	if err := db.DeleteLocal("plans", "p-1", "2026-02-02T09:00:00Z"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rec, err := db.GetRecord("plans", "p-1")
	if err != nil || rec == nil {
		t.Fatalf("tombstone should still be readable: %v", err)
	}
	if !rec.IsDeleted {
		t.Fatal("expected is_deleted set")
	}

	live, err := db.ListRecords("plans")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("tombstoned row listed as live: %+v", live)
	}
}

func TestApplyServerPage(t *testing.T) {
	db := setupDB(t)

	tx, err := db.Conn().Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ApplyServerUpsertTx(tx, "sessions", "s-1", 4, rawPayload(map[string]any{"started_at": "2026-02-01T18:00:00Z"}), "2026-02-01T18:00:00Z"); err != nil {
		t.Fatalf("apply upsert: %v", err)
	}
	if err := ApplyServerDeleteTx(tx, "sessions", "s-2"); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if err := SetCursorTx(tx, "42"); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	tx.Commit()

	rec, _ := db.GetRecord("sessions", "s-1")
	if rec == nil || rec.Version != 4 {
		t.Fatalf("server upsert not applied: %+v", rec)
	}
	tomb, _ := db.GetRecord("sessions", "s-2")
	if tomb == nil || !tomb.IsDeleted {
		t.Fatalf("server delete not applied: %+v", tomb)
	}

	state, err := db.GetSyncState()
	if err != nil || state.Cursor != "42" {
		t.Fatalf("cursor not persisted: %+v (err=%v)", state, err)
	}
	if state.LastSyncAt == nil {
		t.Fatal("expected last_sync_at set")
	}

	n, _ := db.CountRecords()
	if n != 2 {
		t.Fatalf("expected 2 mirrored rows, got %d", n)
	}
}

func TestResetMirror(t *testing.T) {
	db := setupDB(t)

	db.UpsertLocal("climbs", "c-1", rawPayload(map[string]any{"grade": "8a"}), "")
	db.SetCursor("99")

	if err := db.ResetMirror(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	n, _ := db.CountRecords()
	if n != 0 {
		t.Fatalf("mirror not wiped, %d rows remain", n)
	}
	state, _ := db.GetSyncState()
	if state.Cursor != "" {
		t.Fatalf("cursor not reset: %q", state.Cursor)
	}
}

func TestSyncLogCap(t *testing.T) {
	db := setupDB(t)

	for i := 0; i < syncLogCap+25; i++ {
		if err := db.AppendSyncLog("push", "acked", "climbs", fmt.Sprintf("c-%d", i), fmt.Sprintf("op-%d", i), ""); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}

	entries, err := db.SyncLogTail(0)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != syncLogCap {
		t.Fatalf("expected log capped at %d, got %d", syncLogCap, len(entries))
	}
	// Most recent first.
	if entries[0].OpID != fmt.Sprintf("op-%d", syncLogCap+24) {
		t.Fatalf("unexpected newest entry: %s", entries[0].OpID)
	}
}

func TestAdoptOwnerFirstClaim(t *testing.T) {
	db := setupDB(t)

	reset, err := db.AdoptOwner("user-a")
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if reset {
		t.Fatal("first claim must not reset anything")
	}

	owner, err := db.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != "user-a" {
		t.Fatalf("expected owner user-a, got %q", owner)
	}

	// Re-adopting the same account is a no-op.
	reset, err = db.AdoptOwner("user-a")
	if err != nil {
		t.Fatalf("re-adopt: %v", err)
	}
	if reset {
		t.Fatal("same-account adopt must not reset")
	}
}

func TestAdoptOwnerAccountSwitchWipesState(t *testing.T) {
	db := setupDB(t)

	if _, err := db.AdoptOwner("user-a"); err != nil {
		t.Fatalf("adopt: %v", err)
	}
	db.UpsertLocal("climbs", "c-1", rawPayload(map[string]any{"grade": "8a"}), "")
	if err := db.Enqueue("op-1", "climbs", "c-1", "upsert", 0, "", rawPayload(map[string]any{"grade": "8a"})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	db.SetCursor("42")

	reset, err := db.AdoptOwner("user-b")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !reset {
		t.Fatal("account switch must reset local state")
	}

	// The previous account's queued edits must never push under the new key.
	pending, err := db.PendingMutations(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty queue after switch, got %d", len(pending))
	}
	if rec, _ := db.GetRecord("climbs", "c-1"); rec != nil {
		t.Fatal("expected mirror wiped after switch")
	}
	state, err := db.GetSyncState()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Cursor != "" {
		t.Fatalf("expected cursor reset, got %q", state.Cursor)
	}
	owner, _ := db.Owner()
	if owner != "user-b" {
		t.Fatalf("expected owner user-b, got %q", owner)
	}
}
