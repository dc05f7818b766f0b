package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/shaharnoy/Klettrack-sub002/internal/localdb"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncclient"
)

// TestPayloadBuilderSkipsZeroValues tests that unset flags stay out of the payload
func TestPayloadBuilderSkipsZeroValues(t *testing.T) {
	fields, err := newPayload().
		setString("name", "Hangboard").
		setString("notes", "").
		setInt("reps", 0).
		setInt("sets", 3).
		build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if _, ok := fields["notes"]; ok {
		t.Error("Expected empty string field to be skipped")
	}
	if _, ok := fields["reps"]; ok {
		t.Error("Expected zero int field to be skipped")
	}
	if string(fields["name"]) != `"Hangboard"` {
		t.Errorf("name mismatch: got %s", fields["name"])
	}
	if string(fields["sets"]) != "3" {
		t.Errorf("sets mismatch: got %s", fields["sets"])
	}
}

// TestPayloadBuilderSetKeepsZero tests that set includes explicit zero values
func TestPayloadBuilderSetKeepsZero(t *testing.T) {
	fields, err := newPayload().set("day_index", 0).build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if string(fields["day_index"]) != "0" {
		t.Errorf("day_index mismatch: got %s", fields["day_index"])
	}
}

func TestEnqueueUpsertNewRecord(t *testing.T) {
	dir := t.TempDir()
	db, err := localdb.Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer db.Close()

	id := newEntityID()
	fields := map[string]json.RawMessage{"grade": json.RawMessage(`"6b+"`)}
	if err := enqueueUpsert(db, "climbs", id, fields); err != nil {
		t.Fatalf("enqueueUpsert failed: %v", err)
	}

	rec, err := db.GetRecord("climbs", id)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected record in local mirror")
	}

	pending, err := db.PendingMutations(10)
	if err != nil {
		t.Fatalf("PendingMutations failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending mutation, got %d", len(pending))
	}
	if pending[0].BaseVersion != 0 {
		t.Errorf("Expected baseVersion 0 for a new record, got %d", pending[0].BaseVersion)
	}
	if pending[0].Type != "upsert" {
		t.Errorf("Type mismatch: got %q", pending[0].Type)
	}
}

func TestEnqueueUpsertUsesMirrorVersion(t *testing.T) {
	dir := t.TempDir()
	db, err := localdb.Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer db.Close()

	id := newEntityID()
	fields := map[string]json.RawMessage{"name": json.RawMessage(`"Base phase"`)}
	if err := enqueueUpsert(db, "plans", id, fields); err != nil {
		t.Fatalf("enqueueUpsert failed: %v", err)
	}

	// Simulate a synced record at server version 4.
	tx, err := db.Conn().Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := localdb.SetRecordVersionTx(tx, "plans", id, 4); err != nil {
		t.Fatalf("SetRecordVersionTx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := enqueueUpsert(db, "plans", id, fields); err != nil {
		t.Fatalf("second enqueueUpsert failed: %v", err)
	}

	pending, err := db.PendingMutations(10)
	if err != nil {
		t.Fatalf("PendingMutations failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending mutations, got %d", len(pending))
	}
	if pending[1].BaseVersion != 4 {
		t.Errorf("Expected baseVersion 4 from mirror, got %d", pending[1].BaseVersion)
	}
}

func TestEnqueueDeleteTombstonesLocally(t *testing.T) {
	dir := t.TempDir()
	db, err := localdb.Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer db.Close()

	id := newEntityID()
	fields := map[string]json.RawMessage{"started_at": json.RawMessage(`"2026-03-01T10:00:00Z"`)}
	if err := enqueueUpsert(db, "sessions", id, fields); err != nil {
		t.Fatalf("enqueueUpsert failed: %v", err)
	}
	if err := enqueueDelete(db, "sessions", id); err != nil {
		t.Fatalf("enqueueDelete failed: %v", err)
	}

	rec, err := db.GetRecord("sessions", id)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec != nil {
		t.Error("Expected deleted record to be hidden from reads")
	}

	pending, err := db.PendingMutations(10)
	if err != nil {
		t.Fatalf("PendingMutations failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending mutations, got %d", len(pending))
	}
	if pending[1].Type != "delete" {
		t.Errorf("Type mismatch: got %q", pending[1].Type)
	}
}

// TestSummarizeDoc tests the one-line record preview
func TestSummarizeDoc(t *testing.T) {
	rec := localdb.LocalRecord{Doc: map[string]json.RawMessage{
		"name":  json.RawMessage(`"Moonboard session"`),
		"grade": json.RawMessage(`"7a"`),
		"notes": json.RawMessage(`"ignored"`),
	}}
	got := summarizeDoc(rec)
	if got != "Moonboard session  7a" {
		t.Errorf("summarizeDoc mismatch: got %q", got)
	}

	empty := localdb.LocalRecord{Doc: map[string]json.RawMessage{
		"notes": json.RawMessage(`"x"`),
	}}
	if summarizeDoc(empty) == "" {
		t.Error("Expected field-count fallback for docs without preview keys")
	}
}

// TestFriendlySyncError tests the user-facing error mapping
func TestFriendlySyncError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "unauthorized",
			err:  fmt.Errorf("push: %w", fmt.Errorf("%w: invalid key", syncclient.ErrUnauthorized)),
			want: "session expired: run 'klettrack auth login'",
		},
		{
			name: "forbidden",
			err:  fmt.Errorf("%w: origin denied", syncclient.ErrForbidden),
			want: "session expired: run 'klettrack auth login'",
		},
		{
			name: "bad request",
			err:  fmt.Errorf("%w: malformed body", syncclient.ErrBadRequest),
			want: "server rejected invalid data: run 'klettrack sync failed' for details",
		},
		{
			name: "batch too large",
			err:  fmt.Errorf("%w: 413", syncclient.ErrBatchTooLarge),
			want: "too many changes in one batch: run 'klettrack sync' again",
		},
		{
			name: "rate limited",
			err:  fmt.Errorf("%w: slow down", syncclient.ErrRateLimited),
			want: "server is busy: try again in a minute",
		},
		{
			name: "network",
			err:  fmt.Errorf("push: %w", &url.Error{Op: "Post", URL: "http://localhost:8080/v1/sync/push", Err: errors.New("connection refused")}),
			want: "network issue: changes are kept locally and will sync later",
		},
		{
			name: "unknown passthrough",
			err:  errors.New("disk full"),
			want: "disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := friendlySyncError(tt.err); got != tt.want {
				t.Errorf("friendlySyncError = %q, want %q", got, tt.want)
			}
		})
	}
}
