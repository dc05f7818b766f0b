package sync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Mutation types.
const (
	MutationUpsert = "upsert"
	MutationDelete = "delete"
)

// Change types in the pull feed.
const (
	ChangeUpsert = "upsert"
	ChangeDelete = "delete"
)

// Mutation is a single client-authored write attempt. OpID is the global
// idempotency key; BaseVersion is the record version the client last observed.
type Mutation struct {
	OpID            string
	Entity          string
	EntityID        string
	Type            string
	BaseVersion     int64
	UpdatedAtClient time.Time
	Payload         map[string]json.RawMessage // nil for delete
}

// Conflict is produced when a mutation's BaseVersion does not match the
// record's current version. ServerVersion is nil when the record does not
// exist on the server at all.
type Conflict struct {
	OpID          string
	Entity        string
	EntityID      string
	Reason        string
	ServerVersion *int64
	ServerDoc     json.RawMessage
}

// Failure records a mutation rejected for a non-concurrency reason.
type Failure struct {
	OpID   string
	Reason string
}

// PushResult classifies every mutation in a push batch.
type PushResult struct {
	AcknowledgedOpIDs []string
	Conflicts         []Conflict
	Failed            []Failure
	NewCursor         string
}

// Change is one element of the pull feed: the full current row for upserts,
// or a tombstone carrying only the entity id for deletes.
type Change struct {
	Entity   string
	Type     string
	EntityID string
	Doc      json.RawMessage // nil for deletes
	Seq      int64
}

// PullResult is one page of the owner-scoped change feed.
type PullResult struct {
	Changes    []Change
	NextCursor string
	HasMore    bool
}

// Record is a server-authoritative row. Version 0 means "not yet created";
// the first accepted write produces version 1. Rows are never physically
// deleted, only tombstoned.
type Record struct {
	ID              string
	OwnerID         string
	Version         int64
	Doc             json.RawMessage
	UpdatedAtClient time.Time
	LastOpID        string
	IsDeleted       bool
	ServerSeq       int64
}

// EncodeCursor renders a feed position as an opaque cursor string. The empty
// cursor means "from the beginning of time".
func EncodeCursor(seq int64) string {
	if seq <= 0 {
		return ""
	}
	return strconv.FormatInt(seq, 10)
}

// DecodeCursor parses a cursor previously returned by EncodeCursor.
func DecodeCursor(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(s, 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("malformed cursor %q", s)
	}
	return seq, nil
}
