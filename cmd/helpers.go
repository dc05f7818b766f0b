package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/shaharnoy/Klettrack-sub002/internal/dateparse"
	"github.com/shaharnoy/Klettrack-sub002/internal/localdb"
	"github.com/shaharnoy/Klettrack-sub002/internal/output"
	"github.com/shaharnoy/Klettrack-sub002/internal/reconcile"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncclient"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncconfig"
)

// openLocalDB opens the local database at the configured data dir.
func openLocalDB() (*localdb.DB, error) {
	dir, err := syncconfig.DataDir()
	if err != nil {
		return nil, err
	}
	return localdb.Open(dir)
}

// newReconciler builds a reconciler from the stored credentials.
func newReconciler(db *localdb.DB) (*reconcile.Reconciler, error) {
	if !syncconfig.IsAuthenticated() {
		return nil, fmt.Errorf("not logged in: run 'klettrack auth login' first")
	}
	deviceID, err := syncconfig.GetDeviceID()
	if err != nil {
		return nil, fmt.Errorf("get device id: %w", err)
	}
	// Bind the local store to the logged-in account so one account's queued
	// edits never push under another's key.
	if uid := syncconfig.GetUserID(); uid != "" {
		reset, err := db.AdoptOwner(uid)
		if err != nil {
			return nil, fmt.Errorf("bind local store: %w", err)
		}
		if reset {
			output.Warning("account changed; local sync state was reset")
		}
	}
	client := syncclient.New(syncconfig.GetServerURL(), syncconfig.GetAPIKey(), deviceID)
	return reconcile.New(db, client), nil
}

// friendlySyncError maps transport and auth failures to a message the user
// can act on instead of a raw error string.
func friendlySyncError(err error) string {
	switch {
	case errors.Is(err, syncclient.ErrUnauthorized), errors.Is(err, syncclient.ErrForbidden):
		return "session expired: run 'klettrack auth login'"
	case errors.Is(err, syncclient.ErrBadRequest):
		return "server rejected invalid data: run 'klettrack sync failed' for details"
	case errors.Is(err, syncclient.ErrBatchTooLarge):
		return "too many changes in one batch: run 'klettrack sync' again"
	case errors.Is(err, syncclient.ErrRateLimited):
		return "server is busy: try again in a minute"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "network issue: changes are kept locally and will sync later"
	}
	return err.Error()
}

// payload builds a mutation payload from flag values, skipping zero values so
// unset flags are not synced as empty fields.
type payloadBuilder struct {
	fields map[string]json.RawMessage
	err    error
}

func newPayload() *payloadBuilder {
	return &payloadBuilder{fields: make(map[string]json.RawMessage)}
}

func (p *payloadBuilder) setString(key, val string) *payloadBuilder {
	if val == "" || p.err != nil {
		return p
	}
	return p.set(key, val)
}

func (p *payloadBuilder) setInt(key string, val int) *payloadBuilder {
	if val == 0 || p.err != nil {
		return p
	}
	return p.set(key, val)
}

func (p *payloadBuilder) set(key string, val any) *payloadBuilder {
	if p.err != nil {
		return p
	}
	b, err := json.Marshal(val)
	if err != nil {
		p.err = fmt.Errorf("encode field %s: %w", key, err)
		return p
	}
	p.fields[key] = b
	return p
}

func (p *payloadBuilder) build() (map[string]json.RawMessage, error) {
	return p.fields, p.err
}

// enqueueUpsert writes the edit to the local mirror and queues it for push.
// The mutation's baseVersion is whatever server version the mirror last saw.
func enqueueUpsert(db *localdb.DB, kind, entityID string, fields map[string]json.RawMessage) error {
	rec, err := db.GetRecord(kind, entityID)
	if err != nil {
		return err
	}
	base := int64(0)
	if rec != nil {
		base = rec.Version
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := db.UpsertLocal(kind, entityID, fields, now); err != nil {
		return fmt.Errorf("local write: %w", err)
	}
	if err := db.Enqueue(uuid.NewString(), kind, entityID, "upsert", base, now, fields); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// enqueueDelete tombstones the local row and queues the delete.
func enqueueDelete(db *localdb.DB, kind, entityID string) error {
	rec, err := db.GetRecord(kind, entityID)
	if err != nil {
		return err
	}
	base := int64(0)
	if rec != nil {
		base = rec.Version
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := db.DeleteLocal(kind, entityID, now); err != nil {
		return fmt.Errorf("local delete: %w", err)
	}
	if err := db.Enqueue(uuid.NewString(), kind, entityID, "delete", base, now, nil); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// resolveTimeFlag normalizes a user-entered time flag to RFC 3339. Empty stays
// empty so optional flags pass through untouched.
func resolveTimeFlag(val string) (string, error) {
	if val == "" {
		return "", nil
	}
	return dateparse.ParseTimestamp(val)
}

// newEntityID mints an id for a freshly created record.
func newEntityID() string {
	return uuid.NewString()
}
