// Package reconcile drives a full sync round: push the pending mutation
// queue, classify the server's verdicts, then pull the change feed until
// exhausted and fold it into the local mirror.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shaharnoy/Klettrack-sub002/internal/localdb"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncclient"
)

// ErrSyncInProgress is returned when a sync round is already running in this
// process.
var ErrSyncInProgress = errors.New("sync already in progress")

// pushBatchSize stays under the server's batch cap.
const pushBatchSize = 200

// defaultPullLimit is the page size requested on pull.
const defaultPullLimit = 200

// Reconciler coordinates push and pull against one server for one device.
type Reconciler struct {
	db        *localdb.DB
	client    *syncclient.Client
	pullLimit int
	running   atomic.Bool
}

// Summary reports what one sync round did.
type Summary struct {
	Pushed      int
	Acked       int
	Conflicts   int
	Failed      int
	Applied     int
	Pages       int
	CursorReset bool
}

// New creates a Reconciler.
func New(db *localdb.DB, client *syncclient.Client) *Reconciler {
	return &Reconciler{db: db, client: client, pullLimit: defaultPullLimit}
}

// SetHTTPTimeout overrides the client's request timeout, e.g. for background
// sync where the CLI must not stall.
func (r *Reconciler) SetHTTPTimeout(d time.Duration) {
	r.client.HTTP.Timeout = d
}

// Sync runs one full round: push all pending mutations, then pull the change
// feed to exhaustion. Only one round runs at a time per Reconciler.
func (r *Reconciler) Sync() (*Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer r.running.Store(false)

	summary := &Summary{}

	if err := r.pushAll(summary); err != nil {
		return summary, err
	}
	if err := r.pullAll(summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// pushAll drains the pending queue in batches.
func (r *Reconciler) pushAll(summary *Summary) error {
	for {
		pending, err := r.db.PendingMutations(pushBatchSize)
		if err != nil {
			return fmt.Errorf("load pending: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}

		muts := make([]syncclient.Mutation, len(pending))
		byOp := make(map[string]localdb.PendingMutation, len(pending))
		for i, p := range pending {
			muts[i] = syncclient.Mutation{
				OpID:            p.OpID,
				Entity:          p.Entity,
				EntityID:        p.EntityID,
				Type:            p.Type,
				BaseVersion:     p.BaseVersion,
				UpdatedAtClient: p.UpdatedAtClient,
				Payload:         p.Payload,
			}
			byOp[p.OpID] = p
		}

		state, err := r.db.GetSyncState()
		if err != nil {
			return fmt.Errorf("load sync state: %w", err)
		}

		resp, err := r.client.Push(state.Cursor, muts)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
		summary.Pushed += len(muts)

		if err := r.applyPushVerdicts(resp, byOp, summary); err != nil {
			return err
		}

		if len(pending) < pushBatchSize {
			return nil
		}
	}
}

// applyPushVerdicts folds the server's classification of one batch back into
// the local queue and mirror, atomically.
func (r *Reconciler) applyPushVerdicts(resp *syncclient.PushResponse, byOp map[string]localdb.PendingMutation, summary *Summary) error {
	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, opID := range resp.AcknowledgedOpIDs {
		p, ok := byOp[opID]
		if !ok {
			continue
		}
		if err := localdb.MarkAckedTx(tx, opID); err != nil {
			return fmt.Errorf("mark acked %s: %w", opID, err)
		}
		// An accepted write bumps the record exactly one past its base.
		if err := localdb.SetRecordVersionTx(tx, p.Entity, p.EntityID, p.BaseVersion+1); err != nil {
			return fmt.Errorf("bump version %s/%s: %w", p.Entity, p.EntityID, err)
		}
		summary.Acked++
	}

	for _, c := range resp.Conflicts {
		if err := localdb.MarkConflictedTx(tx, c.OpID, c.Reason, c.ServerVersion, c.ServerDoc); err != nil {
			return fmt.Errorf("mark conflicted %s: %w", c.OpID, err)
		}
		summary.Conflicts++
	}

	for _, f := range resp.Failed {
		if err := localdb.MarkFailedTx(tx, f.OpID, f.Reason); err != nil {
			return fmt.Errorf("mark failed %s: %w", f.OpID, err)
		}
		summary.Failed++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit push verdicts: %w", err)
	}

	// Telemetry only; never fails the round.
	for _, opID := range resp.AcknowledgedOpIDs {
		if p, ok := byOp[opID]; ok {
			r.logEvent("push", "acked", p.Entity, p.EntityID, opID, "")
		}
	}
	for _, c := range resp.Conflicts {
		r.logEvent("push", "conflict", c.Entity, c.EntityID, c.OpID, c.Reason)
	}
	for _, f := range resp.Failed {
		if p, ok := byOp[f.OpID]; ok {
			r.logEvent("push", "failed", p.Entity, p.EntityID, f.OpID, f.Reason)
		}
	}

	return nil
}

// pullAll pages through the change feed until hasMore is false, applying each
// page in its own transaction so the cursor only advances past applied pages.
func (r *Reconciler) pullAll(summary *Summary) error {
	state, err := r.db.GetSyncState()
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}
	cursor := state.Cursor

	retried := false
	for {
		resp, err := r.client.Pull(cursor, r.pullLimit)
		if err != nil {
			return fmt.Errorf("pull: %w", err)
		}

		if len(resp.Changes) == 0 {
			// A non-empty cursor yielding nothing against an empty mirror
			// means the cursor points past data this device never saw
			// (local store lost or server compacted). Start over once.
			if cursor != "" && !retried {
				n, cerr := r.db.CountRecords()
				if cerr == nil && n == 0 {
					slog.Debug("reconcile: cursor yields nothing against empty mirror, resetting")
					if rerr := r.db.ResetMirror(); rerr != nil {
						return fmt.Errorf("reset mirror: %w", rerr)
					}
					cursor = ""
					retried = true
					summary.CursorReset = true
					continue
				}
			}
			return nil
		}

		if err := r.applyPage(resp, summary); err != nil {
			return err
		}
		summary.Pages++
		cursor = resp.NextCursor

		if !resp.HasMore {
			return nil
		}
	}
}

// applyPage applies one pull page and advances the cursor in one transaction.
func (r *Reconciler) applyPage(resp *syncclient.PullResponse, summary *Summary) error {
	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range resp.Changes {
		switch c.Type {
		case "delete":
			if err := localdb.ApplyServerDeleteTx(tx, c.Entity, c.EntityID); err != nil {
				return fmt.Errorf("apply delete %s/%s: %w", c.Entity, c.EntityID, err)
			}
		default:
			var env syncclient.ServerDoc
			if err := json.Unmarshal(c.Doc, &env); err != nil {
				return fmt.Errorf("decode change %s/%s: %w", c.Entity, c.EntityID, err)
			}
			if err := localdb.ApplyServerUpsertTx(tx, c.Entity, c.EntityID, env.Version, env.Doc, env.UpdatedAtClient); err != nil {
				return fmt.Errorf("apply upsert %s/%s: %w", c.Entity, c.EntityID, err)
			}
		}
		summary.Applied++
	}

	if err := localdb.SetCursorTx(tx, resp.NextCursor); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pull page: %w", err)
	}

	for _, c := range resp.Changes {
		r.logEvent("pull", "applied", c.Entity, c.EntityID, "", c.Type)
	}
	return nil
}

func (r *Reconciler) logEvent(direction, outcome, kind, entityID, opID, detail string) {
	if err := r.db.AppendSyncLog(direction, outcome, kind, entityID, opID, detail); err != nil {
		slog.Debug("reconcile: telemetry", "err", err)
	}
}
