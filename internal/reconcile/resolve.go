package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaharnoy/Klettrack-sub002/internal/localdb"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncclient"
)

// KeepMine resolves a parked conflict in favor of the local write: the same
// payload is requeued as a brand-new mutation rebased on the server's
// version. Returns the new opId.
func KeepMine(db *localdb.DB, opID string) (string, error) {
	m, err := db.GetMutationByOpID(opID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("no mutation with opId %s", opID)
	}
	if m.State != localdb.StateConflicted {
		return "", fmt.Errorf("mutation %s is %s, not conflicted", opID, m.State)
	}

	base := int64(0)
	if m.ServerVersion != nil {
		base = *m.ServerVersion
	}
	newOpID := uuid.NewString()
	if err := db.RequeueMutation(opID, newOpID, base, nil); err != nil {
		return "", err
	}
	// Telemetry is best-effort; the resolution itself already committed.
	_ = db.AppendSyncLog("resolve", "kept_mine", m.Entity, m.EntityID, newOpID,
		fmt.Sprintf("requeued at base version %d", base))
	return newOpID, nil
}

// KeepServer resolves a parked conflict in favor of the server: the server's
// document replaces the local mirror row and the local write is discarded.
func KeepServer(db *localdb.DB, opID string) error {
	m, err := db.GetMutationByOpID(opID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no mutation with opId %s", opID)
	}
	if m.State != localdb.StateConflicted {
		return fmt.Errorf("mutation %s is %s, not conflicted", opID, m.State)
	}

	tx, err := db.Conn().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(m.ServerDoc) > 0 {
		var env syncclient.ServerDoc
		if err := json.Unmarshal(m.ServerDoc, &env); err != nil {
			return fmt.Errorf("decode server doc: %w", err)
		}
		if env.IsDeleted {
			if err := localdb.ApplyServerDeleteTx(tx, m.Entity, m.EntityID); err != nil {
				return err
			}
		} else {
			if err := localdb.ApplyServerUpsertTx(tx, m.Entity, m.EntityID, env.Version, env.Doc, env.UpdatedAtClient); err != nil {
				return err
			}
		}
	} else {
		// No server doc means the record does not exist server-side; drop
		// the optimistic local row.
		if err := localdb.ApplyServerDeleteTx(tx, m.Entity, m.EntityID); err != nil {
			return err
		}
	}

	if err := localdb.MarkAckedTx(tx, opID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	_ = db.AppendSyncLog("resolve", "kept_server", m.Entity, m.EntityID, opID, "local write discarded")
	return nil
}
