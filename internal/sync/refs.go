package sync

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shaharnoy/Klettrack-sub002/internal/entity"
)

// ValidateParentRefs checks every parent reference field in an upsert payload
// against the record store: the referenced row must exist, be owned by
// ownerID, and not be tombstoned. It returns ReasonInvalidParentReference
// when any check fails, or the empty string when all pass. A non-nil error
// indicates a storage failure, not a validation outcome.
//
// Optimistic concurrency alone cannot catch orphaned rows or cross-tenant
// linkage, which is why this runs before version comparison.
func ValidateParentRefs(tx *sql.Tx, ownerID string, kind entity.Kind, payload map[string]json.RawMessage) (string, error) {
	for field, parent := range kind.ParentRefs {
		raw, ok := payload[field]
		if !ok {
			// Partial upserts may omit the reference; required-field
			// validation already ran for creates.
			continue
		}

		var refID string
		if err := json.Unmarshal(raw, &refID); err != nil || refID == "" {
			return ReasonInvalidParentReference, nil
		}

		var exists bool
		err := tx.QueryRow(
			fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = ? AND owner_id = ? AND is_deleted = 0)`, parent),
			refID, ownerID,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check parent %s.%s: %w", parent, refID, err)
		}
		if !exists {
			return ReasonInvalidParentReference, nil
		}
	}
	return "", nil
}
