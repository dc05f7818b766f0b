package sync

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/shaharnoy/Klettrack-sub002/internal/entity"
)

// Machine-actionable rejection reasons. Clients branch on these strings, so
// they are part of the protocol.
const (
	ReasonInvalidOpID            = "invalid_op_id"
	ReasonInvalidEntityID        = "invalid_entity_id"
	ReasonInvalidEntity          = "invalid_entity"
	ReasonInvalidMutationType    = "invalid_mutation_type"
	ReasonInvalidBaseVersion     = "invalid_base_version"
	ReasonMissingPayload         = "missing_payload"
	ReasonInvalidPayloadField    = "invalid_payload_field"
	ReasonMissingRequiredField   = "missing_required_field"
	ReasonInvalidParentReference = "invalid_parent_reference"
	ReasonVersionMismatch        = "version_mismatch"
	ReasonStorageError           = "storage_error"
)

// ValidateMutation checks a mutation structurally against the entity
// contract. It returns the empty string when the mutation is well-formed,
// otherwise one of the Reason constants.
func ValidateMutation(m Mutation) string {
	if _, err := uuid.Parse(m.OpID); err != nil {
		return ReasonInvalidOpID
	}
	if _, err := uuid.Parse(m.EntityID); err != nil {
		return ReasonInvalidEntityID
	}
	kind, ok := entity.Lookup(m.Entity)
	if !ok {
		return ReasonInvalidEntity
	}
	if m.Type != MutationUpsert && m.Type != MutationDelete {
		return ReasonInvalidMutationType
	}
	if m.BaseVersion < 0 {
		return ReasonInvalidBaseVersion
	}
	if m.Type == MutationDelete {
		// Deletes carry no payload; anything supplied is ignored.
		return ""
	}

	if len(m.Payload) == 0 {
		return ReasonMissingPayload
	}
	for field := range m.Payload {
		if !kind.AllowsField(field) {
			return ReasonInvalidPayloadField
		}
	}
	for _, field := range kind.Required {
		raw, ok := m.Payload[field]
		if !ok || isJSONNull(raw) {
			return ReasonMissingRequiredField
		}
	}
	return ""
}

func isJSONNull(raw []byte) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
