package sync

import (
	"testing"

	"github.com/google/uuid"
)

func TestValidateMutation_Reasons(t *testing.T) {
	valid := upsert("climbs", uuid.NewString(), 0, map[string]any{"grade": "7a"})

	tests := []struct {
		name   string
		mutate func(m *Mutation)
		want   string
	}{
		{"valid upsert", func(m *Mutation) {}, ""},
		{"valid delete", func(m *Mutation) { m.Type = MutationDelete; m.Payload = nil }, ""},
		{"malformed op id", func(m *Mutation) { m.OpID = "not-a-uuid" }, ReasonInvalidOpID},
		{"empty op id", func(m *Mutation) { m.OpID = "" }, ReasonInvalidOpID},
		{"malformed entity id", func(m *Mutation) { m.EntityID = "42" }, ReasonInvalidEntityID},
		{"unknown entity", func(m *Mutation) { m.Entity = "widgets" }, ReasonInvalidEntity},
		{"unknown mutation type", func(m *Mutation) { m.Type = "patch" }, ReasonInvalidMutationType},
		{"negative base version", func(m *Mutation) { m.BaseVersion = -1 }, ReasonInvalidBaseVersion},
		{"nil payload on upsert", func(m *Mutation) { m.Payload = nil }, ReasonMissingPayload},
		{"empty payload on upsert", func(m *Mutation) { m.Payload = payload(map[string]any{}) }, ReasonMissingPayload},
		{"disallowed field", func(m *Mutation) { m.Payload = payload(map[string]any{"grade": "7a", "color": "red"}) }, ReasonInvalidPayloadField},
		{"missing required field", func(m *Mutation) { m.Payload = payload(map[string]any{"notes": "fun"}) }, ReasonMissingRequiredField},
		{"required field null", func(m *Mutation) { m.Payload = payload(map[string]any{"grade": nil}) }, ReasonMissingRequiredField},
		{"delete ignores payload", func(m *Mutation) { m.Type = MutationDelete }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			m.Payload = payload(map[string]any{"grade": "7a"})
			tt.mutate(&m)
			if got := ValidateMutation(m); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateMutation_RequiredPerEntity(t *testing.T) {
	// interval_templates requires name, work_seconds and rest_seconds.
	m := upsert("interval_templates", uuid.NewString(), 0, map[string]any{
		"name": "4x4", "work_seconds": 240,
	})
	if got := ValidateMutation(m); got != ReasonMissingRequiredField {
		t.Errorf("got %q, want %q", got, ReasonMissingRequiredField)
	}

	m.Payload = payload(map[string]any{"name": "4x4", "work_seconds": 240, "rest_seconds": 240})
	if got := ValidateMutation(m); got != "" {
		t.Errorf("got %q, want valid", got)
	}
}
