// Package entity defines the closed set of syncable entity kinds and the
// per-kind field contract shared by the server validators and the client
// payload builders. Adding a kind or field here is a protocol change: server
// and client must ship it together.
package entity

// Kind describes one syncable entity kind.
type Kind struct {
	Name string
	// Fields is the payload allow-list. Upserts carrying any other key are
	// rejected.
	Fields []string
	// Required lists fields that must be present on every upsert.
	Required []string
	// ParentRefs maps a payload field to the entity kind it must reference.
	// Referenced rows must exist and belong to the same owner.
	ParentRefs map[string]string
}

// Kinds is the closed entity set, in stable registration order.
var Kinds = []Kind{
	{
		Name:     "activities",
		Fields:   []string{"name", "kind", "notes", "duration_minutes", "performed_at"},
		Required: []string{"name"},
	},
	{
		Name:     "climbs",
		Fields:   []string{"grade", "style", "route_name", "location", "attempts", "notes", "climbed_at"},
		Required: []string{"grade"},
	},
	{
		Name:     "plans",
		Fields:   []string{"name", "starts_on", "weeks", "notes"},
		Required: []string{"name"},
	},
	{
		Name:       "plan_days",
		Fields:     []string{"plan_id", "day_index", "focus", "notes"},
		Required:   []string{"plan_id", "day_index"},
		ParentRefs: map[string]string{"plan_id": "plans"},
	},
	{
		Name:     "sessions",
		Fields:   []string{"started_at", "kind", "location", "notes"},
		Required: []string{"started_at"},
	},
	{
		Name:       "session_items",
		Fields:     []string{"session_id", "exercise", "sets", "reps", "weight_kg", "order_index", "notes"},
		Required:   []string{"session_id", "exercise"},
		ParentRefs: map[string]string{"session_id": "sessions"},
	},
	{
		Name:     "interval_templates",
		Fields:   []string{"name", "work_seconds", "rest_seconds", "rounds", "notes"},
		Required: []string{"name", "work_seconds", "rest_seconds"},
	},
	{
		Name:       "intervals",
		Fields:     []string{"template_id", "round", "completed_seconds", "performed_at"},
		Required:   []string{"template_id"},
		ParentRefs: map[string]string{"template_id": "interval_templates"},
	},
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, len(Kinds))
	for _, k := range Kinds {
		m[k.Name] = k
	}
	return m
}()

// Lookup returns the Kind for name, or false if it is not part of the set.
func Lookup(name string) (Kind, bool) {
	k, ok := byName[name]
	return k, ok
}

// IsValid reports whether name is a member of the closed entity set.
func IsValid(name string) bool {
	_, ok := byName[name]
	return ok
}

// Names returns the entity kind names in registration order.
func Names() []string {
	out := make([]string, len(Kinds))
	for i, k := range Kinds {
		out[i] = k.Name
	}
	return out
}

// AllowsField reports whether field is in the kind's payload allow-list.
func (k Kind) AllowsField(field string) bool {
	for _, f := range k.Fields {
		if f == field {
			return true
		}
	}
	return false
}
