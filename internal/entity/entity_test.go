package entity

import "testing"

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		k, ok := Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) missed a registered kind", name)
		}
		if k.Name != name {
			t.Errorf("Lookup(%q).Name = %q", name, k.Name)
		}
	}
	if IsValid("widgets") {
		t.Error("unknown kind must not validate")
	}
}

func TestContractConsistency(t *testing.T) {
	for _, k := range Kinds {
		for _, req := range k.Required {
			if !k.AllowsField(req) {
				t.Errorf("%s: required field %q missing from allow-list", k.Name, req)
			}
		}
		for field, parent := range k.ParentRefs {
			if !k.AllowsField(field) {
				t.Errorf("%s: parent ref field %q missing from allow-list", k.Name, field)
			}
			if !IsValid(parent) {
				t.Errorf("%s: parent ref %q points at unknown kind %q", k.Name, field, parent)
			}
		}
	}
}
