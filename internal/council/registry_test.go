package council

import (
	"errors"
	"testing"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
)

func perspectiveMembers() []domain.CouncilMember {
	return []domain.CouncilMember{
		{ID: "logic", Name: "Logic", ReasoningSelector: "p/m"},
		{ID: "hanafi", Name: "Hanafi", ReasoningSelector: "p/m", Perspectives: []string{"hanafi"}},
		{ID: "maliki", Name: "Maliki", ReasoningSelector: "p/m", Perspectives: []string{"Maliki"}},
		{ID: "ethics", Name: "Ethics", ReasoningSelector: "p/m"},
	}
}

func ids(members []domain.CouncilMember) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		members []domain.CouncilMember
	}{
		{"empty", nil},
		{"missing id", []domain.CouncilMember{{Name: "x"}}},
		{"duplicate id", []domain.CouncilMember{{ID: "a"}, {ID: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.members); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRegistry_ListAndGet(t *testing.T) {
	reg, err := NewRegistry(perspectiveMembers())
	if err != nil {
		t.Fatal(err)
	}

	if got := ids(reg.List()); !equalIDs(got, []string{"logic", "hanafi", "maliki", "ethics"}) {
		t.Errorf("List() = %v, want registration order", got)
	}

	m, err := reg.Get("maliki")
	if err != nil || m.Name != "Maliki" {
		t.Errorf("Get(maliki) = %+v, %v", m, err)
	}

	_, err = reg.Get("nobody")
	if !errors.Is(err, domain.ErrMemberNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(nobody) error = %v, want ErrMemberNotFound", err)
	}
}

func TestRegistry_ListReturnsCopy(t *testing.T) {
	reg, _ := NewRegistry(perspectiveMembers())
	list := reg.List()
	list[0].Name = "changed"
	if m, _ := reg.Get("logic"); m.Name != "Logic" {
		t.Error("mutating List() result changed the registry")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	reg, _ := NewRegistry(perspectiveMembers())

	tests := []struct {
		perspective string
		want        []string
	}{
		{"", []string{"logic", "hanafi", "maliki", "ethics"}},
		{"hanafi", []string{"logic", "hanafi", "ethics"}},
		{"MALIKI", []string{"logic", "maliki", "ethics"}},
		{" maliki ", []string{"logic", "maliki", "ethics"}},
	}
	for _, tt := range tests {
		t.Run(tt.perspective, func(t *testing.T) {
			got, err := reg.Snapshot(tt.perspective)
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}
			if !equalIDs(ids(got), tt.want) {
				t.Errorf("Snapshot(%q) = %v, want %v", tt.perspective, ids(got), tt.want)
			}
		})
	}
}

func TestRegistry_SnapshotUnknownPerspective(t *testing.T) {
	reg, _ := NewRegistry(perspectiveMembers())

	_, err := reg.Snapshot("zahiri")
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Type != domain.ErrorTypeInvalidRequest || apiErr.Code != domain.ErrorCodeUnknownPerspective {
		t.Errorf("got %s/%s, want invalid_request/unknown_perspective", apiErr.Type, apiErr.Code)
	}
	if apiErr.HTTPStatusCode() != 400 {
		t.Errorf("status = %d, want 400", apiErr.HTTPStatusCode())
	}
}

func TestRegistry_Perspectives(t *testing.T) {
	reg, _ := NewRegistry(perspectiveMembers())
	if got := reg.Perspectives(); !equalIDs(got, []string{"hanafi", "maliki"}) {
		t.Errorf("Perspectives() = %v", got)
	}
}

func TestRegistry_Admin(t *testing.T) {
	reg, _ := NewRegistry([]domain.CouncilMember{{ID: "a"}, {ID: "b"}})

	if err := reg.Add(domain.CouncilMember{ID: "a"}); err == nil {
		t.Error("Add() duplicate should fail")
	}
	if err := reg.Add(domain.CouncilMember{ID: "c"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}

	if err := reg.Remove("zz"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Remove(zz) error = %v", err)
	}
	if err := reg.Remove("a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := ids(reg.List()); !equalIDs(got, []string{"b", "c"}) {
		t.Errorf("after Remove, List() = %v", got)
	}

	if err := reg.Replace(nil); err == nil {
		t.Error("Replace(nil) should fail")
	}
	if err := reg.Replace([]domain.CouncilMember{{ID: "z"}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := reg.Remove("z"); err == nil {
		t.Error("removing the last member should fail")
	}
}

func TestSnapshotIsolatedFromReplace(t *testing.T) {
	reg, _ := NewRegistry(perspectiveMembers())
	snap, _ := reg.Snapshot("")
	if err := reg.Replace([]domain.CouncilMember{{ID: "solo"}}); err != nil {
		t.Fatal(err)
	}
	if len(snap) != 4 || snap[0].ID != "logic" {
		t.Errorf("snapshot changed after Replace: %v", ids(snap))
	}
}

func TestRegistryFromConfig(t *testing.T) {
	reg, err := RegistryFromConfig(config.CouncilConfig{Members: config.DefaultMembers()})
	if err != nil {
		t.Fatalf("RegistryFromConfig() error = %v", err)
	}
	if reg.Len() != len(config.DefaultMembers()) {
		t.Errorf("Len() = %d", reg.Len())
	}
	for _, p := range config.Madhabs {
		members, err := reg.Snapshot(p)
		if err != nil {
			t.Fatalf("Snapshot(%s) error = %v", p, err)
		}
		if len(members) != 5 {
			t.Errorf("Snapshot(%s) = %d members, want 4 universal + 1 scholar", p, len(members))
		}
	}
}
